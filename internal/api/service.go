// Package api serves the HTTP control and data surface: the map feed,
// statistics, pause control, Prometheus metrics and optional pprof.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"clairvoyance/internal/clock"
	"clairvoyance/internal/orchestrator"
	rtsup "clairvoyance/internal/runtime/supervisor"
	logx "clairvoyance/pkg/logx"
)

const defaultAddr = "127.0.0.1:8080"

// ErrInsecureBind is returned for a non-loopback address without a token.
var ErrInsecureBind = errors.New("api: non-loopback addr requires token or allow_insecure")

type Service struct {
	mu   sync.Mutex
	cfg  Config
	deps Deps
	log  logx.Logger

	sup     *rtsup.Supervisor
	ln      net.Listener
	srv     *http.Server
	handler http.Handler
}

func New(cfg Config, deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Pause == nil {
		deps.Pause = orchestrator.NewSwitch(false)
	}
	deps.Log = deps.Log.With(logx.String("comp", "api"))
	return &Service{cfg: cfg, deps: deps, log: deps.Log, handler: Router(cfg, deps)}
}

// Handler is the routed handler, for tests and embedding.
func (s *Service) Handler() http.Handler { return s.handler }

// Addr is the bound address while running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Start binds the listener and serves in the background, rebinding with
// backoff if the server dies. Bind and security errors are returned
// directly.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.sup != nil {
		return nil
	}
	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	if s.cfg.Token == "" && !isLoopbackAddr(addr) {
		if !s.cfg.AllowInsecure {
			return fmt.Errorf("%w (addr %s)", ErrInsecureBind, addr)
		}
		s.log.Warn("api running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", addr, err)
	}
	s.ln = ln

	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// The API is optional; losing it never stops scanning.
		rtsup.WithCancelOnError(false),
	)
	first := ln
	s.sup.GoRestart("http.serve", func(c context.Context) error {
		l := first
		first = nil
		return s.serveOnce(c, addr, l)
	}, 500*time.Millisecond, 10*time.Second)
	return nil
}

func (s *Service) serveOnce(ctx context.Context, addr string, ln net.Listener) error {
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", addr); err != nil {
			return err
		}
	}
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.mu.Lock()
	s.ln, s.srv = ln, srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("api started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", s.cfg.Token != ""),
		logx.Bool("pprof", s.cfg.Pprof),
	)
	err := srv.Serve(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("api server exited unexpectedly")
	}
	return err
}

// Stop shuts the server down gracefully within ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup, srv := s.sup, s.srv
	s.sup, s.srv, s.ln = nil, nil, nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	// Earlier serve failures were already logged by the restart loop.
	if err := sup.Stop(ctx); err != nil && ctx.Err() != nil {
		return err
	}
	s.log.Info("api stopped")
	return nil
}
