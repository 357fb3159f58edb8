package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrNoEndpoint = errors.New("remote: endpoint is not configured")

// HTTP talks to a scanning gateway speaking JSON over HTTP:
//
//	POST {endpoint}/login  {"username","password"}      -> {"token"}
//	POST {endpoint}/scan   {"lat","lng","elevation",...} -> MapResponse
type HTTP struct {
	endpoint string
	client   *http.Client
	now      func() time.Time
}

func NewHTTP(endpoint string, timeout time.Duration) (*HTTP, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTP{endpoint: endpoint, client: &http.Client{Timeout: timeout}, now: time.Now}, nil
}

type loginResponse struct {
	Token string `json:"token"`
}

type scanRequest struct {
	Lat          float64 `json:"lat"`
	Long         float64 `json:"lng"`
	Elevation    float64 `json:"elevation"`
	SpawnpointID string  `json:"spawnpoint_id,omitempty"`
}

func (h *HTTP) Login(ctx context.Context, creds Credentials) (Session, error) {
	var out loginResponse
	if err := h.post(ctx, "/login", "", creds, &out); err != nil {
		return Session{}, fmt.Errorf("login %s: %w", creds.Username, err)
	}
	if out.Token == "" {
		return Session{}, fmt.Errorf("login %s: empty token", creds.Username)
	}
	return Session{Token: out.Token, IssuedAt: h.now()}, nil
}

func (h *HTTP) Scan(ctx context.Context, sess Session, p ScanParams) (*MapResponse, error) {
	if sess.Token == "" {
		return nil, ErrNoSession
	}
	body := scanRequest{
		Lat:          p.Position.Lat,
		Long:         p.Position.Long,
		Elevation:    p.Position.Elevation,
		SpawnpointID: p.SpawnpointID,
	}
	var out MapResponse
	if err := h.post(ctx, "/scan", sess.Token, body, &out); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return &out, nil
}

func (h *HTTP) post(ctx context.Context, path, token string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
