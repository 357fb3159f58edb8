package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"clairvoyance/internal/config"
	logx "clairvoyance/pkg/logx"
)

// validateReload rejects a reloaded config whose datasets have gone missing,
// so a half-written deployment never replaces a working config.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	rt, err := cfg.Runtime()
	if err != nil {
		return err
	}
	for _, p := range []string{rt.SpawnpointsPath, rt.AccountsPath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("dataset %s: %w", p, err)
		}
	}
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config matters.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(ctx, last, newCfg)
			last = newCfg
		}
	}
}

// applyConfig applies the hot-reloadable sections of newCfg: the pause flag,
// logging and the notifier. Everything else is reported as needing a restart.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	rt, err := newCfg.Runtime()
	if err != nil {
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}

	a.logs.Apply(mapLogging(rt))

	if a.orch.Pause().Set(rt.Paused) {
		if rt.Paused {
			a.log.Info("scanning paused via config")
		} else {
			a.log.Info("scanning resumed via config")
		}
	}

	if a.notif != nil {
		ncfg := mapNotifierConfig(rt)
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case wasEnabled && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !wasEnabled && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	if len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
