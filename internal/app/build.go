package app

import (
	"fmt"

	"clairvoyance/internal/api"
	"clairvoyance/internal/clock"
	"clairvoyance/internal/config"
	"clairvoyance/internal/geo"
	"clairvoyance/internal/maintenance"
	"clairvoyance/internal/notifier"
	"clairvoyance/internal/orchestrator"
	"clairvoyance/internal/plugin"
	"clairvoyance/internal/queue"
	"clairvoyance/internal/randx"
	"clairvoyance/internal/remote"
	"clairvoyance/internal/spawnpoint"
	"clairvoyance/internal/storage"
	"clairvoyance/internal/transport/telegram"
	"clairvoyance/internal/worker"
	logx "clairvoyance/pkg/logx"
)

func mapLogging(rt *config.Runtime) logx.Config {
	l := rt.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled: l.File.Enabled,
			Path:    l.File.Path,
		},
		Alerts: logx.AlertConfig{
			Enabled:    l.Alerts.Enabled,
			MinLevel:   l.Alerts.MinLevel,
			RatePerSec: l.Alerts.RatePerSec,
		},
	}
}

func mapTransform(rt *config.Runtime) clock.Transform {
	return clock.Transform{Simulate: rt.Simulate, Multiplier: rt.Multiplier}
}

func mapWorkerConfig(rt *config.Runtime) worker.Config {
	return worker.Config{
		MaxLoggedIn:       rt.MaxLoggedIn,
		MaxLoggedInFuzz:   rt.MaxLoggedInFuzz,
		LoginFuzz:         rt.LoginFuzz,
		ReloginDelay:      rt.ReloginDelay,
		LoginFailureLimit: rt.LoginFailureLimit,
		ScanFailureLimit:  rt.ScanFailureLimit,
		ScanDelay:         rt.ScanDelay,
		DelayFuzz:         rt.DelayFuzz,
		MaxSpeed:          rt.MaxSpeedMPS,
		Fuzz: worker.Fuzz{
			Lat:               rt.Fuzz.Lat,
			Long:              rt.Fuzz.Long,
			Elevation:         rt.Fuzz.Elevation,
			LatLongDecimals:   rt.Fuzz.LatLongDecimals,
			ElevationDecimals: rt.Fuzz.ElevationDecimals,
		},
	}
}

func mapQueueConfig(rt *config.Runtime) (queue.Config, error) {
	order, err := queue.ParseOrder(rt.QueueOrder)
	if err != nil {
		return queue.Config{}, err
	}
	return queue.Config{
		MaxLength:       rt.QueueMaxLength,
		GlobalDelay:     rt.GlobalDelay,
		GlobalDelayFuzz: rt.GlobalDelayFuzz,
		BackoffStep:     rt.BackoffStep,
		Parallel:        rt.Parallel,
		Order:           order,
		ScanTimeout:     rt.ScanTimeout,
	}, nil
}

func mapOrchestratorConfig(rt *config.Runtime) orchestrator.Config {
	return orchestrator.Config{
		SpawnScanDelay:      rt.SpawnScanDelay,
		HealthCheckInterval: rt.HealthInterval,
		BannedLimit:         rt.BannedLimit,
		StatsInterval:       rt.StatsInterval,
		SimulationDuration:  rt.SimulationDuration,
	}
}

// mapStorageConfig returns false when persistence is disabled. Simulated
// runs write under their own namespace so they never mix with real data.
func mapStorageConfig(rt *config.Runtime) (storage.Config, bool) {
	s := rt.Storage
	if s.Driver == "" || s.Driver == "none" {
		return storage.Config{}, false
	}
	cfg := storage.Config{
		Driver:        s.Driver,
		Path:          s.Path,
		BusyTimeout:   s.BusyTimeout,
		RedisAddr:     s.RedisAddr,
		RedisPassword: s.RedisPassword,
		RedisDB:       s.RedisDB,
	}
	if rt.Simulate {
		cfg.Namespace = storage.SimulatedNamespace
	}
	return cfg, true
}

func mapMaintenanceConfig(rt *config.Runtime) maintenance.Config {
	return maintenance.Config{Schedule: rt.Storage.PruneSchedule, Retention: rt.Storage.Retention}
}

func mapAPIConfig(rt *config.Runtime) api.Config {
	a := rt.API
	return api.Config{
		Enabled:       a.Enabled,
		Addr:          a.Addr,
		Token:         a.Token,
		AllowInsecure: a.AllowInsecure,
		Pprof:         a.Pprof,
		PprofPrefix:   a.PprofPrefix,
		ReadTimeout:   a.ReadTimeout,
		WriteTimeout:  a.WriteTimeout,
		IdleTimeout:   a.IdleTimeout,
	}
}

func mapNotifierConfig(rt *config.Runtime) notifier.Config {
	n := rt.Notifier
	return notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       n.RetryBase,
		RetryMaxDelay:   n.RetryMaxDelay,
		DedupWindow:     n.DedupWindow,
		DedupMaxEntries: n.DedupMaxEntries,
	}
}

// loadSpawnpoints reads the dataset and keeps the points inside the scan
// circle.
func loadSpawnpoints(rt *config.Runtime, env spawnpoint.Env) ([]*spawnpoint.Spawnpoint, error) {
	recs, err := spawnpoint.ReadRecords(rt.SpawnpointsPath)
	if err != nil {
		return nil, err
	}
	total := len(recs)
	recs = spawnpoint.FilterWithinRadius(recs, geo.Point{Lat: rt.CenterLat, Long: rt.CenterLong}, rt.RadiusMeters)
	if len(recs) == 0 {
		return nil, fmt.Errorf("no spawnpoints within %.0fm of (%f, %f) out of %d loaded", rt.RadiusMeters, rt.CenterLat, rt.CenterLong, total)
	}
	return spawnpoint.Build(recs, env), nil
}

func newRemoteClient(rt *config.Runtime, clk clock.Clock, rnd *randx.Source) (remote.Client, error) {
	if rt.Simulate {
		return &remote.Simulated{
			Clock:                   clk,
			Transform:               mapTransform(rt),
			Rand:                    rnd,
			RequestDuration:         rt.RequestDuration,
			LoginFailureProbability: rt.LoginFailureProbability,
			ScanFailureProbability:  rt.ScanFailureProbability,
		}, nil
	}
	h, err := remote.NewHTTP(rt.RemoteEndpoint, rt.RemoteTimeout)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// buildPlugins registers the enabled listeners. The notifier is returned
// only when a chat listener needs it.
func buildPlugins(rt *config.Runtime, log logx.Logger) (*plugin.Registry, *notifier.Service, error) {
	reg := plugin.NewRegistry(log)
	if rt.LogPlugin {
		if err := reg.Register(plugin.NewLogListener(log)); err != nil {
			return nil, nil, err
		}
	}
	if rt.Telegram == nil {
		return reg, nil, nil
	}
	tc := rt.Telegram
	sender, err := telegram.New(telegram.Config{Token: tc.Token, APIURL: tc.APIURL, Timeout: tc.Timeout}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("telegram: %w", err)
	}
	notif := notifier.New(mapNotifierConfig(rt), sender, log)
	l := plugin.NewTelegramListener(plugin.TelegramConfig{
		ChatID:        tc.ChatID,
		ThreadID:      tc.ThreadID,
		Subscriptions: tc.Subscriptions,
		AnnounceStart: tc.AnnounceStart,
	}, notif, log)
	if err := reg.Register(l); err != nil {
		return nil, nil, err
	}
	return reg, notif, nil
}
