package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Runtime is the resolved configuration: durations parsed, defaults
// applied, values validated. Components are built from it.
type Runtime struct {
	Logging LoggingConfig

	SpawnpointsPath string
	AccountsPath    string
	CenterLat       float64
	CenterLong      float64
	RadiusMeters    float64
	Lookback        time.Duration

	Paused          bool
	SpawnScanDelay  time.Duration
	GlobalDelay     time.Duration
	GlobalDelayFuzz time.Duration
	BackoffStep     time.Duration
	ScanTimeout     time.Duration
	Parallel        bool
	QueueMaxLength  int
	QueueOrder      string
	Allocation      string
	Seed            int64

	Fuzz FuzzRuntime

	MaxAccounts       int
	ScanDelay         time.Duration
	DelayFuzz         time.Duration
	MaxSpeedMPS       float64
	MaxLoggedIn       time.Duration
	MaxLoggedInFuzz   time.Duration
	LoginFuzz         time.Duration
	ReloginDelay      time.Duration
	LoginFailureLimit int
	ScanFailureLimit  int

	HealthInterval time.Duration
	BannedLimit    int
	StatsInterval  time.Duration

	Simulate                bool
	Multiplier              float64
	SimulationDuration      time.Duration
	RequestDuration         time.Duration
	LoginFailureProbability float64
	ScanFailureProbability  float64

	RemoteEndpoint string
	RemoteTimeout  time.Duration

	Storage  StorageRuntime
	API      APIRuntime
	Notifier NotifierRuntime

	LogPlugin bool
	// Telegram is nil unless the telegram plugin is enabled.
	Telegram *TelegramRuntime
}

type FuzzRuntime struct {
	Lat, Long, Elevation float64
	LatLongDecimals      int
	ElevationDecimals    int
}

type StorageRuntime struct {
	Driver        string
	Path          string
	BusyTimeout   time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PruneSchedule string
	Retention     time.Duration
}

type APIRuntime struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool
	PprofPrefix   string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
}

type NotifierRuntime struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

type TelegramRuntime struct {
	Token         string
	APIURL        string
	Timeout       time.Duration
	ChatID        int64
	ThreadID      int
	Subscriptions []int
	AnnounceStart bool
}

// durations parses duration fields and collects every error so a bad
// config reports all problems at once.
type durations struct {
	errs []error
}

func (d *durations) parse(path, raw string, def time.Duration) time.Duration {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		d.errs = append(d.errs, fmt.Errorf("%s: invalid duration %q", path, raw))
		return def
	}
	if v < 0 {
		d.errs = append(d.errs, fmt.Errorf("%s: duration must be >= 0", path))
		return def
	}
	return v
}

func (d *durations) check(ok bool, format string, args ...any) {
	if !ok {
		d.errs = append(d.errs, fmt.Errorf(format, args...))
	}
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// Runtime resolves c. The error joins every validation failure.
func (c *Config) Runtime() (*Runtime, error) {
	if c == nil {
		c = &Config{}
	}
	d := &durations{}
	r := &Runtime{Logging: c.Logging}
	if strings.TrimSpace(r.Logging.Level) == "" {
		r.Logging.Level = "INFO"
	}
	d.check(validLevel(r.Logging.Level), "logging.level: unknown level %q", r.Logging.Level)
	if r.Logging.Alerts.Enabled && r.Logging.Alerts.MinLevel != "" {
		d.check(validLevel(r.Logging.Alerts.MinLevel), "logging.alerts.min_level: unknown level %q", r.Logging.Alerts.MinLevel)
	}
	d.check(!r.Logging.File.Enabled || strings.TrimSpace(r.Logging.File.Path) != "", "logging.file.path: required when the file sink is enabled")

	// data
	r.SpawnpointsPath = strings.TrimSpace(c.Data.Spawnpoints)
	r.AccountsPath = strings.TrimSpace(c.Data.Accounts)
	r.CenterLat, r.CenterLong = c.Data.CenterLat, c.Data.CenterLong
	r.RadiusMeters = c.Data.RadiusMeters
	r.Lookback = d.parse("data.lookback", c.Data.Lookback, 10*time.Minute)
	d.check(r.SpawnpointsPath != "", "data.spawnpoints: required")
	d.check(r.AccountsPath != "", "data.accounts: required")
	d.check(math.Abs(r.CenterLat) <= 90 && math.Abs(r.CenterLong) <= 180, "data: scan center out of range")
	d.check(r.Lookback < time.Hour, "data.lookback: must be under one hour")

	// scan
	r.Paused = c.Scan.Paused
	r.SpawnScanDelay = d.parse("scan.spawn_scan_delay", c.Scan.SpawnScanDelay, 0)
	r.GlobalDelay = d.parse("scan.global_delay", c.Scan.GlobalDelay, time.Second)
	r.GlobalDelayFuzz = d.parse("scan.global_delay_fuzz", c.Scan.GlobalDelayFuzz, 0)
	r.BackoffStep = d.parse("scan.backoff_step", c.Scan.BackoffStep, 0)
	r.ScanTimeout = d.parse("scan.scan_timeout", c.Scan.ScanTimeout, 2*time.Minute)
	r.Parallel = c.Scan.Parallel
	r.QueueMaxLength = intOr(c.Scan.QueueMaxLength, 100)
	r.QueueOrder = strings.ToLower(strings.TrimSpace(c.Scan.QueueOrder))
	if r.QueueOrder == "" {
		r.QueueOrder = "lifo"
	}
	r.Allocation = strings.ToLower(strings.TrimSpace(c.Scan.Allocation))
	if r.Allocation == "" {
		r.Allocation = "greedy"
	}
	r.Seed = c.Scan.Seed
	d.check(r.QueueMaxLength > 0, "scan.queue_max_length: must be > 0")
	d.check(r.QueueOrder == "lifo" || r.QueueOrder == "fifo", "scan.queue_order: unknown order %q", c.Scan.QueueOrder)
	d.check(r.Allocation == "greedy" || r.Allocation == "conservative", "scan.allocation: unknown policy %q", c.Scan.Allocation)

	// fuzz
	r.Fuzz = FuzzRuntime{Lat: c.Fuzz.Lat, Long: c.Fuzz.Long, Elevation: c.Fuzz.Elevation, LatLongDecimals: 6, ElevationDecimals: 1}
	if c.Fuzz.LatLongDecimals != nil {
		r.Fuzz.LatLongDecimals = *c.Fuzz.LatLongDecimals
	}
	if c.Fuzz.ElevationDecimals != nil {
		r.Fuzz.ElevationDecimals = *c.Fuzz.ElevationDecimals
	}
	d.check(r.Fuzz.Lat >= 0 && r.Fuzz.Long >= 0 && r.Fuzz.Elevation >= 0, "fuzz: factors must be >= 0")

	// workers
	w := c.Workers
	r.MaxAccounts = w.MaxAccounts
	r.ScanDelay = d.parse("workers.scan_delay", w.ScanDelay, 10*time.Second)
	r.DelayFuzz = d.parse("workers.delay_fuzz", w.DelayFuzz, 0)
	r.MaxSpeedMPS = w.MaxSpeedMPS
	if r.MaxSpeedMPS == 0 {
		r.MaxSpeedMPS = 10
	}
	r.MaxLoggedIn = d.parse("workers.max_logged_in", w.MaxLoggedIn, time.Hour)
	r.MaxLoggedInFuzz = d.parse("workers.max_logged_in_fuzz", w.MaxLoggedInFuzz, 0)
	r.LoginFuzz = d.parse("workers.login_fuzz", w.LoginFuzz, 0)
	r.ReloginDelay = d.parse("workers.relogin_delay", w.ReloginDelay, time.Minute)
	r.LoginFailureLimit = intOr(w.LoginFailureLimit, 3)
	r.ScanFailureLimit = intOr(w.ScanFailureLimit, 3)
	d.check(r.MaxSpeedMPS > 0, "workers.max_speed_mps: must be > 0")
	d.check(r.LoginFailureLimit > 0, "workers.login_failure_limit: must be > 0")
	d.check(r.ScanFailureLimit > 0, "workers.scan_failure_limit: must be > 0")
	d.check(r.MaxLoggedInFuzz < r.MaxLoggedIn, "workers.max_logged_in_fuzz: must be below max_logged_in")

	// health, stats
	r.HealthInterval = d.parse("health.interval", c.Health.Interval, time.Minute)
	r.BannedLimit = c.Health.BannedLimit
	d.check(r.BannedLimit >= 0, "health.banned_limit: must be >= 0")
	r.StatsInterval = d.parse("stats.interval", c.Stats.Interval, time.Minute)

	// simulation
	s := c.Simulation
	r.Simulate = s.Enabled
	r.Multiplier = s.Multiplier
	if r.Multiplier == 0 {
		r.Multiplier = 1
	}
	r.SimulationDuration = d.parse("simulation.duration", s.Duration, 0)
	r.RequestDuration = d.parse("simulation.request_duration", s.RequestDuration, time.Second)
	r.LoginFailureProbability = s.LoginFailureProbability
	r.ScanFailureProbability = s.ScanFailureProbability
	d.check(r.Multiplier > 0, "simulation.multiplier: must be > 0")
	d.check(probability(r.LoginFailureProbability), "simulation.login_failure_probability: must be within [0,1]")
	d.check(probability(r.ScanFailureProbability), "simulation.scan_failure_probability: must be within [0,1]")

	// remote
	r.RemoteEndpoint = strings.TrimSpace(c.Remote.Endpoint)
	r.RemoteTimeout = d.parse("remote.timeout", c.Remote.Timeout, 30*time.Second)
	d.check(r.Simulate || r.RemoteEndpoint != "", "remote.endpoint: required unless simulation.enabled")

	r.Storage = resolveStorage(c.Storage, d)
	r.API = resolveAPI(c.API, d)
	r.Notifier = resolveNotifier(c.Notifier, d)
	resolvePlugins(c.Plugins, r, d)

	if len(d.errs) > 0 {
		return nil, errors.Join(d.errs...)
	}
	return r, nil
}

// Validate reports whether c resolves cleanly.
func Validate(c *Config) error {
	_, err := c.Runtime()
	return err
}

func probability(p float64) bool { return p >= 0 && p <= 1 }

func validLevel(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
		return true
	}
	return false
}

func resolveStorage(c *StorageConfig, d *durations) StorageRuntime {
	if c == nil {
		return StorageRuntime{Driver: "none"}
	}
	r := StorageRuntime{
		Driver:        strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:          strings.TrimSpace(c.Path),
		BusyTimeout:   d.parse("storage.busy_timeout", c.BusyTimeout, 5*time.Second),
		RedisAddr:     strings.TrimSpace(c.RedisAddr),
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		PruneSchedule: strings.TrimSpace(c.PruneSchedule),
		Retention:     d.parse("storage.retention", c.Retention, time.Hour),
	}
	if r.Driver == "" {
		r.Driver = "none"
	}
	if r.PruneSchedule == "" {
		r.PruneSchedule = "@every 10m"
	}
	switch r.Driver {
	case "none":
	case "sqlite", "sqlite3", "file":
		d.check(r.Path != "", "storage.path: required for driver %q", r.Driver)
	case "redis":
		d.check(r.RedisAddr != "", "storage.redis_addr: required for driver redis")
	default:
		d.check(false, "storage.driver: unknown driver %q", c.Driver)
	}
	return r
}

func resolveAPI(c APIConfig, d *durations) APIRuntime {
	r := APIRuntime{
		Enabled:       c.Enabled,
		Addr:          strings.TrimSpace(c.Addr),
		Token:         strings.TrimSpace(c.Token),
		AllowInsecure: c.AllowInsecure,
		Pprof:         c.Pprof,
		PprofPrefix:   strings.TrimSpace(c.PprofPrefix),
		ReadTimeout:   d.parse("api.read_timeout", c.ReadTimeout, 10*time.Second),
		// 0 keeps /debug/pprof/profile usable.
		WriteTimeout: d.parse("api.write_timeout", c.WriteTimeout, 0),
		IdleTimeout:  d.parse("api.idle_timeout", c.IdleTimeout, time.Minute),
	}
	if r.Addr == "" {
		r.Addr = "127.0.0.1:8080"
	}
	return r
}

func resolveNotifier(c *NotifierConfig, d *durations) NotifierRuntime {
	if c == nil {
		c = &NotifierConfig{Enabled: true}
	}
	r := NotifierRuntime{
		Enabled:         c.Enabled,
		Workers:         intOr(c.Workers, 2),
		QueueSize:       intOr(c.QueueSize, 512),
		RatePerSec:      intOr(c.RatePerSec, 3),
		RetryMax:        intOr(c.RetryMax, 3),
		RetryBase:       d.parse("notifier.retry_base", c.RetryBase, 500*time.Millisecond),
		RetryMaxDelay:   d.parse("notifier.retry_max_delay", c.RetryMaxDelay, 10*time.Second),
		DedupWindow:     d.parse("notifier.dedup_window", c.DedupWindow, time.Minute),
		DedupMaxEntries: intOr(c.DedupMaxEntries, 2000),
	}
	d.check(r.Workers > 0 && r.QueueSize > 0 && r.RatePerSec > 0, "notifier: workers, queue_size and rate_per_sec must be > 0")
	d.check(r.RetryMax >= 0, "notifier.retry_max: must be >= 0")
	return r
}

func resolvePlugins(m map[string]PluginConfigRaw, r *Runtime, d *durations) {
	for name, p := range m {
		switch name {
		case "log":
			r.LogPlugin = p.Enabled
		case "telegram":
			if !p.Enabled {
				continue
			}
			var tc TelegramPluginConfig
			if len(p.Config) > 0 {
				dec := json.NewDecoder(bytes.NewReader(p.Config))
				dec.DisallowUnknownFields()
				if err := dec.Decode(&tc); err != nil {
					d.check(false, "plugins.telegram.config: %v", err)
					continue
				}
			}
			t := &TelegramRuntime{
				Token:         strings.TrimSpace(tc.Token),
				APIURL:        strings.TrimSpace(tc.APIURL),
				Timeout:       d.parse("plugins.telegram.config.timeout", tc.Timeout, 15*time.Second),
				ChatID:        tc.ChatID,
				ThreadID:      tc.ThreadID,
				Subscriptions: tc.Subscriptions,
				AnnounceStart: tc.AnnounceStart,
			}
			d.check(t.Token != "", "plugins.telegram.config.token: required")
			d.check(t.ChatID != 0, "plugins.telegram.config.chat_id: required")
			r.Telegram = t
		default:
			d.check(false, "plugins.%s: unknown plugin", name)
		}
	}
}
