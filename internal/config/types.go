package config

import (
	"bytes"
	"encoding/json"
)

// Config is the raw file schema. Durations are Go duration strings
// ("500ms", "10s", "1h"); Runtime parses them and applies defaults.
type Config struct {
	Logging    LoggingConfig              `json:"logging"`
	Data       DataConfig                 `json:"data"`
	Scan       ScanConfig                 `json:"scan"`
	Fuzz       FuzzConfig                 `json:"fuzz"`
	Workers    WorkersConfig              `json:"workers"`
	Health     HealthConfig               `json:"health"`
	Stats      StatsConfig                `json:"stats"`
	Simulation SimulationConfig           `json:"simulation"`
	Remote     RemoteConfig               `json:"remote"`
	Storage    *StorageConfig             `json:"storage,omitempty"`
	API        APIConfig                  `json:"api"`
	Notifier   *NotifierConfig            `json:"notifier,omitempty"`
	Plugins    map[string]PluginConfigRaw `json:"plugins"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alerts  LoggingAlert `json:"alerts"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingAlert forwards log lines at or above MinLevel to plugin error
// handlers (chat notifications).
type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// DataConfig points at the static datasets and the scan area.
type DataConfig struct {
	Spawnpoints string `json:"spawnpoints"`
	Accounts    string `json:"accounts"`

	CenterLat    float64 `json:"center_lat"`
	CenterLong   float64 `json:"center_lng"`
	RadiusMeters float64 `json:"radius_meters"`

	// Lookback fires activations that happened at most this long ago once
	// at startup.
	Lookback string `json:"lookback"`
}

type ScanConfig struct {
	// Paused ignores activations. Hot-reloadable.
	Paused bool `json:"paused"`

	SpawnScanDelay  string `json:"spawn_scan_delay"`
	GlobalDelay     string `json:"global_delay"`
	GlobalDelayFuzz string `json:"global_delay_fuzz"`
	BackoffStep     string `json:"backoff_step"`
	ScanTimeout     string `json:"scan_timeout"`

	Parallel       bool   `json:"parallel"`
	QueueMaxLength int    `json:"queue_max_length"`
	QueueOrder     string `json:"queue_order"` // lifo (default) | fifo
	Allocation     string `json:"allocation"`  // greedy (default) | conservative

	// Seed fixes the random source; 0 seeds from the clock.
	Seed int64 `json:"seed,omitempty"`
}

// FuzzConfig bounds the random offsets added to every worker move.
type FuzzConfig struct {
	Lat               float64 `json:"lat"`
	Long              float64 `json:"lng"`
	Elevation         float64 `json:"elevation"`
	LatLongDecimals   *int    `json:"lat_long_decimals,omitempty"`
	ElevationDecimals *int    `json:"elevation_decimals,omitempty"`
}

type WorkersConfig struct {
	// MaxAccounts caps how many accounts are loaded; <= 0 loads all.
	MaxAccounts int `json:"max_accounts"`

	ScanDelay       string  `json:"scan_delay"`
	DelayFuzz       string  `json:"delay_fuzz"`
	MaxSpeedMPS     float64 `json:"max_speed_mps"`
	MaxLoggedIn     string  `json:"max_logged_in"`
	MaxLoggedInFuzz string  `json:"max_logged_in_fuzz"`
	LoginFuzz       string  `json:"login_fuzz"`
	ReloginDelay    string  `json:"relogin_delay"`

	LoginFailureLimit int `json:"login_failure_limit"`
	ScanFailureLimit  int `json:"scan_failure_limit"`
}

type HealthConfig struct {
	Interval    string `json:"interval"`
	BannedLimit int    `json:"banned_limit"`
}

type StatsConfig struct {
	// Interval below one second disables periodic stats.
	Interval string `json:"interval"`
}

type SimulationConfig struct {
	Enabled    bool    `json:"enabled"`
	Multiplier float64 `json:"multiplier"`
	// Duration ends the run after this much nominal time; empty runs forever.
	Duration        string `json:"duration"`
	RequestDuration string `json:"request_duration"`

	LoginFailureProbability float64 `json:"login_failure_probability"`
	ScanFailureProbability  float64 `json:"scan_failure_probability"`
}

// RemoteConfig configures the real-mode HTTP scan client.
type RemoteConfig struct {
	Endpoint string `json:"endpoint"`
	Timeout  string `json:"timeout"`
}

// StorageConfig selects the persistence sink. Omitted means none.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./clairvoyance.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // sqlite | file | redis | none
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`

	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`

	PruneSchedule string `json:"prune_schedule,omitempty"`
	Retention     string `json:"retention,omitempty"`
}

// APIConfig controls the HTTP surface.
//
// Security note: binding to a non-loopback address needs a token or an
// explicit allow_insecure.
type APIConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default "127.0.0.1:8080"
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	Pprof       bool   `json:"pprof,omitempty"`
	PprofPrefix string `json:"pprof_prefix,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// NotifierConfig controls the async chat notification pipeline. Omitted
// means enabled with defaults.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
}

type PluginConfigRaw struct {
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// UnmarshalJSON rejects unknown keys inside a plugin entry.
func (p *PluginConfigRaw) UnmarshalJSON(b []byte) error {
	type tmp struct {
		Enabled bool            `json:"enabled"`
		Config  json.RawMessage `json:"config,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t tmp
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*p = PluginConfigRaw{Enabled: t.Enabled, Config: t.Config}
	return nil
}

// TelegramPluginConfig is the "config" object of the telegram plugin.
type TelegramPluginConfig struct {
	Token   string `json:"token"`
	APIURL  string `json:"api_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`

	ChatID        int64 `json:"chat_id"`
	ThreadID      int   `json:"thread_id,omitempty"`
	Subscriptions []int `json:"subscriptions"`
	AnnounceStart bool  `json:"announce_start"`
}
