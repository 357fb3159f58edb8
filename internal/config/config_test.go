package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimal() *Config {
	return &Config{
		Data:       DataConfig{Spawnpoints: "spawns.json", Accounts: "accounts.json"},
		Simulation: SimulationConfig{Enabled: true},
	}
}

func TestRuntimeDefaults(t *testing.T) {
	t.Parallel()
	r, err := minimal().Runtime()
	require.NoError(t, err)

	assert.Equal(t, "INFO", r.Logging.Level)
	assert.Equal(t, 10*time.Minute, r.Lookback)
	assert.Equal(t, time.Second, r.GlobalDelay)
	assert.Equal(t, 2*time.Minute, r.ScanTimeout)
	assert.Equal(t, "lifo", r.QueueOrder)
	assert.Equal(t, "greedy", r.Allocation)
	assert.Equal(t, 100, r.QueueMaxLength)
	assert.Equal(t, 6, r.Fuzz.LatLongDecimals)
	assert.Equal(t, 1, r.Fuzz.ElevationDecimals)
	assert.Equal(t, 3, r.LoginFailureLimit)
	assert.Equal(t, time.Hour, r.MaxLoggedIn)
	assert.Equal(t, 1.0, r.Multiplier)
	assert.Equal(t, "none", r.Storage.Driver)
	assert.Equal(t, "127.0.0.1:8080", r.API.Addr)
	assert.True(t, r.Notifier.Enabled)
	assert.Equal(t, 512, r.Notifier.QueueSize)
	assert.Nil(t, r.Telegram)
}

func TestRuntimeValidation(t *testing.T) {
	t.Parallel()
	minusOne := -1
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"missing spawnpoints", func(c *Config) { c.Data.Spawnpoints = "" }, "data.spawnpoints"},
		{"bad duration", func(c *Config) { c.Scan.GlobalDelay = "soon" }, "scan.global_delay"},
		{"negative duration", func(c *Config) { c.Workers.ScanDelay = "-1s" }, "workers.scan_delay"},
		{"lookback too long", func(c *Config) { c.Data.Lookback = "2h" }, "data.lookback"},
		{"probability", func(c *Config) { c.Simulation.ScanFailureProbability = 1.5 }, "scan_failure_probability"},
		{"multiplier", func(c *Config) { c.Simulation.Multiplier = -2 }, "simulation.multiplier"},
		{"queue order", func(c *Config) { c.Scan.QueueOrder = "random" }, "scan.queue_order"},
		{"allocation", func(c *Config) { c.Scan.Allocation = "lazy" }, "scan.allocation"},
		{"negative limit", func(c *Config) { c.Health.BannedLimit = -1 }, "health.banned_limit"},
		{"storage driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "mongo"} }, "storage.driver"},
		{"sqlite path", func(c *Config) { c.Storage = &StorageConfig{Driver: "sqlite"} }, "storage.path"},
		{"redis addr", func(c *Config) { c.Storage = &StorageConfig{Driver: "redis"} }, "storage.redis_addr"},
		{"real mode endpoint", func(c *Config) { c.Simulation.Enabled = false }, "remote.endpoint"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"unknown plugin", func(c *Config) { c.Plugins = map[string]PluginConfigRaw{"slack": {Enabled: true}} }, "plugins.slack"},
		{"telegram token", func(c *Config) {
			c.Plugins = map[string]PluginConfigRaw{"telegram": {Enabled: true, Config: []byte(`{"chat_id": 5}`)}}
		}, "plugins.telegram.config.token"},
		{"telegram unknown key", func(c *Config) {
			c.Plugins = map[string]PluginConfigRaw{"telegram": {Enabled: true, Config: []byte(`{"channel": "x"}`)}}
		}, "plugins.telegram.config"},
		{"negative fuzz", func(c *Config) { c.Fuzz.Lat = -0.1; c.Fuzz.LatLongDecimals = &minusOne }, "fuzz"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := minimal()
			tt.mutate(c)
			err := Validate(c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRuntimeReportsAllErrors(t *testing.T) {
	t.Parallel()
	c := minimal()
	c.Scan.GlobalDelay = "x"
	c.Workers.ScanDelay = "y"
	err := Validate(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan.global_delay")
	assert.Contains(t, err.Error(), "workers.scan_delay")
}

func TestTelegramPlugin(t *testing.T) {
	t.Parallel()
	c := minimal()
	c.Plugins = map[string]PluginConfigRaw{
		"log":      {Enabled: true},
		"telegram": {Enabled: true, Config: []byte(`{"token":"T","chat_id":-100,"subscriptions":[149],"announce_start":true}`)},
	}
	r, err := c.Runtime()
	require.NoError(t, err)
	assert.True(t, r.LogPlugin)
	require.NotNil(t, r.Telegram)
	assert.Equal(t, int64(-100), r.Telegram.ChatID)
	assert.Equal(t, []int{149}, r.Telegram.Subscriptions)
	assert.Equal(t, 15*time.Second, r.Telegram.Timeout)
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadFormats(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"json", "c.json", `{"data":{"spawnpoints":"s","accounts":"a"},"simulation":{"enabled":true}}`, ""},
		{"yaml", "c.yaml", "data:\n  spawnpoints: s\n  accounts: a\nsimulation:\n  enabled: true\n  multiplier: 5\n", ""},
		{"unknown key", "u.json", `{"data":{"spawnpoints":"s","accounts":"a","oops":1},"simulation":{"enabled":true}}`, "unknown field"},
		{"trailing data", "t.json", `{"simulation":{"enabled":true}} {}`, "trailing data"},
		{"invalid", "i.json", `{"data":{"spawnpoints":"s","accounts":"a"}}`, "remote.endpoint"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewConfigManager(writeFile(t, dir, tt.file, tt.body))
			cfg, err := m.Load()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, m.Get())
				return
			}
			require.NoError(t, err)
			assert.Same(t, cfg, m.Get())
			assert.Equal(t, "s", cfg.Data.Spawnpoints)
		})
	}
}

func TestExampleConfigIsValid(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(filepath.Join("..", "..", "config.example.json"))
	cfg, err := m.Load()
	require.NoError(t, err)
	r, err := cfg.Runtime()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", r.Storage.Driver)
	assert.True(t, r.LogPlugin)
	assert.Nil(t, r.Telegram, "telegram disabled in the example")
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	old := minimal()
	next := minimal()
	next.Scan.Paused = true
	next.Logging.Level = "DEBUG"

	changed, attrs, restart := SummarizeConfigChange(old, next)
	assert.Equal(t, []string{"logging", "scan.paused"}, changed)
	assert.NotEmpty(t, attrs)
	assert.Empty(t, restart)

	next.Scan.GlobalDelay = "5s"
	next.API.Token = "secret"
	next.Plugins = map[string]PluginConfigRaw{"log": {Enabled: true}}
	changed, _, restart = SummarizeConfigChange(old, next)
	assert.Equal(t, []string{"api", "logging", "plugins", "scan", "scan.paused"}, changed)
	assert.Equal(t, []string{"api", "plugins", "scan"}, restart)

	changed, _, _ = SummarizeConfigChange(nil, nil)
	assert.Empty(t, changed)
}

func TestPluginConfigWhitespaceIsNotAChange(t *testing.T) {
	t.Parallel()
	a := map[string]PluginConfigRaw{"telegram": {Enabled: true, Config: []byte(`{"a": 1}`)}}
	b := map[string]PluginConfigRaw{"telegram": {Enabled: true, Config: []byte(`{"a":1}`)}}
	assert.Empty(t, diffPlugins(a, b))
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	first, second := minimal(), minimal()
	m.publish(first)
	m.publish(second)
	assert.Same(t, second, <-ch)

	m.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	body := `{"data":{"spawnpoints":"s","accounts":"a"},"simulation":{"enabled":true},"scan":{"paused":%s}}`
	path := writeFile(t, dir, "c.json", strings.Replace(body, "%s", "false", 1))

	m := NewConfigManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "c.json", strings.Replace(body, "%s", "true", 1))

	select {
	case cfg := <-ch:
		assert.True(t, cfg.Scan.Paused)
		assert.True(t, m.Get().Scan.Paused)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}
	cancel()
	<-done
}
