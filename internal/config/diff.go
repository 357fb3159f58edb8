package config

import (
	"reflect"
	"sort"
	"strings"

	logx "clairvoyance/pkg/logx"
)

// hotReloadable sections are applied live; any other change needs a
// restart.
var hotReloadable = map[string]bool{
	"scan.paused": true,
	"logging":     true,
	"notifier":    true,
}

// SummarizeConfigChange returns the changed sections (sorted), safe log
// fields describing them (never secrets), and the subset of sections that
// only take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)
	mark := func(section string, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		n := newCfg.Logging
		mark("logging",
			logx.String("logging.level", n.Level),
			logx.Bool("logging.console", n.Console),
			logx.Bool("logging.file_enabled", n.File.Enabled),
			logx.Bool("logging.alerts_enabled", n.Alerts.Enabled),
		)
	}
	if oldCfg.Scan.Paused != newCfg.Scan.Paused {
		mark("scan.paused", logx.Bool("scan.paused", newCfg.Scan.Paused))
	}
	oScan, nScan := oldCfg.Scan, newCfg.Scan
	oScan.Paused, nScan.Paused = false, false
	if oScan != nScan {
		mark("scan",
			logx.String("scan.queue_order", nScan.QueueOrder),
			logx.String("scan.allocation", nScan.Allocation),
			logx.Bool("scan.parallel", nScan.Parallel),
		)
	}
	if oldCfg.Data != newCfg.Data {
		mark("data",
			logx.String("data.spawnpoints", newCfg.Data.Spawnpoints),
			logx.Float64("data.radius_meters", newCfg.Data.RadiusMeters),
		)
	}
	if !reflect.DeepEqual(oldCfg.Fuzz, newCfg.Fuzz) {
		mark("fuzz")
	}
	if oldCfg.Workers != newCfg.Workers {
		mark("workers", logx.Int("workers.max_accounts", newCfg.Workers.MaxAccounts))
	}
	if oldCfg.Health != newCfg.Health {
		mark("health", logx.Int("health.banned_limit", newCfg.Health.BannedLimit))
	}
	if oldCfg.Stats != newCfg.Stats {
		mark("stats", logx.String("stats.interval", newCfg.Stats.Interval))
	}
	if oldCfg.Simulation != newCfg.Simulation {
		mark("simulation",
			logx.Bool("simulation.enabled", newCfg.Simulation.Enabled),
			logx.Float64("simulation.multiplier", newCfg.Simulation.Multiplier),
		)
	}
	if oldCfg.Remote != newCfg.Remote {
		mark("remote", logx.Bool("remote.endpoint_set", strings.TrimSpace(newCfg.Remote.Endpoint) != ""))
	}
	if !reflect.DeepEqual(derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)) {
		st := derefStorage(newCfg.Storage)
		mark("storage",
			logx.String("storage.driver", strings.TrimSpace(st.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(st.Path) != ""),
			logx.Bool("storage.redis_password_set", st.RedisPassword != ""),
		)
	}
	oa, na := oldCfg.API, newCfg.API
	if oa != na {
		mark("api",
			logx.Bool("api.enabled", na.Enabled),
			logx.String("api.addr", strings.TrimSpace(na.Addr)),
			logx.Bool("api.token_set", strings.TrimSpace(na.Token) != ""),
			logx.Bool("api.pprof", na.Pprof),
		)
	}
	if !reflect.DeepEqual(derefNotifier(oldCfg.Notifier), derefNotifier(newCfg.Notifier)) {
		n := derefNotifier(newCfg.Notifier)
		mark("notifier",
			logx.Bool("notifier.enabled", n.Enabled),
			logx.Int("notifier.workers", n.Workers),
			logx.Int("notifier.rate_per_sec", n.RatePerSec),
		)
	}
	if plugins := diffPlugins(oldCfg.Plugins, newCfg.Plugins); len(plugins) > 0 {
		mark("plugins",
			logx.String("plugins.changed", strings.Join(plugins, ",")),
			logx.Int("plugins.enabled_count", countEnabled(newCfg.Plugins)),
		)
	}

	sort.Strings(changed)
	var restart []string
	for _, s := range changed {
		if !hotReloadable[s] {
			restart = append(restart, s)
		}
	}
	return changed, attrs, restart
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

// derefNotifier treats an omitted section as enabled defaults.
func derefNotifier(n *NotifierConfig) NotifierConfig {
	if n == nil {
		return NotifierConfig{Enabled: true}
	}
	return *n
}

func countEnabled(m map[string]PluginConfigRaw) int {
	n := 0
	for _, v := range m {
		if v.Enabled {
			n++
		}
	}
	return n
}

func diffPlugins(oldM, newM map[string]PluginConfigRaw) []string {
	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}
	var out []string
	for name := range set {
		o, n := oldM[name], newM[name]
		if o.Enabled != n.Enabled || canonicalHash(o.Config) != canonicalHash(n.Config) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
