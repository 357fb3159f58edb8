package storage

import (
	"fmt"
	"regexp"
	"strings"

	logx "clairvoyance/pkg/logx"
)

var namespaceRE = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if !namespaceRE.MatchString(cfg.Namespace) {
		return nil, fmt.Errorf("invalid storage namespace %q", cfg.Namespace)
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
