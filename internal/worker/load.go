package worker

import (
	"fmt"
	"os"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"clairvoyance/internal/remote"
)

// ReadCredentials reads a JSON or YAML list of {username, password}.
func ReadCredentials(path string) ([]remote.Credentials, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	return ParseCredentials(b)
}

func ParseCredentials(data []byte) ([]remote.Credentials, error) {
	var creds []remote.Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredFile, err)
	}
	for i, c := range creds {
		if strings.TrimSpace(c.Username) == "" {
			return nil, fmt.Errorf("%w: entry %d has no username", ErrInvalidCredFile, i)
		}
	}
	return creds, nil
}

// NewFleet builds one worker per credential, up to max (max <= 0 means all).
func NewFleet(creds []remote.Credentials, max int, cfg Config, deps Deps) []*Worker {
	if max > 0 && len(creds) > max {
		creds = creds[:max]
	}
	out := make([]*Worker, 0, len(creds))
	for _, c := range creds {
		out = append(out, New(c, cfg, deps))
	}
	return out
}
