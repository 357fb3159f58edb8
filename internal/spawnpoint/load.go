package spawnpoint

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"clairvoyance/internal/geo"
)

var ErrInvalidRecord = errors.New("spawnpoint: invalid record")

// Record is one entry of the static spawnpoint dataset.
type Record struct {
	SID       string  `yaml:"sid" json:"sid"`
	Lat       float64 `yaml:"lat" json:"lat"`
	Lng       float64 `yaml:"lng" json:"lng"`
	Elevation float64 `yaml:"elevation" json:"elevation"`
	Cell      string  `yaml:"cell" json:"cell"`
	// Time is the activation offset in seconds within the hour.
	Time int `yaml:"time" json:"time"`
}

func (r Record) Validate() error {
	switch {
	case strings.TrimSpace(r.SID) == "":
		return fmt.Errorf("%w: empty sid", ErrInvalidRecord)
	case r.Time < 0 || r.Time >= 3600:
		return fmt.Errorf("%w: %s: time %d outside [0,3600)", ErrInvalidRecord, r.SID, r.Time)
	case r.Lat < -90 || r.Lat > 90 || r.Lng < -180 || r.Lng > 180:
		return fmt.Errorf("%w: %s: coordinates out of range", ErrInvalidRecord, r.SID)
	}
	return nil
}

// ReadRecords reads a JSON or YAML list of records.
func ReadRecords(path string) ([]Record, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spawnpoints: %w", err)
	}
	return ParseRecords(b)
}

// ParseRecords decodes a JSON or YAML list of records and validates each one.
func ParseRecords(data []byte) ([]Record, error) {
	var recs []Record
	if err := yaml.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("failed to decode spawnpoints: %w", err)
	}
	seen := make(map[string]struct{}, len(recs))
	for i, r := range recs {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if _, dup := seen[r.SID]; dup {
			return nil, fmt.Errorf("record %d: %w: duplicate sid %s", i, ErrInvalidRecord, r.SID)
		}
		seen[r.SID] = struct{}{}
	}
	return recs, nil
}

// Build turns records into spawnpoints bound to env.
func Build(recs []Record, env Env) []*Spawnpoint {
	out := make([]*Spawnpoint, 0, len(recs))
	for _, r := range recs {
		sp := New(r.SID, r.Lat, r.Lng, r.Elevation, time.Duration(r.Time)*time.Second, env)
		sp.Cell = r.Cell
		out = append(out, sp)
	}
	return out
}

// FilterWithinRadius keeps records inside the scan circle. A radius <= 0
// keeps everything.
func FilterWithinRadius(recs []Record, center geo.Point, radius float64) []Record {
	if radius <= 0 {
		return recs
	}
	out := recs[:0:0]
	for _, r := range recs {
		if geo.InCircle(geo.Point{Lat: r.Lat, Long: r.Lng}, center, radius) {
			out = append(out, r)
		}
	}
	return out
}
