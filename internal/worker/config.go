package worker

import (
	"time"

	"clairvoyance/internal/clock"
	"clairvoyance/internal/randx"
	"clairvoyance/internal/remote"
	logx "clairvoyance/pkg/logx"
)

// Config holds the per-worker policy knobs. Durations are nominal
// (real-world) values; they are scaled through the Transform when scheduled.
type Config struct {
	MaxLoggedIn     time.Duration
	MaxLoggedInFuzz time.Duration
	LoginFuzz       time.Duration
	ReloginDelay    time.Duration

	LoginFailureLimit int
	ScanFailureLimit  int

	ScanDelay time.Duration
	DelayFuzz time.Duration

	// MaxSpeed is the highest plausible movement speed in meters per second.
	MaxSpeed float64

	Fuzz Fuzz
}

// Fuzz bounds the random offsets applied on every move.
type Fuzz struct {
	Lat               float64
	Long              float64
	Elevation         float64
	LatLongDecimals   int
	ElevationDecimals int
}

// Deps are the collaborators shared by every worker.
type Deps struct {
	Clock     clock.Clock
	Transform clock.Transform
	Rand      *randx.Source
	Client    remote.Client
	Log       logx.Logger
}

func (d *Deps) defaults() {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Rand == nil {
		d.Rand = randx.New(0)
	}
}
