package orchestrator

import (
	"fmt"
	"math"
	"time"

	"clairvoyance/internal/queue"
	"clairvoyance/internal/worker"
	logx "clairvoyance/pkg/logx"
)

// Extreme identifies the worker holding a highest/lowest figure.
type Extreme struct {
	WorkerID int     `json:"worker_id"`
	Value    float64 `json:"value"`
}

// Rate is an average with its extremes, per worker.
type Rate struct {
	Average float64 `json:"average"`
	Highest Extreme `json:"highest"`
	Lowest  Extreme `json:"lowest"`
}

// Stats is a snapshot of run statistics. Rates are per minute of nominal
// (scaled up) running time; speeds are meters per second.
type Stats struct {
	Running        time.Duration `json:"running"`
	MinutesRunning float64       `json:"minutes_running"`
	Paused         bool          `json:"paused"`
	Simulated      bool          `json:"simulated"`
	Spawnpoints    int           `json:"spawnpoints"`

	Workers                  int     `json:"workers"`
	WorkersAllocated         int     `json:"workers_allocated"`
	WorkersBanned            int     `json:"workers_banned"`
	AllocationFailures       uint64  `json:"allocation_failures"`
	AllocationFailuresPerMin float64 `json:"allocation_failures_per_min"`

	Speed     Rate `json:"speed"`
	Movements Rate `json:"movements_per_min"`
	Scans     Rate `json:"scans_per_min"`

	Queue            queue.Stats `json:"queue"`
	ProcessedPerMin  float64     `json:"processed_per_min"`
	DroppedPerMin    float64     `json:"dropped_per_min"`
	SpawnsSeen       uint64      `json:"spawns_seen"`
	SpawnsPerMin     float64     `json:"spawns_per_min"`
	SpawnsProcessed  uint64      `json:"spawns_processed"`
	SpawnsScanned    uint64      `json:"spawns_scanned"`
	ScanPercentage   float64     `json:"scan_percentage"`
	SightingsNew     uint64      `json:"sightings_new"`
	PersistFailures  uint64      `json:"persist_failures"`
}

// Stats computes a snapshot.
func (o *Orchestrator) Stats() Stats {
	running := o.tr.ScaleUp(o.clock.Now().Sub(o.startedAt()))
	minutes := math.Round(running.Minutes()*10) / 10

	st := Stats{
		Running:            running,
		MinutesRunning:     minutes,
		Paused:             o.pause.Paused(),
		Simulated:          o.tr.Simulate,
		Spawnpoints:        len(o.spawnpoints),
		Workers:            o.pool.Len(),
		WorkersBanned:      o.pool.BannedAllocated(),
		AllocationFailures: o.pool.AllocationFailures(),
		Queue:              o.queue.Stats(),
		SpawnsSeen:         o.spawnsSeen.Load(),
		SpawnsProcessed:    o.spawnsProcessed.Load(),
		SpawnsScanned:      o.spawnsScanned.Load(),
		SightingsNew:       o.sightingsNew.Load(),
		PersistFailures:    o.persistFailures.Load(),
	}

	allocated := o.pool.AllocatedWorkers()
	snaps := make([]worker.Snapshot, 0, len(allocated))
	for _, w := range allocated {
		snaps = append(snaps, w.Snapshot())
	}
	st.WorkersAllocated = len(snaps)

	st.AllocationFailuresPerMin = perMinute(float64(st.AllocationFailures), minutes)
	st.ProcessedPerMin = perMinute(float64(st.Queue.Processed), minutes)
	st.DroppedPerMin = perMinute(float64(st.Queue.Dropped), minutes)
	st.SpawnsPerMin = perMinute(float64(st.SpawnsSeen), minutes)
	if st.SpawnsProcessed > 0 {
		st.ScanPercentage = float64(st.SpawnsScanned) / float64(st.SpawnsProcessed) * 100
	}

	// meters per minute / 60 = m/s
	st.Speed = summarize(snaps, minutes*60, func(s worker.Snapshot) float64 { return s.MetersMoved })
	st.Movements = summarize(snaps, minutes, func(s worker.Snapshot) float64 { return float64(s.Movements) })
	st.Scans = summarize(snaps, minutes, func(s worker.Snapshot) float64 { return float64(s.Scans) })
	return st
}

func perMinute(v, minutes float64) float64 {
	if minutes <= 0 {
		return 0
	}
	return v / minutes
}

// summarize averages value over workers and finds the extremes. The lowest
// ignores workers with a zero value.
func summarize(snaps []worker.Snapshot, per float64, value func(worker.Snapshot) float64) Rate {
	var r Rate
	if len(snaps) == 0 || per <= 0 {
		return r
	}
	total, highest, lowest := 0.0, 0.0, math.Inf(1)
	for _, s := range snaps {
		v := value(s)
		total += v
		if v > highest {
			highest = v
			r.Highest = Extreme{WorkerID: s.ID, Value: v / per}
		}
		if v > 0 && v < lowest {
			lowest = v
			r.Lowest = Extreme{WorkerID: s.ID, Value: v / per}
		}
	}
	r.Average = total / float64(len(snaps)) / per
	return r
}

func (o *Orchestrator) logStats(st Stats) {
	mode := "real"
	if st.Simulated {
		mode = fmt.Sprintf("simulated x%g", o.tr.Multiplier)
	}
	o.log.Info("stats",
		logx.String("mode", mode),
		logx.Float64("minutes_running", st.MinutesRunning),
		logx.Bool("paused", st.Paused),
		logx.Int("spawnpoints", st.Spawnpoints),
		logx.String("workers", fmt.Sprintf("%d/%d (%d banned)", st.WorkersAllocated, st.Workers, st.WorkersBanned)),
		logx.Uint64("allocation_failures", st.AllocationFailures),
		logx.String("alloc_failures_per_min", fmt.Sprintf("%.2f", st.AllocationFailuresPerMin)),
		logx.String("speed_mps", fmt.Sprintf("avg %.2f high %.2f (w%d) low %.2f (w%d)",
			st.Speed.Average, st.Speed.Highest.Value, st.Speed.Highest.WorkerID, st.Speed.Lowest.Value, st.Speed.Lowest.WorkerID)),
		logx.String("movements_per_min", fmt.Sprintf("avg %.2f high %.2f (w%d) low %.2f (w%d)",
			st.Movements.Average, st.Movements.Highest.Value, st.Movements.Highest.WorkerID, st.Movements.Lowest.Value, st.Movements.Lowest.WorkerID)),
		logx.String("scans_per_min", fmt.Sprintf("avg %.2f high %.2f (w%d) low %.2f (w%d)",
			st.Scans.Average, st.Scans.Highest.Value, st.Scans.Highest.WorkerID, st.Scans.Lowest.Value, st.Scans.Lowest.WorkerID)),
		logx.Int("queue", st.Queue.Pending),
		logx.Uint64("processed", st.Queue.Processed),
		logx.String("processed_per_min", fmt.Sprintf("%.2f", st.ProcessedPerMin)),
		logx.Uint64("dropped", st.Queue.Dropped),
		logx.String("dropped_per_min", fmt.Sprintf("%.2f", st.DroppedPerMin)),
		logx.Uint64("spawns", st.SpawnsSeen),
		logx.String("spawns_per_min", fmt.Sprintf("%.1f", st.SpawnsPerMin)),
		logx.Uint64("spawns_processed", st.SpawnsProcessed),
		logx.Uint64("spawns_scanned", st.SpawnsScanned),
		logx.String("scanned_pct", fmt.Sprintf("%.1f%% (%.1f%% missed)", st.ScanPercentage, 100-st.ScanPercentage)),
	)
}
