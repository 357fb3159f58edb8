// Package metrics exposes run statistics as Prometheus metrics.
//
// The collector is pull-based: every scrape takes a fresh statistics
// snapshot from the orchestrator, so nothing has to be kept in sync on the
// hot path. Counters mirror monotonic totals, gauges mirror instantaneous
// values and per-minute rates.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clairvoyance/internal/orchestrator"
)

const namespace = "clairvoyance"

// Source returns the current statistics snapshot.
type Source func() orchestrator.Stats

type metric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(orchestrator.Stats) float64
}

// Collector implements prometheus.Collector over a Source.
type Collector struct {
	source  Source
	metrics []metric
}

func counter(name, help string, v func(orchestrator.Stats) float64) metric {
	return metric{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
		kind:  prometheus.CounterValue,
		value: v,
	}
}

func gauge(name, help string, v func(orchestrator.Stats) float64) metric {
	return metric{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
		kind:  prometheus.GaugeValue,
		value: v,
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// NewCollector builds a collector reading from src.
func NewCollector(src Source) *Collector {
	return &Collector{
		source: src,
		metrics: []metric{
			gauge("running_minutes", "Nominal minutes since the scheduler started.",
				func(s orchestrator.Stats) float64 { return s.MinutesRunning }),
			gauge("paused", "1 while activations are ignored.",
				func(s orchestrator.Stats) float64 { return boolValue(s.Paused) }),
			gauge("spawnpoints", "Spawnpoints being tracked.",
				func(s orchestrator.Stats) float64 { return float64(s.Spawnpoints) }),
			gauge("workers", "Workers in the pool.",
				func(s orchestrator.Stats) float64 { return float64(s.Workers) }),
			gauge("workers_allocated", "Workers that have been used at least once.",
				func(s orchestrator.Stats) float64 { return float64(s.WorkersAllocated) }),
			gauge("workers_banned", "Used workers that are banned.",
				func(s orchestrator.Stats) float64 { return float64(s.WorkersBanned) }),
			counter("allocation_failures_total", "Activations with no eligible worker.",
				func(s orchestrator.Stats) float64 { return float64(s.AllocationFailures) }),
			gauge("worker_speed_mps_average", "Average worker speed in meters per second.",
				func(s orchestrator.Stats) float64 { return s.Speed.Average }),
			gauge("worker_scans_per_minute_average", "Average scans per minute per worker.",
				func(s orchestrator.Stats) float64 { return s.Scans.Average }),
			gauge("queue_pending", "Scan requests waiting in the queue.",
				func(s orchestrator.Stats) float64 { return float64(s.Queue.Pending) }),
			gauge("queue_in_flight", "Scan requests currently executing.",
				func(s orchestrator.Stats) float64 { return float64(s.Queue.InFlight) }),
			gauge("queue_backoff", "Current queue backoff units.",
				func(s orchestrator.Stats) float64 { return float64(s.Queue.Backoff) }),
			counter("queue_processed_total", "Scan requests dispatched.",
				func(s orchestrator.Stats) float64 { return float64(s.Queue.Processed) }),
			counter("queue_dropped_total", "Scan requests dropped because the queue was full.",
				func(s orchestrator.Stats) float64 { return float64(s.Queue.Dropped) }),
			counter("queue_failed_total", "Scan requests that completed with an error.",
				func(s orchestrator.Stats) float64 { return float64(s.Queue.Failed) }),
			counter("queue_timed_out_total", "Scan requests that hit the scan timeout.",
				func(s orchestrator.Stats) float64 { return float64(s.Queue.TimedOut) }),
			counter("spawns_seen_total", "Spawnpoint activations observed while not paused.",
				func(s orchestrator.Stats) float64 { return float64(s.SpawnsSeen) }),
			counter("spawns_processed_total", "Activations that reached a final outcome.",
				func(s orchestrator.Stats) float64 { return float64(s.SpawnsProcessed) }),
			counter("spawns_scanned_total", "Activations scanned successfully.",
				func(s orchestrator.Stats) float64 { return float64(s.SpawnsScanned) }),
			gauge("scan_percentage", "Scanned share of processed activations.",
				func(s orchestrator.Stats) float64 { return s.ScanPercentage }),
			counter("sightings_new_total", "Sightings stored for the first time.",
				func(s orchestrator.Stats) float64 { return float64(s.SightingsNew) }),
			counter("persist_failures_total", "Sighting or gym writes that failed.",
				func(s orchestrator.Stats) float64 { return float64(s.PersistFailures) }),
		},
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.source()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(st))
	}
}

// NewRegistry returns a registry holding the run collector plus the Go
// runtime and process collectors.
func NewRegistry(src Source) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		NewCollector(src),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
