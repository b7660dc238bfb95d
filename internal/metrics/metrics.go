// Package metrics holds the Prometheus collectors for the miner. Every process
// registers them on the default registry; a device worker exposes them on its
// status server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sdminer"

// Poll outcomes.
const (
	OutcomeExecuted = "executed"
	OutcomeIdle     = "idle"
	OutcomeStop     = "stop"
	OutcomeError    = "error"
)

// Reload check results.
const (
	ReloadSwapped   = "swapped"
	ReloadUnchanged = "unchanged"
	ReloadMissing   = "missing"
	ReloadFailed    = "failed"
	ReloadSignalErr = "signal_error"
)

var (
	pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "polls_total",
			Help:      "Worker loop iterations by outcome",
		},
		[]string{"outcome"},
	)

	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Jobs received from the coordinator by result",
		},
		[]string{"result"},
	)

	reloadChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "reload_checks_total",
			Help:      "Model reload signal checks by result",
		},
		[]string{"result"},
	)

	heartbeatsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "heartbeats_total",
			Help:      "Job requests that carried hardware and version",
		},
	)

	iterationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "iteration_errors_total",
			Help:      "Failed worker loop iterations by error kind",
		},
		[]string{"kind"},
	)

	requestLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "request_duration_seconds",
			Help:      "Latency of miner_request round trips in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	inferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "inference_duration_seconds",
			Help:      "Time spent executing jobs in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	catalogDownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "downloads_total",
			Help:      "Model catalog downloads by result",
		},
		[]string{"result"},
	)

	modelEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "events_total",
			Help:      "Model manager lifecycle events by name",
		},
		[]string{"event"},
	)

	catalogSyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "catalog",
			Name:      "syncs_total",
			Help:      "Model catalog sync passes by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		pollsTotal, jobsTotal, reloadChecksTotal, heartbeatsTotal, iterationErrorsTotal,
		requestLatency, inferenceDuration, modelEventsTotal, catalogDownloadsTotal, catalogSyncsTotal,
	)
}

// IncModelEvent counts one manager lifecycle event (reload_start, spawn_ready, ...).
func IncModelEvent(name string) { modelEventsTotal.WithLabelValues(name).Inc() }

// ObservePoll counts one loop iteration.
func ObservePoll(outcome string) { pollsTotal.WithLabelValues(outcome).Inc() }

// ObserveJob counts a received job; result is "submitted" or "failed".
func ObserveJob(result string) { jobsTotal.WithLabelValues(result).Inc() }

// ObserveReloadCheck counts one reload signal check.
func ObserveReloadCheck(result string) { reloadChecksTotal.WithLabelValues(result).Inc() }

// IncHeartbeat counts a request that carried heartbeat fields.
func IncHeartbeat() { heartbeatsTotal.Inc() }

// IncIterationError counts a failed iteration.
func IncIterationError(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	iterationErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveRequestLatency records a miner_request round trip.
func ObserveRequestLatency(d time.Duration) { requestLatency.Observe(d.Seconds()) }

// ObserveInference records job execution time.
func ObserveInference(d time.Duration) { inferenceDuration.Observe(d.Seconds()) }

// ObserveCatalogDownload counts one model download attempt.
func ObserveCatalogDownload(result string) { catalogDownloadsTotal.WithLabelValues(result).Inc() }

// ObserveCatalogSync counts one sync pass; result is "ok" or "error".
func ObserveCatalogSync(result string) { catalogSyncsTotal.WithLabelValues(result).Inc() }
