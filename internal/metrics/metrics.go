package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	backendStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "backend",
			Name:      "starts_total",
			Help:      "Number of successful backend starts.",
		},
	)
	backendStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "backend",
			Name:      "stops_total",
			Help:      "Number of user-initiated backend stops.",
		},
	)
	backendCrashes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "backend",
			Name:      "crashes_total",
			Help:      "Number of unexpected backend exits.",
		},
	)
	backendRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "backend",
			Name:      "auto_restarts_total",
			Help:      "Number of automatic restart attempts after a crash.",
		},
	)
	backendPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stagehand",
			Subsystem: "backend",
			Name:      "phase",
			Help:      "Current backend phase (1 = active phase, 0 = inactive).",
		}, []string{"phase"},
	)
	probeResults = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stagehand",
			Subsystem: "health",
			Name:      "probe_status",
			Help:      "Latest probe tier per probe key (0 ok, 1 warn, 2 error).",
		}, []string{"key"},
	)
	checkDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "stagehand",
			Subsystem: "health",
			Name:      "check_duration_seconds",
			Help:      "Wall time of a full health check run.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	broadcasts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stagehand",
			Subsystem: "status",
			Name:      "broadcasts_total",
			Help:      "Number of status snapshots pushed to observers.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		backendStarts, backendStops, backendCrashes, backendRestarts,
		backendPhase, probeResults, checkDuration, broadcasts,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving the default prometheus gatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart() {
	if regOK.Load() {
		backendStarts.Inc()
	}
}

func IncStop() {
	if regOK.Load() {
		backendStops.Inc()
	}
}

func IncCrash() {
	if regOK.Load() {
		backendCrashes.Inc()
	}
}

func IncAutoRestart() {
	if regOK.Load() {
		backendRestarts.Inc()
	}
}

func SetPhase(phase string, active bool) {
	if regOK.Load() {
		var v float64
		if active {
			v = 1
		}
		backendPhase.WithLabelValues(phase).Set(v)
	}
}

func SetProbeStatus(key string, tier int) {
	if regOK.Load() {
		probeResults.WithLabelValues(key).Set(float64(tier))
	}
}

func ObserveCheckDuration(seconds float64) {
	if regOK.Load() {
		checkDuration.Observe(seconds)
	}
}

func IncBroadcast() {
	if regOK.Load() {
		broadcasts.Inc()
	}
}
