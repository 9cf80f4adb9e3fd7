package backend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"modelrunner/pkg/types"
)

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelrunner",
			Subsystem: "backend",
			Name:      "operations_total",
			Help:      "Total backend operations by outcome kind (ok on success)",
		},
		[]string{"op", "kind"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelrunner",
			Subsystem: "backend",
			Name:      "operation_duration_seconds",
			Help:      "Duration of backend operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	streamChunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "modelrunner",
			Subsystem: "backend",
			Name:      "stream_chunks_total",
			Help:      "Total stream chunks delivered to callers",
		},
	)

	lifecycleState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "modelrunner",
			Subsystem: "backend",
			Name:      "lifecycle_state",
			Help:      "1 for the current model lifecycle state, 0 otherwise",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(operationsTotal, operationDuration, streamChunksTotal, lifecycleState)
	setLifecycleGauge(types.StateUnloaded)
}

func setLifecycleGauge(cur types.ModelState) {
	for _, st := range []types.ModelState{types.StateUnloaded, types.StateLoading, types.StateReady, types.StateFailed} {
		v := 0.0
		if st == cur {
			v = 1
		}
		lifecycleState.WithLabelValues(string(st)).Set(v)
	}
}

// observe records the outcome of one operation started at start.
func observe(op string, start time.Time, err error) {
	kind := "ok"
	if err != nil {
		kind = string(KindOf(err))
	}
	operationsTotal.WithLabelValues(op, kind).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
