package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveBackend indicates the routed backend (1=remote, 0=local).
	ActiveBackend = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "active_backend",
			Help:      "Currently active backend (1=remote, 0=local)",
		},
	)

	// DegradationsTotal counts remote-to-local degradations.
	DegradationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "degradations_total",
			Help:      "Total number of remote-to-local degradations",
		},
	)

	// RestoresTotal counts successful remote restores after a re-probe.
	RestoresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "restores_total",
			Help:      "Total number of local-to-remote restores",
		},
	)

	// OperationsTotal counts store operations by kind, backend and result.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragd",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"operation", "backend", "result"},
	)
)

// observeState updates the backend gauge on a state transition.
func observeState(state State) {
	switch state {
	case StateActiveRemote:
		ActiveBackend.Set(1)
	case StateActiveLocal:
		ActiveBackend.Set(0)
	}
}

// observeOperation records the outcome of a routed store operation.
func observeOperation(operation string, backend Backend, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(operation, string(backend), result).Inc()
}
