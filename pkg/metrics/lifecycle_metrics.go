package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// VehicleTransitionCounter counts vehicle status transitions
	VehicleTransitionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehicle_status_transitions_total",
			Help: "Total number of vehicle status transitions",
		},
		[]string{"service", "from", "to"},
	)

	// ReservationReconciledCounter counts expired reservations cleared lazily
	ReservationReconciledCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vehicle_reservations_reconciled_total",
			Help: "Total number of expired reservations reconciled",
		},
		[]string{"service"},
	)
)

// LifecycleMetrics records vehicle lifecycle domain metrics
type LifecycleMetrics struct {
	ServiceName string
	initialized bool
}

// NewLifecycleMetrics creates a lifecycle metrics collector
func NewLifecycleMetrics(serviceName string) *LifecycleMetrics {
	m := &LifecycleMetrics{
		ServiceName: serviceName,
	}
	m.register()
	return m
}

func (m *LifecycleMetrics) register() {
	if !m.initialized {
		prometheus.MustRegister(VehicleTransitionCounter)
		prometheus.MustRegister(ReservationReconciledCounter)
		m.initialized = true
	}
}

// ObserveTransition records a status transition. Nil receivers are allowed so
// the engine can run without metrics in tests.
func (m *LifecycleMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	VehicleTransitionCounter.WithLabelValues(m.ServiceName, from, to).Inc()
}

// ObserveReconciled records one expired reservation cleanup.
func (m *LifecycleMetrics) ObserveReconciled() {
	if m == nil {
		return
	}
	ReservationReconciledCounter.WithLabelValues(m.ServiceName).Inc()
}
