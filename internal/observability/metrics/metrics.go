package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking engine.
type BookingMetrics struct {
	operationsTotal  *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	slotsReturned    prometheus.Histogram
	lifecycleTotal   *prometheus.CounterVec
	notifyTotal      *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Booking operations by outcome (ok or the error code)",
		}, []string{"operation", "result"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "engine",
			Name:      "operation_latency_seconds",
			Help:      "Latency of booking operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		slotsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "engine",
			Name:      "slots_returned",
			Help:      "Number of free slots returned per availability query",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		lifecycleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "lifecycle",
			Name:      "actions_total",
			Help:      "Bookings touched by lifecycle jobs",
		}, []string{"job", "status"}),
		notifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "notify",
			Name:      "emails_total",
			Help:      "Booking notification emails by event type and status",
		}, []string{"event_type", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.operationLatency, m.slotsReturned, m.lifecycleTotal, m.notifyTotal)
	return m
}

// ObserveOperation records one booking operation and its latency.
func (m *BookingMetrics) ObserveOperation(operation, result string, seconds float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, result).Inc()
	m.operationLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *BookingMetrics) ObserveSlots(count int) {
	if m == nil {
		return
	}
	m.slotsReturned.Observe(float64(count))
}

func (m *BookingMetrics) ObserveLifecycle(job, status string) {
	if m == nil {
		return
	}
	m.lifecycleTotal.WithLabelValues(job, status).Inc()
}

func (m *BookingMetrics) ObserveNotification(eventType, status string) {
	if m == nil {
		return
	}
	m.notifyTotal.WithLabelValues(eventType, status).Inc()
}
