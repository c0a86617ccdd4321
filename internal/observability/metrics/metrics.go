package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking and payment flows.
type BookingMetrics struct {
	confirmationsTotal  *prometheus.CounterVec
	cancellationsTotal  *prometheus.CounterVec
	settlementsTotal    *prometheus.CounterVec
	availabilityLatency *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		confirmationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tripbook",
			Subsystem: "bookings",
			Name:      "confirmations_total",
			Help:      "Total appointment confirmation attempts",
		}, []string{"status"}),
		cancellationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tripbook",
			Subsystem: "bookings",
			Name:      "cancellations_total",
			Help:      "Total appointment cancellations",
		}, []string{"outcome"}),
		settlementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tripbook",
			Subsystem: "payments",
			Name:      "settlements_total",
			Help:      "Total payment settlements by delivery path",
		}, []string{"path"}),
		availabilityLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tripbook",
			Subsystem: "availability",
			Name:      "query_latency_seconds",
			Help:      "Latency of availability computations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.confirmationsTotal, m.cancellationsTotal, m.settlementsTotal, m.availabilityLatency)
	return m
}

func (m *BookingMetrics) ObserveConfirmation(status string) {
	if m == nil {
		return
	}
	m.confirmationsTotal.WithLabelValues(status).Inc()
}

func (m *BookingMetrics) ObserveCancellation(outcome string) {
	if m == nil {
		return
	}
	m.cancellationsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveSettlement(path string) {
	if m == nil {
		return
	}
	m.settlementsTotal.WithLabelValues(path).Inc()
}

func (m *BookingMetrics) ObserveAvailabilityLatency(source string, seconds float64) {
	if m == nil {
		return
	}
	m.availabilityLatency.WithLabelValues(source).Observe(seconds)
}
