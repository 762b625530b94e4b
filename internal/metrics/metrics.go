package metrics

import (
	"sync"

	"barbershop/internal/events"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "barbershop"

var (
	once sync.Once

	appointmentsBooked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_booked_total",
			Help:      "Count of appointments created, by barber.",
		},
		[]string{"barber_id"},
	)

	appointmentsRescheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_rescheduled_total",
			Help:      "Count of appointments moved to a new time.",
		},
	)

	statusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_status_changes_total",
			Help:      "Count of appointment status transitions, by target status.",
		},
		[]string{"status"},
	)

	bookingConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Count of rejected bookings, by conflict kind.",
		},
		[]string{"kind"},
	)

	slotQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_queries_total",
			Help:      "Count of day schedule lookups, by cache result.",
		},
		[]string{"cache"},
	)

	slotCompute = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slot_compute_seconds",
			Help:      "Time spent loading and computing a day schedule.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests, by route and status code.",
		},
		[]string{"method", "route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			appointmentsBooked, appointmentsRescheduled, statusChanges, bookingConflicts,
			slotQueries, slotCompute, httpRequests, httpDuration,
		)
	})
}

// Subscribe counts appointment lifecycle events from the bus.
func Subscribe(bus *events.EventBus) {
	bus.Subscribe(func(e events.Event) error {
		switch e.Type {
		case events.AppointmentCreated:
			appointmentsBooked.WithLabelValues(e.BarberID).Inc()
		case events.AppointmentRescheduled:
			appointmentsRescheduled.Inc()
		case events.AppointmentStatusChanged:
			if e.Appointment != nil {
				statusChanges.WithLabelValues(string(e.Appointment.Status)).Inc()
			}
		}
		return nil
	}, events.AllAppointmentEvents()...)
}

func IncBookingConflict(kind string) {
	bookingConflicts.WithLabelValues(kind).Inc()
}

// IncSlotQuery records a schedule lookup; cache is "hit", "miss" or "disabled".
func IncSlotQuery(cache string) {
	slotQueries.WithLabelValues(cache).Inc()
}

func ObserveSlotCompute(seconds float64) {
	slotCompute.Observe(seconds)
}

func ObserveHTTP(method, route, code string, seconds float64) {
	httpRequests.WithLabelValues(method, route, code).Inc()
	httpDuration.WithLabelValues(method, route).Observe(seconds)
}
