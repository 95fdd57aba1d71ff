package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking related metrics
	BookingsCreated        prometheus.Counter
	BookingsRejected       *prometheus.CounterVec
	BookingInsertConflicts prometheus.Counter
	SlotsGenerated         prometheus.Counter
	SlotLocksAcquired      prometheus.Counter
	SlotLocksRejected      prometheus.Counter

	// Janitor metrics
	JanitorSweepItems    *prometheus.CounterVec
	JanitorSweepFailures *prometheus.CounterVec
	JanitorSweepDuration *prometheus.HistogramVec
}

// New creates and registers all application metrics
func New(namespace string) *Metrics {
	return &Metrics{
		BookingsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Total number of appointments created in pending payment state",
		}),
		BookingsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_rejected_total",
			Help:      "Total number of booking attempts rejected, by reason",
		}, []string{"reason"}),
		BookingInsertConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_insert_conflicts_total",
			Help:      "Booking attempts that passed the pre-check but lost the insert race",
		}),
		SlotsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_generated_total",
			Help:      "Total number of slot instances materialized",
		}),
		SlotLocksAcquired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_locks_acquired_total",
			Help:      "Total number of exclusive slot locks acquired",
		}),
		SlotLocksRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_locks_rejected_total",
			Help:      "Total number of exclusive slot lock attempts rejected",
		}),

		JanitorSweepItems: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "janitor_sweep_items_total",
			Help:      "Rows transitioned by janitor sweeps, by sweep",
		}, []string{"sweep"}),
		JanitorSweepFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "janitor_sweep_failures_total",
			Help:      "Per-item failures logged and skipped by janitor sweeps",
		}, []string{"sweep"}),
		JanitorSweepDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "janitor_sweep_duration_seconds",
			Help:      "Time spent running janitor sweeps",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"sweep"}),
	}
}
