package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "venuebook",
			Name:      "reservation_created_total",
			Help:      "Count of reservations created.",
		},
	)

	occurrenceTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "venuebook",
			Name:      "occurrence_transition_total",
			Help:      "Count of occurrence status transitions by target status.",
		},
		[]string{"status"},
	)

	calendarSync = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "venuebook",
			Name:      "calendar_sync_total",
			Help:      "Count of external calendar operations by result.",
		},
		[]string{"op", "result"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "venuebook",
			Name:      "notifications_sent_total",
			Help:      "Count of notification dispatches by result.",
		},
		[]string{"result"},
	)

	paymentsReconciled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "venuebook",
			Name:      "payments_reconciled_total",
			Help:      "Count of payment confirmations by outcome.",
		},
		[]string{"outcome"},
	)

	outboxTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "venuebook",
			Name:      "outbox_tasks_total",
			Help:      "Count of outbox task executions by type and result.",
		},
		[]string{"task_type", "result"},
	)

	outboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "venuebook",
			Name:      "outbox_pending_tasks",
			Help:      "Current number of pending outbox tasks.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			reservationCreated,
			occurrenceTransition,
			calendarSync,
			notificationsSent,
			paymentsReconciled,
			outboxTasks,
			outboxPending,
		)
	})
}

func IncReservationCreated() {
	reservationCreated.Inc()
}

func IncOccurrenceTransition(status string) {
	occurrenceTransition.WithLabelValues(status).Inc()
}

func IncCalendarSync(op, result string) {
	calendarSync.WithLabelValues(op, result).Inc()
}

func IncNotificationSent(result string) {
	notificationsSent.WithLabelValues(result).Inc()
}

func IncPaymentReconciled(outcome string) {
	paymentsReconciled.WithLabelValues(outcome).Inc()
}

func IncOutboxTask(taskType, result string) {
	outboxTasks.WithLabelValues(taskType, result).Inc()
}

func SetOutboxPending(n int64) {
	outboxPending.Set(float64(n))
}
