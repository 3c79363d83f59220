package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dlqOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pt_hub",
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "DLQ entries handled by the manager, by outcome.",
	}, []string{"outcome", "topic", "event_type"})

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pt_hub",
		Subsystem: "dlq",
		Name:      "backlog",
		Help:      "Entries still waiting for replay.",
	})
)

func init() {
	prometheus.MustRegister(dlqOutcomeCounter, dlqBacklogGauge)
}

func (o dlqOutcome) String() string {
	switch o {
	case outcomeQuarantined:
		return "quarantined"
	case outcomeRescheduled:
		return "rescheduled"
	default:
		return "requeued"
	}
}

func recordDLQOutcome(outcome dlqOutcome, entry dlqEntry) {
	dlqOutcomeCounter.WithLabelValues(outcome.String(), entry.Topic, entry.EventType).Inc()
}

func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count); err != nil {
		return
	}
	dlqBacklogGauge.Set(float64(count))
}
