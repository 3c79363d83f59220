package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dallylee/pt-authority-hub-landing/internal/logger"
)

const maxBackoff = time.Hour

// DLQManager handles retrying failed outbox messages and quarantining exhausted entries.
type DLQManager struct {
	pool       *pgxpool.Pool
	maxRetries int
	baseDelay  time.Duration
	log        logger.Logger
}

// NewDLQManager constructs a DLQManager with the provided pool and retry configuration.
func NewDLQManager(pool *pgxpool.Pool, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &DLQManager{pool: pool, maxRetries: maxRetries, baseDelay: baseDelay, log: logger.NewNop()}
}

// WithLogger sets the manager's logger.
func (m *DLQManager) WithLogger(log logger.Logger) *DLQManager {
	if log != nil {
		m.log = log.With("component", "dlq_manager")
	}
	return m
}

// RunOnce processes a batch of due DLQ entries and returns the count of
// entries handled without error. The backlog gauge is refreshed afterwards.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	entries, err := m.dueEntries(ctx, batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, entry := range entries {
		if procErr := m.handleEntry(ctx, entry); procErr != nil {
			err = errors.Join(err, fmt.Errorf("dlq entry %d: %w", entry.ID, procErr))
			continue
		}
		processed++
	}

	updateBacklogGauge(ctx, m.pool)
	return processed, err
}

const dueEntriesQuery = `SELECT dlq_id, workspace_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
      FROM outbox_dlq
     WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
     ORDER BY created_at
     LIMIT $1`

func (m *DLQManager) dueEntries(ctx context.Context, batchSize int) ([]dlqEntry, error) {
	rows, err := m.pool.Query(ctx, dueEntriesQuery, batchSize)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[dlqEntry])
}

type dlqOutcome int

const (
	outcomeRequeued dlqOutcome = iota
	outcomeRescheduled
	outcomeQuarantined
)

// handleEntry moves one entry back to the outbox, pushes its next attempt
// out, or quarantines it once the retry budget is spent.
func (m *DLQManager) handleEntry(ctx context.Context, entry dlqEntry) error {
	var (
		outcome  dlqOutcome
		requeErr error
	)
	err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if entry.RetryCount >= m.maxRetries {
			outcome = outcomeQuarantined
			_, err := tx.Exec(ctx, `UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`, "retry limit reached", entry.ID)
			return err
		}

		if requeErr = requeueOutbox(ctx, tx, entry); requeErr != nil {
			outcome = outcomeRescheduled
			_, err := tx.Exec(ctx, `UPDATE outbox_dlq
			    SET retry_count = retry_count + 1,
			        last_attempt_at = NOW(),
			        next_retry_at = NOW() + $1::interval,
			        reason = $2
			  WHERE dlq_id = $3`,
				m.backoffDelay(entry.RetryCount+1), requeErr.Error(), entry.ID)
			return err
		}

		outcome = outcomeRequeued
		_, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID)
		return err
	})
	if err != nil {
		return err
	}

	recordDLQOutcome(outcome, entry)
	switch outcome {
	case outcomeQuarantined:
		m.log.Warn("dlq entry quarantined", entryFields(entry))
	case outcomeRescheduled:
		m.log.WithError(requeErr).Info("dlq retry scheduled", entryFields(entry))
	default:
		m.log.Info("dlq entry requeued", entryFields(entry))
	}
	return nil
}

// backoffDelay calculates exponential backoff capped at one hour.
func (m *DLQManager) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return maxBackoff
	}
	delay := time.Duration(1<<uint(attempt-1)) * m.baseDelay
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	return delay
}

// requeueOutbox reinserts the payload into the outbox for replay, carrying the
// attempt number so a repeated failure keeps its retry count. The insert runs
// under a savepoint so a failure leaves tx usable for rescheduling.
func requeueOutbox(ctx context.Context, tx pgx.Tx, entry dlqEntry) error {
	if entry.SchemaSubject == "" {
		return fmt.Errorf("missing schema_subject for dlq entry %d", entry.ID)
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	_, err = sp.Exec(ctx, `INSERT INTO outbox (workspace_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, attempts)
	    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.WorkspaceID, entry.AggregateType, entry.AggregateID, entry.EventType,
		entry.Topic, entry.SchemaSubject, entry.PartitionKey, entry.Payload, entry.RetryCount+1,
	)
	if err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

// dlqEntry is one outbox_dlq row. Field order matches dueEntriesQuery.
type dlqEntry struct {
	ID            int64
	WorkspaceID   string
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}

func entryFields(entry dlqEntry) map[string]interface{} {
	return map[string]interface{}{
		"dlq_id":      entry.ID,
		"event_id":    entry.EventID,
		"event_type":  entry.EventType,
		"topic":       entry.Topic,
		"retry_count": entry.RetryCount,
	}
}
