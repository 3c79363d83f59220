package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// execer is satisfied by *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DLQWriter persists failed events for investigation and replay.
type DLQWriter struct{}

// NewDLQWriter returns a writer. Rows are written through the execer passed
// to Write so callers can enlist them in their own transaction.
func NewDLQWriter() *DLQWriter {
	return &DLQWriter{}
}

// Write records a failed outbox message in the DLQ alongside the supplied
// reason. The entry is due for a retry immediately; replayed messages keep
// their attempt count.
func (w *DLQWriter) Write(ctx context.Context, db execer, msg Message, reason string) error {
	_, err := db.Exec(ctx,
		`INSERT INTO outbox_dlq (workspace_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at)
	         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, NOW())`,
		msg.WorkspaceID, msg.EventID, msg.EventType, msg.Topic, msg.Payload, reason, msg.AggregateType, msg.AggregateID, msg.SchemaSubject, msg.PartitionKey, msg.Attempts,
	)
	return err
}
