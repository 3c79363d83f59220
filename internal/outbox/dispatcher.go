// Package outbox delivers lead and upload events from Postgres to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"

	"github.com/dallylee/pt-authority-hub-landing/internal/logger"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Message represents a row fetched from outbox. Field order matches claimQuery.
type Message struct {
	EventID       int64
	WorkspaceID   string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
	Attempts      int
}

// DispatcherOption tunes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPollInterval sets how long the dispatcher idles after a short batch.
func WithPollInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

// WithBatchSize caps how many rows one claim locks.
func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

// WithLogger sets the dispatcher's logger.
func WithLogger(log logger.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log.With("component", "outbox_dispatcher")
		}
	}
}

// Dispatcher moves committed outbox rows onto Kafka. Rows whose payload fails
// its event schema, or whose delivery fails, are parked in outbox_dlq and
// still marked published so the outbox never blocks on one bad row.
type Dispatcher struct {
	pool      *pgxpool.Pool
	producer  messageWriter
	schemas   *schemaCache
	dlq       *DLQWriter
	log       logger.Logger
	interval  time.Duration
	batchSize int
	done      chan struct{}
}

// NewDispatcher builds a Dispatcher polling every second in batches of 100
// unless overridden.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		pool:      pool,
		producer:  producer,
		schemas:   newSchemaCache(registry),
		dlq:       NewDLQWriter(),
		log:       logger.NewNop(),
		interval:  time.Second,
		batchSize: 100,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start drains the outbox until ctx is cancelled. A full batch is followed by
// another claim straight away; otherwise the dispatcher sleeps one interval.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		claimed, err := d.drainOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.log.WithError(err).Error("outbox dispatch failed", nil)
		}

		next := d.interval
		if err == nil && claimed == d.batchSize {
			next = 0
		}
		timer.Reset(next)
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

// drainOnce claims one batch, publishes it and reports how many rows it claimed.
func (d *Dispatcher) drainOnce(ctx context.Context) (int, error) {
	began := time.Now()

	batch, err := d.claimBatch(ctx)
	if err != nil || len(batch) == 0 {
		return 0, err
	}
	defer func() { batchDuration.Observe(time.Since(began).Seconds()) }()

	valid, rejected := partitionBySchema(batch)
	parked := make([]parkedMessage, 0, len(rejected))
	for _, r := range rejected {
		d.log.WithError(r.err).Warn("outbox payload rejected", map[string]interface{}{
			"event_id":   r.msg.EventID,
			"event_type": r.msg.EventType,
		})
		schemaRejectedCounter.WithLabelValues(r.msg.EventType).Inc()
		parked = append(parked, parkedMessage{msg: r.msg, reason: r.err.Error()})
	}

	delivered := 0
	if len(valid) > 0 {
		if err := d.publish(ctx, valid); err != nil {
			d.log.WithError(err).Error("outbox delivery failure", map[string]interface{}{"batch_size": len(valid)})
			for _, msg := range valid {
				parked = append(parked, parkedMessage{msg: msg, reason: err.Error()})
			}
		} else {
			delivered = len(valid)
		}
	}

	if err := d.settle(ctx, batch, parked); err != nil {
		return len(batch), err
	}

	deliveredCounter.Add(float64(delivered))
	failedCounter.Add(float64(len(parked)))
	for _, p := range parked {
		dlqCounter.WithLabelValues(p.msg.Topic).Inc()
	}
	return len(batch), nil
}

type parkedMessage struct {
	msg    Message
	reason string
}

// settle writes the DLQ entries and marks the whole batch published in one
// transaction, so a failure leaves neither behind and the batch is retried.
func (d *Dispatcher) settle(ctx context.Context, batch []Message, parked []parkedMessage) error {
	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		for _, p := range parked {
			if err := d.dlq.Write(ctx, tx, p.msg, fmt.Sprintf("%s (topic=%s)", p.reason, p.msg.Topic)); err != nil {
				return fmt.Errorf("park event %d: %w", p.msg.EventID, err)
			}
		}
		_, err := tx.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(batch))
		return err
	})
}

type rejectedMessage struct {
	msg Message
	err error
}

// partitionBySchema splits a batch into payloads that satisfy their event
// schema and those that do not.
func partitionBySchema(messages []Message) ([]Message, []rejectedMessage) {
	valid := make([]Message, 0, len(messages))
	var rejected []rejectedMessage
	for _, msg := range messages {
		meta, ok := schemaCatalog[msg.EventType]
		if !ok {
			rejected = append(rejected, rejectedMessage{msg: msg, err: fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)})
			continue
		}
		if err := meta.Validate(msg.Payload); err != nil {
			rejected = append(rejected, rejectedMessage{msg: msg, err: err})
			continue
		}
		valid = append(valid, msg)
	}
	return valid, rejected
}

const claimQuery = `SELECT event_id, workspace_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, attempts
      FROM outbox
     WHERE published_at IS NULL
     ORDER BY event_id
     LIMIT $1
       FOR UPDATE SKIP LOCKED`

// claimBatch locks up to batchSize pending rows and stamps claimed_at so other
// dispatchers skip them.
func (d *Dispatcher) claimBatch(ctx context.Context) ([]Message, error) {
	var claimed []Message
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, claimQuery, d.batchSize)
		if err != nil {
			return err
		}
		claimed, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Message])
		if err != nil || len(claimed) == 0 {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(claimed))
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, len(messages))
	for i, msg := range messages {
		ids[i] = msg.EventID
	}
	return ids
}

// publish writes the batch grouped by topic, one WriteMessages call per topic.
func (d *Dispatcher) publish(ctx context.Context, messages []Message) error {
	byTopic := make(map[string][]kafka.Message)
	for _, msg := range messages {
		schemaID, err := d.schemas.lookup(ctx, msg.SchemaSubject, schemaCatalog[msg.EventType].Schema)
		if err != nil {
			return fmt.Errorf("schema id for %s: %w", msg.SchemaSubject, err)
		}
		byTopic[msg.Topic] = append(byTopic[msg.Topic], BuildRecord(msg, schemaID))
	}

	for topic, records := range byTopic {
		if err := d.producer.WriteMessages(ctx, topic, records...); err != nil {
			return err
		}
	}
	return nil
}
