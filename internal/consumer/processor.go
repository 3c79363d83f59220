// Package consumer reads lead and upload events from Kafka and turns them into
// notifications and audit records.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dallylee/pt-authority-hub-landing/internal/logger"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is the decoded representation of a Kafka record emitted by the outbox dispatcher.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	TenantID      string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Header keys written by the outbox dispatcher.
const (
	headerEventType     = "event_type"
	headerTenantID      = "tenant_id"
	headerSchemaSubject = "schema_subject"
)

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(log logger.Logger) Option {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}

// WithRetry sets how many times a failing handler is tried for one message
// and the delay before the first retry. The delay doubles on each attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(p *Processor) {
		if attempts > 0 {
			p.attempts = attempts
		}
		if backoff >= 0 {
			p.backoff = backoff
		}
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
// Undecodable records are committed and dropped. A record whose handler keeps
// failing is not committed, but the next successful commit on its partition
// moves past it, so its side effects may be lost. The error is logged and
// counted in handler_errors_total.
type Processor struct {
	reader   Reader
	handler  Handler
	log      logger.Logger
	attempts int
	backoff  time.Duration
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:   reader,
		handler:  handler,
		log:      logger.NewNop(),
		attempts: 3,
		backoff:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until ctx is cancelled or the reader fails with a context error.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case err != nil:
			p.log.WithError(err).Warn("fetch error", nil)
			continue
		}

		if err := p.process(ctx, msg); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (p *Processor) process(ctx context.Context, msg kafka.Message) error {
	event, err := decodeMessage(msg)
	if err != nil {
		recordDecodeError(msg.Topic)
		p.log.WithError(err).Warn("dropping undecodable record", map[string]interface{}{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    msg.Offset,
		})
		p.commit(ctx, msg)
		return nil
	}

	if err := p.dispatch(ctx, event); err != nil {
		recordHandlerError(event)
		p.log.WithError(err).Error("handler failed after retries, record skipped", map[string]interface{}{
			"event_type": event.EventType,
			"tenant_id":  event.TenantID,
			"offset":     event.Offset,
			"attempts":   p.attempts,
		})
		return err
	}

	if p.commit(ctx, msg) {
		recordProcessed(event)
	}
	return nil
}

// dispatch runs the handler with retries. A Chain is retried stage by stage so
// a stage that already succeeded for this record is not run again.
func (p *Processor) dispatch(ctx context.Context, event Message) error {
	stages := []Handler{p.handler}
	if chain, ok := p.handler.(Chain); ok {
		stages = chain
	}
	for _, h := range stages {
		if h == nil {
			continue
		}
		if err := p.retry(ctx, h, event); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) retry(ctx context.Context, h Handler, event Message) error {
	delay := p.backoff
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = h.Handle(ctx, event); err == nil {
			return nil
		}
		if attempt == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (p *Processor) commit(ctx context.Context, msg kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.log.WithError(err).Error("commit error", map[string]interface{}{"offset": msg.Offset})
		return false
	}
	return true
}

func decodeMessage(msg kafka.Message) (Message, error) {
	if len(msg.Value) < 5 {
		return Message{}, fmt.Errorf("invalid payload length: %d", len(msg.Value))
	}
	if msg.Value[0] != 0 {
		return Message{}, fmt.Errorf("unknown magic byte: %d", msg.Value[0])
	}

	eventType, ok := headerValue(msg, headerEventType)
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}
	tenantID, _ := headerValue(msg, headerTenantID)
	schemaSubject, _ := headerValue(msg, headerSchemaSubject)

	schemaID := int(binary.BigEndian.Uint32(msg.Value[1:5]))
	payload := json.RawMessage(append([]byte(nil), msg.Value[5:]...))

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		TenantID:      string(tenantID),
		SchemaSubject: string(schemaSubject),
		SchemaID:      schemaID,
		Payload:       payload,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
