package outbox

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer keeps one synchronous writer per topic, opened on first use.
// Records are hashed on their key so events for one lead stay in order on a
// partition.
type KafkaProducer struct {
	addr    net.Addr
	mu      sync.Mutex
	byTopic map[string]*kafka.Writer
}

// NewKafkaProducer returns a producer for the given bootstrap brokers.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		addr:    kafka.TCP(brokers...),
		byTopic: make(map[string]*kafka.Writer),
	}
}

// WriteMessages publishes msgs to topic and waits for all in-sync replicas.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writer(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.byTopic[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:                   p.addr,
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
		}
		p.byTopic[topic] = w
	}
	return w
}

// Close flushes and closes every writer opened so far.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	errs := make([]error, 0, len(p.byTopic))
	for _, w := range p.byTopic {
		errs = append(errs, w.Close())
	}
	clear(p.byTopic)
	return errors.Join(errs...)
}
