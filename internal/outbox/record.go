package outbox

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Kafka header names set on every published event.
const (
	HeaderEventType     = "event_type"
	HeaderTenantID      = "tenant_id"
	HeaderSchemaSubject = "schema_subject"
)

// wireMagic is the leading byte of a Schema Registry framed value.
const wireMagic byte = 0

// BuildRecord frames the payload with schemaID and attaches the routing
// headers the consumer decodes.
func BuildRecord(msg Message, schemaID int) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: frame(schemaID, msg.Payload),
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(msg.EventType)},
			{Key: HeaderTenantID, Value: []byte(msg.WorkspaceID)},
			{Key: HeaderSchemaSubject, Value: []byte(msg.SchemaSubject)},
		},
	}
}

// frame prefixes payload with the magic byte and a big-endian schema id.
func frame(schemaID int, payload []byte) []byte {
	out := make([]byte, 0, 5+len(payload))
	out = append(out, wireMagic)
	out = binary.BigEndian.AppendUint32(out, uint32(schemaID))
	return append(out, payload...)
}

// schemaCache remembers registry ids per subject and schema text so the
// registry is asked at most once per process.
type schemaCache struct {
	registry schemaRegistrar
	mu       sync.Mutex
	ids      map[string]int
}

func newSchemaCache(registry schemaRegistrar) *schemaCache {
	return &schemaCache{registry: registry, ids: make(map[string]int)}
}

func (c *schemaCache) lookup(ctx context.Context, subject, schema string) (int, error) {
	key := subject + "\x00" + schema

	c.mu.Lock()
	id, ok := c.ids[key]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := c.registry.EnsureSchema(ctx, subject, schema)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.ids[key] = id
	c.mu.Unlock()
	return id, nil
}
