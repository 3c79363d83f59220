package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dallylee/pt-authority-hub-landing/internal/events"
)

func TestLeadCreatedSchemaAcceptsRepositoryPayload(t *testing.T) {
	payload, err := json.Marshal(events.LeadCreated{
		LeadID:      "lead-1",
		WorkspaceID: "ws-1",
		Email:       "sam@example.com",
		Answers:     map[string]string{"email": "sam@example.com", "start_timing": "This Week"},
		Score:       75,
		Segment:     "HOT",
		Bottleneck:  "ASSESSMENT_NEEDED",
		Confidence:  "LOW",
		Reasons:     []string{"a", "b"},
		CreatedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, schemaCatalog[events.TypeLeadCreated].Validate(payload))
}

func TestLeadCreatedSchemaRejects(t *testing.T) {
	entry := schemaCatalog[events.TypeLeadCreated]

	err := entry.Validate([]byte(`{"lead_id":"x"}`))
	require.ErrorContains(t, err, "payload violates schema")

	base := events.LeadCreated{
		LeadID:      "lead-1",
		WorkspaceID: "ws-1",
		Answers:     map[string]string{},
		Segment:     "LUKEWARM",
		Bottleneck:  "TRAINING",
		Confidence:  "LOW",
		Reasons:     []string{},
		CreatedAt:   time.Now(),
	}
	payload, _ := json.Marshal(base)
	require.Error(t, entry.Validate(payload), "unknown segment")

	base.Segment = "WARM"
	base.Reasons = []string{"1", "2", "3", "4"}
	payload, _ = json.Marshal(base)
	require.Error(t, entry.Validate(payload), "more than three reasons")
}

func TestUploadReceivedSchema(t *testing.T) {
	payload, err := json.Marshal(events.UploadReceived{
		UploadID:    "up-1",
		WorkspaceID: "ws-1",
		FileName:    "log.csv",
		MimeType:    "text/csv",
		SizeBytes:   10,
		StorageKey:  "uploads/2026/01/unknown/x_log.csv",
		CreatedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, schemaCatalog[events.TypeUploadReceived].Validate(payload))
}

func TestPartitionBySchema(t *testing.T) {
	good, _ := json.Marshal(events.UploadReceived{UploadID: "u", WorkspaceID: "w", StorageKey: "k", CreatedAt: time.Now()})
	valid, rejected := partitionBySchema([]Message{
		{EventID: 1, EventType: events.TypeUploadReceived, Payload: good},
		{EventID: 2, EventType: events.TypeUploadReceived, Payload: json.RawMessage(`{}`)},
		{EventID: 3, EventType: "lead.deleted", Payload: json.RawMessage(`{}`)},
	})

	require.Len(t, valid, 1)
	assert.Equal(t, int64(1), valid[0].EventID)
	require.Len(t, rejected, 2)
	assert.Contains(t, rejected[1].err.Error(), "no schema metadata")
}

func TestBuildRecordFramesPayloadAndSetsHeaders(t *testing.T) {
	record := BuildRecord(Message{
		WorkspaceID:   "ws-1",
		EventType:     events.TypeLeadCreated,
		SchemaSubject: "lead_events-value",
		PartitionKey:  "ws-1:lead-1",
		Payload:       json.RawMessage(`{"a":1}`),
	}, 42)

	assert.Equal(t, []byte("ws-1:lead-1"), record.Key)
	require.Len(t, record.Value, 5+len(`{"a":1}`))
	assert.Equal(t, byte(0), record.Value[0])
	assert.Equal(t, uint32(42), binary.BigEndian.Uint32(record.Value[1:5]))
	assert.JSONEq(t, `{"a":1}`, string(record.Value[5:]))

	headers := map[string]string{}
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, map[string]string{
		HeaderEventType:     events.TypeLeadCreated,
		HeaderTenantID:      "ws-1",
		HeaderSchemaSubject: "lead_events-value",
	}, headers)
}

type countingRegistry struct {
	calls int
	err   error
}

func (r *countingRegistry) EnsureSchema(context.Context, string, string) (int, error) {
	r.calls++
	return 10 + r.calls, r.err
}

func TestSchemaCacheAsksRegistryOncePerSubject(t *testing.T) {
	ctx := context.Background()
	registry := &countingRegistry{}
	cache := newSchemaCache(registry)

	id, err := cache.lookup(ctx, "lead_events-value", "{}")
	require.NoError(t, err)
	again, err := cache.lookup(ctx, "lead_events-value", "{}")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	other, err := cache.lookup(ctx, "upload_events-value", "{}")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
	assert.Equal(t, 2, registry.calls)
}

func TestSchemaCacheDoesNotStoreFailures(t *testing.T) {
	registry := &countingRegistry{err: assert.AnError}
	cache := newSchemaCache(registry)

	_, err := cache.lookup(context.Background(), "s", "{}")
	require.ErrorIs(t, err, assert.AnError)

	registry.err = nil
	_, err = cache.lookup(context.Background(), "s", "{}")
	require.NoError(t, err)
	assert.Equal(t, 2, registry.calls)
}

func TestBackoffDelay(t *testing.T) {
	m := NewDLQManager(nil, 0, 0)
	assert.Equal(t, 5, m.maxRetries)
	assert.Equal(t, time.Minute, m.backoffDelay(1))
	assert.Equal(t, 2*time.Minute, m.backoffDelay(2))
	assert.Equal(t, 16*time.Minute, m.backoffDelay(5))
	assert.Equal(t, time.Hour, m.backoffDelay(7))
	assert.Equal(t, time.Hour, m.backoffDelay(64))
}

func TestRecordDLQOutcomeLabels(t *testing.T) {
	entry := dlqEntry{Topic: "upload_events", EventType: events.TypeUploadReceived}
	for _, outcome := range []dlqOutcome{outcomeRequeued, outcomeRescheduled, outcomeQuarantined} {
		counter := dlqOutcomeCounter.WithLabelValues(outcome.String(), entry.Topic, entry.EventType)
		before := testutil.ToFloat64(counter)
		recordDLQOutcome(outcome, entry)
		assert.InDelta(t, before+1, testutil.ToFloat64(counter), 0.0001, outcome.String())
	}
}

func TestSchemaRegistryEnsureSchema(t *testing.T) {
	var registered bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/subjects/known-value/versions/latest":
			_, _ = w.Write([]byte(`{"id": 11}`))
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/subjects/new-value/versions":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			registered = body["schemaType"] == "JSON"
			_, _ = w.Write([]byte(`{"id": 12}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewSchemaRegistryClient(srv.URL + "/")

	id, err := client.EnsureSchema(context.Background(), "known-value", "{}")
	require.NoError(t, err)
	assert.Equal(t, 11, id)

	id, err = client.EnsureSchema(context.Background(), "new-value", "{}")
	require.NoError(t, err)
	assert.Equal(t, 12, id)
	assert.True(t, registered)
}

func TestSchemaRegistrySurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	_, err := NewSchemaRegistryClient(srv.URL).EnsureSchema(context.Background(), "s", "{}")
	require.ErrorContains(t, err, "schema registry lookup error: down")
}
