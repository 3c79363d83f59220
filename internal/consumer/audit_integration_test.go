//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dallylee/pt-authority-hub-landing/internal/testsupport/pgtest"
)

func TestAuditHandlerStoresEventOnce(t *testing.T) {
	ctx := context.Background()
	pool := pgtest.Start(t)

	handler := NewAuditHandler(pool)

	payload := json.RawMessage(`{"lead_id":"abc","workspace_id":"ws-1"}`)
	msg := Message{
		EventType:     "lead.created",
		TenantID:      "ws-1",
		SchemaID:      42,
		SchemaSubject: "lead_events-value",
		Topic:         "lead_events",
		Partition:     0,
		Offset:        5,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}

	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg), "redelivery is a no-op")

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM event_audit_log`).Scan(&count))
	require.Equal(t, 1, count)

	var storedPayload []byte
	var workspace string
	require.NoError(t, pool.QueryRow(ctx, `SELECT workspace_id, payload FROM event_audit_log LIMIT 1`).Scan(&workspace, &storedPayload))
	require.Equal(t, "ws-1", workspace)
	require.JSONEq(t, string(payload), string(storedPayload))
}
