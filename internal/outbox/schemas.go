package outbox

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dallylee/pt-authority-hub-landing/internal/events"
)

const leadCreatedSchema = `{
  "type": "object",
  "title": "LeadCreated",
  "properties": {
    "lead_id": {"type": "string", "minLength": 1},
    "workspace_id": {"type": "string", "minLength": 1},
    "email": {"type": "string"},
    "first_name": {"type": "string"},
    "answers": {"type": "object", "additionalProperties": {"type": "string"}},
    "score": {"type": "integer", "minimum": 0},
    "segment": {"enum": ["HOT", "WARM", "NURTURE", "DISQUALIFIED"]},
    "fit_risk": {"type": "boolean"},
    "bottleneck": {"enum": ["INJURY_CONSTRAINTS", "TRAINING", "CONSISTENCY", "NUTRITION", "RECOVERY", "ASSESSMENT_NEEDED"]},
    "confidence": {"enum": ["LOW", "MEDIUM", "HIGH"]},
    "reasons": {"type": "array", "items": {"type": "string"}, "maxItems": 3},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["lead_id", "workspace_id", "email", "answers", "score", "segment", "fit_risk", "bottleneck", "confidence", "reasons", "created_at"],
  "additionalProperties": false
}`

const uploadReceivedSchema = `{
  "type": "object",
  "title": "UploadReceived",
  "properties": {
    "upload_id": {"type": "string", "minLength": 1},
    "workspace_id": {"type": "string", "minLength": 1},
    "lead_id": {"type": "string"},
    "file_name": {"type": "string"},
    "mime_type": {"type": "string"},
    "size_bytes": {"type": "integer", "minimum": 0},
    "storage_key": {"type": "string", "minLength": 1},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["upload_id", "workspace_id", "file_name", "mime_type", "size_bytes", "storage_key", "created_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps an event type to its JSON schema.
type SchemaCatalogEntry struct {
	Schema   string
	compiled *gojsonschema.Schema
}

// Validate checks a payload against the entry's schema.
func (e SchemaCatalogEntry) Validate(payload []byte) error {
	result, err := e.compiled.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("validate payload: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("payload violates schema: %s", strings.Join(msgs, "; "))
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeLeadCreated:    mustCompile(leadCreatedSchema),
	events.TypeUploadReceived: mustCompile(uploadReceivedSchema),
}

func mustCompile(schema string) SchemaCatalogEntry {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("outbox: invalid schema: %v", err))
	}
	return SchemaCatalogEntry{Schema: schema, compiled: compiled}
}
