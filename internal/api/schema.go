package api

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ingestSchema accepts any answer set with a plausible email and a truthy
// consent flag. Unknown fields are tolerated.
const ingestSchema = `{
  "type": "object",
  "required": ["email", "consent"],
  "properties": {
    "email": {"type": "string", "pattern": "@", "maxLength": 254},
    "consent": {"enum": [true, "true", "yes", "on"]},
    "first_name": {"type": "string", "maxLength": 100},
    "company": {"type": "string"},
    "main_goal": {"$ref": "#/definitions/answer"},
    "location": {"$ref": "#/definitions/answer"},
    "start_timing": {"$ref": "#/definitions/answer"},
    "biggest_blocker": {"$ref": "#/definitions/answer"},
    "training_days_current": {"$ref": "#/definitions/answer"},
    "time_commitment_weekly": {"$ref": "#/definitions/answer"},
    "monthly_investment": {"$ref": "#/definitions/answer"},
    "coaching_preference": {"$ref": "#/definitions/answer"},
    "constraints": {"$ref": "#/definitions/answer"},
    "wants_upload": {"$ref": "#/definitions/answer"}
  },
  "definitions": {
    "answer": {"type": "string", "maxLength": 500}
  }
}`

var ingestValidator = mustSchema(ingestSchema)

func mustSchema(raw string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("compile ingest schema: %v", err))
	}
	return schema
}

// validateIngest checks a decoded request body and returns a readable summary
// of every violation.
func validateIngest(body interface{}) error {
	result, err := ingestValidator.Validate(gojsonschema.NewGoLoader(body))
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
