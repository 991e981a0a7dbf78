// Package validation checks inbound change-event envelopes before they
// reach a tenant queue.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const envelopeSchema = `{
	"type": "object",
	"properties": {
		"adminId": {"type": "string", "minLength": 1},
		"payload": {"type": "object"}
	},
	"required": ["adminId"]
}`

var schema = gojsonschema.NewStringLoader(envelopeSchema)

// ValidateEnvelope validates a raw JSON change-event envelope. A nil
// error means the document may be enqueued.
func ValidateEnvelope(raw []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("envelope validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid envelope: %s", strings.Join(msgs, "; "))
}
