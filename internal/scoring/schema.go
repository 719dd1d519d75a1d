package scoring

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed score_result.schema.json
var scoreResultSchema []byte

var compiledSchema = mustCompile(scoreResultSchema)

func mustCompile(raw []byte) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("scoring: invalid embedded schema: %v", err))
	}
	return s
}

// Schema returns the ScoreResult JSON schema as a generic value, the form the
// model API expects for a response schema.
func Schema() any {
	var v any
	if err := json.Unmarshal(scoreResultSchema, &v); err != nil {
		panic(err)
	}
	return v
}

// SchemaText returns the ScoreResult JSON schema source.
func SchemaText() string { return string(scoreResultSchema) }

// ValidationError lists every field of an oracle response that does not
// conform to the ScoreResult schema.
type ValidationError struct {
	Errors []FieldError
}

type FieldError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	parts := make([]string, 0, len(ve.Errors))
	for _, fe := range ve.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "response does not match schema: " + strings.Join(parts, "; ")
}

// ValidateJSON checks raw JSON against the ScoreResult schema.
func ValidateJSON(raw []byte) error {
	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.Wrap(err, "invalid JSON")
	}
	if result.Valid() {
		return nil
	}
	ve := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		ve.Errors = append(ve.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return ve
}
