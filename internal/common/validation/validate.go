package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Error joins the individual failures into one line.
func (r *ValidationResult) Error() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// Validator is implemented by inputs with rules beyond what the schema can express.
type Validator interface {
	Validate() error
}

// ValidateJSON checks a JSON document against schema.
func ValidateJSON(schema *JSONSchema, document []byte) (*ValidationResult, error) {
	if len(document) == 0 {
		document = []byte("{}")
	}

	schemaLoader := gojsonschema.NewGoLoader(schema.Map())
	documentLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if desc.Type() == "required" {
			if missing, ok := desc.Details()["property"].(string); ok {
				field = strings.TrimPrefix(field+"."+missing, "(root).")
			}
		}
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}

// ApplyDefaults fills absent top-level properties of an object document with schema defaults.
func ApplyDefaults(schema *JSONSchema, document []byte) ([]byte, error) {
	if len(document) == 0 {
		document = []byte("{}")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(document, &obj); err != nil {
		// not an object; the schema check reports the type mismatch
		return document, nil
	}
	if obj == nil {
		obj = map[string]json.RawMessage{}
	}

	changed := false
	for name, prop := range schema.Properties {
		if _, ok := obj[name]; ok || prop.Default == nil {
			continue
		}
		def, err := json.Marshal(prop.Default)
		if err != nil {
			return nil, fmt.Errorf("default for %s: %w", name, err)
		}
		obj[name] = def
		changed = true
	}
	if !changed {
		return document, nil
	}
	return json.Marshal(obj)
}

// Check runs v's own Validate method when it has one.
func Check(v interface{}) error {
	if val, ok := v.(Validator); ok {
		return val.Validate()
	}
	return nil
}
