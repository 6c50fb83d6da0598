package validation

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"signal-workflows/pkg/registry"
)

// JSONSchema is the subset of JSON Schema derived from Go input and output types.
type JSONSchema struct {
	Title                string                 `json:"title,omitempty"`
	Type                 string                 `json:"type,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Format               string                 `json:"format,omitempty"`
	Default              interface{}            `json:"default,omitempty"`
	Minimum              *float64               `json:"minimum,omitempty"`
	Maximum              *float64               `json:"maximum,omitempty"`
	MinLength            *int                   `json:"minLength,omitempty"`
	MaxLength            *int                   `json:"maxLength,omitempty"`
	MinItems             *int                   `json:"minItems,omitempty"`
	MaxItems             *int                   `json:"maxItems,omitempty"`
	Pattern              string                 `json:"pattern,omitempty"`
	Enum                 []interface{}          `json:"enum,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *JSONSchema            `json:"additionalProperties,omitempty"`
}

var (
	timeType = reflect.TypeOf(time.Time{})
	rawType  = reflect.TypeOf(json.RawMessage{})
	cache    sync.Map // reflect.Type -> *JSONSchema
)

// SchemaFor derives the schema of t. Struct fields follow their json tags; a field is required
// unless it is tagged omitempty, is a pointer, or declares a default. Constraints come from the
// schema tag, e.g. `schema:"min=1,max=100"`.
func SchemaFor(t reflect.Type) *JSONSchema {
	t = registry.SchemaType(t)
	if t == nil {
		return &JSONSchema{}
	}
	if s, ok := cache.Load(t); ok {
		return s.(*JSONSchema)
	}
	s := build(t, map[reflect.Type]bool{})
	s.Title = t.Name()
	actual, _ := cache.LoadOrStore(t, s)
	return actual.(*JSONSchema)
}

// SchemaMap is SchemaFor rendered as a generic map, the shape the manifest and gojsonschema expect.
func SchemaMap(t reflect.Type) map[string]interface{} {
	return SchemaFor(t).Map()
}

// Map renders the schema as map[string]interface{}.
func (s *JSONSchema) Map() map[string]interface{} {
	data, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func build(t reflect.Type, seen map[reflect.Type]bool) *JSONSchema {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch {
	case t == timeType:
		return &JSONSchema{Type: "string", Format: "date-time"}
	case t == rawType:
		return &JSONSchema{}
	}

	switch t.Kind() {
	case reflect.String:
		return &JSONSchema{Type: "string"}
	case reflect.Bool:
		return &JSONSchema{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &JSONSchema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &JSONSchema{Type: "number"}
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return &JSONSchema{Type: "string"}
		}
		return &JSONSchema{Type: "array", Items: build(t.Elem(), seen)}
	case reflect.Map:
		return &JSONSchema{Type: "object", AdditionalProperties: build(t.Elem(), seen)}
	case reflect.Struct:
		if seen[t] {
			return &JSONSchema{Type: "object"}
		}
		seen[t] = true
		defer delete(seen, t)
		return buildStruct(t, seen)
	}
	// interface{} and anything else accepts any JSON value
	return &JSONSchema{}
}

func buildStruct(t reflect.Type, seen map[reflect.Type]bool) *JSONSchema {
	s := &JSONSchema{Type: "object", Properties: map[string]*JSONSchema{}}

	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, omitempty, skip := jsonName(f)
		if skip {
			continue
		}

		// embedded structs without a json name are flattened, as encoding/json does
		if f.Anonymous && name == "" {
			embedded := build(f.Type, seen)
			for k, v := range embedded.Properties {
				s.Properties[k] = v
			}
			s.Required = append(s.Required, embedded.Required...)
			continue
		}
		if name == "" {
			name = f.Name
		}

		prop := build(f.Type, seen)
		if desc := f.Tag.Get("description"); desc != "" {
			prop.Description = desc
		}
		applyConstraints(prop, f.Tag.Get("schema"))

		hasDefault := false
		if def, ok := f.Tag.Lookup("default"); ok {
			prop.Default = parseScalar(def, prop.Type)
			hasDefault = true
		}

		s.Properties[name] = prop
		if !omitempty && !hasDefault && f.Type.Kind() != reflect.Pointer {
			s.Required = append(s.Required, name)
		}
	}
	return s
}

func jsonName(f reflect.StructField) (name string, omitempty, skip bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return "", false, false
	}
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	for _, opt := range parts[1:] {
		if opt == "omitempty" || opt == "omitzero" {
			omitempty = true
		}
	}
	return parts[0], omitempty, false
}

// applyConstraints reads a comma separated key=value list. Enum values are separated by '|'.
func applyConstraints(s *JSONSchema, tag string) {
	if tag == "" {
		return
	}
	for _, part := range strings.Split(tag, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "min":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				s.Minimum = &v
			}
		case "max":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				s.Maximum = &v
			}
		case "minLength":
			s.MinLength = intPtr(value)
		case "maxLength":
			s.MaxLength = intPtr(value)
		case "minItems":
			s.MinItems = intPtr(value)
		case "maxItems":
			s.MaxItems = intPtr(value)
		case "pattern":
			s.Pattern = value
		case "format":
			s.Format = value
		case "enum":
			for _, e := range strings.Split(value, "|") {
				s.Enum = append(s.Enum, parseScalar(e, s.Type))
			}
		}
	}
}

func intPtr(v string) *int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func parseScalar(v, typ string) interface{} {
	switch typ {
	case "integer":
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case "number":
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	case "boolean":
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return v
}
