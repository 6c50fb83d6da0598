// pkg/registry/errors.go
package registry

import "errors"

// Registration and invocation failures. Callers wrap them with context and match with errors.Is.
var (
	ErrConflict          = errors.New("REGISTRY_CONFLICT")
	ErrConfigConflict    = errors.New("CONFIG_CONFLICT")
	ErrNotAWorkflow      = errors.New("NOT_A_WORKFLOW")
	ErrMissingEntryPoint = errors.New("MISSING_ENTRY_POINT")
	ErrMissingTypeHint   = errors.New("MISSING_TYPE_HINT")
	ErrInvalidSchemaType = errors.New("INVALID_SCHEMA_TYPE")
	ErrNotSerializable   = errors.New("NOT_SERIALIZABLE")
	ErrNoInvoker         = errors.New("NO_INVOKER")
)
