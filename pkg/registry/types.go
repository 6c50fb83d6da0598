// pkg/registry/types.go
package registry

import (
	"context"
	"fmt"
	"reflect"
)

// EntryPoint is the method every workflow handler exposes.
const EntryPoint = "Run"

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// ExtractRunTypes derives the input and output types of a workflow handler from its
// Run(ctx context.Context, in In) (Out, error) method. Both In and Out must be structs
// or pointers to structs.
func ExtractRunTypes(handlerType reflect.Type) (in, out reflect.Type, err error) {
	if handlerType == nil {
		return nil, nil, fmt.Errorf("%w: nil handler type", ErrMissingEntryPoint)
	}

	method, ok := handlerType.MethodByName(EntryPoint)
	if !ok && handlerType.Kind() != reflect.Pointer {
		method, ok = reflect.PointerTo(handlerType).MethodByName(EntryPoint)
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s has no %s method", ErrMissingEntryPoint, handlerType, EntryPoint)
	}

	// In(0) is the receiver.
	ft := method.Type
	if ft.NumIn() != 3 || ft.IsVariadic() || ft.In(1) != contextType {
		return nil, nil, fmt.Errorf("%w: %s must be declared as %s(context.Context, Input) (Output, error)",
			ErrMissingTypeHint, EntryPoint, EntryPoint)
	}
	in = ft.In(2)

	if ft.NumOut() != 2 || ft.Out(1) != errorType {
		return nil, nil, fmt.Errorf("%w: %s must return (Output, error)", ErrMissingTypeHint, EntryPoint)
	}
	out = ft.Out(0)

	if err := requireStruct("input", in); err != nil {
		return nil, nil, err
	}
	if err := requireStruct("output", out); err != nil {
		return nil, nil, err
	}
	return in, out, nil
}

func requireStruct(role string, t reflect.Type) error {
	if st := SchemaType(t); st.Kind() != reflect.Struct {
		return fmt.Errorf("%w: %s type %s is a %s, expected a struct", ErrInvalidSchemaType, role, t, st.Kind())
	}
	return nil
}

// SchemaType strips pointers from t.
func SchemaType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
