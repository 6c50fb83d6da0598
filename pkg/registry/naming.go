// pkg/registry/naming.go
package registry

import (
	"reflect"
	"regexp"
	"runtime"
	"strings"
)

var (
	titleWordPattern  = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	lowerUpperPattern = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// KebabName converts a CamelCase type name to kebab-case.
// Acronym runs stay together: MyAPIWorkflow -> my-api-workflow, HTTPSConnection -> https-connection.
func KebabName(name string) string {
	s := titleWordPattern.ReplaceAllString(name, "${1}-${2}")
	s = lowerUpperPattern.ReplaceAllString(s, "${1}-${2}")
	return strings.ToLower(s)
}

// QualifiedTypeName returns "import/path.TypeName" for t, following pointers.
func QualifiedTypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// QualifiedFuncName returns the fully qualified name of a function value.
func QualifiedFuncName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return ""
	}
	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		return f.Name()
	}
	return ""
}

// shortFuncName strips the package path and receiver from a qualified function name.
func shortFuncName(qualified string) string {
	if i := strings.LastIndex(qualified, "/"); i >= 0 {
		qualified = qualified[i+1:]
	}
	if i := strings.LastIndex(qualified, "."); i >= 0 {
		qualified = qualified[i+1:]
	}
	return strings.TrimSuffix(qualified, "-fm")
}
