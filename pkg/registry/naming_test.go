package registry

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKebabName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ExampleWorkflow", "example-workflow"},
		{"MyAPIWorkflow", "my-api-workflow"},
		{"HTTPSConnection", "https-connection"},
		{"SimpleClass", "simple-class"},
		{"Widget", "widget"},
		{"ResearchIssueWorkflow", "research-issue-workflow"},
		{"Version2Handler", "version2-handler"},
		{"lowercase", "lowercase"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, KebabName(tt.in))
		})
	}
}

func TestQualifiedTypeName(t *testing.T) {
	assert.Equal(t, "signal-workflows/pkg/registry.Widget", QualifiedTypeName(reflect.TypeOf(Widget{})))
	assert.Equal(t, "signal-workflows/pkg/registry.PointerWidget", QualifiedTypeName(reflect.TypeOf(&PointerWidget{})))
	assert.Equal(t, "map[string]int", QualifiedTypeName(reflect.TypeOf(map[string]int{})))
}

func TestQualifiedFuncName(t *testing.T) {
	assert.Equal(t, "signal-workflows/pkg/registry.greet", QualifiedFuncName(greet))
	assert.Equal(t, "", QualifiedFuncName("not a func"))
}

func TestShortFuncName(t *testing.T) {
	tests := map[string]string{
		"signal-workflows/internal/workers/example.sayHello": "sayHello",
		"signal-workflows/pkg/registry.(*Client).Fetch-fm":   "Fetch",
		"main.run": "run",
	}
	for in, want := range tests {
		assert.Equal(t, want, shortFuncName(in), in)
	}
}
