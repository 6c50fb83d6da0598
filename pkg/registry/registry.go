// pkg/registry/registry.go
package registry

import (
	"fmt"
	"sync"
)

// Entry is anything a Registry can hold.
type Entry interface {
	// Identity names the handler behind the entry. Re-registering the same identity under
	// the same key is a no-op.
	Identity() string
	// Queue is the task queue the entry is bound to, "" for any queue.
	Queue() string
}

// Registry is a concurrency-safe, insertion-ordered map of entries.
// The zero value is ready to use.
type Registry[T Entry] struct {
	mu    sync.Mutex
	kind  string
	items map[string]T
	order []string
}

// New returns an empty registry; kind is only used in error messages.
func New[T Entry](kind string) *Registry[T] {
	return &Registry[T]{kind: kind}
}

// Register stores item under key. Registering a different handler under a taken key fails with ErrConflict.
func (r *Registry[T]) Register(key string, item T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.items == nil {
		r.items = make(map[string]T)
	}
	if existing, ok := r.items[key]; ok {
		if existing.Identity() == item.Identity() {
			return nil
		}
		kind := r.kind
		if kind == "" {
			kind = "item"
		}
		return fmt.Errorf("%w: %s %q is already registered by %s (got %s)",
			ErrConflict, kind, key, existing.Identity(), item.Identity())
	}

	r.items[key] = item
	r.order = append(r.order, key)
	return nil
}

// Get looks up a single entry.
func (r *Registry[T]) Get(key string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[key]
	return item, ok
}

// GetAll returns entries in registration order. A non-empty queue keeps the entries bound to
// that queue plus the ones bound to no queue.
func (r *Registry[T]) GetAll(queue string) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, 0, len(r.order))
	for _, key := range r.order {
		item := r.items[key]
		if queue != "" && item.Queue() != "" && item.Queue() != queue {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Len returns the number of registered entries.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Clear drops every entry. Tests only.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
	r.order = nil
}

// WorkflowRegistry keys workflows by "{name}-{version}".
type WorkflowRegistry struct {
	Registry[*WorkflowMetadata]
}

func NewWorkflowRegistry() *WorkflowRegistry {
	return &WorkflowRegistry{Registry: Registry[*WorkflowMetadata]{kind: "workflow"}}
}

// Add registers md under md.Key().
func (r *WorkflowRegistry) Add(md *WorkflowMetadata) error {
	return r.Register(md.Key(), md)
}

// ActivityRegistry keys activities by name.
type ActivityRegistry struct {
	Registry[*ActivityMetadata]
}

func NewActivityRegistry() *ActivityRegistry {
	return &ActivityRegistry{Registry: Registry[*ActivityMetadata]{kind: "activity"}}
}

// Add registers md under md.Name.
func (r *ActivityRegistry) Add(md *ActivityMetadata) error {
	return r.Register(md.Name, md)
}

// Provider hands out the process-wide registries, creating them on first use.
// Construct one in main and pass it to whatever registers or reads definitions.
type Provider struct {
	once       sync.Once
	workflows  *WorkflowRegistry
	activities *ActivityRegistry
}

func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) init() {
	p.once.Do(func() {
		p.workflows = NewWorkflowRegistry()
		p.activities = NewActivityRegistry()
	})
}

func (p *Provider) Workflows() *WorkflowRegistry {
	p.init()
	return p.workflows
}

func (p *Provider) Activities() *ActivityRegistry {
	p.init()
	return p.activities
}
