// pkg/registry/manifest.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sort"
	"time"
)

// ManifestVersion is bumped when the manifest layout changes.
const ManifestVersion = "1.0.0"

// SchemaFunc renders a JSON schema for a payload type.
type SchemaFunc func(t reflect.Type) map[string]interface{}

// BuildManifest snapshots the provider's registries. schema may be nil.
func BuildManifest(p *Provider, queue string, schema SchemaFunc) *Manifest {
	m := &Manifest{
		Version:     ManifestVersion,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
		Workflows:   []WorkflowEntry{},
		Activities:  []ActivityEntry{},
	}

	for _, wf := range p.Workflows().GetAll(queue) {
		entry := WorkflowEntry{
			Key:         wf.Key(),
			Name:        wf.Name,
			Version:     wf.Version,
			Description: wf.Description,
			Handler:     wf.HandlerName,
			TaskQueue:   wf.TaskQueue,
			Route:       "/workflow/" + wf.Key(),
		}
		if schema != nil {
			entry.InputSchema = schema(wf.InputType)
			entry.OutputSchema = schema(wf.OutputType)
		}
		m.Workflows = append(m.Workflows, entry)
	}

	for _, act := range p.Activities().GetAll(queue) {
		entry := ActivityEntry{
			Name:        act.Name,
			Description: act.Description,
			Handler:     act.HandlerName,
			TaskQueue:   act.TaskQueue,
			RetryPolicy: act.RetryPolicy,
		}
		if act.StartToCloseTimeout > 0 {
			entry.StartToCloseTimeout = act.StartToCloseTimeout.String()
		}
		if act.ScheduleToCloseTimeout > 0 {
			entry.ScheduleToCloseTimeout = act.ScheduleToCloseTimeout.String()
		}
		if schema != nil {
			entry.InputSchema = schema(act.InputType)
			entry.OutputSchema = schema(act.OutputType)
		}
		m.Activities = append(m.Activities, entry)
	}

	return m
}

// LoadManifest reads a manifest previously written with WriteManifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	err = json.Unmarshal(data, &m)
	return &m, err
}

// WriteManifest writes m as indented JSON.
func WriteManifest(path string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// CompareManifest lists the differences between a committed manifest and the current one. Schemas
// and timestamps are ignored; names, handlers, queues and activity options are compared.
func CompareManifest(committed, current *Manifest) []string {
	var diffs []string

	old := make(map[string]WorkflowEntry, len(committed.Workflows))
	for _, wf := range committed.Workflows {
		old[wf.Key] = wf
	}
	for _, wf := range current.Workflows {
		prev, ok := old[wf.Key]
		delete(old, wf.Key)
		switch {
		case !ok:
			diffs = append(diffs, fmt.Sprintf("workflow %s: not in manifest", wf.Key))
		case prev.Handler != wf.Handler:
			diffs = append(diffs, fmt.Sprintf("workflow %s: handler %s, manifest has %s", wf.Key, wf.Handler, prev.Handler))
		case prev.TaskQueue != wf.TaskQueue:
			diffs = append(diffs, fmt.Sprintf("workflow %s: task queue %q, manifest has %q", wf.Key, wf.TaskQueue, prev.TaskQueue))
		}
	}
	for key := range old {
		diffs = append(diffs, fmt.Sprintf("workflow %s: no longer registered", key))
	}

	oldActs := make(map[string]ActivityEntry, len(committed.Activities))
	for _, act := range committed.Activities {
		oldActs[act.Name] = act
	}
	for _, act := range current.Activities {
		prev, ok := oldActs[act.Name]
		delete(oldActs, act.Name)
		switch {
		case !ok:
			diffs = append(diffs, fmt.Sprintf("activity %s: not in manifest", act.Name))
		case prev.Handler != act.Handler:
			diffs = append(diffs, fmt.Sprintf("activity %s: handler %s, manifest has %s", act.Name, act.Handler, prev.Handler))
		case prev.TaskQueue != act.TaskQueue:
			diffs = append(diffs, fmt.Sprintf("activity %s: task queue %q, manifest has %q", act.Name, act.TaskQueue, prev.TaskQueue))
		case prev.StartToCloseTimeout != act.StartToCloseTimeout, prev.ScheduleToCloseTimeout != act.ScheduleToCloseTimeout:
			diffs = append(diffs, fmt.Sprintf("activity %s: timeouts changed", act.Name))
		case !reflect.DeepEqual(prev.RetryPolicy, act.RetryPolicy):
			diffs = append(diffs, fmt.Sprintf("activity %s: retry policy changed", act.Name))
		}
	}
	for name := range oldActs {
		diffs = append(diffs, fmt.Sprintf("activity %s: no longer registered", name))
	}

	sort.Strings(diffs)
	return diffs
}
