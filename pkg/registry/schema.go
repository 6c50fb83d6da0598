// pkg/registry/schema.go
package registry

// Manifest is the JSON description of everything a process has registered.
type Manifest struct {
	Version     string          `json:"version"`
	LastUpdated string          `json:"lastUpdated"`
	Workflows   []WorkflowEntry `json:"workflows"`
	Activities  []ActivityEntry `json:"activities"`
}

type WorkflowEntry struct {
	Key          string                 `json:"key"`
	Name         string                 `json:"name"`
	Version      string                 `json:"version"`
	Description  string                 `json:"description,omitempty"`
	Handler      string                 `json:"handler"`
	TaskQueue    string                 `json:"taskQueue,omitempty"`
	Route        string                 `json:"route"`
	InputSchema  map[string]interface{} `json:"inputSchema,omitempty"`
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`
}

type ActivityEntry struct {
	Name                   string                 `json:"name"`
	Description            string                 `json:"description,omitempty"`
	Handler                string                 `json:"handler"`
	TaskQueue              string                 `json:"taskQueue,omitempty"`
	StartToCloseTimeout    string                 `json:"startToCloseTimeout,omitempty"`
	ScheduleToCloseTimeout string                 `json:"scheduleToCloseTimeout,omitempty"`
	RetryPolicy            *RetryPolicy           `json:"retryPolicy,omitempty"`
	InputSchema            map[string]interface{} `json:"inputSchema,omitempty"`
	OutputSchema           map[string]interface{} `json:"outputSchema,omitempty"`
}
