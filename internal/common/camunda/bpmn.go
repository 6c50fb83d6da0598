// internal/common/camunda/bpmn.go
package camunda

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"text/template"

	"signal-workflows/pkg/registry"
)

// ActivityProcessPrefix prefixes the process id of every activity process.
const ActivityProcessPrefix = "activity-"

// ProcessDefinition is a one-service-task process that hands its job to the worker serving taskQueue.
type ProcessDefinition struct {
	ProcessID string
	Name      string
	// Documentation is copied into the process for operators browsing the engine.
	Documentation string
}

// WorkflowProcess is the process that runs a registered workflow.
func WorkflowProcess(md *registry.WorkflowMetadata) ProcessDefinition {
	return ProcessDefinition{
		ProcessID:     md.Key(),
		Name:          md.Name + " " + md.Version,
		Documentation: md.Description,
	}
}

// ActivityProcess is the process that runs a registered activity.
func ActivityProcess(md *registry.ActivityMetadata) ProcessDefinition {
	return ProcessDefinition{
		ProcessID:     ActivityProcessID(md.Name),
		Name:          md.Name,
		Documentation: md.Description,
	}
}

// Processes lists the process definitions of every workflow and activity served on queue.
func Processes(p *registry.Provider, queue string) []ProcessDefinition {
	var defs []ProcessDefinition
	for _, md := range p.Workflows().GetAll(queue) {
		defs = append(defs, WorkflowProcess(md))
	}
	for _, md := range p.Activities().GetAll(queue) {
		defs = append(defs, ActivityProcess(md))
	}
	return defs
}

func ActivityProcessID(name string) string {
	return ActivityProcessPrefix + name
}

// JobType is the job type a worker subscribes to for processID on queue. It matches what the
// task type expression of the generated process evaluates to.
func JobType(queue, processID string) string {
	return queue + ":" + processID
}

// ResourceName is the file name used when deploying the definition.
func (p ProcessDefinition) ResourceName() string {
	return p.ProcessID + ".bpmn"
}

func (p ProcessDefinition) jobTypeExpression() string {
	return fmt.Sprintf(`=taskQueue + ":" + "%s"`, p.ProcessID)
}

var processTemplate = template.Must(template.New("process").Funcs(template.FuncMap{
	"xml": xmlEscape,
}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<bpmn:definitions xmlns:bpmn="http://www.omg.org/spec/BPMN/20100524/MODEL" xmlns:zeebe="http://camunda.org/schema/zeebe/1.0" id="Definitions_{{xml .ProcessID}}" targetNamespace="http://bpmn.io/schema/bpmn" exporter="signal-workflows">
  <bpmn:process id="{{xml .ProcessID}}" name="{{xml .Name}}" isExecutable="true">
{{- if .Documentation}}
    <bpmn:documentation>{{xml .Documentation}}</bpmn:documentation>
{{- end}}
    <bpmn:startEvent id="start">
      <bpmn:outgoing>flow_start</bpmn:outgoing>
    </bpmn:startEvent>
    <bpmn:sequenceFlow id="flow_start" sourceRef="start" targetRef="run" />
    <bpmn:serviceTask id="run" name="{{xml .Name}}">
      <bpmn:extensionElements>
        <zeebe:taskDefinition type="{{xml .JobTypeExpression}}" retries="=retries" />
      </bpmn:extensionElements>
      <bpmn:incoming>flow_start</bpmn:incoming>
      <bpmn:outgoing>flow_end</bpmn:outgoing>
    </bpmn:serviceTask>
    <bpmn:sequenceFlow id="flow_end" sourceRef="run" targetRef="end" />
    <bpmn:endEvent id="end">
      <bpmn:incoming>flow_end</bpmn:incoming>
    </bpmn:endEvent>
  </bpmn:process>
</bpmn:definitions>
`))

// BPMN renders the process as a deployable BPMN 2.0 document.
func (p ProcessDefinition) BPMN() ([]byte, error) {
	if !validProcessID(p.ProcessID) {
		return nil, fmt.Errorf("invalid process id %q", p.ProcessID)
	}
	var buf bytes.Buffer
	err := processTemplate.Execute(&buf, struct {
		ProcessDefinition
		JobTypeExpression string
	}{p, p.jobTypeExpression()})
	if err != nil {
		return nil, fmt.Errorf("render process %s: %w", p.ProcessID, err)
	}
	return buf.Bytes(), nil
}

func xmlEscape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// validProcessID accepts XML NCNames made of ASCII letters, digits, '-', '_' and '.'.
func validProcessID(id string) bool {
	if id == "" {
		return false
	}
	for i, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case i > 0 && (r >= '0' && r <= '9' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}
