// cmd/tools/workflow-generator/main.go
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
)

// WorkflowData holds data for templates
type WorkflowData struct {
	Name         string
	Version      string
	Description  string
	TaskQueue    string
	PackageName  string
	TypeName     string
	ActivityName string
}

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

// newWorkflowData derives package, type and activity names from a kebab-case workflow name.
func newWorkflowData(name, version, description, queue string) (*WorkflowData, error) {
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("workflow name %q must be kebab-case", name)
	}
	if version == "" {
		version = "v1"
	}
	if description == "" {
		description = fmt.Sprintf("%s workflow.", upperFirst(strings.ReplaceAll(name, "-", " ")))
	}

	typeName := camelName(name)
	if !strings.HasSuffix(typeName, "Workflow") {
		typeName += "Workflow"
	}

	return &WorkflowData{
		Name:         name,
		Version:      version,
		Description:  description,
		TaskQueue:    queue,
		PackageName:  strings.ReplaceAll(name, "-", ""),
		TypeName:     typeName,
		ActivityName: strings.ReplaceAll(name, "-", "_") + "_step",
	}, nil
}

func camelName(kebab string) string {
	var b strings.Builder
	for _, part := range strings.Split(kebab, "-") {
		b.WriteString(upperFirst(part))
	}
	return b.String()
}

// upperFirst makes the first character uppercase
func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Templates use ~ where the generated code needs a backtick.
const modelsTemplate = `package {{ .PackageName }}

type {{ .TypeName }}Input struct {
	Subject string ~json:"subject" description:"What the workflow works on" schema:"minLength=1"~
}

type {{ .TypeName }}Output struct {
	Result string ~json:"result" description:"Outcome of the run"~
}
`

const workflowTemplate = `package {{ .PackageName }}

import (
	"context"
	"fmt"
	"time"

	"signal-workflows/internal/common/logger"
	"signal-workflows/pkg/registry"
)

const (
	WorkflowName    = "{{ .Name }}"
	WorkflowVersion = "{{ .Version }}"
)

type Activities struct {
	Step *registry.Activity[{{ .TypeName }}Input, {{ .TypeName }}Output]
}

func NewActivities(log logger.Logger) *Activities {
	log = log.With(map[string]interface{}{"component": "{{ .Name }}-activities"})

	return &Activities{
		Step: registry.MustDefineActivity(func(ctx context.Context, in {{ .TypeName }}Input) ({{ .TypeName }}Output, error) {
			log.Info("Running step", map[string]interface{}{"subject": in.Subject})
			return {{ .TypeName }}Output{Result: in.Subject}, nil
		}, registry.ActivityOptions{
			Name:                "{{ .ActivityName }}",
			StartToCloseTimeout: 30 * time.Second,
			MaxRetries:          3,
		}),
	}
}

type {{ .TypeName }} struct {
	registry.Workflow
	Activities *Activities
}

func (w {{ .TypeName }}) Run(ctx context.Context, in *{{ .TypeName }}Input) (*{{ .TypeName }}Output, error) {
	out, err := w.Activities.Step.Execute(ctx, *in)
	if err != nil {
		return nil, fmt.Errorf("step: %w", err)
	}
	return &out, nil
}

// Register adds the workflow and its activities to p.
func Register(p *registry.Provider, acts *Activities) (*registry.WorkflowMetadata, error) {
	if err := registry.RegisterActivity(p.Activities(), acts.Step); err != nil {
		return nil, err
	}
	return registry.RegisterWorkflow(p.Workflows(), {{ .TypeName }}{Activities: acts}, registry.WorkflowOptions{
		Name:        WorkflowName,
		Version:     WorkflowVersion,
		Description: {{ printf "%q" .Description }},
{{- if .TaskQueue }}
		TaskQueue:   "{{ .TaskQueue }}",
{{- end }}
	})
}
`

const testTemplate = `package {{ .PackageName }}

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-workflows/internal/common/logger"
	"signal-workflows/pkg/registry"
)

func TestRegister(t *testing.T) {
	p := registry.NewProvider()
	md, err := Register(p, NewActivities(logger.NewTestLogger(t)))
	require.NoError(t, err)

	assert.Equal(t, "{{ .Name }}-{{ .Version }}", md.Key())
	_, ok := p.Activities().Get("{{ .ActivityName }}")
	assert.True(t, ok)
}

func Test{{ .TypeName }}_Run(t *testing.T) {
	p := registry.NewProvider()
	md, err := Register(p, NewActivities(logger.NewTestLogger(t)))
	require.NoError(t, err)

	exec := &registry.LocalExecutor{}
	out, err := exec.Execute(context.Background(), registry.RunRequest{
		Workflow: md,
		Input:    {{ .TypeName }}Input{Subject: "demo"},
	})

	require.NoError(t, err)
	assert.JSONEq(t, ~{"result":"demo"}~, string(out))
}
`

var templates = []struct {
	file string
	body string
}{
	{"models.go", modelsTemplate},
	{"workflow.go", workflowTemplate},
	{"workflow_test.go", testTemplate},
}

// generate renders the scaffold into dir. Existing files are kept unless force is set.
func generate(data *WorkflowData, dir string, force bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	var written []string
	for _, t := range templates {
		path := filepath.Join(dir, t.file)
		if _, err := os.Stat(path); err == nil && !force {
			return written, fmt.Errorf("%s already exists, use -force to overwrite", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return written, err
		}

		tmpl, err := template.New(t.file).Parse(strings.ReplaceAll(t.body, "~", "`"))
		if err != nil {
			return written, fmt.Errorf("parse template %s: %w", t.file, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return written, fmt.Errorf("render %s: %w", t.file, err)
		}
		src, err := format.Source(buf.Bytes())
		if err != nil {
			return written, fmt.Errorf("format %s: %w", t.file, err)
		}
		if err := os.WriteFile(path, src, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func main() {
	name := flag.String("name", "", "Workflow name, kebab-case (e.g., triage-issue)")
	version := flag.String("version", "v1", "Workflow version")
	description := flag.String("description", "", "Description shown in the workflow catalog")
	queue := flag.String("queue", "", "Task queue the workflow is served on")
	outputDir := flag.String("output", "./internal/workers/", "Directory the workflow package is created in")
	force := flag.Bool("force", false, "Overwrite existing files")
	flag.Parse()

	if *name == "" {
		fmt.Println("Usage: workflow-generator -name <workflow-name> [-version v1] [-queue <queue>] [-output <dir>]")
		fmt.Println("\nExample:")
		fmt.Println("  go run ./cmd/tools/workflow-generator -name triage-issue -queue research")
		os.Exit(1)
	}

	data, err := newWorkflowData(*name, *version, *description, *queue)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	dir := filepath.Join(*outputDir, data.PackageName)
	files, err := generate(data, dir, *force)
	for _, f := range files {
		fmt.Printf("Generated %s\n", f)
	}
	if err != nil {
		fmt.Printf("Error generating workflow: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nWorkflow scaffold generated at: %s\n", dir)
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("  1. Replace the step activity with real work\n")
	fmt.Printf("  2. Call %s.Register from workers.RegisterAll\n", data.PackageName)
	fmt.Printf("  3. Regenerate the manifest with registry-manifest write\n")
}
