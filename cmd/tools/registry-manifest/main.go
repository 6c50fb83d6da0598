// cmd/tools/registry-manifest/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"signal-workflows/internal/common/camunda"
	"signal-workflows/internal/common/logger"
	"signal-workflows/internal/common/validation"
	"signal-workflows/internal/workers"
	"signal-workflows/pkg/registry"
)

const defaultManifestPath = "configs/workflow-registry.json"

func main() {
	writeCmd := flag.NewFlagSet("write", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	bpmnCmd := flag.NewFlagSet("bpmn", flag.ExitOnError)

	// Write command flags
	writePath := writeCmd.String("path", defaultManifestPath, "Path of the manifest to write")
	writeQueue := writeCmd.String("queue", "", "Only include entries served on this task queue")

	// Validate command flags
	validatePath := validateCmd.String("path", defaultManifestPath, "Path of the committed manifest")
	validateQueue := validateCmd.String("queue", "", "Only compare entries served on this task queue")

	// BPMN command flags
	bpmnDir := bpmnCmd.String("dir", "deployments", "Directory to write the generated processes to")
	bpmnQueue := bpmnCmd.String("queue", "", "Only export processes served on this task queue")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	provider, err := loadProvider()
	if err != nil {
		fmt.Printf("Error registering workflows: %v\n", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "write":
		_ = writeCmd.Parse(os.Args[2:])
		if err := writeManifest(provider, *writePath, *writeQueue); err != nil {
			fmt.Printf("Error writing manifest: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %s\n", *writePath)

	case "validate":
		_ = validateCmd.Parse(os.Args[2:])
		diffs, err := validateManifest(provider, *validatePath, *validateQueue)
		if err != nil {
			fmt.Printf("Manifest validation failed: %v\n", err)
			os.Exit(1)
		}
		if len(diffs) > 0 {
			fmt.Printf("Manifest %s is out of date:\n", *validatePath)
			for _, d := range diffs {
				fmt.Printf("  - %s\n", d)
			}
			os.Exit(1)
		}
		fmt.Println("Manifest validation passed.")

	case "bpmn":
		_ = bpmnCmd.Parse(os.Args[2:])
		n, err := exportProcesses(provider, *bpmnDir, *bpmnQueue)
		if err != nil {
			fmt.Printf("Error exporting processes: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Exported %d processes to %s\n", n, *bpmnDir)

	case "help":
		fallthrough
	default:
		help()
	}
}

// loadProvider registers everything the service serves. No client is needed to describe it.
func loadProvider() (*registry.Provider, error) {
	p := registry.NewProvider()
	err := workers.RegisterAll(p, &workers.Dependencies{Logger: logger.NewNoOpLogger()})
	return p, err
}

func writeManifest(p *registry.Provider, path, queue string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return registry.WriteManifest(path, registry.BuildManifest(p, queue, validation.SchemaMap))
}

func validateManifest(p *registry.Provider, path, queue string) ([]string, error) {
	committed, err := registry.LoadManifest(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	return registry.CompareManifest(committed, registry.BuildManifest(p, queue, nil)), nil
}

func exportProcesses(p *registry.Provider, dir, queue string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	defs := camunda.Processes(p, queue)
	for _, def := range defs {
		data, err := def.BPMN()
		if err != nil {
			return 0, err
		}
		if err := os.WriteFile(filepath.Join(dir, def.ResourceName()), data, 0o644); err != nil {
			return 0, fmt.Errorf("failed to write %s: %w", def.ResourceName(), err)
		}
	}
	return len(defs), nil
}

func help() {
	fmt.Print(`
Usage: registry-manifest <command> [flags]

Commands:
  write     Write the manifest of every registered workflow and activity
  validate  Check a committed manifest against the registered code
  bpmn      Export the generated BPMN processes
  help      Show this help message

Examples:
  registry-manifest write -path configs/workflow-registry.json
  registry-manifest validate -path configs/workflow-registry.json
  registry-manifest bpmn -dir deployments -queue research

Use 'registry-manifest <command> -h' for more information about a command.

`)
}
