package example

import "fmt"

type ExampleInput struct {
	Name  string `json:"name" description:"Name to process" schema:"minLength=1"`
	Count int    `json:"count" default:"1" description:"Number of iterations" schema:"min=1,max=100"`
}

// Validate repeats the schema bounds for callers that skip the API.
func (in *ExampleInput) Validate() error {
	if in.Name == "" {
		return fmt.Errorf("name is required")
	}
	if in.Count < 1 || in.Count > 100 {
		return fmt.Errorf("count must be between 1 and 100, got %d", in.Count)
	}
	return nil
}

type ExampleOutput struct {
	Result     string `json:"result" description:"Processed result"`
	Iterations int    `json:"iterations" description:"Number of iterations performed"`
}
