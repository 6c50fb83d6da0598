package example

import "fmt"

// Greeter builds the greeting returned by say_hello.
type Greeter interface {
	Greeting(name string) string
}

// GreetingService is the default Greeter.
type GreetingService struct{}

func (GreetingService) Greeting(name string) string {
	return fmt.Sprintf("Hello from GreetingService, %s!", name)
}
