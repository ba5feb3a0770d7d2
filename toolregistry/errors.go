package toolregistry

import "fmt"

// DuplicateToolError is raised by Register when name is already registered.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("toolregistry: tool %q already registered", e.Name)
}

// UnknownToolError is raised by Execute when name has no registered tool.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("toolregistry: unknown tool %q", e.Name)
}

// SchemaValidationError is raised by Execute when args fail name's
// parametersSchema.
type SchemaValidationError struct {
	Name  string
	Cause error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("toolregistry: tool %q: invalid arguments: %v", e.Name, e.Cause)
}

func (e *SchemaValidationError) Unwrap() error { return e.Cause }
