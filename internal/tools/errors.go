package tools

import "fmt"

// ErrUnknownTool is returned when an action names a tool that is not
// in the registry. The agent loop turns it into an observation and
// keeps going.
type ErrUnknownTool struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("unknown tool %q", e.ToolName)
}
