package message

import "fmt"

// EmptyContentError reports that a message would have had no content blocks
// after normalization.
type EmptyContentError struct {
	Role Role
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("message: %s message has empty content", e.Role)
}

// ToolArgumentParseError reports that a legacy tool call's arguments string
// failed to parse as a plain JSON object.
type ToolArgumentParseError struct {
	ToolCallID   string
	ToolName     string
	RawArguments string
	Cause        error
}

func (e *ToolArgumentParseError) Error() string {
	return fmt.Sprintf("message: tool call %q (%s) arguments %q: %v", e.ToolCallID, e.ToolName, e.RawArguments, e.Cause)
}

func (e *ToolArgumentParseError) Unwrap() error { return e.Cause }

// InvalidMessageError reports a shape that Normalize does not recognize at
// all (neither canonical nor a known legacy form).
type InvalidMessageError struct {
	Reason string
}

func (e *InvalidMessageError) Error() string {
	return fmt.Sprintf("message: invalid message: %s", e.Reason)
}

// InvalidToolCallError reports a legacy tool-call declaration or a
// ToolMessage/ToolUseBlock with a missing id/name/tool_call_id.
type InvalidToolCallError struct {
	Reason string
}

func (e *InvalidToolCallError) Error() string {
	return fmt.Sprintf("message: invalid tool call: %s", e.Reason)
}
