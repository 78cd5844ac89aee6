package agentcore

import "errors"

// Tool-side errors are recoverable: the agent loop converts them into
// synthetic tool-result messages so the model can self-correct. They never
// abort a run.

type NoSuchToolError struct {
	ToolName string
}

func (e *NoSuchToolError) Error() string {
	if e == nil {
		return ""
	}
	return "no such tool: " + e.ToolName
}

func IsNoSuchTool(err error) bool {
	var e *NoSuchToolError
	return errors.As(err, &e)
}

type InvalidToolInputError struct {
	ToolName string
	Param    string
	Cause    error
}

func (e *InvalidToolInputError) Error() string {
	if e == nil {
		return ""
	}
	msg := "invalid tool input for " + e.ToolName
	if e.Param != "" {
		msg += ": parameter " + e.Param
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *InvalidToolInputError) Unwrap() error { return e.Cause }

func IsInvalidToolInput(err error) bool {
	var e *InvalidToolInputError
	return errors.As(err, &e)
}

// ToolExecutionError wraps a handler-reported domain failure. It is shown to
// the model as a failed tool result, not propagated as a loop failure.
type ToolExecutionError struct {
	ToolName string
	Cause    error
}

func (e *ToolExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return "tool execution failed for " + e.ToolName + ": " + e.Cause.Error()
	}
	return "tool execution failed for " + e.ToolName
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }
