package entity

import "fmt"

type ErrorKind string

const (
	ErrorUnknownTool        ErrorKind = "UnknownTool"
	ErrorValidation         ErrorKind = "ValidationError"
	ErrorSessionUnavailable ErrorKind = "SessionUnavailable"
	ErrorTimeout            ErrorKind = "Timeout"
	ErrorElementNotFound    ErrorKind = "ElementNotFound"
	ErrorScript             ErrorKind = "ScriptError"
	ErrorExecutionFailed    ErrorKind = "ExecutionFailed"
	ErrorInternal           ErrorKind = "InternalError"
)

// Retryable reports whether repeating the same call may succeed without the
// caller changing anything.
func (k ErrorKind) Retryable() bool {
	return k == ErrorTimeout || k == ErrorSessionUnavailable
}

func (k ErrorKind) String() string {
	return string(k)
}

// ToolError is the single failure shape that leaves the dispatcher.
type ToolError struct {
	Kind      ErrorKind
	Message   string
	Tool      string
	Arguments any
	Details   map[string]any
	Cause     error
}

func NewToolError(kind ErrorKind, tool string, format string, args ...any) *ToolError {
	return &ToolError{
		Kind:    kind,
		Tool:    tool,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *ToolError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Tool, e.Kind, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

func (e *ToolError) WithCause(err error) *ToolError {
	e.Cause = err
	return e
}

func (e *ToolError) WithArguments(args any) *ToolError {
	e.Arguments = args
	return e
}

func (e *ToolError) WithDetail(key string, value any) *ToolError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}
