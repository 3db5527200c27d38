package core

import "fmt"

// Error is the structured error carried inside an ExecutionResult. It is
// never thrown past the execution boundary; callers always receive a
// terminal result with this field populated on failure.
type Error struct {
	Message     string `json:"message"`
	Stack       string `json:"stack,omitempty"`
	Code        string `json:"code,omitempty"`
	IsRetryable bool   `json:"is_retryable"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// NewError wraps an arbitrary error with an optional machine-readable code.
func NewError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Message: err.Error(), Code: code}
}
