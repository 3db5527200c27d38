package sandbox

import (
	"context"
	"fmt"
	"time"
)

// Backend is the external execution boundary: provision an ephemeral
// sandbox, run code in it, tear it down. Real isolation technology lives
// behind this interface.
type Backend interface {
	Create(ctx context.Context, timeout time.Duration) (Handle, error)
}

// Handle is one provisioned sandbox.
type Handle interface {
	Run(ctx context.Context, code string) (*RunOutput, error)
	Close(ctx context.Context) error
}

// RunOutput is what the backend reports for one code run.
type RunOutput struct {
	Logs   []string
	Result any
	Error  *RunError
}

// RunError is a backend-reported execution error.
type RunError struct {
	Message string
	Code    string
	Stack   string
}

func (e *RunError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}
