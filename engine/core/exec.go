package core

import "time"

// LogLevel classifies a single execution log line.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is one line of sandbox output with an inferred level.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ExecutionResult is the terminal outcome of one workflow run. Execution
// never throws past this boundary: failures land in Error with Status
// failed.
type ExecutionResult struct {
	ExecutionID ID            `json:"execution_id"`
	Status      StatusType    `json:"status"`
	Duration    time.Duration `json:"duration"`
	Result      any           `json:"result,omitempty"`
	Logs        []LogEntry    `json:"logs"`
	Error       *Error        `json:"error,omitempty"`
	TokensUsed  int           `json:"tokens_used"`
	MCPCalls    int           `json:"mcp_call_count"`
}
