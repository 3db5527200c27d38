package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/codemode/codemode/engine/core"
	"github.com/codemode/codemode/pkg/logger"
)

// Config bounds the sandbox pool.
type Config struct {
	MaxPoolSize     int
	MaxAge          time.Duration
	CleanupInterval time.Duration
	ExecTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxPoolSize:     100,
		MaxAge:          time.Hour,
		CleanupInterval: 5 * time.Minute,
		ExecTimeout:     10 * time.Minute,
	}
}

type poolEntry struct {
	handle    Handle
	createdAt time.Time
}

// Manager owns a bounded, keyed pool of sandbox handles: at most one per
// execution id, at most MaxPoolSize total, each evicted once older than
// MaxAge regardless of in-flight status. Executions keep their own handle
// reference, so a swept handle finishes its run; only later GetSandbox
// calls re-provision.
type Manager struct {
	mu   sync.Mutex
	pool map[core.ID]*poolEntry

	backend  Backend
	resolver CapabilityResolver
	config   Config
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(backend Backend, resolver CapabilityResolver, config Config) *Manager {
	if config.MaxPoolSize <= 0 {
		config.MaxPoolSize = DefaultConfig().MaxPoolSize
	}
	if config.MaxAge <= 0 {
		config.MaxAge = DefaultConfig().MaxAge
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig().CleanupInterval
	}
	if config.ExecTimeout <= 0 {
		config.ExecTimeout = DefaultConfig().ExecTimeout
	}
	if resolver == nil {
		resolver = NewStaticResolver()
	}
	return &Manager{
		pool:     make(map[core.ID]*poolEntry),
		backend:  backend,
		resolver: resolver,
		config:   config,
		now:      time.Now,
	}
}

// GetSandbox returns the handle already provisioned for the execution id,
// or creates one. Transient backend failures are retried with constant
// backoff.
func (m *Manager) GetSandbox(ctx context.Context, executionID core.ID) (Handle, error) {
	m.mu.Lock()
	if entry, ok := m.pool[executionID]; ok {
		m.mu.Unlock()
		return entry.handle, nil
	}
	m.mu.Unlock()

	var handle Handle
	backoff := retry.WithMaxRetries(2, retry.NewConstant(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		h, err := m.backend.Create(ctx, m.config.ExecTimeout)
		if err != nil {
			if isRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		handle = h
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Lost the provisioning race: keep the first handle, discard ours.
	if entry, ok := m.pool[executionID]; ok {
		go handle.Close(context.WithoutCancel(ctx))
		return entry.handle, nil
	}
	m.evictOverflowLocked(ctx)
	m.pool[executionID] = &poolEntry{handle: handle, createdAt: m.now()}
	logger.FromContext(ctx).Debug("created sandbox", "execution_id", executionID)
	return handle, nil
}

// evictOverflowLocked makes room for one more handle, oldest first.
func (m *Manager) evictOverflowLocked(ctx context.Context) {
	for len(m.pool) >= m.config.MaxPoolSize {
		var oldest core.ID
		var oldestAt time.Time
		for id, entry := range m.pool {
			if oldest.IsZero() || entry.createdAt.Before(oldestAt) {
				oldest = id
				oldestAt = entry.createdAt
			}
		}
		m.removeLocked(ctx, oldest)
	}
}

func (m *Manager) removeLocked(ctx context.Context, executionID core.ID) {
	entry, ok := m.pool[executionID]
	if !ok {
		return
	}
	delete(m.pool, executionID)
	handle := entry.handle
	go func() {
		if err := handle.Close(context.WithoutCancel(ctx)); err != nil {
			logger.FromContext(ctx).Error("failed to close sandbox",
				"execution_id", executionID, "error", err)
		}
	}()
}

// ExecuteTemplate runs workflow code through the state machine
// pending -> running -> success|failed. Any failure lands in the result's
// error field; nothing propagates past this boundary.
func (m *Manager) ExecuteTemplate(
	ctx context.Context,
	executionID core.ID,
	code string,
	config map[string]any,
	mcpServers []string,
	repositoryID string,
) *core.ExecutionResult {
	result := &core.ExecutionResult{
		ExecutionID: executionID,
		Status:      core.StatusPending,
	}
	result.Status = core.StatusRunning
	start := m.now()

	output, err := m.runInSandbox(ctx, executionID, code, config, mcpServers, repositoryID, result)
	if err == nil && output != nil && output.Error != nil {
		err = output.Error
	}
	if err != nil {
		result.Status = core.StatusFailed
		result.Error = classifyError(err)
		result.Logs = append(result.Logs, core.LogEntry{
			Timestamp: m.now(),
			Level:     core.LogError,
			Message:   "Template execution failed: " + err.Error(),
			Metadata:  errorMetadata(err),
		})
	} else {
		if output != nil {
			result.Result = output.Result
		}
		result.Status = core.StatusSuccess
		result.Logs = append(result.Logs, core.LogEntry{
			Timestamp: m.now(),
			Level:     core.LogInfo,
			Message:   "Template execution completed successfully",
		})
	}
	result.Duration = m.now().Sub(start)
	return result
}

func (m *Manager) runInSandbox(
	ctx context.Context,
	executionID core.ID,
	code string,
	config map[string]any,
	mcpServers []string,
	repositoryID string,
	result *core.ExecutionResult,
) (*RunOutput, error) {
	handle, err := m.GetSandbox(ctx, executionID)
	if err != nil {
		return nil, err
	}
	connections := buildConnections(m.resolver, mcpServers, repositoryID)
	wrapped := wrapCode(code, buildEnvVars(config), connections)
	result.Logs = append(result.Logs, core.LogEntry{
		Timestamp: m.now(),
		Level:     core.LogInfo,
		Message:   "Starting template execution...",
	})
	output, err := handle.Run(ctx, wrapped)
	if err != nil {
		return nil, err
	}
	for _, line := range output.Logs {
		result.Logs = append(result.Logs, core.LogEntry{
			Timestamp: m.now(),
			Level:     detectLogLevel(line),
			Message:   line,
		})
	}
	return output, nil
}

// detectLogLevel infers a level from keyword markers in a backend log
// line.
func detectLogLevel(message string) core.LogLevel {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "error") || strings.Contains(lower, "failed"):
		return core.LogError
	case strings.Contains(lower, "warn"):
		return core.LogWarn
	case strings.Contains(lower, "debug"):
		return core.LogDebug
	default:
		return core.LogInfo
	}
}

var retryableCodes = map[string]struct{}{
	"RATE_LIMIT":          {},
	"TIMEOUT":             {},
	"NETWORK_ERROR":       {},
	"SERVICE_UNAVAILABLE": {},
}

// isRetryable classifies network/timeout-class errors as retryable;
// validation and programmer errors are not.
func isRetryable(err error) bool {
	var runErr *RunError
	if errors.As(err, &runErr) {
		_, ok := retryableCodes[runErr.Code]
		return ok
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "temporarily unavailable")
}

func classifyError(err error) *core.Error {
	e := &core.Error{Message: err.Error(), IsRetryable: isRetryable(err)}
	var runErr *RunError
	if errors.As(err, &runErr) {
		e.Code = runErr.Code
		e.Stack = runErr.Stack
	}
	return e
}

func errorMetadata(err error) map[string]any {
	var runErr *RunError
	if errors.As(err, &runErr) && runErr.Stack != "" {
		return map[string]any{"stack": runErr.Stack}
	}
	return nil
}

// DestroySandbox tears down the handle for an execution. Unknown ids are
// a no-op: teardown is pool housekeeping, never an execution error.
func (m *Manager) DestroySandbox(ctx context.Context, executionID core.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(ctx, executionID)
}

// Cleanup evicts every handle older than MaxAge, regardless of in-flight
// status, then trims overflow oldest-first.
func (m *Manager) Cleanup(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var stale []core.ID
	for id, entry := range m.pool {
		if now.Sub(entry.createdAt) > m.config.MaxAge {
			stale = append(stale, id)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })
	for _, id := range stale {
		m.removeLocked(ctx, id)
	}
	if len(stale) > 0 {
		logger.FromContext(ctx).Info("evicted aged sandboxes", "count", len(stale))
	}
	return len(stale)
}

// StartCleanup launches the periodic eviction sweep.
func (m *Manager) StartCleanup(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.config.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Cleanup(ctx)
			}
		}
	}()
}

func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// HealthStatus is a basic liveness report for one sandbox.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Age     time.Duration `json:"age"`
	Message string        `json:"message,omitempty"`
}

func (m *Manager) HealthCheck(executionID core.ID) HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.pool[executionID]
	if !ok {
		return HealthStatus{Healthy: false, Message: "sandbox not found"}
	}
	return HealthStatus{Healthy: true, Age: m.now().Sub(entry.createdAt)}
}

// PoolStats reports current pool occupancy.
type PoolStats struct {
	Total int `json:"total"`
	Max   int `json:"max"`
}

func (m *Manager) Stats() PoolStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return PoolStats{Total: len(m.pool), Max: m.config.MaxPoolSize}
}
