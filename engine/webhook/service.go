package webhook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/codemode/codemode/engine/core"
	"github.com/codemode/codemode/engine/template"
	"github.com/codemode/codemode/engine/workflow"
	"github.com/codemode/codemode/pkg/logger"
)

var (
	ErrNotFound          = errors.New("webhook not found")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrNotWebhookTrigger = errors.New("workflow has no webhook trigger")
	ErrMissingSecret     = errors.New("workflow has no webhook secret")
	ErrAlreadyRegistered = errors.New("workflow already has a webhook")
)

const headerEvent = "X-Webhook-Event"

// Config is one registered webhook endpoint. Events is an allow-list;
// "*" matches anything.
type Config struct {
	WebhookID core.ID  `json:"webhook_id"`
	URL       string   `json:"url"`
	Secret    string   `json:"-"`
	Events    []string `json:"events"`
}

// Event is the verified internal handoff to execution triggering.
type Event struct {
	WebhookID  core.ID           `json:"webhook_id"`
	WorkflowID core.ID           `json:"workflow_id"`
	Payload    []byte            `json:"payload"`
	Headers    map[string]string `json:"headers"`
	Timestamp  time.Time         `json:"timestamp"`
	Verified   bool              `json:"verified"`
}

// TriggerFunc receives verified events fire-and-forget.
type TriggerFunc func(ctx context.Context, event Event)

type entry struct {
	workflowID core.ID
	config     *Config
}

// Service owns the webhook registry and the 1:1 workflow association, and
// routes verified deliveries to execution triggering.
type Service struct {
	mu         sync.RWMutex
	byID       map[core.ID]*entry
	byWorkflow map[core.ID]core.ID

	baseURL string
	trigger TriggerFunc
	metrics *Metrics
	wg      sync.WaitGroup
}

func NewService(baseURL string, trigger TriggerFunc, metrics *Metrics) *Service {
	return &Service{
		byID:       make(map[core.ID]*entry),
		byWorkflow: make(map[core.ID]core.ID),
		baseURL:    baseURL,
		trigger:    trigger,
		metrics:    metrics,
	}
}

// RegisterWebhook creates the endpoint for a webhook-triggered workflow
// using the secret issued at instantiation.
func (s *Service) RegisterWebhook(ctx context.Context, wf *workflow.Workflow) (*Config, error) {
	if wf.TriggerType != template.TriggerWebhook {
		return nil, fmt.Errorf("%w: %s", ErrNotWebhookTrigger, wf.ID)
	}
	if wf.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingSecret, wf.ID)
	}
	webhookID, err := core.NewID()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		WebhookID: webhookID,
		URL:       fmt.Sprintf("%s/hooks/%s", s.baseURL, webhookID),
		Secret:    wf.WebhookSecret,
		Events:    []string{"*"},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byWorkflow[wf.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, wf.ID)
	}
	s.byID[webhookID] = &entry{workflowID: wf.ID, config: cfg}
	s.byWorkflow[wf.ID] = webhookID
	logger.FromContext(ctx).Info("registered webhook",
		"webhook_id", webhookID, "workflow_id", wf.ID, "url", cfg.URL)
	return cfg, nil
}

// HandleWebhook verifies an inbound delivery and, on success, hands the
// event off to execution triggering without blocking the caller. A failed
// or absent signature is terminal and logged, never silently accepted.
func (s *Service) HandleWebhook(ctx context.Context, webhookID core.ID, payload []byte, headers map[string]string) error {
	log := logger.FromContext(ctx)
	s.metrics.Received(ctx)
	s.mu.RLock()
	e, ok := s.byID[webhookID]
	var cfg Config
	if ok {
		cfg = *e.config
	}
	s.mu.RUnlock()
	if !ok {
		s.metrics.Failed(ctx, "not_found")
		return fmt.Errorf("%w: %s", ErrNotFound, webhookID)
	}
	signature := ExtractSignature(headers)
	if !VerifySignature(cfg.Secret, payload, signature) {
		s.metrics.Failed(ctx, "signature")
		log.Warn("webhook signature verification failed", "webhook_id", webhookID)
		return fmt.Errorf("%w: %s", ErrInvalidSignature, webhookID)
	}
	s.metrics.Verified(ctx)
	if name := eventName(payload, headers); !s.ShouldProcessEvent(webhookID, name) {
		log.Info("webhook event filtered", "webhook_id", webhookID, "event", name)
		return nil
	}
	event := Event{
		WebhookID:  webhookID,
		WorkflowID: e.workflowID,
		Payload:    payload,
		Headers:    headers,
		Timestamp:  time.Now(),
		Verified:   true,
	}
	s.metrics.Dispatched(ctx)
	// The delivery context ends when the HTTP response is written;
	// execution must outlive it. WithoutCancel keeps the context logger.
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("webhook trigger panicked", "webhook_id", webhookID, "panic", r)
			}
		}()
		s.trigger(runCtx, event)
	}()
	return nil
}

// eventName resolves the event identifier from the delivery header or,
// failing that, from well-known payload fields.
func eventName(payload []byte, headers map[string]string) string {
	if name := headerValue(headers, headerEvent); name != "" {
		return name
	}
	for _, field := range []string{"event", "action", "type"} {
		if v := gjson.GetBytes(payload, field); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// ShouldProcessEvent applies the allow-list; "*" matches anything. An
// empty event name only passes a wildcard list.
func (s *Service) ShouldProcessEvent(webhookID core.ID, event string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[webhookID]
	if !ok {
		return false
	}
	for _, allowed := range e.config.Events {
		if allowed == "*" || (event != "" && allowed == event) {
			return true
		}
	}
	return false
}

// UpdateEvents replaces the allow-list for a webhook.
func (s *Service) UpdateEvents(webhookID core.ID, events []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[webhookID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, webhookID)
	}
	if len(events) == 0 {
		events = []string{"*"}
	}
	e.config.Events = events
	return nil
}

// RotateSecret atomically replaces the stored secret. There is no grace
// window: subsequent verifications use only the new value.
func (s *Service) RotateSecret(ctx context.Context, webhookID core.ID) (string, error) {
	secret, err := workflow.NewWebhookSecret()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[webhookID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, webhookID)
	}
	e.config.Secret = secret
	logger.FromContext(ctx).Info("rotated webhook secret", "webhook_id", webhookID)
	return secret, nil
}

// DeregisterWebhook removes the webhook and its workflow association.
func (s *Service) DeregisterWebhook(ctx context.Context, webhookID core.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[webhookID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, webhookID)
	}
	delete(s.byID, webhookID)
	delete(s.byWorkflow, e.workflowID)
	logger.FromContext(ctx).Info("deregistered webhook",
		"webhook_id", webhookID, "workflow_id", e.workflowID)
	return nil
}

// Get returns a copy of the webhook config.
func (s *Service) Get(webhookID core.ID) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[webhookID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, webhookID)
	}
	cfg := *e.config
	return &cfg, nil
}

// GetByWorkflow resolves the webhook registered for a workflow.
func (s *Service) GetByWorkflow(workflowID core.ID) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	webhookID, ok := s.byWorkflow[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: workflow %s", ErrNotFound, workflowID)
	}
	cfg := *s.byID[webhookID].config
	return &cfg, nil
}

// Wait blocks until in-flight event handoffs settle. Used on shutdown and
// in tests.
func (s *Service) Wait() {
	s.wg.Wait()
}
