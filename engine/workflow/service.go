package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codemode/codemode/engine/core"
	"github.com/codemode/codemode/engine/template"
	"github.com/codemode/codemode/pkg/logger"
)

var (
	ErrMissingCron       = errors.New("cron trigger requires a cron expression")
	ErrTriggerNotAllowed = errors.New("template does not support trigger type")
)

// CronEvaluator computes the next fire time after a reference instant.
// Narrow by design so the cron library stays swappable.
type CronEvaluator interface {
	Next(expr string, after time.Time, timezone string) (time.Time, error)
}

// Executor runs workflow code and always returns a terminal result.
type Executor interface {
	ExecuteTemplate(
		ctx context.Context,
		executionID core.ID,
		code string,
		config map[string]any,
		mcpServers []string,
		repositoryID string,
	) *core.ExecutionResult
}

// Service instantiates templates into workflows and keeps workflow
// configuration consistent with the pinned template schema.
type Service struct {
	catalog  *template.Catalog
	cron     CronEvaluator
	executor Executor
	timezone string
}

func NewService(catalog *template.Catalog, cron CronEvaluator, executor Executor, timezone string) *Service {
	if timezone == "" {
		timezone = "UTC"
	}
	return &Service{catalog: catalog, cron: cron, executor: executor, timezone: timezone}
}

// InstantiateRequest describes a workflow to derive from a template.
type InstantiateRequest struct {
	TemplateID     string               `json:"template_id"`
	Name           string               `json:"name,omitempty"`
	Owners         Owners               `json:"owners"`
	Config         map[string]any       `json:"config,omitempty"`
	TriggerType    template.TriggerType `json:"trigger_type"`
	CronExpression string               `json:"cron_expression,omitempty"`
	Timezone       string               `json:"timezone,omitempty"`
}

// Instantiate validates the request config against the template schema and
// builds a persistent workflow: merged config, pinned template version, a
// fresh webhook secret for webhook triggers and the first run time for
// cron triggers.
func (s *Service) Instantiate(ctx context.Context, req *InstantiateRequest) (*Workflow, error) {
	tpl, err := s.catalog.Get(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if !tpl.SupportsTrigger(req.TriggerType) {
		return nil, fmt.Errorf("%w: %s", ErrTriggerNotAllowed, req.TriggerType)
	}
	merged := mergeConfig(tpl.DefaultConfig, req.Config)
	if err := validateConfig(ctx, tpl.ConfigSchema, merged); err != nil {
		return nil, err
	}
	id, err := core.NewID()
	if err != nil {
		return nil, err
	}
	name := req.Name
	if name == "" {
		name = tpl.Name
	}
	now := time.Now()
	wf := &Workflow{
		ID:              id,
		Name:            name,
		Owners:          req.Owners,
		TemplateID:      tpl.ID,
		TemplateVersion: tpl.Version,
		Code:            tpl.Code,
		Config:          merged,
		TriggerType:     req.TriggerType,
		Enabled:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	switch req.TriggerType {
	case template.TriggerCron:
		if req.CronExpression == "" {
			return nil, ErrMissingCron
		}
		tz := req.Timezone
		if tz == "" {
			tz = s.timezone
		}
		next, err := s.cron.Next(req.CronExpression, now, tz)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", req.CronExpression, err)
		}
		wf.CronExpression = req.CronExpression
		wf.NextExecutionAt = &next
	case template.TriggerWebhook:
		secret, err := NewWebhookSecret()
		if err != nil {
			return nil, err
		}
		wf.WebhookSecret = secret
	}
	logger.FromContext(ctx).Info("instantiated workflow",
		"workflow_id", wf.ID, "template_id", tpl.ID, "trigger", req.TriggerType)
	return wf, nil
}

// Preview validates the config and returns the code body that would run.
// Templating substitution is not applied yet; the body is returned as-is.
func (s *Service) Preview(ctx context.Context, templateID string, config map[string]any) (string, error) {
	tpl, err := s.catalog.Get(ctx, templateID)
	if err != nil {
		return "", err
	}
	merged := mergeConfig(tpl.DefaultConfig, config)
	if err := validateConfig(ctx, tpl.ConfigSchema, merged); err != nil {
		return "", err
	}
	return tpl.Code, nil
}

// TestRun validates like Instantiate then executes once under a one-off
// execution id, without persisting anything.
func (s *Service) TestRun(
	ctx context.Context,
	templateID string,
	config map[string]any,
	repositoryID string,
) (*core.ExecutionResult, error) {
	tpl, err := s.catalog.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	merged := mergeConfig(tpl.DefaultConfig, config)
	if err := validateConfig(ctx, tpl.ConfigSchema, merged); err != nil {
		return nil, err
	}
	execID := core.MustNewID()
	logger.FromContext(ctx).Info("test run", "template_id", templateID, "execution_id", execID)
	return s.executor.ExecuteTemplate(ctx, execID, tpl.Code, merged, tpl.MCPServers, repositoryID), nil
}

// UpdateConfig re-validates the new configuration against the pinned
// template's schema and applies it. The template may have been deleted
// since instantiation; that is a terminal not-found.
func (s *Service) UpdateConfig(ctx context.Context, wf *Workflow, config map[string]any) error {
	tpl, err := s.catalog.Get(ctx, wf.TemplateID)
	if err != nil {
		return err
	}
	merged := mergeConfig(tpl.DefaultConfig, config)
	if err := validateConfig(ctx, tpl.ConfigSchema, merged); err != nil {
		return err
	}
	wf.Config = merged
	wf.UpdatedAt = time.Now()
	return nil
}

// Clone copies a workflow under a new identity. Webhook clones get a fresh
// secret; cron clones get a recomputed first run. Execution timestamps are
// reset.
func (s *Service) Clone(ctx context.Context, wf *Workflow, name string) (*Workflow, error) {
	tpl, err := s.catalog.Get(ctx, wf.TemplateID)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(ctx, tpl.ConfigSchema, wf.Config); err != nil {
		return nil, err
	}
	id, err := core.NewID()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	clone := *wf
	clone.ID = id
	clone.Config = mergeConfig(wf.Config, nil)
	clone.LastExecutionAt = nil
	clone.NextExecutionAt = nil
	clone.CreatedAt = now
	clone.UpdatedAt = now
	if name != "" {
		clone.Name = name
	} else {
		clone.Name = wf.Name + " (copy)"
	}
	switch wf.TriggerType {
	case template.TriggerWebhook:
		secret, err := NewWebhookSecret()
		if err != nil {
			return nil, err
		}
		clone.WebhookSecret = secret
	case template.TriggerCron:
		next, err := s.cron.Next(wf.CronExpression, now, s.timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid cron expression %q: %w", wf.CronExpression, err)
		}
		clone.NextExecutionAt = &next
	}
	return &clone, nil
}
