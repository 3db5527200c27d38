package workflow

import (
	"time"

	"github.com/codemode/codemode/engine/core"
	"github.com/codemode/codemode/engine/template"
)

// Owners carries the opaque foreign keys binding a workflow to its
// context. None of these are resolved by the engine.
type Owners struct {
	UserID         string `json:"user_id,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	RepositoryID   string `json:"repository_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
}

// Workflow is a configured, triggerable instance of a template. The code
// body is copied at instantiation and may diverge from the template later.
type Workflow struct {
	ID              core.ID              `json:"id"`
	Name            string               `json:"name"`
	Owners          Owners               `json:"owners"`
	TemplateID      string               `json:"template_id"`
	TemplateVersion string               `json:"template_version"`
	Code            string               `json:"code"`
	Config          map[string]any       `json:"config"`
	TriggerType     template.TriggerType `json:"trigger_type"`
	CronExpression  string               `json:"cron_expression,omitempty"`
	WebhookSecret   string               `json:"webhook_secret,omitempty"`
	Enabled         bool                 `json:"enabled"`
	NextExecutionAt *time.Time           `json:"next_execution_at,omitempty"`
	LastExecutionAt *time.Time           `json:"last_execution_at,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}
