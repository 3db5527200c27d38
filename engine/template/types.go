package template

import "time"

// -----------------------------------------------------------------------------
// Trigger / Category / Difficulty / Visibility
// -----------------------------------------------------------------------------

type TriggerType string

const (
	TriggerCron    TriggerType = "cron"
	TriggerWebhook TriggerType = "webhook"
	TriggerManual  TriggerType = "manual"
)

type Category string

const (
	CategoryGithubAutomation Category = "github-automation"
	CategoryCodeQuality      Category = "code-quality"
	CategorySecurity         Category = "security"
	CategoryDataProcessing   Category = "data-processing"
	CategoryDevOps           Category = "devops"
	CategoryReporting        Category = "reporting"
	CategoryNotifications    Category = "notifications"
	CategoryOther            Category = "other"
)

// ValidCategories is the closed set accepted by the validator.
var ValidCategories = []Category{
	CategoryGithubAutomation,
	CategoryCodeQuality,
	CategorySecurity,
	CategoryDataProcessing,
	CategoryDevOps,
	CategoryReporting,
	CategoryNotifications,
	CategoryOther,
}

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// -----------------------------------------------------------------------------
// Config schema
// -----------------------------------------------------------------------------

type PropertyType string

const (
	PropertyString  PropertyType = "string"
	PropertyNumber  PropertyType = "number"
	PropertyBoolean PropertyType = "boolean"
	PropertyArray   PropertyType = "array"
)

// ConfigProperty describes a single configurable value a template accepts.
type ConfigProperty struct {
	Type        PropertyType `json:"type"                yaml:"type"`
	Description string       `json:"description"         yaml:"description"`
	Pattern     string       `json:"pattern,omitempty"   yaml:"pattern,omitempty"`
	Minimum     *float64     `json:"minimum,omitempty"   yaml:"minimum,omitempty"`
	Maximum     *float64     `json:"maximum,omitempty"   yaml:"maximum,omitempty"`
	Enum        []any        `json:"enum,omitempty"      yaml:"enum,omitempty"`
	Default     any          `json:"default,omitempty"   yaml:"default,omitempty"`
}

// ConfigSchema constrains the configuration a workflow may be instantiated
// with. Required names must exist in Properties.
type ConfigSchema struct {
	Type       string                    `json:"type"       yaml:"type"`
	Properties map[string]ConfigProperty `json:"properties" yaml:"properties"`
	Required   []string                  `json:"required"   yaml:"required"`
}

// EmptySchema returns a well-formed schema with no properties.
func EmptySchema() ConfigSchema {
	return ConfigSchema{Type: "object", Properties: map[string]ConfigProperty{}, Required: []string{}}
}

// -----------------------------------------------------------------------------
// Template
// -----------------------------------------------------------------------------

// Template is an immutable catalog entry: validated code plus the schema and
// metadata needed to instantiate it into a workflow.
type Template struct {
	ID                string         `json:"id"                           yaml:"id"`
	Name              string         `json:"name"                         yaml:"name"`
	Description       string         `json:"description"                  yaml:"description"`
	LongDescription   string         `json:"long_description,omitempty"   yaml:"long_description,omitempty"`
	Version           string         `json:"version"                      yaml:"version"`
	Author            string         `json:"author,omitempty"             yaml:"author,omitempty"`
	CreatedAt         time.Time      `json:"created_at"                   yaml:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"                   yaml:"updated_at"`
	Category          Category       `json:"category"                     yaml:"category"`
	Tags              []string       `json:"tags,omitempty"               yaml:"tags,omitempty"`
	Difficulty        Difficulty     `json:"difficulty,omitempty"         yaml:"difficulty,omitempty"`
	Code              string         `json:"code"                         yaml:"code"`
	MCPServers        []string       `json:"mcp_servers,omitempty"        yaml:"mcp_servers,omitempty"`
	TriggerTypes      []TriggerType  `json:"trigger_types"                yaml:"trigger_types"`
	ConfigSchema      ConfigSchema   `json:"config_schema"                yaml:"config_schema"`
	DefaultConfig     map[string]any `json:"default_config,omitempty"     yaml:"default_config,omitempty"`
	EstimatedTokens   int            `json:"estimated_tokens,omitempty"   yaml:"estimated_tokens,omitempty"`
	EstimatedDuration int            `json:"estimated_duration,omitempty" yaml:"estimated_duration,omitempty"`
	TokenReduction    float64        `json:"token_reduction,omitempty"    yaml:"token_reduction,omitempty"`
	UseCases          []string       `json:"use_cases,omitempty"          yaml:"use_cases,omitempty"`
	UsageCount        int            `json:"usage_count,omitempty"        yaml:"usage_count,omitempty"`
	Rating            float64        `json:"rating,omitempty"             yaml:"rating,omitempty"`
	Visibility        Visibility     `json:"visibility,omitempty"         yaml:"visibility,omitempty"`
	OrganizationID    string         `json:"organization_id,omitempty"    yaml:"organization_id,omitempty"`
}

// SupportsTrigger reports whether the template declares the given trigger.
func (t *Template) SupportsTrigger(trigger TriggerType) bool {
	for _, tt := range t.TriggerTypes {
		if tt == trigger {
			return true
		}
	}
	return false
}

// Metadata is the list/search projection of a template: everything a
// browsing client needs, minus the code body.
type Metadata struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	Category       Category      `json:"category"`
	Difficulty     Difficulty    `json:"difficulty,omitempty"`
	MCPServers     []string      `json:"mcp_servers,omitempty"`
	TriggerTypes   []TriggerType `json:"trigger_types"`
	TokenReduction float64       `json:"token_reduction,omitempty"`
	UsageCount     int           `json:"usage_count,omitempty"`
	Rating         float64       `json:"rating,omitempty"`
	Author         string        `json:"author,omitempty"`
	Version        string        `json:"version"`
	Tags           []string      `json:"tags,omitempty"`
}

func (t *Template) toMetadata() Metadata {
	return Metadata{
		ID:             t.ID,
		Name:           t.Name,
		Description:    t.Description,
		Category:       t.Category,
		Difficulty:     t.Difficulty,
		MCPServers:     t.MCPServers,
		TriggerTypes:   t.TriggerTypes,
		TokenReduction: t.TokenReduction,
		UsageCount:     t.UsageCount,
		Rating:         t.Rating,
		Author:         t.Author,
		Version:        t.Version,
		Tags:           t.Tags,
	}
}

// Filters narrows a catalog listing. All set fields must match.
type Filters struct {
	Category    Category
	TriggerType TriggerType
	MCPServer   string
	Difficulty  Difficulty
	Search      string
}

// Page is a paginated catalog listing.
type Page struct {
	Items  []Metadata `json:"items"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// -----------------------------------------------------------------------------
// Validation result
// -----------------------------------------------------------------------------

type ErrorType string

const (
	ErrorTypeSyntax   ErrorType = "syntax"
	ErrorTypeImport   ErrorType = "import"
	ErrorTypeSecurity ErrorType = "security"
	ErrorTypeSchema   ErrorType = "schema"
)

type Severity string

const (
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ValidationError blocks registration of a template.
type ValidationError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Line    int       `json:"line,omitempty"`
	Column  int       `json:"column,omitempty"`
	// Severity is set for security findings only.
	Severity Severity `json:"severity,omitempty"`
}

// ValidationWarning is advisory and never blocks registration.
type ValidationWarning struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ValidationResult aggregates the outcome of all validator checks.
// Valid is true exactly when Errors is empty.
type ValidationResult struct {
	Valid    bool                `json:"valid"`
	Errors   []ValidationError   `json:"errors"`
	Warnings []ValidationWarning `json:"warnings"`
}
