package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// AvailableMCPServers is the set of external capability services workflow
// code may import.
var AvailableMCPServers = []string{
	"github",
	"slack",
	"filesystem",
	"sentry",
	"snyk",
	"supabase",
	"netlify",
	"notion",
	"chrome-devtools",
	"atlassian",
	"dlt",
	"posthog",
	"sanity",
}

// MaxComplexity is the cyclomatic complexity threshold above which a
// warning is emitted.
const MaxComplexity = 50

type forbiddenPattern struct {
	re      *regexp.Regexp
	message string
}

var forbiddenPatterns = []forbiddenPattern{
	{regexp.MustCompile(`(?i)eval\s*\(`), "Use of eval() is forbidden"},
	{regexp.MustCompile(`(?i)Function\s*\(`), "Use of Function() constructor is forbidden"},
	{regexp.MustCompile(`(?i)process\.exit\s*\(`), "Use of process.exit() is forbidden"},
	{regexp.MustCompile(`(?i)process\.kill\s*\(`), "Use of process.kill() is forbidden"},
	{regexp.MustCompile(`(?i)child_process`), "Use of child_process is forbidden"},
	{regexp.MustCompile(`(?i)fs\.unlink`), "File deletion outside /tmp is forbidden"},
	{regexp.MustCompile(`(?i)fs\.rm`), "File removal outside /tmp is forbidden"},
	{regexp.MustCompile(`(?i)require\s*\(`), "Use of require() for unauthorized modules is forbidden"},
}

type secretPattern struct {
	re   *regexp.Regexp
	name string
}

var secretPatterns = []secretPattern{
	{regexp.MustCompile(`(?i)api[_-]?key\s*=\s*['"][^'"]+['"]`), "API key"},
	{regexp.MustCompile(`(?i)password\s*=\s*['"][^'"]+['"]`), "password"},
	{regexp.MustCompile(`(?i)token\s*=\s*['"][^'"]+['"]`), "token"},
	{regexp.MustCompile(`(?i)secret\s*=\s*['"][^'"]+['"]`), "secret"},
}

var decisionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`if\s*\(`),
	regexp.MustCompile(`else\s+if\s*\(`),
	regexp.MustCompile(`while\s*\(`),
	regexp.MustCompile(`for\s*\(`),
	regexp.MustCompile(`case\s+`),
	regexp.MustCompile(`catch\s*\(`),
	regexp.MustCompile(`\?\s*:`),
	regexp.MustCompile(`&&`),
	regexp.MustCompile(`\|\|`),
}

var importRe = regexp.MustCompile(`import\s+\{([^}]+)\}\s+from\s+['"]([^'"]+)['"]`)

// Validator runs every check over a template and concatenates their
// findings; one failing check never short-circuits the rest.
type Validator struct {
	availableServers map[string]struct{}
	maxComplexity    int
}

func NewValidator() *Validator {
	available := make(map[string]struct{}, len(AvailableMCPServers))
	for _, s := range AvailableMCPServers {
		available[s] = struct{}{}
	}
	return &Validator{availableServers: available, maxComplexity: MaxComplexity}
}

// Validate returns the combined verdict for a template. Valid is true
// exactly when no check produced an error.
func (v *Validator) Validate(tpl *Template) *ValidationResult {
	errs := v.validateMetadata(tpl)
	errs = append(errs, v.syntaxScan(tpl.Code)...)
	errs = append(errs, v.validateImports(tpl.Code, tpl.MCPServers)...)
	errs = append(errs, v.SecurityScan(tpl.Code)...)
	errs = append(errs, v.validateConfigSchema(tpl.ConfigSchema)...)

	var warnings []ValidationWarning
	if c := Complexity(tpl.Code); c > v.maxComplexity {
		warnings = append(warnings, ValidationWarning{
			Type:    "complexity",
			Message: fmt.Sprintf("High complexity: %d (max recommended: %d)", c, v.maxComplexity),
		})
	}
	warnings = append(warnings, v.checkBestPractices(tpl.Code)...)

	return &ValidationResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

func (v *Validator) validateMetadata(tpl *Template) []ValidationError {
	var errs []ValidationError
	required := []struct {
		value string
		label string
	}{
		{tpl.ID, "Template ID"},
		{tpl.Name, "Template name"},
		{tpl.Description, "Template description"},
		{tpl.Code, "Template code"},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			errs = append(errs, ValidationError{
				Type:    ErrorTypeSyntax,
				Message: fmt.Sprintf("%s is required", field.label),
			})
		}
	}
	if tpl.Version != "" {
		if _, err := semver.StrictNewVersion(tpl.Version); err != nil {
			errs = append(errs, ValidationError{
				Type:    ErrorTypeSyntax,
				Message: fmt.Sprintf("Invalid version format: %s. Use semantic versioning (e.g., 1.0.0)", tpl.Version),
			})
		}
	}
	if !isValidCategory(tpl.Category) {
		errs = append(errs, ValidationError{
			Type:    ErrorTypeSyntax,
			Message: fmt.Sprintf("Invalid category: %s", tpl.Category),
		})
	}
	return errs
}

func isValidCategory(c Category) bool {
	for _, valid := range ValidCategories {
		if c == valid {
			return true
		}
	}
	return false
}

// validateImports cross-checks capability-namespace imports against the
// declared mcpServers list, in both directions.
func (v *Validator) validateImports(code string, declared []string) []ValidationError {
	var errs []ValidationError
	for _, match := range importRe.FindAllStringSubmatch(code, -1) {
		module := match[2]
		if !strings.HasPrefix(module, "/mcp") {
			continue
		}
		for _, server := range strings.Split(match[1], ",") {
			server = strings.TrimSpace(server)
			if server == "" {
				continue
			}
			if _, ok := v.availableServers[server]; !ok {
				errs = append(errs, ValidationError{
					Type:    ErrorTypeImport,
					Message: fmt.Sprintf("Unknown MCP server: %s", server),
				})
			}
			if !contains(declared, server) {
				errs = append(errs, ValidationError{
					Type:    ErrorTypeImport,
					Message: fmt.Sprintf("MCP server '%s' is imported but not declared in mcpServers metadata", server),
				})
			}
		}
	}
	for _, server := range declared {
		if !strings.Contains(code, server) {
			errs = append(errs, ValidationError{
				Type:    ErrorTypeImport,
				Message: fmt.Sprintf("MCP server '%s' is declared but not used in code", server),
			})
		}
	}
	return errs
}

// SecurityScan flags forbidden primitives, likely hardcoded credentials and
// unparameterized SQL. All findings block registration.
func (v *Validator) SecurityScan(code string) []ValidationError {
	var issues []ValidationError
	for _, fp := range forbiddenPatterns {
		if fp.re.MatchString(code) {
			issues = append(issues, ValidationError{
				Type:     ErrorTypeSecurity,
				Message:  fp.message,
				Severity: SeverityHigh,
			})
		}
	}
	for _, sp := range secretPatterns {
		if sp.re.MatchString(code) {
			issues = append(issues, ValidationError{
				Type:     ErrorTypeSecurity,
				Message:  fmt.Sprintf("Potential hardcoded %s detected", sp.name),
				Severity: SeverityCritical,
			})
		}
	}
	if strings.Contains(code, "SELECT") || strings.Contains(code, "INSERT") || strings.Contains(code, "UPDATE") {
		if !strings.Contains(code, "?") && !strings.Contains(code, "$1") {
			issues = append(issues, ValidationError{
				Type:     ErrorTypeSecurity,
				Message:  "Potential SQL injection risk: use parameterized queries",
				Severity: SeverityHigh,
			})
		}
	}
	return issues
}

// Complexity approximates cyclomatic complexity as one plus the number of
// decision-point tokens in the code body.
func Complexity(code string) int {
	complexity := 1
	for _, re := range decisionPatterns {
		complexity += len(re.FindAllStringIndex(code, -1))
	}
	return complexity
}

// VerifyDependencies reports whether every declared server is available.
func (v *Validator) VerifyDependencies(mcpServers []string) bool {
	for _, server := range mcpServers {
		if _, ok := v.availableServers[server]; !ok {
			return false
		}
	}
	return true
}

func (v *Validator) checkBestPractices(code string) []ValidationWarning {
	var warnings []ValidationWarning
	if !strings.Contains(code, "try") && !strings.Contains(code, "catch") {
		warnings = append(warnings, ValidationWarning{
			Type:    "best-practice",
			Message: "Template should include try-catch blocks for error handling",
		})
	}
	if !strings.Contains(code, "console.log") && !strings.Contains(code, "console.error") {
		warnings = append(warnings, ValidationWarning{
			Type:    "best-practice",
			Message: "Template should include logging statements for debugging",
		})
	}
	if !strings.Contains(code, "return") {
		warnings = append(warnings, ValidationWarning{
			Type:    "best-practice",
			Message: "Template should return a result object",
		})
	}
	if strings.Contains(code, "await") && !strings.Contains(code, "async") {
		warnings = append(warnings, ValidationWarning{
			Type:    "best-practice",
			Message: "Using await without async function declaration",
		})
	}
	return warnings
}

func (v *Validator) validateConfigSchema(schema ConfigSchema) []ValidationError {
	var errs []ValidationError
	if schema.Type != "object" {
		errs = append(errs, ValidationError{
			Type:    ErrorTypeSchema,
			Message: `Config schema type must be "object"`,
		})
	}
	if schema.Properties == nil {
		errs = append(errs, ValidationError{
			Type:    ErrorTypeSchema,
			Message: "Config schema must have properties object",
		})
		return errs
	}
	for name, prop := range schema.Properties {
		errs = append(errs, validateConfigProperty(name, prop)...)
	}
	for _, required := range schema.Required {
		if _, ok := schema.Properties[required]; !ok {
			errs = append(errs, ValidationError{
				Type:    ErrorTypeSchema,
				Message: fmt.Sprintf("Required field '%s' not defined in properties", required),
			})
		}
	}
	return errs
}

func validateConfigProperty(name string, prop ConfigProperty) []ValidationError {
	var errs []ValidationError
	switch prop.Type {
	case PropertyString, PropertyNumber, PropertyBoolean, PropertyArray:
	default:
		errs = append(errs, ValidationError{
			Type:    ErrorTypeSchema,
			Message: fmt.Sprintf("Invalid property type for '%s': %s", name, prop.Type),
		})
	}
	if prop.Description == "" {
		errs = append(errs, ValidationError{
			Type:    ErrorTypeSchema,
			Message: fmt.Sprintf("Property '%s' must have a description", name),
		})
	}
	if prop.Pattern != "" && prop.Type != PropertyString {
		errs = append(errs, ValidationError{
			Type:    ErrorTypeSchema,
			Message: fmt.Sprintf("Property '%s' has pattern but is not a string type", name),
		})
	}
	if (prop.Minimum != nil || prop.Maximum != nil) && prop.Type != PropertyNumber {
		errs = append(errs, ValidationError{
			Type:    ErrorTypeSchema,
			Message: fmt.Sprintf("Property '%s' has min/max but is not a number type", name),
		})
	}
	return errs
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
