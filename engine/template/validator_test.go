package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTemplate() *Template {
	return &Template{
		ID:          "stale-issue-triage",
		Name:        "Stale Issue Triage",
		Description: "Labels and comments on stale issues",
		Version:     "1.2.0",
		Category:    CategoryGithubAutomation,
		Code: `import { github } from '/mcp';
async function run() {
  try {
    const issues = await github.listIssues();
    console.log('found', issues.length);
    return { count: issues.length };
  } catch (error) {
    console.error(error);
    return { count: 0 };
  }
}`,
		MCPServers:   []string{"github"},
		TriggerTypes: []TriggerType{TriggerCron},
		ConfigSchema: ConfigSchema{
			Type: "object",
			Properties: map[string]ConfigProperty{
				"STALE_DAYS": {Type: PropertyNumber, Description: "Days before an issue counts as stale"},
			},
			Required: []string{"STALE_DAYS"},
		},
		DefaultConfig: map[string]any{"STALE_DAYS": 30},
	}
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator()
	t.Run("Should accept a well-formed template", func(t *testing.T) {
		result := v.Validate(validTemplate())
		assert.True(t, result.Valid)
		assert.Empty(t, result.Errors)
	})
	t.Run("Should hold valid equal to errors being empty", func(t *testing.T) {
		good := v.Validate(validTemplate())
		assert.Equal(t, len(good.Errors) == 0, good.Valid)
		bad := v.Validate(&Template{})
		assert.Equal(t, len(bad.Errors) == 0, bad.Valid)
		assert.False(t, bad.Valid)
	})
	t.Run("Should require id, name, description and code", func(t *testing.T) {
		tpl := validTemplate()
		tpl.ID = "  "
		tpl.Name = ""
		result := v.Validate(tpl)
		require.False(t, result.Valid)
		messages := errorMessages(result)
		assert.Contains(t, messages, "Template ID is required")
		assert.Contains(t, messages, "Template name is required")
	})
	t.Run("Should reject a non-semver version", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Version = "1.0"
		result := v.Validate(tpl)
		require.False(t, result.Valid)
		assert.Contains(t, strings.Join(errorMessages(result), " "), "Invalid version format")
	})
	t.Run("Should reject an unknown category", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Category = "hydraulics"
		result := v.Validate(tpl)
		assert.False(t, result.Valid)
	})
	t.Run("Should not short-circuit between checks", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Version = "nope"
		tpl.Code = "eval('x') // " + tpl.Code
		result := v.Validate(tpl)
		types := make(map[ErrorType]bool)
		for _, e := range result.Errors {
			types[e.Type] = true
		}
		assert.True(t, types[ErrorTypeSyntax])
		assert.True(t, types[ErrorTypeSecurity])
	})
}

func TestValidator_Imports(t *testing.T) {
	v := NewValidator()
	t.Run("Should flag an undeclared imported server", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Code = strings.Replace(tpl.Code, "{ github }", "{ github, slack }", 1)
		result := v.Validate(tpl)
		require.False(t, result.Valid)
		assert.Contains(t, errorMessages(result),
			"MCP server 'slack' is imported but not declared in mcpServers metadata")
	})
	t.Run("Should flag an unknown imported server", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Code = strings.Replace(tpl.Code, "{ github }", "{ github, gopher }", 1)
		tpl.MCPServers = []string{"github", "gopher"}
		result := v.Validate(tpl)
		require.False(t, result.Valid)
		assert.Contains(t, errorMessages(result), "Unknown MCP server: gopher")
	})
	t.Run("Should flag a declared but unused server", func(t *testing.T) {
		tpl := validTemplate()
		tpl.MCPServers = []string{"github", "slack"}
		result := v.Validate(tpl)
		require.False(t, result.Valid)
		assert.Contains(t, errorMessages(result), "MCP server 'slack' is declared but not used in code")
	})
}

func TestValidator_SecurityScan(t *testing.T) {
	v := NewValidator()
	t.Run("Should block dynamic code evaluation", func(t *testing.T) {
		issues := v.SecurityScan("const x = eval('1+1');")
		require.Len(t, issues, 1)
		assert.Equal(t, ErrorTypeSecurity, issues[0].Type)
		assert.Equal(t, SeverityHigh, issues[0].Severity)
	})
	t.Run("Should block process termination and subprocess spawning", func(t *testing.T) {
		issues := v.SecurityScan("process.exit(1); const cp = child_process;")
		assert.Len(t, issues, 2)
	})
	t.Run("Should flag hardcoded credentials as critical", func(t *testing.T) {
		issues := v.SecurityScan(`const api_key = "x"; let apiKey = 1; password = 'hunter2';`)
		var critical int
		for _, issue := range issues {
			if issue.Severity == SeverityCritical {
				critical++
			}
		}
		assert.GreaterOrEqual(t, critical, 2)
	})
	t.Run("Should flag SQL without placeholders", func(t *testing.T) {
		issues := v.SecurityScan(`db.query("SELECT * FROM users WHERE id = " + id);`)
		require.Len(t, issues, 1)
		assert.Contains(t, issues[0].Message, "SQL injection")
	})
	t.Run("Should accept parameterized SQL", func(t *testing.T) {
		issues := v.SecurityScan(`db.query("SELECT * FROM users WHERE id = $1", [id]);`)
		assert.Empty(t, issues)
	})
	t.Run("Should fail validation for any security finding", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Code += "\neval('boom');"
		result := v.Validate(tpl)
		assert.False(t, result.Valid)
	})
}

func TestValidator_Complexity(t *testing.T) {
	t.Run("Should count decision points plus one", func(t *testing.T) {
		code := "if (a) {} else if (b) {} for (;;) {} x && y || z"
		// if, else if (matches if too), for, &&, ||
		assert.Equal(t, 1+2+1+1+1+1, Complexity(code))
	})
	t.Run("Should warn above the threshold without blocking", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Code += "\n" + strings.Repeat("if (x) { y(); }\n", MaxComplexity)
		result := NewValidator().Validate(tpl)
		assert.True(t, result.Valid)
		var found bool
		for _, w := range result.Warnings {
			if w.Type == "complexity" {
				found = true
			}
		}
		assert.True(t, found)
	})
}

func TestValidator_BestPractices(t *testing.T) {
	v := NewValidator()
	t.Run("Should warn on missing error handling, logging and return", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Code = "import { github } from '/mcp';\nconst a = github;"
		result := v.Validate(tpl)
		warnings := make([]string, 0, len(result.Warnings))
		for _, w := range result.Warnings {
			warnings = append(warnings, w.Message)
		}
		assert.Contains(t, warnings, "Template should include try-catch blocks for error handling")
		assert.Contains(t, warnings, "Template should include logging statements for debugging")
		assert.Contains(t, warnings, "Template should return a result object")
	})
	t.Run("Should warn on await without async", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Code = "import { github } from '/mcp';\nconst r = await github.listIssues();\nreturn r; // try console.log"
		result := v.Validate(tpl)
		var found bool
		for _, w := range result.Warnings {
			if w.Message == "Using await without async function declaration" {
				found = true
			}
		}
		assert.True(t, found)
	})
}

func TestValidator_ConfigSchema(t *testing.T) {
	v := NewValidator()
	t.Run("Should reject required names missing from properties", func(t *testing.T) {
		tpl := validTemplate()
		tpl.ConfigSchema.Required = []string{"STALE_DAYS", "GHOST"}
		result := v.Validate(tpl)
		require.False(t, result.Valid)
		assert.Contains(t, errorMessages(result), "Required field 'GHOST' not defined in properties")
	})
	t.Run("Should reject pattern on non-string and bounds on non-number", func(t *testing.T) {
		minimum := 1.0
		tpl := validTemplate()
		tpl.ConfigSchema.Properties["FLAG"] = ConfigProperty{
			Type:        PropertyBoolean,
			Description: "a flag",
			Pattern:     "^x$",
			Minimum:     &minimum,
		}
		result := v.Validate(tpl)
		require.False(t, result.Valid)
		joined := strings.Join(errorMessages(result), " | ")
		assert.Contains(t, joined, "has pattern but is not a string type")
		assert.Contains(t, joined, "has min/max but is not a number type")
	})
	t.Run("Should require property descriptions and known types", func(t *testing.T) {
		tpl := validTemplate()
		tpl.ConfigSchema.Properties["ODD"] = ConfigProperty{Type: "tuple"}
		result := v.Validate(tpl)
		require.False(t, result.Valid)
		joined := strings.Join(errorMessages(result), " | ")
		assert.Contains(t, joined, "Invalid property type for 'ODD'")
		assert.Contains(t, joined, "Property 'ODD' must have a description")
	})
}

func TestValidator_SyntaxScan(t *testing.T) {
	v := NewValidator()
	t.Run("Should report unclosed brackets with position", func(t *testing.T) {
		tpl := validTemplate()
		tpl.Code = "function f() {\n  return 1;\n"
		result := v.Validate(tpl)
		require.False(t, result.Valid)
		var found bool
		for _, e := range result.Errors {
			if e.Type == ErrorTypeSyntax && e.Line == 1 && strings.Contains(e.Message, "Unclosed") {
				found = true
			}
		}
		assert.True(t, found)
	})
	t.Run("Should report unterminated strings", func(t *testing.T) {
		errs := v.syntaxScan("const s = 'oops\nconst t = 1;")
		require.NotEmpty(t, errs)
		assert.Equal(t, "Unterminated string literal", errs[0].Message)
		assert.Equal(t, 1, errs[0].Line)
		assert.Equal(t, 11, errs[0].Column)
	})
	t.Run("Should ignore brackets inside comments and strings", func(t *testing.T) {
		errs := v.syntaxScan("// { [ (\n/* } */ const s = '}{'; const t = `(\n)`;")
		assert.Empty(t, errs)
	})
	t.Run("Should report mismatched closers", func(t *testing.T) {
		errs := v.syntaxScan("const a = [1, 2);")
		require.NotEmpty(t, errs)
		assert.Contains(t, errs[0].Message, "Mismatched")
	})
}

func TestValidator_VerifyDependencies(t *testing.T) {
	v := NewValidator()
	t.Run("Should accept only known servers", func(t *testing.T) {
		assert.True(t, v.VerifyDependencies([]string{"github", "slack"}))
		assert.False(t, v.VerifyDependencies([]string{"github", "mystery"}))
	})
}

func errorMessages(result *ValidationResult) []string {
	out := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		out = append(out, e.Message)
	}
	return out
}
