package template

import (
	"regexp"
	"strconv"
	"strings"
)

var envVarRe = regexp.MustCompile(`process\.env\.(\w+)`)

// ExtractConfigSchema infers a configuration schema from environment
// variable references in the code body. Best effort only: the result is a
// starting point for template authors, not a substitute for a declared
// schema.
func ExtractConfigSchema(code string) ConfigSchema {
	schema := EmptySchema()
	for _, match := range envVarRe.FindAllStringSubmatchIndex(code, -1) {
		name := code[match[2]:match[3]]
		if _, seen := schema.Properties[name]; seen {
			continue
		}
		// Inspect the usage site for type coercion and fallback idioms.
		// The window reaches back past the match so wrappers like
		// parseInt(process.env.X) are visible.
		start := match[0] - 30
		if start < 0 {
			start = 0
		}
		end := match[0] + 100
		if end > len(code) {
			end = len(code)
		}
		window := code[start:end]

		propType := PropertyString
		if strings.Contains(window, "parseInt(") || strings.Contains(window, "parseFloat(") {
			propType = PropertyNumber
		} else if strings.Contains(window, "=== 'true'") || strings.Contains(window, "=== 'false'") {
			propType = PropertyBoolean
		}

		var defaultValue any
		defaultRe := regexp.MustCompile(`process\.env\.` + name + `\s*\|\|\s*['"]([^'"]+)['"]`)
		if m := defaultRe.FindStringSubmatch(window); m != nil {
			defaultValue = coerceDefault(m[1], propType)
		}

		schema.Properties[name] = ConfigProperty{
			Type:        propType,
			Description: "Configuration for " + name,
			Default:     defaultValue,
		}
		if defaultValue == nil && !strings.Contains(window, "||") {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}

func coerceDefault(raw string, propType PropertyType) any {
	switch propType {
	case PropertyNumber:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
		return raw
	case PropertyBoolean:
		return raw == "true"
	default:
		return raw
	}
}
