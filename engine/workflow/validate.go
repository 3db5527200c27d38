package workflow

import (
	"context"
	"fmt"
	"reflect"
	"regexp"

	"github.com/codemode/codemode/engine/template"
	"github.com/codemode/codemode/pkg/logger"
)

// ConfigError describes one schema violation in a workflow configuration.
type ConfigError struct {
	Property string
	Message  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config property %q: %s", e.Property, e.Message)
}

// mergeConfig overlays user values on the template defaults. User values
// win; unknown keys are carried through untouched.
func mergeConfig(defaults, user map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(user))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range user {
		merged[k] = v
	}
	return merged
}

// validateConfig checks a merged configuration against the template's
// schema. Required properties must be present; present properties must
// match their declared type, pattern, bounds and enum. Unknown keys are
// tolerated with a warning log.
func validateConfig(ctx context.Context, schema template.ConfigSchema, merged map[string]any) error {
	log := logger.FromContext(ctx)
	for _, required := range schema.Required {
		if _, ok := merged[required]; !ok {
			return &ConfigError{Property: required, Message: "required property is missing"}
		}
	}
	for name, value := range merged {
		prop, known := schema.Properties[name]
		if !known {
			log.Warn("unknown config property", "property", name)
			continue
		}
		if err := checkProperty(name, prop, value); err != nil {
			return err
		}
	}
	return nil
}

func checkProperty(name string, prop template.ConfigProperty, value any) error {
	if err := checkType(name, prop.Type, value); err != nil {
		return err
	}
	if prop.Type == template.PropertyString && prop.Pattern != "" {
		s := value.(string)
		re, err := regexp.Compile(prop.Pattern)
		if err != nil {
			return &ConfigError{Property: name, Message: fmt.Sprintf("invalid schema pattern: %v", err)}
		}
		if !re.MatchString(s) {
			return &ConfigError{Property: name, Message: fmt.Sprintf("value %q does not match pattern %q", s, prop.Pattern)}
		}
	}
	if prop.Type == template.PropertyNumber {
		n := asFloat(value)
		if prop.Minimum != nil && n < *prop.Minimum {
			return &ConfigError{Property: name, Message: fmt.Sprintf("value %v is below minimum %v", n, *prop.Minimum)}
		}
		if prop.Maximum != nil && n > *prop.Maximum {
			return &ConfigError{Property: name, Message: fmt.Sprintf("value %v is above maximum %v", n, *prop.Maximum)}
		}
	}
	if len(prop.Enum) > 0 && !enumContains(prop.Enum, value) {
		return &ConfigError{Property: name, Message: fmt.Sprintf("value %v is not one of the allowed values", value)}
	}
	return nil
}

// checkType requires an exact structural match; nil never satisfies a
// declared type.
func checkType(name string, propType template.PropertyType, value any) error {
	if value == nil {
		return &ConfigError{Property: name, Message: fmt.Sprintf("expected %s, got null", propType)}
	}
	switch propType {
	case template.PropertyString:
		if _, ok := value.(string); !ok {
			return typeMismatch(name, propType, value)
		}
	case template.PropertyBoolean:
		if _, ok := value.(bool); !ok {
			return typeMismatch(name, propType, value)
		}
	case template.PropertyNumber:
		if !isNumeric(value) {
			return typeMismatch(name, propType, value)
		}
	case template.PropertyArray:
		kind := reflect.TypeOf(value).Kind()
		if kind != reflect.Slice && kind != reflect.Array {
			return typeMismatch(name, propType, value)
		}
	}
	return nil
}

func typeMismatch(name string, propType template.PropertyType, value any) error {
	return &ConfigError{
		Property: name,
		Message:  fmt.Sprintf("expected %s, got %T", propType, value),
	}
}

func isNumeric(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

func asFloat(value any) float64 {
	switch n := value.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return 0
	}
}

func enumContains(enum []any, value any) bool {
	for _, allowed := range enum {
		if reflect.DeepEqual(allowed, value) {
			return true
		}
		if isNumeric(allowed) && isNumeric(value) && asFloat(allowed) == asFloat(value) {
			return true
		}
	}
	return false
}
