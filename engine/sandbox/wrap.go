package sandbox

import (
	"encoding/json"
	"fmt"
	"strings"
)

// buildEnvVars renders the configuration as environment assignments for
// the sandbox. String values are injected literally; everything else is
// JSON-serialized.
func buildEnvVars(config map[string]any) string {
	lines := make([]string, 0, len(config))
	for key, value := range config {
		strValue, ok := value.(string)
		if !ok {
			raw, err := json.Marshal(value)
			if err != nil {
				continue
			}
			strValue = string(raw)
		}
		lines = append(lines, fmt.Sprintf("process.env.%s = %q;", key, strValue))
	}
	return strings.Join(lines, "\n")
}

// buildProxies emits one capability proxy object per declared service.
// The proxies log calls and return stub data; real service transport is a
// resolver concern.
func buildProxies(connections []Connection) string {
	var b strings.Builder
	for _, conn := range connections {
		fmt.Fprintf(&b, `
const %s = new Proxy({}, {
  get(target, method) {
    return async (...args) => {
      console.log("[MCP] Calling %s." + String(method) + "(...)");
      return { success: true, data: [] };
    };
  }
});
`, conn.Name, conn.Name)
	}
	return b.String()
}

// wrapCode concatenates proxy setup and environment injection around the
// user code, inside an async error boundary.
func wrapCode(code, envVars string, connections []Connection) string {
	return fmt.Sprintf(`// ==== capability proxies ====
%s
// ==== environment ====
%s
// ==== template code ====
(async () => {
  try {
    %s
  } catch (error) {
    console.error('Template execution failed:', error);
    throw error;
  }
})();
`, buildProxies(connections), envVars, code)
}
