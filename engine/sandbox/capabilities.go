package sandbox

// CapabilityResolver maps a declared external service name to the
// capability list injected into the sandbox. Real service connections plug
// in here, one implementation per service; the engine only needs the name
// and the resulting list.
type CapabilityResolver interface {
	Capabilities(server string) []string
}

// Connection describes one capability proxy made available to workflow
// code.
type Connection struct {
	Name         string   `json:"name"`
	ServerURL    string   `json:"server_url"`
	Capabilities []string `json:"capabilities"`
	RepositoryID string   `json:"repository_id,omitempty"`
}

// StaticResolver serves fixed capability lists per known service name.
// Unknown names resolve to an empty list, not an error.
type StaticResolver struct {
	capabilities map[string][]string
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		capabilities: map[string][]string{
			"github":     {"listRepositories", "listIssues", "createIssue", "addLabels", "createComment"},
			"slack":      {"sendMessage", "listChannels", "createChannel"},
			"filesystem": {"readFile", "writeFile", "listFiles", "deleteFile"},
			"sentry":     {"listIssues", "getIssue", "updateIssue"},
			"snyk":       {"scanProject", "listVulnerabilities"},
		},
	}
}

func (r *StaticResolver) Capabilities(server string) []string {
	return r.capabilities[server]
}

func buildConnections(resolver CapabilityResolver, mcpServers []string, repositoryID string) []Connection {
	connections := make([]Connection, 0, len(mcpServers))
	for _, name := range mcpServers {
		connections = append(connections, Connection{
			Name:         name,
			ServerURL:    "mcp://" + name,
			Capabilities: resolver.Capabilities(name),
			RepositoryID: repositoryID,
		})
	}
	return connections
}
