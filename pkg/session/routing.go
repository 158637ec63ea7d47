package session

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoutingConfig names which provider backs each table a deployment uses,
// letting a single process address both a DynamoDB-style backend and an
// in-memory one (or several named cross-account DynamoDB connections)
// without hardcoding the mapping in Go. Grounded on the teacher's
// contract-tests YAML spec loading idiom (gopkg.in/yaml.v3 struct-tag
// decoding of a small declarative document).
type RoutingConfig struct {
	Tables map[string]TableRoute `yaml:"tables"`
}

// TableRoute names the provider and, for DynamoDB-style providers, the
// account a given table is routed to.
type TableRoute struct {
	Provider string `yaml:"provider"` // "dynamo" or "memdoc"
	Account  string `yaml:"account,omitempty"`
}

// LoadRoutingConfig reads and decodes a routing document from path.
func LoadRoutingConfig(path string) (*RoutingConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: read routing config: %w", err)
	}
	return ParseRoutingConfig(raw)
}

// ParseRoutingConfig decodes a routing document already read into memory.
func ParseRoutingConfig(raw []byte) (*RoutingConfig, error) {
	var cfg RoutingConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("session: parse routing config: %w", err)
	}
	for table, route := range cfg.Tables {
		if route.Provider == "" {
			return nil, fmt.Errorf("session: table %q has no provider", table)
		}
	}
	return &cfg, nil
}

// ProviderFor returns the provider name routed for table, or ("", false)
// if the table has no explicit route.
func (c *RoutingConfig) ProviderFor(table string) (string, bool) {
	if c == nil {
		return "", false
	}
	route, ok := c.Tables[table]
	if !ok {
		return "", false
	}
	return route.Provider, true
}
