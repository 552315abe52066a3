package manifest

import (
	"fmt"

	"go.yaml.in/yaml/v3"

	"github.com/apm-labs/apm/internal/ref"
)

// Native mirrors the raw shape of an apm.yml file.
type Native struct {
	Name         string              `yaml:"name"`
	Version      string              `yaml:"version,omitempty"`
	Description  string              `yaml:"description,omitempty"`
	Author       string              `yaml:"author,omitempty"`
	License      string              `yaml:"license,omitempty"`
	Type         string              `yaml:"type,omitempty"`
	Dependencies map[string][]string `yaml:"dependencies,omitempty"`
}

// ParseNative unmarshals raw apm.yml bytes. It fails when the document is
// not a mapping or lacks a name field.
func ParseNative(data []byte) (*Native, error) {
	var n Native
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("parsing apm.yml: %w", err)
	}
	if n.Name == "" {
		return nil, fmt.Errorf("apm.yml missing required field 'name'")
	}
	return &n, nil
}

// FromNative builds a normalized Manifest from a parsed apm.yml. The kind
// is supplied by the caller since the same native manifest yields either
// KindStandard or KindHybrid depending on what else sits in the package.
func FromNative(n *Native, kind Kind, defaultHost string) (*Manifest, error) {
	name, err := Normalize(n.Name)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Name:         name,
		Version:      n.Version,
		Description:  n.Description,
		Author:       n.Author,
		License:      n.License,
		Kind:         kind,
		DeclaredType: n.Type,
	}
	if m.Version == "" {
		m.Version = UnversionedSentinel
	}

	for _, dep := range n.Dependencies["apm"] {
		r, err := ref.ParseWithHost(dep, defaultHost)
		if err != nil {
			return nil, fmt.Errorf("invalid dependency %q: %w", dep, err)
		}
		m.Dependencies = append(m.Dependencies, r)
	}
	m.MCPServers = append(m.MCPServers, n.Dependencies["mcp"]...)

	return m, nil
}
