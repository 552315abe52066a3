package manifest

import "github.com/apm-labs/apm/internal/ref"

// Kind discriminates the package formats the adapter can classify.
// Every consumer switches exhaustively on this value.
type Kind int

const (
	// KindStandard is a package with a native apm.yml manifest.
	KindStandard Kind = iota
	// KindSkill is a manifest-less package with a SKILL.md descriptor at root.
	KindSkill
	// KindPlugin is a marketplace plugin described by plugin.json.
	KindPlugin
	// KindCollection is a declarative list of item references (.collection.yml).
	KindCollection
	// KindVirtualFile is a single recognized content file, not a directory.
	KindVirtualFile
	// KindHybrid has both apm.yml and SKILL.md and feeds every target.
	KindHybrid
)

// String returns the lowercase kind name used in lockfiles and logs.
func (k Kind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindSkill:
		return "skill"
	case KindPlugin:
		return "plugin"
	case KindCollection:
		return "collection"
	case KindVirtualFile:
		return "virtual-file"
	case KindHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// ParseKind maps a kind name back to its Kind. Unknown names map to
// KindStandard, matching the lockfile's ignore-unknown policy.
func ParseKind(s string) Kind {
	switch s {
	case "skill":
		return KindSkill
	case "plugin":
		return KindPlugin
	case "collection":
		return KindCollection
	case "virtual-file":
		return KindVirtualFile
	case "hybrid":
		return KindHybrid
	default:
		return KindStandard
	}
}

// Category is a normalized internal content category. Plugin capability
// folders and collection item kinds are mapped onto these for routing
// during compilation.
type Category string

const (
	CategoryInstructions Category = "instructions"
	CategoryPrompts      Category = "prompts"
	CategoryChatmodes    Category = "chatmodes"
	CategoryContexts     Category = "contexts"
	CategoryAgents       Category = "agents"
	CategorySkills       Category = "skills"
	CategoryHooks        Category = "hooks"
)

// UnversionedSentinel is recorded when a package declares no version.
const UnversionedSentinel = "0.0.0-unversioned"

// Manifest is the normalized metadata for one package, regardless of the
// native format it was classified from.
type Manifest struct {
	Name        string
	Version     string
	Description string
	Author      string
	License     string
	Kind        Kind

	// DeclaredType is the raw `type` field from a native manifest
	// ("skill", "hybrid", ...). Empty when the format has no such field.
	DeclaredType string

	// Dependencies are the package's declared sub-dependencies. The
	// resolver recurses into these.
	Dependencies []ref.Reference

	// MCPServers carries opaque MCP server dependencies from a native
	// manifest. They are recorded but never resolved as graph nodes.
	MCPServers []string

	// Categories lists the content categories this package provides.
	// Populated for plugin and collection kinds where the descriptor
	// enumerates them; empty means "discover from content".
	Categories []Category
}

// HasDependencies reports whether the manifest declares any resolvable
// dependencies.
func (m *Manifest) HasDependencies() bool {
	return len(m.Dependencies) > 0
}
