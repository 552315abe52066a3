// Package adapter classifies fetched repository content into the uniform
// package model. Many packages in the wild carry no native manifest; the
// adapter recognizes their shape (skill descriptor, plugin descriptor,
// collection manifest, single content file) and synthesizes a Manifest.
package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/apm-labs/apm/internal/manifest"
	"github.com/apm-labs/apm/internal/ref"
)

// ErrUnrecognizedFormat is reported when no classification rule matches.
var ErrUnrecognizedFormat = errors.New("unrecognized package format")

// ClassifyError is the fatal classification failure for one reference.
type ClassifyError struct {
	Key ref.Key
	Err error
}

func (e *ClassifyError) Error() string {
	return fmt.Sprintf("classifying %s: %v", e.Key, e.Err)
}

func (e *ClassifyError) Unwrap() error { return e.Err }

// Descriptor file names and search locations.
const (
	nativeManifestFile  = "apm.yml"
	skillDescriptorFile = "SKILL.md"
	collectionSuffix    = ".collection.yml"
)

// pluginDescriptorPaths is the fixed search order for plugin.json; the
// repository root wins ties.
var pluginDescriptorPaths = []string{
	"plugin.json",
	".github/plugin/plugin.json",
	".claude-plugin/plugin.json",
	"plugins/plugin.json",
}

// capabilityFolders maps plugin capability folders to internal categories.
// Plugin commands become prompts.
var capabilityFolders = map[string]manifest.Category{
	"agents":   manifest.CategoryAgents,
	"skills":   manifest.CategorySkills,
	"commands": manifest.CategoryPrompts,
	"hooks":    manifest.CategoryHooks,
}

// Adapter classifies listings into manifests. DefaultHost is used when a
// descriptor declares dependencies without an explicit host.
type Adapter struct {
	DefaultHost string
}

// New returns an Adapter with the given default host.
func New(defaultHost string) *Adapter {
	if defaultHost == "" {
		defaultHost = ref.DefaultHost
	}
	return &Adapter{DefaultHost: defaultHost}
}

// Classify inspects a fetched listing and produces a normalized Manifest.
// Precedence, first match wins:
//
//  1. apm.yml with a name field            -> Standard
//     ... plus SKILL.md at root            -> Hybrid
//  2. SKILL.md at package root             -> Skill
//  3. plugin.json (root or known subpaths) -> Plugin
//  4. a *.collection.yml manifest          -> Collection
//  5. single recognized content file       -> VirtualFile
//  6. otherwise                            -> ClassifyError(ErrUnrecognizedFormat)
func (a *Adapter) Classify(r ref.Reference, l *Listing) (*manifest.Manifest, error) {
	nativeData, hasNative := l.Read(nativeManifestFile)
	_, hasSkill := l.Read(skillDescriptorFile)

	switch {
	case hasNative && hasSkill:
		return a.classifyNative(r, nativeData, manifest.KindHybrid)
	case hasNative:
		return a.classifyNative(r, nativeData, manifest.KindStandard)
	case hasSkill:
		return a.classifySkill(r, l)
	}

	for _, p := range pluginDescriptorPaths {
		if data, ok := l.Read(p); ok {
			return a.classifyPlugin(r, l, data)
		}
	}

	if path, data, ok := findCollectionManifest(r, l); ok {
		return a.classifyCollection(r, path, data)
	}

	if l.IsFile() && r.IsVirtualFile() {
		return a.classifyVirtualFile(r, l)
	}

	return nil, &ClassifyError{Key: r.Key(), Err: ErrUnrecognizedFormat}
}

func (a *Adapter) classifyNative(r ref.Reference, data []byte, kind manifest.Kind) (*manifest.Manifest, error) {
	n, err := manifest.ParseNative(data)
	if err != nil {
		// An apm.yml that does not parse (or lacks a name) means the
		// native rule did not match, so callers can treat it like any
		// other unrecognized shape.
		return nil, &ClassifyError{Key: r.Key(), Err: fmt.Errorf("%w: %w", ErrUnrecognizedFormat, err)}
	}
	m, err := manifest.FromNative(n, kind, a.DefaultHost)
	if err != nil {
		return nil, &ClassifyError{Key: r.Key(), Err: err}
	}
	// An explicit type field can promote a Standard package to Hybrid.
	if kind == manifest.KindStandard && n.Type == "hybrid" {
		m.Kind = manifest.KindHybrid
	}
	return m, nil
}

// skillFrontMatter is the optional YAML front matter of a SKILL.md.
type skillFrontMatter struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Version      string   `yaml:"version"`
	License      string   `yaml:"license"`
	Dependencies []string `yaml:"dependencies"`
}

func (a *Adapter) classifySkill(r ref.Reference, l *Listing) (*manifest.Manifest, error) {
	data, _ := l.Read(skillDescriptorFile)

	var fm skillFrontMatter
	if raw, ok := frontMatter(data); ok {
		// A malformed front matter block is ignored, not fatal; the
		// descriptor's prose body is the real content.
		_ = yaml.Unmarshal(raw, &fm)
	}

	rawName := fm.Name
	if rawName == "" {
		rawName = r.Repo
	}
	name, err := manifest.Normalize(rawName)
	if err != nil {
		return nil, &ClassifyError{Key: r.Key(), Err: err}
	}

	m := &manifest.Manifest{
		Name:        name,
		Version:     orUnversioned(fm.Version),
		Description: fm.Description,
		License:     fm.License,
		Kind:        manifest.KindSkill,
		Categories:  []manifest.Category{manifest.CategorySkills},
	}

	for _, dep := range fm.Dependencies {
		dr, err := ref.ParseWithHost(dep, a.DefaultHost)
		if err != nil {
			return nil, &ClassifyError{Key: r.Key(), Err: fmt.Errorf("invalid dependency %q: %w", dep, err)}
		}
		m.Dependencies = append(m.Dependencies, dr)
	}

	return m, nil
}

// pluginDescriptor mirrors plugin.json.
type pluginDescriptor struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Author       string   `json:"author"`
	License      string   `json:"license"`
	Dependencies []string `json:"dependencies"`
}

func (a *Adapter) classifyPlugin(r ref.Reference, l *Listing, data []byte) (*manifest.Manifest, error) {
	var pd pluginDescriptor
	if err := json.Unmarshal(data, &pd); err != nil {
		return nil, &ClassifyError{Key: r.Key(), Err: fmt.Errorf("invalid plugin.json: %w", err)}
	}

	rawName := pd.Name
	if rawName == "" {
		rawName = pd.ID
	}
	if rawName == "" {
		return nil, &ClassifyError{Key: r.Key(), Err: fmt.Errorf("plugin.json missing required field 'name'")}
	}
	name, err := manifest.Normalize(rawName)
	if err != nil {
		return nil, &ClassifyError{Key: r.Key(), Err: err}
	}

	m := &manifest.Manifest{
		Name:        name,
		Version:     orUnversioned(pd.Version),
		Description: pd.Description,
		Author:      pd.Author,
		License:     pd.License,
		Kind:        manifest.KindPlugin,
	}

	// Capability folders present in the listing become routing categories.
	seen := map[manifest.Category]bool{}
	for _, p := range l.Paths() {
		dir, _, ok := strings.Cut(p, "/")
		if !ok {
			continue
		}
		if cat, known := capabilityFolders[dir]; known && !seen[cat] {
			seen[cat] = true
			m.Categories = append(m.Categories, cat)
		}
	}

	for _, dep := range pd.Dependencies {
		dr, err := ref.ParseWithHost(dep, a.DefaultHost)
		if err != nil {
			return nil, &ClassifyError{Key: r.Key(), Err: fmt.Errorf("invalid dependency %q: %w", dep, err)}
		}
		m.Dependencies = append(m.Dependencies, dr)
	}

	return m, nil
}

// collectionManifest mirrors a *.collection.yml file.
type collectionManifest struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Items       []struct {
		Path string `yaml:"path"`
		Kind string `yaml:"kind"`
	} `yaml:"items"`
}

// itemCategories maps collection item kinds to internal categories.
var itemCategories = map[string]manifest.Category{
	"prompt":      manifest.CategoryPrompts,
	"instruction": manifest.CategoryInstructions,
	"chat-mode":   manifest.CategoryChatmodes,
	"chatmode":    manifest.CategoryChatmodes,
	"agent":       manifest.CategoryAgents,
	"context":     manifest.CategoryContexts,
}

func (a *Adapter) classifyCollection(r ref.Reference, path string, data []byte) (*manifest.Manifest, error) {
	var cm collectionManifest
	if err := yaml.Unmarshal(data, &cm); err != nil {
		return nil, &ClassifyError{Key: r.Key(), Err: fmt.Errorf("invalid collection manifest %s: %w", path, err)}
	}
	if cm.ID == "" && cm.Name == "" {
		return nil, &ClassifyError{Key: r.Key(), Err: fmt.Errorf("collection manifest %s missing id and name", path)}
	}
	if len(cm.Items) == 0 {
		return nil, &ClassifyError{Key: r.Key(), Err: fmt.Errorf("collection %s must contain at least one item", path)}
	}

	rawName := cm.ID
	if rawName == "" {
		rawName = cm.Name
	}
	name, err := manifest.Normalize(r.Repo + "-" + rawName)
	if err != nil {
		return nil, &ClassifyError{Key: r.Key(), Err: err}
	}

	m := &manifest.Manifest{
		Name:        name,
		Version:     manifest.UnversionedSentinel,
		Description: cm.Description,
		Kind:        manifest.KindCollection,
	}

	seen := map[manifest.Category]bool{}
	for i, item := range cm.Items {
		if item.Path == "" {
			return nil, &ClassifyError{Key: r.Key(), Err: fmt.Errorf("collection item %d missing required field 'path'", i)}
		}
		// Each listed item expands into its own virtual reference within
		// the same repository, pinned to the collection's constraint.
		m.Dependencies = append(m.Dependencies, ref.Reference{
			Host:       r.Host,
			Owner:      r.Owner,
			Repo:       r.Repo,
			Subpath:    item.Path,
			Constraint: r.Constraint,
			Raw:        r.RepoPath() + "/" + item.Path,
		})
		if cat, ok := itemCategories[strings.ToLower(item.Kind)]; ok && !seen[cat] {
			seen[cat] = true
			m.Categories = append(m.Categories, cat)
		}
	}

	return m, nil
}

func (a *Adapter) classifyVirtualFile(r ref.Reference, l *Listing) (*manifest.Manifest, error) {
	name, err := manifest.Normalize(r.VirtualName())
	if err != nil {
		return nil, &ClassifyError{Key: r.Key(), Err: err}
	}

	m := &manifest.Manifest{
		Name:       name,
		Version:    manifest.UnversionedSentinel,
		Kind:       manifest.KindVirtualFile,
		Categories: []manifest.Category{categoryForFile(r.Subpath)},
	}

	// A virtual file may carry front matter with a nicer name/description.
	if data, ok := l.Read(r.Subpath); ok {
		var fm struct {
			Name        string `yaml:"name"`
			Description string `yaml:"description"`
		}
		if raw, found := frontMatter(data); found {
			if yaml.Unmarshal(raw, &fm) == nil {
				if fm.Name != "" {
					if n, err := manifest.Normalize(fm.Name); err == nil {
						m.Name = n
					}
				}
				m.Description = fm.Description
			}
		}
	}

	return m, nil
}

// categoryForFile maps a virtual file extension to its content category.
func categoryForFile(path string) manifest.Category {
	switch {
	case strings.HasSuffix(path, ".instructions.md"):
		return manifest.CategoryInstructions
	case strings.HasSuffix(path, ".chatmode.md"):
		return manifest.CategoryChatmodes
	case strings.HasSuffix(path, ".agent.md"):
		return manifest.CategoryAgents
	default:
		return manifest.CategoryPrompts
	}
}

// findCollectionManifest locates a collection manifest in the listing.
// A collection reference fetches "<subpath>.collection.yml"; a root fetch
// may also ship one at the top level.
func findCollectionManifest(r ref.Reference, l *Listing) (string, []byte, bool) {
	if r.IsCollection() {
		p := r.Subpath + collectionSuffix
		if data, ok := l.Read(p); ok {
			return p, data, true
		}
	}
	for _, p := range l.Paths() {
		if strings.HasSuffix(p, collectionSuffix) && !strings.Contains(p, "/") {
			data, _ := l.Read(p)
			return p, data, true
		}
	}
	return "", nil, false
}

// frontMatter extracts the YAML block delimited by "---" lines at the top
// of a markdown document.
func frontMatter(data []byte) ([]byte, bool) {
	meta, _, ok := SplitFrontMatter(data)
	return meta, ok
}

// SplitFrontMatter separates a markdown document into its leading YAML
// front matter block and the body after the closing delimiter. ok is
// false when the document carries no front matter; body is then the
// whole document.
func SplitFrontMatter(data []byte) (meta, body []byte, ok bool) {
	s := string(data)
	if !strings.HasPrefix(s, "---\n") && !strings.HasPrefix(s, "---\r\n") {
		return nil, data, false
	}
	rest := s[strings.Index(s, "\n")+1:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, data, false
	}
	after := rest[end+len("\n---"):]
	if i := strings.Index(after, "\n"); i >= 0 {
		after = after[i+1:]
	} else {
		after = ""
	}
	return []byte(rest[:end]), []byte(after), true
}

func orUnversioned(v string) string {
	if v == "" {
		return manifest.UnversionedSentinel
	}
	return v
}
