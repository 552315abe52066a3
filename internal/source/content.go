package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/apm-labs/apm/internal/adapter"
	"github.com/apm-labs/apm/internal/compiler"
	"github.com/apm-labs/apm/internal/ref"
)

const instructionSuffix = ".instructions.md"

// Provider serves compilation content from the same store layout Local
// fetches from. Instruction targets receive every *.instructions.md in a
// package; skill-bearing targets receive the SKILL.md body.
type Provider struct {
	Root string
}

// NewProvider returns a Provider rooted at root.
func NewProvider(root string) *Provider { return &Provider{Root: root} }

// unitFrontMatter is the optional front matter of an instruction file.
type unitFrontMatter struct {
	ApplyTo string `yaml:"applyTo"`
}

// ListContentUnits returns the node's fragments for a target, in sorted
// path order so compilation is deterministic.
func (p *Provider) ListContentUnits(nodeKey string, target compiler.Target) ([]compiler.ContentUnit, error) {
	host, owner, repo, sub, err := splitKey(nodeKey)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(p.Root, host, owner, repo)

	if sub != "" {
		// Virtual-file nodes contribute their own body; collection nodes
		// contribute nothing directly, their expanded items do.
		if target.Skills || !isVirtualPath(sub) {
			return nil, nil
		}
		return p.virtualUnit(dir, sub)
	}

	if target.Skills {
		return p.skillUnit(dir)
	}
	return p.instructionUnits(dir)
}

func (p *Provider) virtualUnit(dir, sub string) ([]compiler.ContentUnit, error) {
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(sub)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	pattern, body := splitUnit(data)
	return []compiler.ContentUnit{{Pattern: pattern, Body: body}}, nil
}

func (p *Provider) skillUnit(dir string) ([]compiler.ContentUnit, error) {
	data, err := os.ReadFile(filepath.Join(dir, "SKILL.md"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	pattern, body := splitUnit(data)
	return []compiler.ContentUnit{{Pattern: pattern, Body: body}}, nil
}

func (p *Provider) instructionUnits(dir string) ([]compiler.ContentUnit, error) {
	var paths []string
	err := filepath.Walk(dir, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return filepath.SkipAll
			}
			return walkErr
		}
		if fi.IsDir() {
			if strings.HasPrefix(fi.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(fi.Name(), instructionSuffix) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var units []compiler.ContentUnit
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		pattern, body := splitUnit(data)
		units = append(units, compiler.ContentUnit{Pattern: pattern, Body: body})
	}
	return units, nil
}

// splitUnit separates a content file into its applicability pattern and
// body. Files without an applyTo front matter field apply everywhere.
func splitUnit(data []byte) (pattern, body string) {
	meta, rest, ok := adapter.SplitFrontMatter(data)
	if !ok {
		return "**", strings.TrimSpace(string(data))
	}
	var fm unitFrontMatter
	_ = yaml.Unmarshal(meta, &fm)
	if fm.ApplyTo == "" {
		fm.ApplyTo = "**"
	}
	return fm.ApplyTo, strings.TrimSpace(string(rest))
}

// splitKey breaks a normalized node key into its store coordinates.
func splitKey(key string) (host, owner, repo, sub string, err error) {
	parts := strings.SplitN(key, "/", 4)
	if len(parts) < 3 {
		return "", "", "", "", fmt.Errorf("malformed node key %q", key)
	}
	host, owner, repo = parts[0], parts[1], parts[2]
	if len(parts) == 4 {
		sub = parts[3]
	}
	return host, owner, repo, sub, nil
}

func isVirtualPath(sub string) bool {
	for _, ext := range ref.VirtualFileExtensions {
		if strings.HasSuffix(sub, ext) {
			return true
		}
	}
	return false
}
