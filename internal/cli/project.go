package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apm-labs/apm/internal/adapter"
	"github.com/apm-labs/apm/internal/config"
	"github.com/apm-labs/apm/internal/lockfile"
	"github.com/apm-labs/apm/internal/manifest"
	"github.com/apm-labs/apm/internal/ref"
	"github.com/apm-labs/apm/internal/resolver"
	"github.com/apm-labs/apm/internal/source"
)

// projectManifestFile is the manifest looked up in the working directory.
const projectManifestFile = "apm.yml"

// project is the working directory's manifest plus derived paths.
type project struct {
	Dir      string
	Manifest *manifest.Manifest
}

// loadProject reads and validates apm.yml in the working directory.
func loadProject() (*project, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, projectManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no %s in %s; run 'apm init' first", projectManifestFile, dir)
		}
		return nil, err
	}

	vr, err := manifest.Validate(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", projectManifestFile, err)
	}
	if !vr.Valid {
		var b strings.Builder
		fmt.Fprintf(&b, "%s failed validation:", projectManifestFile)
		for _, issue := range vr.Issues {
			fmt.Fprintf(&b, "\n  %s: %s", issue.Path, issue.Message)
		}
		return nil, errors.New(b.String())
	}
	n, err := manifest.ParseNative(data)
	if err != nil {
		return nil, err
	}
	m, err := manifest.FromNative(n, manifest.KindStandard, config.DefaultHost())
	if err != nil {
		return nil, err
	}
	return &project{Dir: dir, Manifest: m}, nil
}

// roots returns the project's direct dependencies as resolution roots.
func (p *project) roots() []ref.Reference {
	return p.Manifest.Dependencies
}

// lockPath returns the project lockfile location.
func (p *project) lockPath() string {
	return filepath.Join(p.Dir, lockfile.DefaultName)
}

// newResolver wires a resolver against the configured local store,
// optionally seeded with a lockfile.
func newResolver(lock *lockfile.File) *resolver.Resolver {
	rv := resolver.New(
		source.NewLocal(config.StoreDir()),
		adapter.New(config.DefaultHost()),
	)
	rv.Lock = lock
	rv.Concurrency = config.Concurrency()
	rv.FetchTimeout = config.FetchTimeout()
	rv.ToolVersion = buildVersion
	return rv
}
