package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/apm-labs/apm/internal/config"
	"github.com/apm-labs/apm/internal/lockfile"
)

func TestInstallEndToEnd(t *testing.T) {
	store := t.TempDir()
	project := t.TempDir()

	// One dependency in the local store.
	baseDir := filepath.Join(store, "github.com", "octo", "base")
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTestFile(t, filepath.Join(baseDir, "apm.yml"), "name: base\nversion: 1.0.0\n")
	writeTestFile(t, filepath.Join(baseDir, "general.instructions.md"), "---\napplyTo: \"**\"\n---\nWrite tests first.\n")

	writeTestFile(t, filepath.Join(project, "apm.yml"), "name: my-project\nversion: 1.0.0\ndependencies:\n  apm:\n    - octo/base\n")

	t.Chdir(project)
	viper.Set(config.KeyStoreDir, store)
	defer viper.Reset()

	rootCmd.SetArgs([]string{"install", "--quiet"})
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}

	lock, err := lockfile.Load(filepath.Join(project, lockfile.DefaultName))
	if err != nil {
		t.Fatalf("Load lockfile: %v", err)
	}
	if lock == nil || lock.Len() != 1 {
		t.Fatalf("lockfile records = %d, want 1", lock.Len())
	}
	if _, ok := lock.Lookup("github.com/octo/base"); !ok {
		t.Error("base missing from lockfile")
	}

	agents, err := os.ReadFile(filepath.Join(project, "AGENTS.md"))
	if err != nil {
		t.Fatalf("reading AGENTS.md: %v", err)
	}
	if !strings.Contains(string(agents), "Write tests first.") {
		t.Errorf("AGENTS.md missing dependency content:\n%s", agents)
	}
	if !strings.Contains(string(agents), "<!-- apm:source base -->") {
		t.Errorf("AGENTS.md missing provenance header:\n%s", agents)
	}
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
