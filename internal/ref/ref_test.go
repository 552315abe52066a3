package ref

import "testing"

func TestParseForms(t *testing.T) {
	tests := []struct {
		in   string
		want Reference
	}{
		{"octo/prompts", Reference{Host: "github.com", Owner: "octo", Repo: "prompts"}},
		{"octo/prompts#dev", Reference{Host: "github.com", Owner: "octo", Repo: "prompts", Constraint: "dev"}},
		{"octo/prompts#v1.2.0", Reference{Host: "github.com", Owner: "octo", Repo: "prompts", Constraint: "v1.2.0"}},
		{"octo/prompts@tools", Reference{Host: "github.com", Owner: "octo", Repo: "prompts", Alias: "tools"}},
		{"octo/prompts#main@tools", Reference{Host: "github.com", Owner: "octo", Repo: "prompts", Constraint: "main", Alias: "tools"}},
		{"ghe.example.com/octo/prompts", Reference{Host: "ghe.example.com", Owner: "octo", Repo: "prompts"}},
		{"https://gitlab.com/octo/prompts", Reference{Host: "gitlab.com", Owner: "octo", Repo: "prompts"}},
		{"git@github.com:octo/prompts.git", Reference{Host: "github.com", Owner: "octo", Repo: "prompts"}},
		{"octo/prompts.git", Reference{Host: "github.com", Owner: "octo", Repo: "prompts"}},
		{"octo/copilot/prompts/code-review.prompt.md", Reference{Host: "github.com", Owner: "octo", Repo: "copilot", Subpath: "prompts/code-review.prompt.md"}},
		{"octo/copilot/collections/planning", Reference{Host: "github.com", Owner: "octo", Repo: "copilot", Subpath: "collections/planning"}},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if got.Host != tt.want.Host || got.Owner != tt.want.Owner || got.Repo != tt.want.Repo ||
			got.Subpath != tt.want.Subpath || got.Constraint != tt.want.Constraint || got.Alias != tt.want.Alias {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"",
		"just-a-repo",
		"octo/repo/src/main.go",
		"octo/repo@",
		"octo/repo@bad alias",
		"https://",
	}
	for _, in := range bad {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestParseWithHostDefault(t *testing.T) {
	r, err := ParseWithHost("octo/prompts", "ghe.internal")
	if err != nil {
		t.Fatalf("ParseWithHost: %v", err)
	}
	if r.Host != "ghe.internal" {
		t.Errorf("Host = %q, want %q", r.Host, "ghe.internal")
	}
}

func TestClassifyConstraint(t *testing.T) {
	tests := []struct {
		in   string
		want ConstraintKind
	}{
		{"", ConstraintLatest},
		{"main", ConstraintBranch},
		{"feature/x", ConstraintBranch},
		{"v1.2.3", ConstraintTag},
		{"1.2.3", ConstraintTag},
		{"abc1234", ConstraintCommit},
		{"0123456789abcdef0123456789abcdef01234567", ConstraintCommit},
		{"deadbee", ConstraintCommit},
	}
	for _, tt := range tests {
		if got := ClassifyConstraint(tt.in); got != tt.want {
			t.Errorf("ClassifyConstraint(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestKeyExcludesConstraint(t *testing.T) {
	a, _ := Parse("octo/prompts#main")
	b, _ := Parse("octo/prompts#v2.0.0")
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %v vs %v", a.Key(), b.Key())
	}
	if got := a.Key().String(); got != "github.com/octo/prompts" {
		t.Errorf("Key.String() = %q", got)
	}
}

func TestVirtualName(t *testing.T) {
	r, _ := Parse("octo/copilot/prompts/code-review.prompt.md")
	if got := r.VirtualName(); got != "copilot-code-review" {
		t.Errorf("VirtualName() = %q, want %q", got, "copilot-code-review")
	}
	c, _ := Parse("octo/copilot/collections/planning")
	if got := c.VirtualName(); got != "copilot-planning" {
		t.Errorf("VirtualName() = %q, want %q", got, "copilot-planning")
	}
	if !c.IsCollection() || c.IsVirtualFile() {
		t.Errorf("collection classified wrong: IsCollection=%v IsVirtualFile=%v", c.IsCollection(), c.IsVirtualFile())
	}
}
