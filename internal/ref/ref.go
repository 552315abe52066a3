// Package ref parses dependency reference strings into structured
// references and provides the normalized keys used for graph identity.
//
// Supported forms:
//
//	owner/repo
//	owner/repo#branch-or-tag-or-commit
//	owner/repo@alias
//	owner/repo#ref@alias
//	host/owner/repo#ref
//	https://host/owner/repo
//	git@host:owner/repo.git
//	owner/repo/prompts/code-review.prompt.md   (virtual file)
//	owner/repo/collections/project-planning    (collection)
package ref

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// DefaultHost is used when a reference omits its host segment.
const DefaultHost = "github.com"

// VirtualFileExtensions are the recognized content file suffixes for
// virtual file references.
var VirtualFileExtensions = []string{
	".prompt.md",
	".instructions.md",
	".chatmode.md",
	".agent.md",
}

// ConstraintKind describes how a reference's constraint should be resolved.
type ConstraintKind int

const (
	// ConstraintLatest selects the default branch head.
	ConstraintLatest ConstraintKind = iota
	// ConstraintBranch selects the head of a named branch.
	ConstraintBranch
	// ConstraintTag selects a version tag.
	ConstraintTag
	// ConstraintCommit pins an exact commit.
	ConstraintCommit
)

// String returns the lowercase kind name.
func (k ConstraintKind) String() string {
	switch k {
	case ConstraintBranch:
		return "branch"
	case ConstraintTag:
		return "tag"
	case ConstraintCommit:
		return "commit"
	default:
		return "latest"
	}
}

// Key identifies a dependency source location. The version constraint is
// deliberately excluded so that two references to the same location with
// different constraints collide, which is how conflicts are detected.
type Key struct {
	Host    string
	Owner   string
	Repo    string
	Subpath string
}

// String renders the key as "host/owner/repo[/subpath]".
func (k Key) String() string {
	s := k.Host + "/" + k.Owner + "/" + k.Repo
	if k.Subpath != "" {
		s += "/" + k.Subpath
	}
	return s
}

// Reference is an immutable pointer to a dependency source plus its
// version constraint.
type Reference struct {
	Host       string
	Owner      string
	Repo       string
	Subpath    string // non-empty for virtual file and collection refs
	Constraint string // branch, tag, or commit; empty means default branch
	Alias      string
	Raw        string // original input string
}

// Key returns the normalized identity of this reference.
func (r Reference) Key() Key {
	return Key{Host: r.Host, Owner: r.Owner, Repo: r.Repo, Subpath: r.Subpath}
}

// RepoPath returns "owner/repo".
func (r Reference) RepoPath() string {
	return r.Owner + "/" + r.Repo
}

// RepoURL returns the https clone URL for the repository.
func (r Reference) RepoURL() string {
	return "https://" + r.Host + "/" + r.Owner + "/" + r.Repo
}

// IsVirtual reports whether the reference points below the repository root.
func (r Reference) IsVirtual() bool {
	return r.Subpath != ""
}

// IsVirtualFile reports whether the reference targets a single recognized
// content file.
func (r Reference) IsVirtualFile() bool {
	if r.Subpath == "" {
		return false
	}
	for _, ext := range VirtualFileExtensions {
		if strings.HasSuffix(r.Subpath, ext) {
			return true
		}
	}
	return false
}

// IsCollection reports whether the reference targets a collection directory.
func (r Reference) IsCollection() bool {
	if r.Subpath == "" {
		return false
	}
	return strings.HasPrefix(r.Subpath, "collections/") ||
		strings.Contains(r.Subpath, "/collections/")
}

// ConstraintKind classifies the reference's constraint string.
func (r Reference) ConstraintKind() ConstraintKind {
	return ClassifyConstraint(r.Constraint)
}

// DisplayName returns the alias if set, otherwise a name derived from the
// reference itself.
func (r Reference) DisplayName() string {
	if r.Alias != "" {
		return r.Alias
	}
	if r.IsVirtual() {
		return r.VirtualName()
	}
	return r.RepoPath()
}

// VirtualName synthesizes a package name for a virtual reference from the
// repository name and the file or collection basename:
//
//	owner/copilot/prompts/code-review.prompt.md -> copilot-code-review
//	owner/copilot/collections/planning          -> copilot-planning
func (r Reference) VirtualName() string {
	if r.Subpath == "" {
		return r.Repo
	}
	base := r.Subpath
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	for _, ext := range VirtualFileExtensions {
		base = strings.TrimSuffix(base, ext)
	}
	return r.Repo + "-" + base
}

// String reconstructs a canonical reference string.
func (r Reference) String() string {
	s := r.RepoPath()
	if r.Subpath != "" {
		s += "/" + r.Subpath
	}
	if r.Constraint != "" {
		s += "#" + r.Constraint
	}
	if r.Alias != "" {
		s += "@" + r.Alias
	}
	return s
}

var (
	nameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	sshRe  = regexp.MustCompile(`^git@([^:]+):(.+)$`)
	shaRe  = regexp.MustCompile(`^[a-f0-9]{7,40}$`)
	verRe  = regexp.MustCompile(`^v?\d+\.\d+\.\d+`)
)

// ClassifyConstraint determines how a constraint string should be resolved.
// Commit SHAs are 7-40 hex characters, tags look like semantic versions,
// anything else is a branch name. Empty means the default branch.
func ClassifyConstraint(c string) ConstraintKind {
	c = strings.TrimSpace(c)
	if c == "" {
		return ConstraintLatest
	}
	if shaRe.MatchString(strings.ToLower(c)) {
		return ConstraintCommit
	}
	if verRe.MatchString(c) {
		return ConstraintTag
	}
	return ConstraintBranch
}

// Parse parses a dependency string using DefaultHost for host-less forms.
func Parse(raw string) (Reference, error) {
	return ParseWithHost(raw, DefaultHost)
}

// ParseWithHost parses a dependency string, using defaultHost when the
// string does not carry its own host segment.
func ParseWithHost(raw, defaultHost string) (Reference, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Reference{}, fmt.Errorf("empty dependency string")
	}
	for _, c := range s {
		if c < 32 {
			return Reference{}, fmt.Errorf("dependency string %q contains control characters", raw)
		}
	}

	r := Reference{Raw: raw}

	if m := sshRe.FindStringSubmatch(s); m != nil {
		r.Host = m[1]
		s = strings.TrimSuffix(m[2], ".git")
	} else if strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://") {
		u, err := url.Parse(trimMeta(s))
		if err != nil || u.Hostname() == "" {
			return Reference{}, fmt.Errorf("invalid repository URL %q", raw)
		}
		r.Host = u.Hostname()
		rest := s[strings.Index(s, u.Hostname())+len(u.Hostname()):]
		s = strings.TrimPrefix(rest, "/")
	}

	// Split off alias and constraint from the tail. The alias separator is
	// the last "@"; the constraint separator is the last "#".
	if i := strings.LastIndex(s, "@"); i >= 0 {
		r.Alias = strings.TrimSpace(s[i+1:])
		s = s[:i]
		if r.Alias == "" || !nameRe.MatchString(r.Alias) {
			return Reference{}, fmt.Errorf("invalid alias in %q", raw)
		}
	}
	if i := strings.LastIndex(s, "#"); i >= 0 {
		r.Constraint = strings.TrimSpace(s[i+1:])
		s = s[:i]
	}
	s = strings.TrimSuffix(s, ".git")

	segs := splitNonEmpty(s)
	if r.Host == "" && len(segs) > 0 && strings.Contains(segs[0], ".") {
		// A dotted first segment is a host, e.g. "ghe.example.com/owner/repo".
		r.Host = segs[0]
		segs = segs[1:]
	}
	if r.Host == "" {
		r.Host = defaultHost
	}
	if len(segs) < 2 {
		return Reference{}, fmt.Errorf("invalid repository reference %q: expected owner/repo", raw)
	}

	r.Owner, r.Repo = segs[0], strings.TrimSuffix(segs[1], ".git")
	if !nameRe.MatchString(r.Owner) {
		return Reference{}, fmt.Errorf("invalid owner name %q", r.Owner)
	}
	if !nameRe.MatchString(r.Repo) {
		return Reference{}, fmt.Errorf("invalid repository name %q", r.Repo)
	}

	if len(segs) > 2 {
		r.Subpath = strings.Join(segs[2:], "/")
		if !r.IsCollection() && !r.IsVirtualFile() {
			return Reference{}, fmt.Errorf(
				"invalid virtual package path %q: individual files must end with one of %s",
				r.Subpath, strings.Join(VirtualFileExtensions, ", "))
		}
	}

	return r, nil
}

// trimMeta strips constraint and alias suffixes so URLs parse cleanly.
func trimMeta(s string) string {
	if i := strings.LastIndex(s, "#"); i >= 0 {
		s = s[:i]
	}
	return s
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, seg := range strings.Split(s, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
