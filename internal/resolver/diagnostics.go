package resolver

import "fmt"

// DiagnosticKind enumerates the resolution problems the resolver reports
// instead of failing outright.
type DiagnosticKind int

const (
	// DiagConflict: a key was requested again under an incompatible
	// constraint. The earliest-resolved node wins.
	DiagConflict DiagnosticKind = iota
	// DiagCycle: a reference's key is already an ancestor on the current
	// traversal path. The edge is broken, both nodes remain.
	DiagCycle
	// DiagFetchFailure: fetching a reference failed; its subtree is
	// abandoned, siblings continue.
	DiagFetchFailure
	// DiagClassification: the fetched content matched no known format.
	DiagClassification
	// DiagLockStale: a lockfile entry exists but no longer matches the
	// requested constraint; the entry is re-resolved, never silently reused.
	DiagLockStale
)

// String returns the kind name.
func (k DiagnosticKind) String() string {
	switch k {
	case DiagConflict:
		return "conflict"
	case DiagCycle:
		return "cycle"
	case DiagFetchFailure:
		return "fetch-failure"
	case DiagClassification:
		return "classification"
	case DiagLockStale:
		return "lock-stale"
	default:
		return "unknown"
	}
}

// Diagnostic is one non-aborting resolution finding. Fatal diagnostics
// end a subtree, not the whole resolution.
type Diagnostic struct {
	Kind DiagnosticKind
	// Key is the normalized key the finding is about.
	Key string
	// Parent is the requesting node's key, empty for roots.
	Parent string
	// Detail is a human-readable explanation naming, for conflicts, the
	// losing requester and constraint.
	Detail string
	// Fatal marks subtree-aborting findings (fetch and classification
	// failures).
	Fatal bool
	// Err carries the underlying error for fatal findings.
	Err error
}

// String renders the diagnostic for logs and CLI output.
func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s: %s", d.Kind, d.Key)
	if d.Detail != "" {
		s += ": " + d.Detail
	}
	if d.Err != nil {
		s += fmt.Sprintf(" (%v)", d.Err)
	}
	return s
}
