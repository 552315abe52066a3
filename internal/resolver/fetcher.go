package resolver

import (
	"context"
	"errors"

	"github.com/apm-labs/apm/internal/adapter"
	"github.com/apm-labs/apm/internal/ref"
)

// Fetcher failure classes. Implementations wrap these sentinels so the
// resolver can classify failures without knowing the transport.
var (
	ErrNotFound     = errors.New("repository or path not found")
	ErrAuthRequired = errors.New("authentication required")
	ErrNetwork      = errors.New("network error")
)

// FetchResult is the outcome of fetching one reference at a concrete
// commit.
type FetchResult struct {
	// Commit is the resolved commit id.
	Commit string
	// Ref is the concrete ref name the constraint resolved to (branch or
	// tag name; equal to Commit for pinned commits).
	Ref string
	// Listing holds the fetched file listing and descriptor contents for
	// classification.
	Listing *adapter.Listing
}

// Fetcher retrieves repository content for a reference. Implementations
// own all transport concerns; the resolver only sees commits and listings.
// Fetch must honor ctx cancellation and deadlines.
type Fetcher interface {
	Fetch(ctx context.Context, r ref.Reference) (*FetchResult, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, r ref.Reference) (*FetchResult, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, r ref.Reference) (*FetchResult, error) {
	return f(ctx, r)
}
