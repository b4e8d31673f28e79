package port

import "context"

// SourceFetcher abstracts cloning a remote repository into a local directory.
type SourceFetcher interface {
	// Clone clones the repository at url into dest. The returned error carries
	// the underlying tool output so it can be surfaced to the user verbatim.
	Clone(ctx context.Context, url string, dest string) error
}
