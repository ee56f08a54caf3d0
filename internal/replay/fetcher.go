package replay

import "context"

// Fetcher materializes a revision's content into a local file. It is the
// engine's single boundary to the remote: implementations own transport,
// authentication and transient-failure retries.
type Fetcher interface {
	// Fetch downloads the content of the given revision into destPath,
	// replacing whatever is there. It returns only after the full content
	// is on disk or a non-retriable failure occurred.
	Fetch(ctx context.Context, revision string, destPath string) error
}
