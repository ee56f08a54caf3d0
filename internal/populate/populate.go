// Package populate crawls the remote account's full revision history into
// the event store. It is resumable: paths already present in the history or
// the error table are skipped, so an interrupted crawl can simply be re-run.
package populate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"packrat-go/internal/model"
)

// chunkPaths is how many paths are gathered per insert transaction.
const chunkPaths = 256

// Entry is one item of the remote recursive listing.
type Entry struct {
	Path     string
	IsFolder bool
}

// Revision is one remote revision of a file.
type Revision struct {
	Revision       string
	ServerModified time.Time
	Size           int64
	ContentHash    string
	IsDownloadable bool
	// SymlinkTarget is non-empty when the revision is a symbolic link.
	SymlinkTarget string
}

// History is the full revision listing for one path.
type History struct {
	Revisions []Revision
	// Deleted reports that the path no longer exists; ServerDeleted is when.
	Deleted       bool
	ServerDeleted time.Time
}

// Remote lists the account's paths and per-path revision history.
type Remote interface {
	// ListEntries streams every known entry, including deleted ones,
	// calling fn for each. Listing stops on the first error fn returns.
	ListEntries(ctx context.Context, fn func(Entry) error) error

	// ListRevisions returns the revision history of one path. Per-path
	// failures the remote reports as permanent are returned as
	// *PathUnavailableError.
	ListRevisions(ctx context.Context, path string) (*History, error)
}

// PathUnavailableError marks a path whose revision listing the remote
// permanently refused. The crawler records it and moves on.
type PathUnavailableError struct {
	Reason string
}

func (e *PathUnavailableError) Error() string {
	return fmt.Sprintf("path unavailable: %s", e.Reason)
}

// Store is the subset of the event store the crawler writes to.
type Store interface {
	// HasPath reports whether the path was already crawled (event or error).
	HasPath(path string) (bool, error)

	// InsertEvents appends events in one transaction.
	InsertEvents(events []model.Event) error

	// InsertError records a permanently failed path.
	InsertError(path, message string) error
}

// Logger provides structured logging for the crawler.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Stats summarizes one crawl run.
type Stats struct {
	Paths   int // paths whose history was stored this run
	Events  int // events inserted this run
	Skipped int // paths already present and skipped
	Errors  int // paths recorded as unavailable
}

// Crawler walks the remote listing and appends each new path's history to
// the store.
type Crawler struct {
	remote Remote
	store  Store
	logger Logger
}

// NewCrawler creates a Crawler over the given collaborators.
func NewCrawler(remote Remote, store Store, logger Logger) *Crawler {
	return &Crawler{remote: remote, store: store, logger: logger}
}

// Run performs one crawl over the full remote listing. Inserts are batched,
// a chunk of paths per transaction.
func (c *Crawler) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	var pending []model.Event
	pendingPaths := 0

	flush := func() error {
		if len(pending) == 0 {
			pendingPaths = 0
			return nil
		}
		if err := c.store.InsertEvents(pending); err != nil {
			return fmt.Errorf("storing events: %w", err)
		}
		stats.Events += len(pending)
		pending = pending[:0:0]
		pendingPaths = 0
		return nil
	}

	err := c.remote.ListEntries(ctx, func(entry Entry) error {
		if entry.IsFolder {
			return nil
		}

		seen, err := c.store.HasPath(entry.Path)
		if err != nil {
			return err
		}
		if seen {
			c.logger.Debug("path already crawled", "path", entry.Path)
			stats.Skipped++
			return nil
		}

		history, err := c.remote.ListRevisions(ctx, entry.Path)
		if err != nil {
			var unavailable *PathUnavailableError
			if errors.As(err, &unavailable) {
				c.logger.Warn("cannot list revisions", "path", entry.Path, "reason", unavailable.Reason)
				stats.Errors++
				return c.store.InsertError(entry.Path, unavailable.Reason)
			}
			return fmt.Errorf("listing revisions for %q: %w", entry.Path, err)
		}

		pending = append(pending, eventsFor(entry.Path, history)...)
		pendingPaths++
		stats.Paths++

		if pendingPaths >= chunkPaths {
			return flush()
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	if err := flush(); err != nil {
		return stats, err
	}

	c.logger.Info("crawl complete",
		"paths", stats.Paths, "events", stats.Events,
		"skipped", stats.Skipped, "errors", stats.Errors,
	)
	return stats, nil
}

// eventsFor maps one path's remote history to stored events.
func eventsFor(path string, history *History) []model.Event {
	events := make([]model.Event, 0, len(history.Revisions)+1)

	for _, rev := range history.Revisions {
		if rev.SymlinkTarget != "" {
			events = append(events, model.Symlink{
				Path:      path,
				Revision:  rev.Revision,
				Timestamp: rev.ServerModified,
				Target:    rev.SymlinkTarget,
			})
			continue
		}

		events = append(events, model.Modify{
			Path:           path,
			Revision:       rev.Revision,
			Timestamp:      rev.ServerModified,
			IsDownloadable: rev.IsDownloadable,
			Size:           rev.Size,
			ContentHash:    rev.ContentHash,
		})
	}

	if history.Deleted {
		events = append(events, model.Delete{
			Path:      path,
			Timestamp: history.ServerDeleted,
		})
	}

	return events
}
