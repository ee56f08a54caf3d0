// Package replay turns the ordered event history into filesystem mutations
// under the target tree, bounded by one snapshot per calendar day of
// observed activity.
package replay

import (
	"context"
	"fmt"
	"sync"

	"packrat-go/internal/contenthash"
	"packrat-go/internal/model"
	"packrat-go/internal/tree"
)

// DefaultWorkers is the concurrency ceiling for per-event application
// within one batch.
const DefaultWorkers = 4

// DefaultPrefix is the snapshot name prefix.
const DefaultPrefix = "dropbox"

// Config carries the engine's tunables.
type Config struct {
	// Prefix is prepended to every snapshot name. Defaults to DefaultPrefix.
	Prefix string
	// Workers bounds concurrent event application. Defaults to DefaultWorkers.
	Workers int
}

// Engine replays the event history onto the target tree. Batches are
// processed strictly in order; events within a batch are applied
// concurrently, which is safe because a batch never contains the same path
// twice (see replayBatch).
type Engine struct {
	source  EventSource
	fetcher Fetcher
	snaps   Snapshotter
	tree    *tree.Tree
	logger  Logger
	prefix  string
	workers int

	// existing holds the snapshot names present before the run started,
	// used to skip batches that were already applied.
	existing map[string]bool

	// firstSnapshot stays true until this run commits its first batch
	// snapshot. Right after bootstrap many tombstoned paths legitimately
	// do not exist, so delete misses are downgraded while it is set.
	firstSnapshot bool
}

// NewEngine creates an Engine over the given collaborators.
func NewEngine(source EventSource, fetcher Fetcher, snaps Snapshotter, t *tree.Tree, logger Logger, cfg Config) *Engine {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Engine{
		source:        source,
		fetcher:       fetcher,
		snaps:         snaps,
		tree:          t,
		logger:        logger,
		prefix:        cfg.Prefix,
		workers:       cfg.Workers,
		firstSnapshot: true,
	}
}

// Run replays the full event history. The target tree and its snapshots are
// a derived materialization: the run can always be repeated from the start,
// with already-snapshotted batches skipped.
//
// Any fatal error halts the run; the operator inspects, fixes the cause and
// re-runs.
func (e *Engine) Run(ctx context.Context) error {
	existing, err := e.snaps.List()
	if err != nil {
		return fmt.Errorf("listing snapshots: %w", err)
	}
	e.existing = existing

	if e.tree.IsEmpty() {
		if err := e.bootstrap(); err != nil {
			return fmt.Errorf("reconstructing initial state: %w", err)
		}
	} else {
		e.logger.Info("target tree already populated, skipping bootstrap", "root", e.tree.Root())
	}

	cursor, err := e.source.Events()
	if err != nil {
		return fmt.Errorf("opening event cursor: %w", err)
	}
	defer cursor.Close()

	// Group contiguous same-day runs into batches, one group at a time.
	var batch []model.Event
	for cursor.Next() {
		ev, err := cursor.Event()
		if err != nil {
			return fmt.Errorf("decoding event: %w", err)
		}

		if len(batch) > 0 && !model.SameDay(batch[len(batch)-1].Time(), ev.Time()) {
			if err := e.replayBatch(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0:0]
		}
		batch = append(batch, ev)
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("iterating events: %w", err)
	}

	if len(batch) > 0 {
		if err := e.replayBatch(ctx, batch); err != nil {
			return err
		}
	}

	return nil
}

// bootstrap reconstructs tombstone paths: paths whose earliest retained
// event is a delete existed before history begins, so the later delete
// replay needs a placeholder to remove. Each gets an empty file stamped with
// the overall minimum timestamp, followed by a snapshot named from that
// timestamp. Only runs on an empty target tree.
func (e *Engine) bootstrap() error {
	minTime, err := e.source.MinTimestamp()
	if err != nil {
		return fmt.Errorf("querying minimum timestamp: %w", err)
	}

	paths, err := e.source.TombstonedPaths()
	if err != nil {
		return fmt.Errorf("querying tombstoned paths: %w", err)
	}

	e.logger.Info("reconstructing tombstoned paths", "count", len(paths), "mtime", minTime)

	for _, remotePath := range paths {
		path := e.tree.Abs(remotePath)
		if err := e.tree.Truncate(path); err != nil {
			return err
		}
		if err := e.tree.SetMTime(path, minTime, true); err != nil {
			return err
		}
	}

	e.takeSnapshot(SnapshotName(e.prefix, minTime))
	return nil
}

// replayBatch applies one day's events and commits a snapshot named from the
// last event's timestamp.
//
// If a path repeats within the batch, the batch is split at the first
// repeated occurrence and both halves are replayed independently, each with
// its own snapshot boundary. The split guarantees every path in a dispatched
// batch is unique, so concurrent application cannot race two mutations to
// the same file. This is deliberately a greedy single split: a path
// appearing three times recurses twice rather than partitioning three ways.
// Changing that would change snapshot boundaries and counts.
func (e *Engine) replayBatch(ctx context.Context, events []model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(events))
	for i, ev := range events {
		if _, dup := seen[ev.RemotePath()]; dup {
			if err := e.replayBatch(ctx, events[:i]); err != nil {
				return err
			}
			return e.replayBatch(ctx, events[i:])
		}
		seen[ev.RemotePath()] = struct{}{}
	}

	last := events[len(events)-1].Time()
	name := SnapshotName(e.prefix, last)
	if e.existing[name] {
		e.logger.Info("skipping existing snapshot", "snapshot", name)
		return nil
	}

	e.logger.Info("applying revisions",
		"count", len(events),
		"from", events[0].Time(),
		"to", last,
	)

	jobs := make(chan model.Event)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range jobs {
				if err := e.apply(ctx, ev); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}()
	}

	for _, ev := range events {
		jobs <- ev
	}
	close(jobs)
	wg.Wait()

	// No partial commit: a failed task means no snapshot for this batch.
	if firstErr != nil {
		return firstErr
	}

	e.takeSnapshot(name)
	e.firstSnapshot = false
	return nil
}

// apply materializes a single event's effect on the target tree.
func (e *Engine) apply(ctx context.Context, ev model.Event) error {
	path := e.tree.Abs(ev.RemotePath())

	switch ev := ev.(type) {
	case model.Modify:
		isNewFile := !e.tree.Exists(path)

		if err := e.tree.Truncate(path); err != nil {
			return err
		}

		if ev.IsDownloadable {
			e.logger.Debug("downloading revision", "path", path, "revision", ev.Revision)
			if err := e.fetcher.Fetch(ctx, ev.Revision, path); err != nil {
				return fmt.Errorf("fetching %q at %q: %w", ev.Path, ev.Revision, err)
			}

			if ev.ContentHash != "" {
				sum, err := contenthash.File(path)
				if err != nil {
					return fmt.Errorf("hashing %q: %w", path, err)
				}
				if sum != ev.ContentHash {
					return fmt.Errorf("%q hash mismatch: got %s, want %s", path, sum, ev.ContentHash)
				}
			}
		}

		return e.tree.SetMTime(path, ev.Timestamp, isNewFile)

	case model.Symlink:
		return e.tree.Symlink(path, e.tree.Abs(ev.Target))

	case model.Delete:
		if e.tree.Exists(path) {
			e.logger.Debug("deleting", "path", path)
			if err := e.tree.Remove(path); err != nil {
				return err
			}
		} else if e.firstSnapshot {
			e.logger.Debug("already deleted", "path", path)
		} else {
			e.logger.Warn("cannot delete non-existent file", "path", path)
		}

		return e.tree.CleanupAfterDelete(path, ev.Timestamp)

	default:
		return fmt.Errorf("unhandled event variant %T for %q", ev, ev.RemotePath())
	}
}

// takeSnapshot creates the named snapshot. Creation is best-effort: a
// failure is logged and does not abort the run.
func (e *Engine) takeSnapshot(name string) {
	e.logger.Info("taking snapshot", "snapshot", name)
	if err := e.snaps.Create(name); err != nil {
		e.logger.Warn("snapshot creation failed", "snapshot", name, "error", err)
	}
}
