// Package app is the application layer between the CLI and the crawl/replay
// services. It constructs all collaborators from config and manages their
// lifecycle on Close.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"packrat-go/internal/config"
	"packrat-go/internal/database"
	"packrat-go/internal/populate"
	"packrat-go/internal/replay"
	"packrat-go/internal/snapshot"
	"packrat-go/internal/source"
	"packrat-go/internal/tree"
)

// App wires the event store, logger and remote collaborators for one CLI
// invocation.
type App struct {
	cfg     *config.Config
	store   *database.Store
	logger  *slogAdapter
	logFile *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Populate", "Replay").
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening event store: %w", err)
	}

	runID := fmt.Sprintf("%s-%s", operation, uuid.New().String()[:8])
	logger, logFile, err := newLogger(cfg.LogDir, runID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	return &App{
		cfg:     cfg,
		store:   store,
		logger:  &slogAdapter{l: logger},
		logFile: logFile,
	}, nil
}

// retryInterval returns the configured fixed backoff, or zero to use the
// source default.
func (a *App) retryInterval() time.Duration {
	return time.Duration(a.cfg.Replay.RetryIntervalSeconds) * time.Second
}

// Populate crawls the remote revision history into the event store.
// Requires a dropbox source; an s3 mirror carries content, not history.
func (a *App) Populate(ctx context.Context) (*populate.Stats, error) {
	client, err := source.NewDropboxFromConfig(a.cfg.Source, a.retryInterval())
	if err != nil {
		return nil, fmt.Errorf("creating history source: %w", err)
	}

	crawler := populate.NewCrawler(client, a.store, a.logger)
	return crawler.Run(ctx)
}

// Replay materializes the stored history onto the target tree, snapshotting
// per day of observed activity.
func (a *App) Replay(ctx context.Context) error {
	t, err := tree.New(a.cfg.Root())
	if err != nil {
		return fmt.Errorf("opening target tree: %w", err)
	}

	snaps, err := snapshot.NewFromConfig(a.cfg.Snapshots, a.cfg.Dataset)
	if err != nil {
		return fmt.Errorf("creating snapshotter: %w", err)
	}

	fetcher, err := source.NewFetcherFromConfig(ctx, a.cfg.Source, a.retryInterval())
	if err != nil {
		return fmt.Errorf("creating content fetcher: %w", err)
	}

	engine := replay.NewEngine(a.store, fetcher, snaps, t, a.logger, replay.Config{
		Prefix:  a.cfg.Snapshots.Prefix,
		Workers: a.cfg.Replay.Workers,
	})
	return engine.Run(ctx)
}

// Status summarizes the event store and the snapshot namespace.
type Status struct {
	Events     int64
	PathErrors int64
	// Oldest and Newest bound the observed history; zero when no events.
	Oldest time.Time
	Newest time.Time
	// Snapshots is the number of existing snapshots, or -1 when the
	// snapshot backend could not be queried.
	Snapshots int
	// SchemaIssue is non-nil when the event store schema is behind, ahead
	// or dirty.
	SchemaIssue error
}

// Status reports event counts, the observed timestamp range and how many
// snapshots exist.
func (a *App) Status() (*Status, error) {
	status := &Status{Snapshots: -1}
	status.SchemaIssue = a.store.CheckSchema()

	var err error
	if status.Events, err = a.store.CountEvents(); err != nil {
		return nil, err
	}
	if status.PathErrors, err = a.store.CountErrors(); err != nil {
		return nil, err
	}

	if status.Events > 0 {
		if status.Oldest, err = a.store.MinTimestamp(); err != nil {
			return nil, err
		}
		if status.Newest, err = a.store.MaxTimestamp(); err != nil {
			return nil, err
		}
	}

	snaps, err := snapshot.NewFromConfig(a.cfg.Snapshots, a.cfg.Dataset)
	if err == nil {
		if names, err := snaps.List(); err == nil {
			status.Snapshots = len(names)
		} else {
			a.logger.Warn("cannot list snapshots", "error", err)
		}
	}

	return status, nil
}

// Close closes the event store and the log file.
func (a *App) Close() error {
	err := a.store.Close()
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}
