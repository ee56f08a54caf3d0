package populate_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"packrat-go/internal/database"
	"packrat-go/internal/model"
	"packrat-go/internal/populate"
	"packrat-go/internal/testutil"
)

// fakeRemote serves a fixed listing and per-path histories.
type fakeRemote struct {
	entries   []populate.Entry
	histories map[string]*populate.History
	errs      map[string]error
}

func (r *fakeRemote) ListEntries(_ context.Context, fn func(populate.Entry) error) error {
	for _, entry := range r.entries {
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRemote) ListRevisions(_ context.Context, path string) (*populate.History, error) {
	if err := r.errs[path]; err != nil {
		return nil, err
	}
	history, ok := r.histories[path]
	if !ok {
		return nil, fmt.Errorf("no history for %q", path)
	}
	return history, nil
}

var _ populate.Remote = (*fakeRemote)(nil)

func newStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func ts(day int) time.Time {
	return time.Date(2021, 3, day, 12, 0, 0, 0, time.UTC)
}

func readAll(t *testing.T, store *database.Store) []model.Event {
	t.Helper()
	cursor, err := store.Events()
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	defer cursor.Close()

	var events []model.Event
	for cursor.Next() {
		ev, err := cursor.Event()
		if err != nil {
			t.Fatalf("Event() error = %v", err)
		}
		events = append(events, ev)
	}
	return events
}

func TestCrawler_Run(t *testing.T) {
	t.Run("stores each path's full history", func(t *testing.T) {
		store := newStore(t)
		remote := &fakeRemote{
			entries: []populate.Entry{
				{Path: "/a.txt"},
				{Path: "/photos", IsFolder: true},
				{Path: "/gone.txt"},
			},
			histories: map[string]*populate.History{
				"/a.txt": {
					Revisions: []populate.Revision{
						{Revision: "r1", ServerModified: ts(1), Size: 10, ContentHash: "h1", IsDownloadable: true},
						{Revision: "r2", ServerModified: ts(2), Size: 20, ContentHash: "h2", IsDownloadable: true},
					},
				},
				"/gone.txt": {
					Revisions: []populate.Revision{
						{Revision: "r3", ServerModified: ts(1), IsDownloadable: true},
					},
					Deleted:       true,
					ServerDeleted: ts(3),
				},
			},
		}

		crawler := populate.NewCrawler(remote, store, testutil.NewRecordingLogger())
		stats, err := crawler.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if stats.Paths != 2 || stats.Events != 4 || stats.Skipped != 0 || stats.Errors != 0 {
			t.Errorf("stats = %+v, want 2 paths, 4 events", stats)
		}

		events := readAll(t, store)
		if len(events) != 4 {
			t.Fatalf("stored events = %d, want 4", len(events))
		}

		// The deletion of /gone.txt carries the server-side delete time.
		var deletes []model.Delete
		for _, ev := range events {
			if del, ok := ev.(model.Delete); ok {
				deletes = append(deletes, del)
			}
		}
		if len(deletes) != 1 || deletes[0].Path != "/gone.txt" || !deletes[0].Timestamp.Equal(ts(3)) {
			t.Errorf("deletes = %+v", deletes)
		}
	})

	t.Run("maps symlink revisions", func(t *testing.T) {
		store := newStore(t)
		remote := &fakeRemote{
			entries: []populate.Entry{{Path: "/link.txt"}},
			histories: map[string]*populate.History{
				"/link.txt": {
					Revisions: []populate.Revision{
						{Revision: "r1", ServerModified: ts(1), SymlinkTarget: "/a.txt"},
					},
				},
			},
		}

		crawler := populate.NewCrawler(remote, store, testutil.NewRecordingLogger())
		if _, err := crawler.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		events := readAll(t, store)
		link, ok := events[0].(model.Symlink)
		if !ok {
			t.Fatalf("event is %T, want Symlink", events[0])
		}
		if link.Target != "/a.txt" {
			t.Errorf("target = %q, want /a.txt", link.Target)
		}
	})

	t.Run("skips already crawled paths", func(t *testing.T) {
		store := newStore(t)
		if err := store.InsertEvents([]model.Event{
			model.Modify{Path: "/seen.txt", Revision: "r1", Timestamp: ts(1)},
		}); err != nil {
			t.Fatal(err)
		}

		remote := &fakeRemote{
			entries: []populate.Entry{{Path: "/seen.txt"}},
		}

		crawler := populate.NewCrawler(remote, store, testutil.NewRecordingLogger())
		stats, err := crawler.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.Skipped != 1 || stats.Paths != 0 {
			t.Errorf("stats = %+v, want 1 skipped", stats)
		}
	})

	t.Run("records unavailable paths and continues", func(t *testing.T) {
		store := newStore(t)
		remote := &fakeRemote{
			entries: []populate.Entry{
				{Path: "/restricted.txt"},
				{Path: "/fine.txt"},
			},
			histories: map[string]*populate.History{
				"/fine.txt": {
					Revisions: []populate.Revision{
						{Revision: "r1", ServerModified: ts(1), IsDownloadable: true},
					},
				},
			},
			errs: map[string]error{
				"/restricted.txt": &populate.PathUnavailableError{Reason: "restricted_content"},
			},
		}

		logger := testutil.NewRecordingLogger()
		crawler := populate.NewCrawler(remote, store, logger)
		stats, err := crawler.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if stats.Errors != 1 || stats.Paths != 1 {
			t.Errorf("stats = %+v, want 1 error and 1 path", stats)
		}
		if n := logger.Count("WARN", "cannot list revisions"); n != 1 {
			t.Errorf("warnings = %d, want 1", n)
		}

		// The failed path is remembered so a resumed crawl skips it.
		seen, err := store.HasPath("/restricted.txt")
		if err != nil {
			t.Fatal(err)
		}
		if !seen {
			t.Error("restricted path not recorded in error table")
		}
	})

	t.Run("other revision errors abort the crawl", func(t *testing.T) {
		store := newStore(t)
		boom := errors.New("connection lost")
		remote := &fakeRemote{
			entries: []populate.Entry{{Path: "/a.txt"}},
			errs:    map[string]error{"/a.txt": boom},
		}

		crawler := populate.NewCrawler(remote, store, testutil.NewRecordingLogger())
		if _, err := crawler.Run(context.Background()); !errors.Is(err, boom) {
			t.Errorf("Run() error = %v, want %v", err, boom)
		}
	})

	t.Run("flushes in chunks and at the end", func(t *testing.T) {
		store := newStore(t)

		// More paths than one chunk so at least one mid-crawl flush happens.
		var entries []populate.Entry
		histories := make(map[string]*populate.History)
		for i := 0; i < 300; i++ {
			path := fmt.Sprintf("/f/%03d.txt", i)
			entries = append(entries, populate.Entry{Path: path})
			histories[path] = &populate.History{
				Revisions: []populate.Revision{
					{Revision: fmt.Sprintf("r%d", i), ServerModified: ts(1), IsDownloadable: true},
				},
			}
		}
		remote := &fakeRemote{entries: entries, histories: histories}

		crawler := populate.NewCrawler(remote, store, testutil.NewRecordingLogger())
		stats, err := crawler.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if stats.Paths != 300 || stats.Events != 300 {
			t.Errorf("stats = %+v, want 300 paths and events", stats)
		}

		n, err := store.CountEvents()
		if err != nil {
			t.Fatal(err)
		}
		if n != 300 {
			t.Errorf("CountEvents() = %d, want 300", n)
		}
	})
}
