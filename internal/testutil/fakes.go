// Package testutil holds in-memory fakes for the replay engine's
// collaborators.
package testutil

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"packrat-go/internal/model"
	"packrat-go/internal/replay"
)

// FetchCall records one Fetch invocation.
type FetchCall struct {
	Revision string
	DestPath string
}

// FakeFetcher serves revision content from memory and records every call.
type FakeFetcher struct {
	mu sync.Mutex
	// Content maps revision -> bytes written to the destination. Missing
	// revisions leave the placeholder file empty.
	Content map[string][]byte
	// Fail maps revision -> error returned instead of content.
	Fail  map[string]error
	calls []FetchCall
}

// NewFakeFetcher creates an empty FakeFetcher.
func NewFakeFetcher() *FakeFetcher {
	return &FakeFetcher{
		Content: make(map[string][]byte),
		Fail:    make(map[string]error),
	}
}

func (f *FakeFetcher) Fetch(_ context.Context, revision string, destPath string) error {
	f.mu.Lock()
	f.calls = append(f.calls, FetchCall{Revision: revision, DestPath: destPath})
	content, ok := f.Content[revision]
	failErr := f.Fail[revision]
	f.mu.Unlock()

	if failErr != nil {
		return failErr
	}
	if !ok {
		return nil
	}
	return os.WriteFile(destPath, content, 0644)
}

// Calls returns every recorded call in dispatch order.
func (f *FakeFetcher) Calls() []FetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FetchCall(nil), f.calls...)
}

// EventList is an in-memory EventSource over a pre-sorted event slice.
type EventList struct {
	events []model.Event
}

// NewEventList creates an EventList. Events must already be ordered
// ascending by timestamp.
func NewEventList(events ...model.Event) *EventList {
	return &EventList{events: events}
}

func (l *EventList) MinTimestamp() (time.Time, error) {
	if len(l.events) == 0 {
		return time.Time{}, errors.New("no events")
	}
	return l.events[0].Time(), nil
}

func (l *EventList) TombstonedPaths() ([]string, error) {
	seen := make(map[string]struct{})
	var paths []string
	for _, ev := range l.events {
		if _, ok := seen[ev.RemotePath()]; ok {
			continue
		}
		seen[ev.RemotePath()] = struct{}{}
		if _, isDelete := ev.(model.Delete); isDelete {
			paths = append(paths, ev.RemotePath())
		}
	}
	return paths, nil
}

func (l *EventList) Events() (replay.Cursor, error) {
	return &listCursor{events: l.events, index: -1}, nil
}

type listCursor struct {
	events []model.Event
	index  int
}

func (c *listCursor) Next() bool {
	c.index++
	return c.index < len(c.events)
}

func (c *listCursor) Event() (model.Event, error) { return c.events[c.index], nil }
func (c *listCursor) Err() error                  { return nil }
func (c *listCursor) Close() error                { return nil }

// LogEntry is one recorded log call.
type LogEntry struct {
	Level string
	Msg   string
	Args  []any
}

// RecordingLogger captures log calls for assertions.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewRecordingLogger() *RecordingLogger { return &RecordingLogger{} }

func (l *RecordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *RecordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }
func (l *RecordingLogger) Info(msg string, args ...any)  { l.record("INFO", msg, args) }
func (l *RecordingLogger) Warn(msg string, args ...any)  { l.record("WARN", msg, args) }
func (l *RecordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

// Entries returns every recorded entry.
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Count returns how many entries match the given level and message.
func (l *RecordingLogger) Count(level, msg string) int {
	n := 0
	for _, e := range l.Entries() {
		if e.Level == level && e.Msg == msg {
			n++
		}
	}
	return n
}

// Compile-time checks
var (
	_ replay.Fetcher     = (*FakeFetcher)(nil)
	_ replay.EventSource = (*EventList)(nil)
	_ replay.Logger      = (*RecordingLogger)(nil)
)
