package model

import "time"

// Event is a single observed change to one remote path at one point in time.
// It is a closed union over Modify, Delete and Symlink; consumers dispatch
// with a type switch and must treat an unknown variant as a programming error.
type Event interface {
	// RemotePath returns the remote-rooted path the event applies to.
	RemotePath() string
	// Time returns the event timestamp, the authoritative replay ordering key.
	Time() time.Time

	event()
}

// Modify records a new revision of a file's content.
type Modify struct {
	Path           string
	Revision       string
	Timestamp      time.Time
	IsDownloadable bool
	Size           int64  // informational, reported by the remote
	ContentHash    string // block-chained hash of the revision content, may be empty
}

// Delete records that a path no longer exists as of Timestamp.
// Delete events carry no revision.
type Delete struct {
	Path      string
	Timestamp time.Time
}

// Symlink records that a path became a symbolic link pointing at Target.
type Symlink struct {
	Path      string
	Revision  string
	Timestamp time.Time
	Target    string // remote-rooted path the link points at
}

func (e Modify) RemotePath() string  { return e.Path }
func (e Delete) RemotePath() string  { return e.Path }
func (e Symlink) RemotePath() string { return e.Path }

func (e Modify) Time() time.Time  { return e.Timestamp }
func (e Delete) Time() time.Time  { return e.Timestamp }
func (e Symlink) Time() time.Time { return e.Timestamp }

func (Modify) event()  {}
func (Delete) event()  {}
func (Symlink) event() {}

// SameDay reports whether two timestamps fall on the same calendar day
// in their local representation. Replay batches are bounded by day changes.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
