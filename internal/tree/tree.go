// Package tree implements the filesystem primitives the replay engine uses to
// materialize events under the target dataset root.
package tree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// metaEntry is the snapshot control directory the filesystem exposes inside
// the dataset root. It is not a real file and never counts toward emptiness.
const metaEntry = ".zfs"

// Tree is the target directory subtree. All mutations during replay go
// through it. Paths passed to its methods are remote-rooted ("/a/b.txt");
// they are resolved against Root.
type Tree struct {
	root string
}

// New returns a Tree rooted at root. The directory must already exist.
// The root is cleaned so the ancestor walks in SetMTime and
// CleanupAfterDelete stop exactly at the boundary.
func New(root string) (*Tree, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat target root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("target root is not a directory: %s", root)
	}
	return &Tree{root: root}, nil
}

// Root returns the absolute root of the tree.
func (t *Tree) Root() string { return t.root }

// Abs resolves a remote-rooted path to an absolute local path under the root.
func (t *Tree) Abs(remotePath string) string {
	return filepath.Join(t.root, strings.TrimPrefix(remotePath, "/"))
}

// IsEmpty reports whether dir contains no entries, ignoring the filesystem's
// internal snapshot metadata entry. A missing directory counts as empty.
func IsEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return true
	}
	for _, entry := range entries {
		if entry.Name() == metaEntry {
			continue
		}
		return false
	}
	return true
}

// IsEmpty reports whether the tree root holds no replayed content yet.
func (t *Tree) IsEmpty() bool {
	return IsEmpty(t.root)
}

// Exists reports whether path currently resolves to a regular file.
// Symlinks are followed, so a live symlink counts and a dangling one does not.
func (t *Tree) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Truncate creates an empty placeholder file at path, creating any missing
// parent directories. An existing file is emptied.
func (t *Tree) Truncate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating parent directories: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating placeholder: %w", err)
	}
	return f.Close()
}

// SetMTime sets the access and modification time of path. When updateParents
// is true the same time is applied to every ancestor directory up to, but
// excluding, the tree root. Parents are updated when a new file appears so
// directory times track content creation.
func (t *Tree) SetMTime(path string, mtime time.Time, updateParents bool) error {
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		return fmt.Errorf("setting mtime: %w", err)
	}
	if !updateParents {
		return nil
	}
	for parent := filepath.Dir(path); parent != t.root && parent != string(filepath.Separator); parent = filepath.Dir(parent) {
		if err := os.Chtimes(parent, mtime, mtime); err != nil {
			return fmt.Errorf("setting parent mtime: %w", err)
		}
	}
	return nil
}

// Symlink replaces whatever is at path with a symbolic link pointing at the
// resolved target path.
func (t *Tree) Symlink(path, target string) error {
	if err := t.Truncate(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing placeholder: %w", err)
	}
	if err := os.Symlink(target, path); err != nil {
		return fmt.Errorf("creating symlink: %w", err)
	}
	return nil
}

// Remove deletes the file at path.
func (t *Tree) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing file: %w", err)
	}
	return nil
}

// CleanupAfterDelete walks ancestor directories of a deleted path up to the
// tree root. Empty ancestors are removed; ancestors that still hold content
// get their modification time set to the delete timestamp.
func (t *Tree) CleanupAfterDelete(path string, mtime time.Time) error {
	for parent := filepath.Dir(path); parent != t.root && parent != string(filepath.Separator); parent = filepath.Dir(parent) {
		info, err := os.Lstat(parent)
		if err != nil || !info.IsDir() {
			continue
		}

		if IsEmpty(parent) {
			if err := os.Remove(parent); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing empty directory: %w", err)
			}
			continue
		}

		if err := os.Chtimes(parent, mtime, mtime); err != nil {
			return fmt.Errorf("updating directory mtime: %w", err)
		}
	}
	return nil
}
