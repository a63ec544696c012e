// Package authstore manages the on-disk credential material that lets a
// session reconnect without re-pairing. One opaque directory per session id
// under a fixed root; the messaging client owns the contents, this package
// only knows about existence and removal.
package authstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Store struct {
	Root string
}

func New(root string) *Store {
	return &Store{Root: root}
}

// LocationFor returns the credential directory for a session. Derived from
// the id alone so the same session always maps to the same path.
func (s *Store) LocationFor(id string) string {
	return filepath.Join(s.Root, id)
}

// Exists reports whether non-empty credential material is present. An empty
// directory counts as absent: it means pairing never completed.
func (s *Store) Exists(id string) bool {
	entries, err := os.ReadDir(s.LocationFor(id))
	if err != nil {
		return false
	}
	return len(entries) > 0
}

// Ensure creates the credential directory so the client can write into it.
func (s *Store) Ensure(id string) (string, error) {
	dir := s.LocationFor(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create auth dir for %s: %w", id, err)
	}
	return dir, nil
}

// Delete removes a session's credential material. Best effort: the caller's
// broader operation (session deletion) proceeds even if this fails, so the
// error is returned for logging only.
func (s *Store) Delete(id string) error {
	return os.RemoveAll(s.LocationFor(id))
}

// MarkBackup drops a timestamp marker after a successful connect. Purely
// informational; restores never read it.
func (s *Store) MarkBackup(id string) error {
	dir, err := s.Ensure(id)
	if err != nil {
		return err
	}
	stamp := time.Now().UTC().Format(time.RFC3339) + "\n"
	return os.WriteFile(filepath.Join(dir, ".last-connected"), []byte(stamp), 0o644)
}
