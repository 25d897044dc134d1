// Package session manages per-request filesystem namespaces. Each
// session isolates one user's uploaded file, intermediate state and
// output artifacts under a short random directory name.
package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is a per-request namespace. Identifiers are short random
// tokens with no uniqueness guarantee beyond collision probability.
type Session struct {
	ID        string
	InputDir  string
	OutputDir string
	TempDir   string
	CreatedAt time.Time
}

// Store allocates session directory trees under a configured root.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore creates a session store rooted at the given directory.
func NewStore(root string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		root:   root,
		logger: logger.With(slog.String("component", "session_store")),
	}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Create allocates a new session with input/, output/ and temp/
// directories. Directory creation is idempotent. If the randomly
// chosen id already exists on disk, one retry is made with a fresh id.
func (s *Store) Create() (*Session, error) {
	for attempt := 0; attempt < 2; attempt++ {
		id := newID()
		dir := filepath.Join(s.root, id)
		if _, err := os.Stat(dir); err == nil {
			continue
		}

		sess, err := s.materialize(id)
		if err != nil {
			return nil, err
		}
		s.logger.Info("session created",
			slog.String("session_id", sess.ID),
			slog.String("dir", dir))
		return sess, nil
	}
	return nil, fmt.Errorf("session id collision after retry")
}

// Reset discards the old session's in-memory state and allocates a
// fresh one. The old session's files are left in place; only the
// time-based sweep removes them.
func (s *Store) Reset(old *Session) (*Session, error) {
	sess, err := s.Create()
	if err != nil {
		return nil, err
	}
	if old != nil {
		s.logger.Info("session reset",
			slog.String("old_session_id", old.ID),
			slog.String("new_session_id", sess.ID))
	}
	return sess, nil
}

// Get rebuilds the Session handle for an existing id, or returns an
// error if the session directory does not exist.
func (s *Store) Get(id string) (*Session, error) {
	if !validID(id) {
		return nil, fmt.Errorf("invalid session id: %q", id)
	}
	dir := filepath.Join(s.root, id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return &Session{
		ID:        id,
		InputDir:  filepath.Join(dir, "input"),
		OutputDir: filepath.Join(dir, "output"),
		TempDir:   filepath.Join(dir, "temp"),
		CreatedAt: info.ModTime(),
	}, nil
}

// Sweep removes session directories whose modification time is older
// than maxAge. Best effort: individual failures are logged and
// skipped, never returned. Returns the number of sessions removed.
func (s *Store) Sweep(maxAge time.Duration) int {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Warn("sweep skipped", slog.String("error", err.Error()))
		return 0
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(s.root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("sweep failed for session",
				slog.String("dir", dir),
				slog.String("error", err.Error()))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("session sweep completed", slog.Int("removed", removed))
	}
	return removed
}

func (s *Store) materialize(id string) (*Session, error) {
	dir := filepath.Join(s.root, id)
	sess := &Session{
		ID:        id,
		InputDir:  filepath.Join(dir, "input"),
		OutputDir: filepath.Join(dir, "output"),
		TempDir:   filepath.Join(dir, "temp"),
		CreatedAt: time.Now(),
	}
	for _, d := range []string{sess.InputDir, sess.OutputDir, sess.TempDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create session directory %s: %w", d, err)
		}
	}
	return sess, nil
}

// newID returns the first 8 hex characters of a UUID. A variable so
// tests can force id collisions.
var newID = func() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

func validID(id string) bool {
	if len(id) != 8 {
		return false
	}
	for _, r := range id {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
