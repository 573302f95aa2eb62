// Package checkpoint persists per-session extraction cursors. A cursor marks
// the last transcript event already converted into deltas, so re-entry picks
// up strictly after it instead of reprocessing the whole session.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cursor marks the extraction position within a session's event stream.
// It advances monotonically and is never rolled back except by Reset.
type Cursor struct {
	LastEventID   string    `json:"lastEventId"`
	LastTimestamp time.Time `json:"lastTimestamp"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Store holds one cursor file per session under a directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created lazily on
// first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Load returns the session's cursor, or nil when no extraction has happened
// yet.
func (s *Store) Load(sessionID string) (*Cursor, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing checkpoint: %w", err)
	}
	return &c, nil
}

// Save atomically replaces the session's cursor. A crash mid-save leaves the
// prior cursor intact, so the checkpoint never advances past un-persisted
// queue data.
func (s *Store) Save(sessionID string, c Cursor) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating checkpoint dir: %w", err)
	}

	c.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	path := s.path(sessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing checkpoint: %w", err)
	}
	return nil
}

// Reset removes the session's cursor so the next extraction starts from the
// beginning. This is the only permitted rollback.
func (s *Store) Reset(sessionID string) error {
	err := os.Remove(s.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing checkpoint: %w", err)
	}
	return nil
}
