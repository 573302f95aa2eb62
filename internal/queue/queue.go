// Package queue is the durable per-session ledger of metric deltas and their
// sync lifecycle. Each session owns one newline-delimited JSON file holding
// the full delta history: pending, synced, and failed records all remain for
// audit.
//
// Overlapping invocations (a session-end hook and a manual sync command) may
// read and mutate the same file. Every mutation re-reads the current on-disk
// content, transforms it in memory, and atomically replaces the file via a
// temp-path rename, so readers never observe a partial record and a crash
// mid-write leaves the prior valid file intact.
package queue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentsync/internal/model"
)

// Queue stores one ledger file per session under a directory.
type Queue struct {
	dir string
}

// Open returns a queue rooted at dir. The directory is created lazily on
// first append.
func Open(dir string) *Queue {
	return &Queue{dir: dir}
}

func (q *Queue) path(sessionID string) string {
	return filepath.Join(q.dir, sessionID+".jsonl")
}

// Append adds one record with pending status and zero attempts. A record
// whose id is already present is dropped: re-extraction of already-captured
// data reports false, not an error.
func (q *Queue) Append(delta model.MetricDelta) (bool, error) {
	delta.SyncStatus = model.StatusPending
	delta.SyncAttempts = 0
	delta.SyncedAt = nil

	appended := false
	err := q.mutate(delta.SessionID, func(records []model.MetricDelta) []model.MetricDelta {
		for _, r := range records {
			if r.RecordID == delta.RecordID {
				return records
			}
		}
		appended = true
		return append(records, delta)
	})
	if err != nil {
		return false, err
	}
	return appended, nil
}

// List returns every record for a session in append order.
func (q *Queue) List(sessionID string) ([]model.MetricDelta, error) {
	return q.load(sessionID)
}

// ListPending returns the session's pending records in append order.
func (q *Queue) ListPending(sessionID string) ([]model.MetricDelta, error) {
	records, err := q.load(sessionID)
	if err != nil {
		return nil, err
	}
	var pending []model.MetricDelta
	for _, r := range records {
		if r.SyncStatus == model.StatusPending {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

// MarkSynced transitions the matching records to synced, records the sync
// time, and counts the successful attempt.
func (q *Queue) MarkSynced(sessionID string, recordIDs []string, syncedAt time.Time) error {
	at := syncedAt.UTC()
	return q.mutateIDs(sessionID, recordIDs, func(r *model.MetricDelta) {
		r.SyncStatus = model.StatusSynced
		r.SyncAttempts++
		r.SyncedAt = &at
	})
}

// MarkRetry counts a failed attempt; the records stay pending.
func (q *Queue) MarkRetry(sessionID string, recordIDs []string) error {
	return q.mutateIDs(sessionID, recordIDs, func(r *model.MetricDelta) {
		r.SyncAttempts++
	})
}

// MarkFailed transitions the matching records to failed. Failed records are
// never retried automatically; RequeueFailed is the manual resubmission path.
func (q *Queue) MarkFailed(sessionID string, recordIDs []string) error {
	return q.mutateIDs(sessionID, recordIDs, func(r *model.MetricDelta) {
		r.SyncStatus = model.StatusFailed
	})
}

// RequeueFailed flips every failed record back to pending with attempts
// reset, returning how many were requeued.
func (q *Queue) RequeueFailed(sessionID string) (int, error) {
	n := 0
	err := q.mutate(sessionID, func(records []model.MetricDelta) []model.MetricDelta {
		for i := range records {
			if records[i].SyncStatus == model.StatusFailed {
				records[i].SyncStatus = model.StatusPending
				records[i].SyncAttempts = 0
				records[i].SyncedAt = nil
				n++
			}
		}
		return records
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Summary is the per-session ledger breakdown surfaced to status commands.
type Summary struct {
	SessionID string
	Pending   int
	Synced    int
	Failed    int
	Total     int
	LastSync  time.Time
}

// Summarize returns the session's ledger breakdown.
func (q *Queue) Summarize(sessionID string) (Summary, error) {
	records, err := q.load(sessionID)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{SessionID: sessionID, Total: len(records)}
	for _, r := range records {
		switch r.SyncStatus {
		case model.StatusPending:
			s.Pending++
		case model.StatusSynced:
			s.Synced++
		case model.StatusFailed:
			s.Failed++
		}
		if r.SyncedAt != nil && r.SyncedAt.After(s.LastSync) {
			s.LastSync = *r.SyncedAt
		}
	}
	return s, nil
}

// Sessions lists every session id with a ledger file.
func (q *Queue) Sessions() ([]string, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".jsonl"))
	}
	return ids, nil
}

// load reads the current ledger. A missing file is an empty ledger; a
// malformed line means the file was modified outside the pipeline and is
// surfaced as an error rather than silently dropped on the next rewrite.
func (q *Queue) load(sessionID string) ([]model.MetricDelta, error) {
	f, err := os.Open(q.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening queue: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []model.MetricDelta
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r model.MetricDelta
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("queue %s line %d corrupted: %w", sessionID, lineNo, err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading queue: %w", err)
	}
	return records, nil
}

// mutate runs one read-transform-replace cycle against the current on-disk
// content.
func (q *Queue) mutate(sessionID string, fn func([]model.MetricDelta) []model.MetricDelta) error {
	records, err := q.load(sessionID)
	if err != nil {
		return err
	}
	return q.replace(sessionID, fn(records))
}

func (q *Queue) mutateIDs(sessionID string, recordIDs []string, fn func(*model.MetricDelta)) error {
	ids := make(map[string]struct{}, len(recordIDs))
	for _, id := range recordIDs {
		ids[id] = struct{}{}
	}
	return q.mutate(sessionID, func(records []model.MetricDelta) []model.MetricDelta {
		for i := range records {
			if _, ok := ids[records[i].RecordID]; ok {
				fn(&records[i])
			}
		}
		return records
	})
}

// replace writes the full ledger to a temp path and renames it over the
// original.
func (q *Queue) replace(sessionID string, records []model.MetricDelta) error {
	if err := os.MkdirAll(q.dir, 0o755); err != nil {
		return fmt.Errorf("creating queue dir: %w", err)
	}

	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding record %s: %w", r.RecordID, err)
		}
	}

	path := q.path(sessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(buf.String()), 0o600); err != nil {
		return fmt.Errorf("writing queue: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing queue: %w", err)
	}
	return nil
}
