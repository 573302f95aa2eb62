package queue

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"agentsync/internal/model"
)

func testDelta(recordID string, input int64) model.MetricDelta {
	return model.MetricDelta{
		RecordID:  recordID,
		SessionID: "ses_1",
		Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Tokens:    model.TokenUsage{Input: input, Output: input / 2},
		Tools:     map[string]int{"write": 1},
		ToolStatus: map[string]model.ToolStatus{
			"write": {Success: 1},
		},
		FileOperations: []model.FileOperation{
			{Type: model.FileOpWrite, Path: "/tmp/a.go", LinesAdded: 10},
		},
		Models:      []string{"claude-sonnet-4-5"},
		UserPrompts: []model.UserPrompt{{Text: "do the thing", Count: 1}},
		SyncStatus:  model.StatusPending,
	}
}

func mustAppend(t *testing.T, q *Queue, d model.MetricDelta) {
	t.Helper()
	if _, err := q.Append(d); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestAppendAndRoundTrip(t *testing.T) {
	q := Open(t.TempDir())
	want := testDelta("rec_1", 1000)

	added, err := q.Append(want)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !added {
		t.Error("first append must report the record as added")
	}

	got, err := q.List("ses_1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("List returned %d records, want 1", len(got))
	}
	if !reflect.DeepEqual(got[0], want) {
		t.Errorf("round trip mismatch:\n got:  %+v\n want: %+v", got[0], want)
	}
}

func TestAppendDeduplicatesByRecordID(t *testing.T) {
	q := Open(t.TempDir())

	mustAppend(t, q, testDelta("rec_1", 1000))
	// Same record id, different payload: a no-op that reports false.
	added, err := q.Append(testDelta("rec_1", 9999))
	if err != nil {
		t.Fatalf("duplicate append should not error: %v", err)
	}
	if added {
		t.Error("duplicate append must report the record as not added")
	}

	got, err := q.List("ses_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[0].Tokens.Input != 1000 {
		t.Errorf("first append must win, got input=%d", got[0].Tokens.Input)
	}
}

func TestAppendForcesPendingState(t *testing.T) {
	q := Open(t.TempDir())
	d := testDelta("rec_1", 100)
	d.SyncStatus = model.StatusSynced
	d.SyncAttempts = 7
	now := time.Now()
	d.SyncedAt = &now

	mustAppend(t, q, d)
	got, err := q.List("ses_1")
	if err != nil {
		t.Fatal(err)
	}
	if got[0].SyncStatus != model.StatusPending {
		t.Errorf("SyncStatus = %q, want pending", got[0].SyncStatus)
	}
	if got[0].SyncAttempts != 0 {
		t.Errorf("SyncAttempts = %d, want 0", got[0].SyncAttempts)
	}
	if got[0].SyncedAt != nil {
		t.Error("SyncedAt should be cleared on append")
	}
}

func TestListPendingPreservesAppendOrder(t *testing.T) {
	q := Open(t.TempDir())
	for _, id := range []string{"rec_1", "rec_2", "rec_3"} {
		mustAppend(t, q, testDelta(id, 100))
	}
	if err := q.MarkSynced("ses_1", []string{"rec_2"}, time.Now()); err != nil {
		t.Fatal(err)
	}

	pending, err := q.ListPending("ses_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2", len(pending))
	}
	if pending[0].RecordID != "rec_1" || pending[1].RecordID != "rec_3" {
		t.Errorf("pending order = %s, %s; want rec_1, rec_3", pending[0].RecordID, pending[1].RecordID)
	}
}

func TestMarkSynced(t *testing.T) {
	q := Open(t.TempDir())
	mustAppend(t, q, testDelta("rec_1", 100))

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := q.MarkSynced("ses_1", []string{"rec_1"}, at); err != nil {
		t.Fatal(err)
	}

	got, err := q.List("ses_1")
	if err != nil {
		t.Fatal(err)
	}
	r := got[0]
	if r.SyncStatus != model.StatusSynced {
		t.Errorf("SyncStatus = %q, want synced", r.SyncStatus)
	}
	if r.SyncAttempts != 1 {
		t.Errorf("SyncAttempts = %d, want 1 (the attempt that succeeded)", r.SyncAttempts)
	}
	if r.SyncedAt == nil || !r.SyncedAt.Equal(at) {
		t.Errorf("SyncedAt = %v, want %v", r.SyncedAt, at)
	}
}

func TestMarkRetryKeepsPending(t *testing.T) {
	q := Open(t.TempDir())
	mustAppend(t, q, testDelta("rec_1", 100))

	if err := q.MarkRetry("ses_1", []string{"rec_1"}); err != nil {
		t.Fatal(err)
	}
	if err := q.MarkRetry("ses_1", []string{"rec_1"}); err != nil {
		t.Fatal(err)
	}

	got, err := q.List("ses_1")
	if err != nil {
		t.Fatal(err)
	}
	if got[0].SyncStatus != model.StatusPending {
		t.Errorf("SyncStatus = %q, want pending after retries", got[0].SyncStatus)
	}
	if got[0].SyncAttempts != 2 {
		t.Errorf("SyncAttempts = %d, want 2", got[0].SyncAttempts)
	}
}

func TestMarkFailedIsTerminal(t *testing.T) {
	q := Open(t.TempDir())
	mustAppend(t, q, testDelta("rec_1", 100))
	if err := q.MarkFailed("ses_1", []string{"rec_1"}); err != nil {
		t.Fatal(err)
	}

	pending, err := q.ListPending("ses_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("failed record still listed as pending")
	}
}

func TestRequeueFailed(t *testing.T) {
	q := Open(t.TempDir())
	mustAppend(t, q, testDelta("rec_1", 100))
	if err := q.MarkRetry("ses_1", []string{"rec_1"}); err != nil {
		t.Fatal(err)
	}
	if err := q.MarkFailed("ses_1", []string{"rec_1"}); err != nil {
		t.Fatal(err)
	}

	n, err := q.RequeueFailed("ses_1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("requeued %d, want 1", n)
	}

	got, err := q.List("ses_1")
	if err != nil {
		t.Fatal(err)
	}
	if got[0].SyncStatus != model.StatusPending || got[0].SyncAttempts != 0 {
		t.Errorf("requeued record = status %q attempts %d, want pending/0", got[0].SyncStatus, got[0].SyncAttempts)
	}
}

func TestRecordIDsPairwiseDistinct(t *testing.T) {
	q := Open(t.TempDir())
	ids := []string{"rec_1", "rec_2", "rec_3", "rec_1", "rec_2"}
	for _, id := range ids {
		mustAppend(t, q, testDelta(id, 100))
	}

	got, err := q.List("ses_1")
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[string]struct{})
	for _, r := range got {
		if _, dup := seen[r.RecordID]; dup {
			t.Errorf("duplicate recordId %s in queue", r.RecordID)
		}
		seen[r.RecordID] = struct{}{}
	}
	if len(got) != 3 {
		t.Errorf("got %d records, want 3", len(got))
	}
}

func TestSummarize(t *testing.T) {
	q := Open(t.TempDir())
	for _, id := range []string{"rec_1", "rec_2", "rec_3"} {
		mustAppend(t, q, testDelta(id, 100))
	}
	if err := q.MarkSynced("ses_1", []string{"rec_1"}, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := q.MarkFailed("ses_1", []string{"rec_2"}); err != nil {
		t.Fatal(err)
	}

	s, err := q.Summarize("ses_1")
	if err != nil {
		t.Fatal(err)
	}
	if s.Pending != 1 || s.Synced != 1 || s.Failed != 1 || s.Total != 3 {
		t.Errorf("Summary = %+v, want 1/1/1 of 3", s)
	}
	if s.LastSync.IsZero() {
		t.Error("LastSync not set")
	}
}

func TestMissingFileIsEmptyLedger(t *testing.T) {
	q := Open(t.TempDir())
	got, err := q.List("ses_none")
	if err != nil {
		t.Fatalf("missing queue file should not error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d records, want 0", len(got))
	}
}

func TestCorruptedLineSurfacesError(t *testing.T) {
	dir := t.TempDir()
	q := Open(dir)
	mustAppend(t, q, testDelta("rec_1", 100))
	f, err := os.OpenFile(filepath.Join(dir, "ses_1.jsonl"), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	if _, err := q.List("ses_1"); err == nil {
		t.Error("corrupted queue line should surface an error")
	}
}

func TestNoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	q := Open(dir)
	mustAppend(t, q, testDelta("rec_1", 100))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}
