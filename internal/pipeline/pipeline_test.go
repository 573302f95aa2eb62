package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"agentsync/internal/checkpoint"
	"agentsync/internal/model"
	"agentsync/internal/queue"
	"agentsync/internal/syncer"
	"agentsync/internal/transcript"
)

// newPipeline wires a pipeline over temp storage with one opencode reader
// whose root the test populates.
func newPipeline(t *testing.T) (*Pipeline, string) {
	t.Helper()
	dataDir := t.TempDir()
	storageRoot := t.TempDir()
	p := &Pipeline{
		Queue:        queue.Open(filepath.Join(dataDir, "queues")),
		Checkpoints:  checkpoint.NewStore(filepath.Join(dataDir, "checkpoints")),
		Readers:      map[string]transcript.Reader{"opencode": transcript.NewOpencodeReader(storageRoot)},
		MaxAttempts:  3,
		defaultAgent: "opencode",
	}
	return p, storageRoot
}

func writeDoc(t *testing.T, path string, v any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

// seedSession writes a session with one user message and one assistant
// message carrying token usage, at the given millisecond timestamps.
func seedSession(t *testing.T, root, sessionID string, userMs, asstMs int64, input int64) {
	t.Helper()
	writeDoc(t, filepath.Join(root, "session", sessionID+".json"), map[string]any{
		"id":   sessionID,
		"time": map[string]int64{"created": userMs, "updated": asstMs},
	})
	userID := sessionID + "-u" + strconv.FormatInt(userMs, 10)
	writeDoc(t, filepath.Join(root, "message", sessionID, userID+".json"), map[string]any{
		"id":   userID,
		"role": "user",
		"time": map[string]int64{"created": userMs},
	})
	writeDoc(t, filepath.Join(root, "part", userID, "prt_1.json"), map[string]any{
		"type": "text",
		"text": "do the thing",
	})
	asstID := sessionID + "-a" + strconv.FormatInt(asstMs, 10)
	writeDoc(t, filepath.Join(root, "message", sessionID, asstID+".json"), map[string]any{
		"id":      asstID,
		"role":    "assistant",
		"modelID": "claude-sonnet-4-5",
		"time":    map[string]int64{"created": asstMs},
		"tokens":  map[string]any{"input": input, "output": int64(10)},
	})
}

func TestPipeline_ExtractIsIdempotent(t *testing.T) {
	p, root := newPipeline(t)
	seedSession(t, root, "ses_1", 1000, 2000, 100)
	sctx := model.SessionContext{SessionID: "ses_1", Agent: "opencode"}

	n, err := p.Extract(sctx, p.Readers["opencode"])
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("first extraction appended %d deltas, want 1", n)
	}

	// Re-running over unchanged storage must observe nothing new.
	n, err = p.Extract(sctx, p.Readers["opencode"])
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second extraction appended %d deltas, want 0", n)
	}

	records, err := p.Queue.List("ses_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("queue holds %d records, want 1", len(records))
	}
}

func TestPipeline_ExtractAdvancesCheckpoint(t *testing.T) {
	p, root := newPipeline(t)
	seedSession(t, root, "ses_1", 1000, 2000, 100)
	sctx := model.SessionContext{SessionID: "ses_1", Agent: "opencode"}

	if _, err := p.Extract(sctx, p.Readers["opencode"]); err != nil {
		t.Fatal(err)
	}
	cur, err := p.Checkpoints.Load("ses_1")
	if err != nil {
		t.Fatal(err)
	}
	if cur == nil {
		t.Fatal("no checkpoint after extraction")
	}
	if cur.LastEventID != "ses_1-a2000" {
		t.Errorf("checkpoint LastEventID = %q, want the newest event", cur.LastEventID)
	}

	// New activity after the checkpoint yields exactly one more delta.
	seedSession(t, root, "ses_1", 3000, 4000, 250)
	n, err := p.Extract(sctx, p.Readers["opencode"])
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("appended %d deltas for new activity, want 1", n)
	}

	records, _ := p.Queue.List("ses_1")
	if len(records) != 2 {
		t.Fatalf("queue holds %d records, want 2", len(records))
	}
	// The second delta covers only the new window.
	if records[1].Tokens.Input != 250 {
		t.Errorf("second delta input tokens = %d, want 250", records[1].Tokens.Input)
	}
}

func pendingInputTotal(t *testing.T, p *Pipeline, sessionID string) (int64, int) {
	t.Helper()
	pending, err := p.Queue.ListPending(sessionID)
	if err != nil {
		t.Fatal(err)
	}
	var total int64
	for _, d := range pending {
		total += d.Tokens.Input
	}
	return total, len(pending)
}

func TestPipeline_ResetThenExtractDoesNotDoubleReport(t *testing.T) {
	p, root := newPipeline(t)
	sctx := model.SessionContext{SessionID: "ses_1", Agent: "opencode"}
	reader := p.Readers["opencode"]

	// Two incremental extractions over growing storage.
	seedSession(t, root, "ses_1", 1000, 2000, 100)
	if _, err := p.Extract(sctx, reader); err != nil {
		t.Fatal(err)
	}
	seedSession(t, root, "ses_1", 3000, 4000, 250)
	if _, err := p.Extract(sctx, reader); err != nil {
		t.Fatal(err)
	}
	if total, n := pendingInputTotal(t, p, "ses_1"); total != 350 || n != 2 {
		t.Fatalf("after two extractions: pending input = %d over %d records, want 350 over 2", total, n)
	}

	// Resetting the checkpoint re-reads the whole transcript; every
	// re-derived record id already exists, so nothing is appended.
	if err := p.Checkpoints.Reset("ses_1"); err != nil {
		t.Fatal(err)
	}
	n, err := p.Extract(sctx, reader)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("re-extraction after reset appended %d deltas, want 0", n)
	}
	if total, count := pendingInputTotal(t, p, "ses_1"); total != 350 || count != 2 {
		t.Errorf("pending input tokens total = %d over %d records, want 350 over 2 (usage double-reported after reset)", total, count)
	}
}

func TestPipeline_ReExtractAfterLostCheckpointSave(t *testing.T) {
	p, root := newPipeline(t)
	sctx := model.SessionContext{SessionID: "ses_1", Agent: "opencode"}
	reader := p.Readers["opencode"]

	seedSession(t, root, "ses_1", 1000, 2000, 100)
	if _, err := p.Extract(sctx, reader); err != nil {
		t.Fatal(err)
	}

	// Deltas were appended but the checkpoint save never landed; new
	// events arrive before the next run.
	if err := p.Checkpoints.Reset("ses_1"); err != nil {
		t.Fatal(err)
	}
	seedSession(t, root, "ses_1", 3000, 4000, 250)

	n, err := p.Extract(sctx, reader)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("re-entry appended %d deltas, want only the new turn", n)
	}
	if total, count := pendingInputTotal(t, p, "ses_1"); total != 350 || count != 2 {
		t.Errorf("pending input tokens total = %d over %d records, want 350 over 2", total, count)
	}
}

func TestPipeline_SyncDryRun(t *testing.T) {
	p, root := newPipeline(t)
	seedSession(t, root, "ses_1", 1000, 2000, 100)

	res, err := p.Sync(context.Background(), model.SessionContext{
		SessionID: "ses_1",
		Agent:     "opencode",
		DryRun:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}
	proc := res.ProcessorResults["opencode"]
	if proc.Synced != 1 {
		t.Errorf("processor result = %+v, want 1 synced", proc)
	}

	records, _ := p.Queue.List("ses_1")
	if records[0].SyncStatus != model.StatusSynced {
		t.Errorf("status = %q, want synced", records[0].SyncStatus)
	}
}

func TestPipeline_SyncWithoutEndpoint(t *testing.T) {
	p, root := newPipeline(t)
	seedSession(t, root, "ses_1", 1000, 2000, 100)

	res, err := p.Sync(context.Background(), model.SessionContext{SessionID: "ses_1", Agent: "opencode"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Errorf("result = %+v, want failure without a transport", res)
	}
	if proc := res.ProcessorResults["opencode"]; proc.Pending != 1 {
		t.Errorf("processor result = %+v, want 1 pending reported", proc)
	}

	// The extraction still happened; the deltas wait in the queue.
	pending, _ := p.Queue.ListPending("ses_1")
	if len(pending) != 1 {
		t.Errorf("queue holds %d pending records, want 1", len(pending))
	}
}

func TestPipeline_SyncDefaultsAgent(t *testing.T) {
	p, root := newPipeline(t)
	seedSession(t, root, "ses_1", 1000, 2000, 100)

	res, err := p.Sync(context.Background(), model.SessionContext{SessionID: "ses_1", DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Errorf("result = %+v, want success via default agent", res)
	}
}

func TestPipeline_SyncUnknownAgent(t *testing.T) {
	p, _ := newPipeline(t)
	res, err := p.Sync(context.Background(), model.SessionContext{SessionID: "ses_1", Agent: "mystery"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Errorf("result = %+v, want failure for unknown agent", res)
	}
}

func TestPipeline_SyncAll(t *testing.T) {
	p, root := newPipeline(t)
	seedSession(t, root, "ses_1", 1000, 2000, 100)
	seedSession(t, root, "ses_2", 3000, 4000, 200)
	p.Transport = syncer.NopTransport{}

	res, err := p.SyncAll(context.Background(), transcript.ScanOptions{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}
	if len(res.ProcessorResults) != 2 {
		t.Errorf("got %d per-session results, want 2", len(res.ProcessorResults))
	}
	for _, id := range []string{"ses_1", "ses_2"} {
		records, err := p.Queue.List(id)
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 1 || records[0].SyncStatus != model.StatusSynced {
			t.Errorf("session %s records = %+v", id, records)
		}
	}
}

func TestPipeline_MostRecentSession(t *testing.T) {
	p, root := newPipeline(t)
	seedSession(t, root, "ses_old", 1000, 2000, 100)
	seedSession(t, root, "ses_new", 5000, 9000, 200)

	s, ok := p.MostRecentSession(0)
	if !ok {
		t.Fatal("no session discovered")
	}
	if s.SessionID != "ses_new" {
		t.Errorf("most recent = %s, want ses_new", s.SessionID)
	}
}
