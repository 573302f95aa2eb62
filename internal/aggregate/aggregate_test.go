package aggregate

import (
	"testing"

	"agentsync/internal/model"
)

var sctx = model.SessionContext{
	SessionID: "ses_1",
	Agent:     "opencode",
	Provider:  "anthropic",
}

func TestFold_NothingPending(t *testing.T) {
	if _, ok := Fold(sctx, nil); ok {
		t.Error("empty pending list must signal nothing to sync")
	}
}

func TestFold_SingleDelta(t *testing.T) {
	pending := []model.MetricDelta{{
		RecordID:  "rec_1",
		SessionID: "ses_1",
		Tokens:    model.TokenUsage{Input: 1000, Output: 500, CacheRead: 200, CacheCreation: 100},
		Tools:     map[string]int{"write": 1, "read": 1},
		ToolStatus: map[string]model.ToolStatus{
			"write": {Success: 1},
			"read":  {Success: 1},
		},
		FileOperations: []model.FileOperation{
			{Type: model.FileOpWrite, Path: "/tmp/a.go"},
			{Type: model.FileOpRead, Path: "/tmp/b.go"},
		},
	}}

	agg, ok := Fold(sctx, pending)
	if !ok {
		t.Fatal("Fold signalled nothing to sync")
	}
	if agg.TotalInputTokens != 1000 {
		t.Errorf("TotalInputTokens = %d, want 1000", agg.TotalInputTokens)
	}
	if agg.TotalOutputTokens != 500 || agg.TotalCacheReadTokens != 200 || agg.TotalCacheCreationTokens != 100 {
		t.Errorf("token totals = %+v", agg)
	}
	if agg.TotalToolCalls != 2 {
		t.Errorf("TotalToolCalls = %d, want 2", agg.TotalToolCalls)
	}
	if agg.SuccessfulToolCalls != 2 || agg.FailedToolCalls != 0 {
		t.Errorf("tool status totals = %d/%d, want 2/0", agg.SuccessfulToolCalls, agg.FailedToolCalls)
	}
	if agg.FilesCreated != 1 {
		t.Errorf("FilesCreated = %d, want 1", agg.FilesCreated)
	}
}

func TestFold_SumsAcrossDeltas(t *testing.T) {
	pending := []model.MetricDelta{
		{RecordID: "rec_1", Tokens: model.TokenUsage{Input: 500}},
		{RecordID: "rec_2", Tokens: model.TokenUsage{Input: 300}},
	}

	agg, ok := Fold(sctx, pending)
	if !ok {
		t.Fatal("Fold signalled nothing to sync")
	}
	if agg.TotalInputTokens != 800 {
		t.Errorf("TotalInputTokens = %d, want 800", agg.TotalInputTokens)
	}
	if len(agg.RecordIDs) != 2 || agg.RecordIDs[0] != "rec_1" || agg.RecordIDs[1] != "rec_2" {
		t.Errorf("RecordIDs = %v, want [rec_1 rec_2] in append order", agg.RecordIDs)
	}
}

func TestFold_FileOperationCounters(t *testing.T) {
	pending := []model.MetricDelta{{
		RecordID: "rec_1",
		FileOperations: []model.FileOperation{
			{Type: model.FileOpWrite, LinesAdded: 10},
			{Type: model.FileOpEdit, LinesAdded: 3, LinesRemoved: 2},
			{Type: model.FileOpEdit, LinesAdded: 1},
			{Type: model.FileOpDelete},
		},
	}}

	agg, _ := Fold(sctx, pending)
	if agg.FilesCreated != 1 || agg.FilesModified != 2 || agg.FilesDeleted != 1 {
		t.Errorf("file counters = %d/%d/%d, want 1/2/1", agg.FilesCreated, agg.FilesModified, agg.FilesDeleted)
	}
	if agg.LinesAdded != 14 || agg.LinesRemoved != 2 {
		t.Errorf("line totals = +%d/-%d, want +14/-2", agg.LinesAdded, agg.LinesRemoved)
	}
}

func TestFold_RepresentativeModelIsMostRecent(t *testing.T) {
	pending := []model.MetricDelta{
		{RecordID: "rec_1", Models: []string{"claude-sonnet-4-5"}},
		{RecordID: "rec_2"},
		{RecordID: "rec_3", Models: []string{"claude-sonnet-4-5", "claude-opus-4-1"}},
	}

	agg, _ := Fold(sctx, pending)
	if agg.Model != "claude-opus-4-1" {
		t.Errorf("Model = %q, want the most recent non-empty entry", agg.Model)
	}

	// Deterministic across repeated folds.
	again, _ := Fold(sctx, pending)
	if again.Model != agg.Model {
		t.Error("representative model not deterministic")
	}
}

func TestFold_UserPromptTotals(t *testing.T) {
	pending := []model.MetricDelta{
		{RecordID: "rec_1", UserPrompts: []model.UserPrompt{{Text: "a", Count: 2}, {Text: "b", Count: 1}}},
		{RecordID: "rec_2", UserPrompts: []model.UserPrompt{{Text: "a", Count: 1}}},
	}

	agg, _ := Fold(sctx, pending)
	if agg.TotalUserPrompts != 4 {
		t.Errorf("TotalUserPrompts = %d, want 4", agg.TotalUserPrompts)
	}
}

func TestFold_CarriesSessionContext(t *testing.T) {
	agg, _ := Fold(sctx, []model.MetricDelta{{RecordID: "rec_1", Tokens: model.TokenUsage{Input: 1}}})
	if agg.SessionID != "ses_1" || agg.Agent != "opencode" || agg.Provider != "anthropic" {
		t.Errorf("context not carried: %+v", agg)
	}
}
