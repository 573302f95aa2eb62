// Package extract converts the transcript events strictly after a session's
// checkpoint into normalized metric deltas.
package extract

import (
	"github.com/google/uuid"

	"agentsync/internal/checkpoint"
	"agentsync/internal/model"
	"agentsync/internal/transcript"
)

// recordNamespace seeds deterministic record id derivation. RecordID is a
// pure function of event identity: re-extracting the same turn always yields
// the same id, so the queue can reject re-appends.
var recordNamespace = uuid.MustParse("b2f1a9d4-5c83-4e6f-9a07-3d2e8c41f6b0")

const assistantRole = "assistant"

// fileOps statically classifies tool names whose semantic is a file
// operation. Both the opencode and Claude tool vocabularies are covered.
var fileOps = map[string]model.FileOpType{
	"write":        model.FileOpWrite,
	"Write":        model.FileOpWrite,
	"edit":         model.FileOpEdit,
	"Edit":         model.FileOpEdit,
	"MultiEdit":    model.FileOpEdit,
	"NotebookEdit": model.FileOpEdit,
	"patch":        model.FileOpEdit,
	"read":         model.FileOpRead,
	"Read":         model.FileOpRead,
	"delete":       model.FileOpDelete,
	"remove":       model.FileOpDelete,
}

// After returns the events strictly after the cursor. The cursor's event id
// anchors the position; when the id is no longer present (storage rewritten
// upstream), the timestamp is the fallback boundary.
func After(events []transcript.Event, c *checkpoint.Cursor) []transcript.Event {
	if c == nil || c.LastEventID == "" {
		return events
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].ID == c.LastEventID {
			return events[i+1:]
		}
	}
	var out []transcript.Event
	for _, ev := range events {
		if ev.Timestamp.After(c.LastTimestamp) {
			out = append(out, ev)
		}
	}
	return out
}

// Extract folds the window's completed turns into deltas, one per turn. A
// turn is an assistant event plus the non-assistant events leading up to it;
// events after the window's last assistant event belong to a turn still in
// flight and are left for a later window.
//
// Each delta's record id is derived from the anchoring assistant event
// alone, never from window boundaries. Turn grouping depends only on the
// event sequence, so re-extraction over any window (after a checkpoint
// reset, or a re-run whose previous checkpoint save never landed) re-derives
// identical record ids and the queue's dedup drops them. A turn with no
// reportable usage yields no delta.
func Extract(sessionID, agentSessionID string, events []transcript.Event) []model.MetricDelta {
	var deltas []model.MetricDelta
	start := 0
	for i, ev := range events {
		if ev.Role != assistantRole {
			continue
		}
		d := foldTurn(sessionID, agentSessionID, events[start:i+1], ev)
		start = i + 1
		if !d.Empty() {
			deltas = append(deltas, d)
		}
	}
	return deltas
}

// foldTurn folds one turn's events into a delta anchored on the turn's
// assistant event.
func foldTurn(sessionID, agentSessionID string, turn []transcript.Event, anchor transcript.Event) model.MetricDelta {
	d := model.MetricDelta{
		RecordID:       recordID(sessionID, anchor.ID),
		SessionID:      sessionID,
		AgentSessionID: agentSessionID,
		Timestamp:      anchor.Timestamp,
		SyncStatus:     model.StatusPending,
	}

	for _, ev := range turn {
		// Only events explicitly carrying usage data contribute tokens.
		if ev.Tokens != nil {
			d.Tokens.Add(*ev.Tokens)
		}

		if ev.Model != "" && (len(d.Models) == 0 || d.Models[len(d.Models)-1] != ev.Model) {
			d.Models = append(d.Models, ev.Model)
		}

		for _, call := range ev.ToolCalls {
			if call.Name == "" {
				continue
			}
			if d.Tools == nil {
				d.Tools = make(map[string]int)
				d.ToolStatus = make(map[string]model.ToolStatus)
			}
			d.Tools[call.Name]++

			// An invocation with no paired completion never finished;
			// it is not assumed successful.
			st := d.ToolStatus[call.Name]
			if call.Status == transcript.CallSucceeded {
				st.Success++
			} else {
				st.Failure++
			}
			d.ToolStatus[call.Name] = st

			if op, ok := fileOps[call.Name]; ok && call.FilePath != "" {
				d.FileOperations = append(d.FileOperations, model.FileOperation{
					Type:         op,
					Path:         call.FilePath,
					LinesAdded:   call.LinesAdded,
					LinesRemoved: call.LinesRemoved,
				})
			}
		}

		if ev.PromptText != "" {
			n := len(d.UserPrompts)
			if n > 0 && d.UserPrompts[n-1].Text == ev.PromptText {
				d.UserPrompts[n-1].Count++
			} else {
				d.UserPrompts = append(d.UserPrompts, model.UserPrompt{Text: ev.PromptText, Count: 1})
			}
		}
	}
	return d
}

// NewCursor returns the cursor covering every completed turn in the window:
// it stops at the last assistant event, never past it, so events from a turn
// still in flight are re-read next time. Reports false when the window holds
// no assistant event and the checkpoint must not move.
func NewCursor(events []transcript.Event) (checkpoint.Cursor, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Role == assistantRole {
			return checkpoint.Cursor{
				LastEventID:   events[i].ID,
				LastTimestamp: events[i].Timestamp,
			}, true
		}
	}
	return checkpoint.Cursor{}, false
}

// recordID derives the dedup key from the session id and the anchoring
// event's id.
func recordID(sessionID, eventID string) string {
	return uuid.NewSHA1(recordNamespace, []byte(sessionID+"|"+eventID)).String()
}
