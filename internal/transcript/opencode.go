package transcript

import (
	"encoding/json"
	"time"

	"agentsync/internal/layout"
	"agentsync/internal/model"
)

// OpencodeReader reads opencode session storage. The on-disk layout changed
// across tool versions (legacy project tree, flat id-keyed tree, SQLite
// database, or a mix mid-upgrade); each read probes the root and dispatches
// to the matching backend.
type OpencodeReader struct {
	root string
}

// NewOpencodeReader creates a reader over the given storage root.
func NewOpencodeReader(root string) *OpencodeReader {
	return &OpencodeReader{root: root}
}

// ReadSession returns the normalized event sequence for one session.
func (r *OpencodeReader) ReadSession(sessionID string) ([]Event, error) {
	det := layout.Detect(r.root)

	var events []Event
	var err error

	switch det.Layout {
	case layout.PostMigration:
		events, err = r.readMigratedSession(sessionID)
	case layout.Legacy:
		events, err = r.readLegacySession(sessionID)
	case layout.Mixed:
		// Mid-upgrade: the session lives in one tree or the other.
		// Prefer the migrated tree; fall back to legacy.
		events, err = r.readMigratedSession(sessionID)
		if err == nil && len(events) == 0 {
			events, err = r.readLegacySession(sessionID)
		}
	case layout.SQLite:
		events, err = r.readSQLiteSession(det.DBPath, sessionID)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sortEvents(events)
	return events, nil
}

// ListSessions discovers sessions across whichever layouts are present.
func (r *OpencodeReader) ListSessions(opts ScanOptions) ([]SessionRef, error) {
	det := layout.Detect(r.root)

	var refs []SessionRef
	var err error

	switch det.Layout {
	case layout.PostMigration:
		refs, err = r.listMigratedSessions()
	case layout.Legacy:
		refs, err = r.listLegacySessions()
	case layout.Mixed:
		migrated, merr := r.listMigratedSessions()
		if merr != nil {
			return nil, merr
		}
		legacy, lerr := r.listLegacySessions()
		if lerr != nil {
			return nil, lerr
		}
		seen := make(map[string]struct{}, len(migrated))
		refs = migrated
		for _, ref := range migrated {
			seen[ref.SessionID] = struct{}{}
		}
		for _, ref := range legacy {
			if _, ok := seen[ref.SessionID]; !ok {
				refs = append(refs, ref)
			}
		}
	case layout.SQLite:
		refs, err = r.listSQLiteSessions(det.DBPath)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	filtered := refs[:0]
	for _, ref := range refs {
		if opts.matches(ref, now) {
			filtered = append(filtered, ref)
		}
	}
	sortRefs(filtered)
	return filtered, nil
}

// rawSession is the session info document.
type rawSession struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"projectID,omitempty"`
	Directory string  `json:"directory,omitempty"`
	Title     string  `json:"title,omitempty"`
	Time      rawTime `json:"time"`
}

// rawMessage is one message document. Assistant messages carry the model id
// and, on step completion, token usage.
type rawMessage struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"sessionID"`
	Role       string     `json:"role"`
	ModelID    string     `json:"modelID,omitempty"`
	ProviderID string     `json:"providerID,omitempty"`
	Time       rawTime    `json:"time"`
	Tokens     *rawTokens `json:"tokens,omitempty"`
}

// rawPart is one message part: prompt text, a tool invocation, or a
// step-finish marker.
type rawPart struct {
	ID        string        `json:"id"`
	MessageID string        `json:"messageID"`
	SessionID string        `json:"sessionID,omitempty"`
	Type      string        `json:"type"`
	Text      string        `json:"text,omitempty"`
	Tool      string        `json:"tool,omitempty"`
	CallID    string        `json:"callID,omitempty"`
	State     *rawToolState `json:"state,omitempty"`
	Tokens    *rawTokens    `json:"tokens,omitempty"`
}

type rawToolState struct {
	Status string          `json:"status"`
	Input  json.RawMessage `json:"input,omitempty"`
}

type rawToolInput struct {
	FilePath string `json:"filePath"`
	Path     string `json:"path"`
}

type rawTokens struct {
	Input     int64 `json:"input"`
	Output    int64 `json:"output"`
	Reasoning int64 `json:"reasoning"`
	Cache     struct {
		Read  int64 `json:"read"`
		Write int64 `json:"write"`
	} `json:"cache"`
}

// rawTime holds millisecond epoch timestamps.
type rawTime struct {
	Created   int64 `json:"created"`
	Updated   int64 `json:"updated,omitempty"`
	Completed int64 `json:"completed,omitempty"`
}

func (t rawTime) createdTime() time.Time {
	if t.Created == 0 {
		return time.Time{}
	}
	return time.UnixMilli(t.Created).UTC()
}

func (t rawTime) updatedTime() time.Time {
	ms := t.Updated
	if ms == 0 {
		ms = t.Created
	}
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// normalizeMessage converts one message and its parts into a normalized
// event. Token usage is taken from the step-finish part when present, falling
// back to the message's own tokens block.
func normalizeMessage(msg rawMessage, parts []rawPart, seq int) Event {
	ev := Event{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		Role:      msg.Role,
		Timestamp: msg.Time.createdTime(),
		Seq:       seq,
		Model:     msg.ModelID,
	}

	tokens := msg.Tokens
	for _, p := range parts {
		switch p.Type {
		case "text":
			if msg.Role == "user" && p.Text != "" {
				if ev.PromptText != "" {
					ev.PromptText += "\n"
				}
				ev.PromptText += p.Text
			}
		case "tool":
			call := ToolCall{Name: p.Tool}
			if p.State != nil {
				switch p.State.Status {
				case "completed":
					call.Status = CallSucceeded
				case "error":
					call.Status = CallFailed
				}
				if len(p.State.Input) > 0 {
					var in rawToolInput
					if err := json.Unmarshal(p.State.Input, &in); err == nil {
						call.FilePath = in.FilePath
						if call.FilePath == "" {
							call.FilePath = in.Path
						}
					}
				}
			}
			ev.ToolCalls = append(ev.ToolCalls, call)
		case "step-finish":
			if p.Tokens != nil {
				tokens = p.Tokens
			}
		}
	}

	if tokens != nil {
		ev.Tokens = &model.TokenUsage{
			Input:         tokens.Input,
			Output:        tokens.Output,
			CacheRead:     tokens.Cache.Read,
			CacheCreation: tokens.Cache.Write,
		}
	}
	return ev
}
