// Package transcript reads agent session transcripts and exposes them as a
// normalized, time-ordered event stream regardless of the underlying storage
// layout.
package transcript

import (
	"sort"
	"time"

	"agentsync/internal/model"
)

// Event is one normalized transcript event. Every reader backend produces
// this shape; downstream code never sees layout-specific records.
type Event struct {
	ID        string
	SessionID string
	Role      string // "user", "assistant", "system"
	Timestamp time.Time
	Seq       int // insertion/row order, stable tie-break for sorting

	Model      string
	Tokens     *model.TokenUsage // present only on events carrying usage data
	ToolCalls  []ToolCall
	PromptText string
}

// ToolCall is one tool invocation with its paired completion status.
type ToolCall struct {
	Name         string
	Status       CallStatus
	FilePath     string // declared target file argument, when the tool has one
	LinesAdded   int
	LinesRemoved int
}

// CallStatus is the completion outcome of a tool invocation.
type CallStatus string

const (
	CallSucceeded CallStatus = "success"
	CallFailed    CallStatus = "failure"
	// CallUnknown means no completion record was paired with the
	// invocation. Downstream accounting treats it as a failure: an
	// invocation that never finished is not assumed successful.
	CallUnknown CallStatus = ""
)

// SessionRef identifies a discovered session.
type SessionRef struct {
	SessionID  string
	FilePath   string
	WorkingDir string
	UpdatedAt  time.Time
}

// ScanOptions filter session discovery. Zero values disable a filter.
type ScanOptions struct {
	MaxAge time.Duration // only sessions updated within this window
	Cwd    string        // only sessions whose working directory matches
}

func (o ScanOptions) matches(ref SessionRef, now time.Time) bool {
	if o.MaxAge > 0 && !ref.UpdatedAt.IsZero() && now.Sub(ref.UpdatedAt) > o.MaxAge {
		return false
	}
	if o.Cwd != "" && ref.WorkingDir != o.Cwd {
		return false
	}
	return true
}

// Reader yields normalized events for one agent's storage.
//
// ReadSession returns the full ascending-by-time event sequence for a known
// session. A missing storage root yields an empty slice, not an error.
// ListSessions discovers which sessions exist, newest first.
type Reader interface {
	ReadSession(sessionID string) ([]Event, error)
	ListSessions(opts ScanOptions) ([]SessionRef, error)
}

// sortEvents orders events by creation time ascending, breaking ties by the
// stable Seq key so repeated reads of immutable data are deterministic.
func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Seq < events[j].Seq
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// sortRefs orders session refs most recently updated first.
func sortRefs(refs []SessionRef) {
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].UpdatedAt.After(refs[j].UpdatedAt)
	})
}
