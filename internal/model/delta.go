// Package model defines the metric delta records and sync results shared
// across the pipeline.
package model

import "time"

// SyncStatus is the lifecycle state of a queued delta.
type SyncStatus string

const (
	// StatusPending marks a delta that has not been reported yet.
	StatusPending SyncStatus = "pending"
	// StatusSynced marks a delta acknowledged by the remote endpoint.
	StatusSynced SyncStatus = "synced"
	// StatusFailed marks a delta that will not be retried automatically.
	StatusFailed SyncStatus = "failed"
)

// TokenUsage holds token counts for one delta window.
// Absent fields marshal as 0 and are treated as 0 downstream.
type TokenUsage struct {
	Input         int64 `json:"input"`
	Output        int64 `json:"output"`
	CacheRead     int64 `json:"cacheRead"`
	CacheCreation int64 `json:"cacheCreation"`
}

// Add accumulates another usage block into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.Input += other.Input
	u.Output += other.Output
	u.CacheRead += other.CacheRead
	u.CacheCreation += other.CacheCreation
}

// ToolStatus counts completions of a single tool by outcome.
// Invariant: Success+Failure equals the invocation count for that tool.
type ToolStatus struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
}

// FileOpType classifies a file-touching tool invocation.
type FileOpType string

const (
	FileOpWrite  FileOpType = "write"
	FileOpRead   FileOpType = "read"
	FileOpEdit   FileOpType = "edit"
	FileOpDelete FileOpType = "delete"
)

// FileOperation is one file-touching tool invocation observed in a delta.
type FileOperation struct {
	Type         FileOpType `json:"type"`
	Path         string     `json:"path"`
	LinesAdded   int        `json:"linesAdded,omitempty"`
	LinesRemoved int        `json:"linesRemoved,omitempty"`
}

// UserPrompt is a prompt text with a repeat count. Identical consecutive
// prompts within one delta coalesce by incrementing Count.
type UserPrompt struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

// MetricDelta is one unit of newly observed usage: one completed assistant
// turn from the transcript events after the session checkpoint. RecordID is
// the dedup key: it is a pure function of the turn's anchoring event, so
// re-extracting the same turn yields the same id and the queue drops the
// duplicate.
type MetricDelta struct {
	RecordID       string                `json:"recordId"`
	SessionID      string                `json:"sessionId"`
	AgentSessionID string                `json:"agentSessionId,omitempty"`
	Timestamp      time.Time             `json:"timestamp"`
	Tokens         TokenUsage            `json:"tokens"`
	Tools          map[string]int        `json:"tools,omitempty"`
	ToolStatus     map[string]ToolStatus `json:"toolStatus,omitempty"`
	FileOperations []FileOperation       `json:"fileOperations,omitempty"`
	Models         []string              `json:"models,omitempty"`
	UserPrompts    []UserPrompt          `json:"userPrompts,omitempty"`

	SyncStatus   SyncStatus `json:"syncStatus"`
	SyncAttempts int        `json:"syncAttempts"`
	SyncedAt     *time.Time `json:"syncedAt,omitempty"`
}

// Empty reports whether the delta carries no observable usage at all.
func (d MetricDelta) Empty() bool {
	return d.Tokens == TokenUsage{} &&
		len(d.Tools) == 0 &&
		len(d.FileOperations) == 0 &&
		len(d.Models) == 0 &&
		len(d.UserPrompts) == 0
}
