package model

import "time"

// AggregatedMetrics is the single outbound summary object computed by folding
// all pending deltas for one session. Field names match the remote wire
// contract.
type AggregatedMetrics struct {
	SessionID      string `json:"session_id"`
	AgentSessionID string `json:"agent_session_id,omitempty"`
	Agent          string `json:"agent,omitempty"`
	Provider       string `json:"provider,omitempty"`

	TotalInputTokens         int64 `json:"total_input_tokens"`
	TotalOutputTokens        int64 `json:"total_output_tokens"`
	TotalCacheReadTokens     int64 `json:"total_cache_read_tokens"`
	TotalCacheCreationTokens int64 `json:"total_cache_creation_tokens"`

	TotalToolCalls      int            `json:"total_tool_calls"`
	SuccessfulToolCalls int            `json:"successful_tool_calls"`
	FailedToolCalls     int            `json:"failed_tool_calls"`
	ToolCalls           map[string]int `json:"tool_calls,omitempty"`

	FilesCreated  int `json:"files_created"`
	FilesModified int `json:"files_modified"`
	FilesDeleted  int `json:"files_deleted"`
	LinesAdded    int `json:"lines_added"`
	LinesRemoved  int `json:"lines_removed"`

	Model            string    `json:"model,omitempty"`
	TotalUserPrompts int       `json:"total_user_prompts"`
	Timestamp        time.Time `json:"timestamp"`

	// RecordIDs lists every delta folded into this aggregate, in append
	// order. The syncer uses it to commit state transitions back to the
	// queue; the remote side ignores it.
	RecordIDs []string `json:"record_ids"`
}

// ProcessorResult is the per-session outcome of one sync pass.
type ProcessorResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Synced  int    `json:"synced"`
	Failed  int    `json:"failed"`
	Pending int    `json:"pending"`
}

// SyncResult is returned by the externally callable sync entry point.
type SyncResult struct {
	Success          bool                       `json:"success"`
	Message          string                     `json:"message"`
	ProcessorResults map[string]ProcessorResult `json:"processorResults,omitempty"`
}

// SessionContext is the read-only correlation record supplied by a
// collaborator once per invocation.
type SessionContext struct {
	SessionID        string
	AgentSessionID   string
	AgentSessionFile string
	Agent            string
	Provider         string
	APIBaseURL       string
	ClientType       string
	Version          string
	WorkingDir       string
	GitBranch        string
	DryRun           bool
}
