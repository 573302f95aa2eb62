package transcript

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentsync/internal/model"
)

// ClaudeReader reads Claude Code session transcripts: one JSONL file per
// session under <root>/projects/<encoded-project-dir>/.
type ClaudeReader struct {
	root string
}

// NewClaudeReader creates a reader over the Claude data directory
// (conventionally ~/.claude).
func NewClaudeReader(root string) *ClaudeReader {
	return &ClaudeReader{root: root}
}

// claudeEntry is one JSONL line.
type claudeEntry struct {
	Type      string         `json:"type"`
	UUID      string         `json:"uuid,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Cwd       string         `json:"cwd,omitempty"`
	IsMeta    bool           `json:"isMeta,omitempty"`
	Message   *claudeMessage `json:"message,omitempty"`
}

type claudeMessage struct {
	ID      string          `json:"id,omitempty"`
	Role    string          `json:"role,omitempty"`
	Model   string          `json:"model,omitempty"`
	Usage   *claudeUsage    `json:"usage,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

type claudeUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

// claudeBlock is one content block. tool_use blocks declare invocations;
// tool_result blocks in later user entries carry the completion status.
type claudeBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type claudeToolInput struct {
	FilePath     string `json:"file_path"`
	NotebookPath string `json:"notebook_path"`
	Path         string `json:"path"`
}

// ReadSession parses the session's JSONL file into normalized events.
// Malformed lines are skipped and logged, not fatal to the whole read.
func (r *ClaudeReader) ReadSession(sessionID string) ([]Event, error) {
	path, ok := r.findSessionFile(sessionID)
	if !ok {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var entries []claudeEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 2*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry claudeEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			log.Printf("transcript: skipping malformed line %d of %s: %v", lineNo, path, err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// First pass: pair tool_use ids with their completion results.
	results := make(map[string]CallStatus)
	for _, entry := range entries {
		if entry.Type != "user" || entry.Message == nil {
			continue
		}
		for _, b := range decodeBlocks(entry.Message.Content) {
			if b.Type == "tool_result" && b.ToolUseID != "" {
				if b.IsError {
					results[b.ToolUseID] = CallFailed
				} else {
					results[b.ToolUseID] = CallSucceeded
				}
			}
		}
	}

	var events []Event
	for seq, entry := range entries {
		ev, ok := r.normalizeEntry(entry, sessionID, seq, results)
		if ok {
			events = append(events, ev)
		}
	}

	sortEvents(events)
	return events, nil
}

func (r *ClaudeReader) normalizeEntry(entry claudeEntry, sessionID string, seq int, results map[string]CallStatus) (Event, bool) {
	if entry.Type != "user" && entry.Type != "assistant" {
		return Event{}, false
	}
	if entry.IsMeta || entry.Message == nil {
		return Event{}, false
	}

	ev := Event{
		ID:        entry.UUID,
		SessionID: sessionID,
		Role:      entry.Type,
		Seq:       seq,
	}
	if ev.ID == "" {
		ev.ID = entry.Message.ID
	}
	if entry.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, entry.Timestamp); err == nil {
			ev.Timestamp = ts.UTC()
		}
	}

	blocks := decodeBlocks(entry.Message.Content)

	switch entry.Type {
	case "user":
		var text strings.Builder
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				if text.Len() > 0 {
					text.WriteByte('\n')
				}
				text.WriteString(b.Text)
			}
		}
		ev.PromptText = text.String()
		// Tool-result-only entries carry no reportable usage.
		if ev.PromptText == "" {
			return Event{}, false
		}

	case "assistant":
		ev.Model = entry.Message.Model
		if u := entry.Message.Usage; u != nil {
			ev.Tokens = &model.TokenUsage{
				Input:         u.InputTokens,
				Output:        u.OutputTokens,
				CacheRead:     u.CacheReadInputTokens,
				CacheCreation: u.CacheCreationInputTokens,
			}
		}
		for _, b := range blocks {
			if b.Type != "tool_use" {
				continue
			}
			call := ToolCall{Name: b.Name, Status: results[b.ID]}
			if len(b.Input) > 0 {
				var in claudeToolInput
				if err := json.Unmarshal(b.Input, &in); err == nil {
					call.FilePath = firstNonEmpty(in.FilePath, in.NotebookPath, in.Path)
				}
			}
			ev.ToolCalls = append(ev.ToolCalls, call)
		}
	}

	if ev.ID == "" {
		return Event{}, false
	}
	return ev, true
}

// decodeBlocks handles both content shapes: a bare string or a block array.
func decodeBlocks(raw json.RawMessage) []claudeBlock {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []claudeBlock{{Type: "text", Text: s}}
	}
	var blocks []claudeBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	return blocks
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ListSessions walks the projects tree and discovers session files.
func (r *ClaudeReader) ListSessions(opts ScanOptions) ([]SessionRef, error) {
	projectsDir := filepath.Join(r.root, "projects")
	info, err := os.Stat(projectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, nil
	}

	var refs []SessionRef
	err = filepath.WalkDir(projectsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // skip unreadable entries
		}
		if d.IsDir() || filepath.Ext(path) != ".jsonl" {
			return nil
		}

		ref := SessionRef{
			SessionID: strings.TrimSuffix(d.Name(), ".jsonl"),
			FilePath:  path,
		}
		if fi, err := d.Info(); err == nil {
			ref.UpdatedAt = fi.ModTime().UTC()
		}
		if opts.Cwd != "" {
			ref.WorkingDir = probeCwd(path)
		}
		refs = append(refs, ref)
		return nil
	})
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

func (r *ClaudeReader) findSessionFile(sessionID string) (string, bool) {
	projectsDir := filepath.Join(r.root, "projects")
	projects, err := os.ReadDir(projectsDir)
	if err != nil {
		return "", false
	}
	for _, p := range projects {
		if !p.IsDir() {
			continue
		}
		path := filepath.Join(projectsDir, p.Name(), sessionID+".jsonl")
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}

// probeCwd reads the first few lines of a session file looking for the
// working directory, so the cwd discovery filter can match without parsing
// the whole transcript.
func probeCwd(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 2*1024*1024)
	for i := 0; scanner.Scan() && i < 20; i++ {
		var entry struct {
			Cwd string `json:"cwd"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err == nil && entry.Cwd != "" {
			return entry.Cwd
		}
	}
	return ""
}
