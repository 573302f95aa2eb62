// Package pipeline wires the transcript readers, checkpoint store, durable
// queue, and syncer into the externally callable sync entry points. Each run
// is a bounded, terminating batch job: read transcript, extract, append,
// aggregate, sync, exit.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"agentsync/internal/checkpoint"
	"agentsync/internal/config"
	"agentsync/internal/extract"
	"agentsync/internal/model"
	"agentsync/internal/queue"
	"agentsync/internal/syncer"
	"agentsync/internal/transcript"
)

// Pipeline holds the assembled components for one invocation.
type Pipeline struct {
	Queue       *queue.Queue
	Checkpoints *checkpoint.Store
	Readers     map[string]transcript.Reader
	Transport   syncer.Transport
	MaxAttempts int

	defaultAgent string
}

// New assembles a pipeline from configuration. The transport is nil until an
// endpoint is configured; dry-run invocations never need one.
func New(cfg config.Config) *Pipeline {
	dataDir := config.DataDir(cfg)

	readers := make(map[string]transcript.Reader, len(cfg.Agents))
	for name, ac := range cfg.Agents {
		if ac.StorageDir == "" {
			continue
		}
		switch name {
		case "claude":
			readers[name] = transcript.NewClaudeReader(ac.StorageDir)
		default:
			readers[name] = transcript.NewOpencodeReader(ac.StorageDir)
		}
	}

	maxAttempts := cfg.Endpoint.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = syncer.DefaultMaxAttempts
	}

	p := &Pipeline{
		Queue:        queue.Open(filepath.Join(dataDir, "queues")),
		Checkpoints:  checkpoint.NewStore(filepath.Join(dataDir, "checkpoints")),
		Readers:      readers,
		MaxAttempts:  maxAttempts,
		defaultAgent: cfg.General.DefaultAgent,
	}
	if c := syncer.NewClient(config.GetEndpointURL(cfg), config.GetToken(cfg)); c != nil {
		p.Transport = c
	}
	return p
}

// Sync is the externally callable entry point invoked by a session-end hook
// or the sync command. It extracts new deltas for the session, then syncs
// whatever is pending.
func (p *Pipeline) Sync(ctx context.Context, sctx model.SessionContext) (model.SyncResult, error) {
	agent := sctx.Agent
	if agent == "" {
		agent = p.defaultAgent
	}
	reader, ok := p.Readers[agent]
	if !ok {
		return model.SyncResult{
			Success: false,
			Message: fmt.Sprintf("no reader configured for agent %q", agent),
		}, nil
	}

	result := model.SyncResult{ProcessorResults: make(map[string]model.ProcessorResult)}

	extracted, err := p.Extract(sctx, reader)
	if err != nil {
		// Storage inaccessible: recoverable, the caller may retry later.
		// No checkpoint was advanced.
		result.Message = fmt.Sprintf("extraction failed: %v", err)
		result.ProcessorResults[agent] = model.ProcessorResult{Success: false, Message: result.Message}
		return result, nil
	}

	proc, err := p.syncSession(ctx, sctx)
	if err != nil {
		return model.SyncResult{}, err
	}
	result.ProcessorResults[agent] = proc
	result.Success = proc.Success
	result.Message = proc.Message
	if extracted > 0 {
		result.Message = fmt.Sprintf("extracted %d delta(s); %s", extracted, proc.Message)
	}
	return result, nil
}

// Extract reads the session transcript, converts the completed turns after
// the checkpoint into deltas, appends them to the queue, and only then
// advances the checkpoint. Returns the number of deltas actually appended:
// re-derived records the queue already holds are deduplicated by record id
// and not counted, so re-running after a checkpoint reset or a lost
// checkpoint save never double-reports.
//
// A queue or checkpoint write failure is fatal for the invocation; atomic
// replace semantics guarantee no partial state was committed.
func (p *Pipeline) Extract(sctx model.SessionContext, reader transcript.Reader) (int, error) {
	agentSessionID := sctx.AgentSessionID
	if agentSessionID == "" {
		agentSessionID = sctx.SessionID
	}

	events, err := reader.ReadSession(agentSessionID)
	if err != nil {
		return 0, fmt.Errorf("reading transcript: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	cur, err := p.Checkpoints.Load(sctx.SessionID)
	if err != nil {
		return 0, fmt.Errorf("loading checkpoint: %w", err)
	}

	fresh := extract.After(events, cur)
	if len(fresh) == 0 {
		return 0, nil
	}
	cursor, ok := extract.NewCursor(fresh)
	if !ok {
		// No completed turn yet; leave the checkpoint so the in-flight
		// events are re-read next time.
		return 0, nil
	}

	appended := 0
	for _, d := range extract.Extract(sctx.SessionID, agentSessionID, fresh) {
		added, err := p.Queue.Append(d)
		if err != nil {
			return 0, fmt.Errorf("appending delta: %w", err)
		}
		if added {
			appended++
		}
	}

	if err := p.Checkpoints.Save(sctx.SessionID, cursor); err != nil {
		return 0, fmt.Errorf("advancing checkpoint: %w", err)
	}
	return appended, nil
}

func (p *Pipeline) syncSession(ctx context.Context, sctx model.SessionContext) (model.ProcessorResult, error) {
	transport := p.Transport
	if sctx.DryRun {
		transport = syncer.NopTransport{}
	}
	if transport == nil {
		pending, err := p.Queue.ListPending(sctx.SessionID)
		if err != nil {
			return model.ProcessorResult{}, err
		}
		return model.ProcessorResult{
			Success: false,
			Message: "no endpoint configured (set endpoint.url or AGENTSYNC_ENDPOINT)",
			Pending: len(pending),
		}, nil
	}

	s := syncer.New(p.Queue, transport)
	s.MaxAttempts = p.MaxAttempts
	return s.SyncSession(ctx, sctx)
}

// DiscoveredSession pairs a session ref with the agent that owns it.
type DiscoveredSession struct {
	Agent string
	transcript.SessionRef
}

// DiscoverSessions lists sessions across all configured agents, most
// recently updated first. A failing agent store is skipped, not fatal.
func (p *Pipeline) DiscoverSessions(opts transcript.ScanOptions) ([]DiscoveredSession, error) {
	var out []DiscoveredSession
	for agent, reader := range p.Readers {
		refs, err := reader.ListSessions(opts)
		if err != nil {
			continue
		}
		for _, ref := range refs {
			out = append(out, DiscoveredSession{Agent: agent, SessionRef: ref})
		}
	}
	sortDiscovered(out)
	return out, nil
}

// SyncAll runs the pipeline for every discovered session. Per-session
// failures are isolated: one session's failure never blocks the others.
func (p *Pipeline) SyncAll(ctx context.Context, opts transcript.ScanOptions, dryRun bool) (model.SyncResult, error) {
	sessions, err := p.DiscoverSessions(opts)
	if err != nil {
		return model.SyncResult{}, err
	}

	result := model.SyncResult{
		Success:          true,
		ProcessorResults: make(map[string]model.ProcessorResult),
	}
	synced, failed := 0, 0
	for _, s := range sessions {
		sctx := model.SessionContext{
			SessionID: s.SessionID,
			Agent:     s.Agent,
			DryRun:    dryRun,
		}
		one, err := p.Sync(ctx, sctx)
		if err != nil {
			result.ProcessorResults[s.SessionID] = model.ProcessorResult{Success: false, Message: err.Error()}
			result.Success = false
			failed++
			continue
		}
		proc := one.ProcessorResults[s.Agent]
		result.ProcessorResults[s.SessionID] = proc
		if proc.Success {
			synced += proc.Synced
		} else {
			result.Success = false
			failed++
		}
	}
	result.Message = fmt.Sprintf("%d session(s) processed, %d record(s) synced, %d failed", len(sessions), synced, failed)
	return result, nil
}

func sortDiscovered(sessions []DiscoveredSession) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
}

// MostRecentSession returns the newest session updated within the window, or
// false when none exist.
func (p *Pipeline) MostRecentSession(maxAge time.Duration) (DiscoveredSession, bool) {
	sessions, err := p.DiscoverSessions(transcript.ScanOptions{MaxAge: maxAge})
	if err != nil || len(sessions) == 0 {
		return DiscoveredSession{}, false
	}
	return sessions[0], true
}
