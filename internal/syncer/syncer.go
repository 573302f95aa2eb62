package syncer

import (
	"context"
	"fmt"
	"time"

	"agentsync/internal/aggregate"
	"agentsync/internal/model"
	"agentsync/internal/queue"
)

// DefaultMaxAttempts is the retry ceiling for retryable failures.
const DefaultMaxAttempts = 3

// outcome classifies one send.
type outcome int

const (
	outcomeSuccess   outcome = iota // 2xx: mark contributing deltas synced
	outcomePermanent                // 4xx: client error, not retryable
	outcomeRetryable                // 5xx or transport failure
)

func classify(resp Response, err error) outcome {
	if err != nil {
		return outcomeRetryable
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return outcomeSuccess
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return outcomePermanent
	default:
		return outcomeRetryable
	}
}

// Syncer delivers one aggregated metric object per session per invocation
// and commits the resulting state transitions to the queue.
type Syncer struct {
	queue     *queue.Queue
	transport Transport

	// MaxAttempts is the per-record attempt ceiling; once a record's
	// syncAttempts reaches it the record transitions to failed.
	MaxAttempts int

	// Sleep is called between in-process retries; tests replace it.
	Sleep func(time.Duration)
}

// New creates a syncer over the given queue and transport.
func New(q *queue.Queue, t Transport) *Syncer {
	return &Syncer{
		queue:       q,
		transport:   t,
		MaxAttempts: DefaultMaxAttempts,
		Sleep:       time.Sleep,
	}
}

// backoff returns the delay before the next attempt: 500ms doubling per
// attempt, capped at 5s.
func backoff(attempt int) time.Duration {
	d := 500 * time.Millisecond << (attempt - 1)
	if d > 5*time.Second {
		return 5 * time.Second
	}
	return d
}

// SyncSession aggregates the session's pending deltas, sends the aggregate,
// and reconciles the queue. When nothing is pending it reports success
// without any network call.
func (s *Syncer) SyncSession(ctx context.Context, sctx model.SessionContext) (model.ProcessorResult, error) {
	sessionID := sctx.SessionID

	pending, err := s.queue.ListPending(sessionID)
	if err != nil {
		return model.ProcessorResult{}, err
	}

	agg, ok := aggregate.Fold(sctx, pending)
	if !ok {
		return model.ProcessorResult{Success: true, Message: "nothing to sync"}, nil
	}

	for {
		resp, err := s.transport.Send(ctx, agg)

		switch classify(resp, err) {
		case outcomeSuccess:
			if err := s.queue.MarkSynced(sessionID, agg.RecordIDs, time.Now()); err != nil {
				return model.ProcessorResult{}, fmt.Errorf("committing synced state: %w", err)
			}
			msg := resp.Message
			if msg == "" {
				msg = fmt.Sprintf("synced %d record(s)", len(agg.RecordIDs))
			}
			return model.ProcessorResult{Success: true, Message: msg, Synced: len(agg.RecordIDs)}, nil

		case outcomePermanent:
			// Count the attempt, then park the records; client errors
			// do not resolve on retry.
			if err := s.queue.MarkRetry(sessionID, agg.RecordIDs); err != nil {
				return model.ProcessorResult{}, fmt.Errorf("recording attempt: %w", err)
			}
			if err := s.queue.MarkFailed(sessionID, agg.RecordIDs); err != nil {
				return model.ProcessorResult{}, fmt.Errorf("committing failed state: %w", err)
			}
			msg := resp.Message
			if msg == "" {
				msg = fmt.Sprintf("endpoint rejected metrics (HTTP %d)", resp.StatusCode)
			}
			return model.ProcessorResult{Success: false, Message: msg, Failed: len(agg.RecordIDs)}, nil

		case outcomeRetryable:
			if markErr := s.queue.MarkRetry(sessionID, agg.RecordIDs); markErr != nil {
				return model.ProcessorResult{}, fmt.Errorf("recording attempt: %w", markErr)
			}
			attempts, loadErr := s.maxAttempts(sessionID, agg.RecordIDs)
			if loadErr != nil {
				return model.ProcessorResult{}, loadErr
			}
			if attempts >= s.MaxAttempts {
				if err := s.queue.MarkFailed(sessionID, agg.RecordIDs); err != nil {
					return model.ProcessorResult{}, fmt.Errorf("committing failed state: %w", err)
				}
				return model.ProcessorResult{
					Success: false,
					Message: fmt.Sprintf("gave up after %d attempts: %s", attempts, sendError(resp, err)),
					Failed:  len(agg.RecordIDs),
				}, nil
			}
			s.Sleep(backoff(attempts))
		}
	}
}

// maxAttempts returns the highest syncAttempts among the contributing
// records, read back from the current ledger.
func (s *Syncer) maxAttempts(sessionID string, recordIDs []string) (int, error) {
	records, err := s.queue.List(sessionID)
	if err != nil {
		return 0, err
	}
	ids := make(map[string]struct{}, len(recordIDs))
	for _, id := range recordIDs {
		ids[id] = struct{}{}
	}
	max := 0
	for _, r := range records {
		if _, ok := ids[r.RecordID]; ok && r.SyncAttempts > max {
			max = r.SyncAttempts
		}
	}
	return max, nil
}

func sendError(resp Response, err error) string {
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}
