// Package aggregate folds a session's pending deltas into the single summary
// object sent to the remote endpoint.
package aggregate

import (
	"time"

	"agentsync/internal/model"
)

// Fold sums the pending deltas into one outbound aggregate. The second
// return value is false when there is nothing to sync, in which case no
// network call must be made.
func Fold(sctx model.SessionContext, pending []model.MetricDelta) (model.AggregatedMetrics, bool) {
	if len(pending) == 0 {
		return model.AggregatedMetrics{}, false
	}

	agg := model.AggregatedMetrics{
		SessionID:      sctx.SessionID,
		AgentSessionID: sctx.AgentSessionID,
		Agent:          sctx.Agent,
		Provider:       sctx.Provider,
		Timestamp:      time.Now().UTC(),
	}

	for _, d := range pending {
		agg.RecordIDs = append(agg.RecordIDs, d.RecordID)

		agg.TotalInputTokens += d.Tokens.Input
		agg.TotalOutputTokens += d.Tokens.Output
		agg.TotalCacheReadTokens += d.Tokens.CacheRead
		agg.TotalCacheCreationTokens += d.Tokens.CacheCreation

		for name, count := range d.Tools {
			if agg.ToolCalls == nil {
				agg.ToolCalls = make(map[string]int)
			}
			agg.ToolCalls[name] += count
			agg.TotalToolCalls += count
		}
		for _, st := range d.ToolStatus {
			agg.SuccessfulToolCalls += st.Success
			agg.FailedToolCalls += st.Failure
		}

		for _, op := range d.FileOperations {
			switch op.Type {
			case model.FileOpWrite:
				agg.FilesCreated++
			case model.FileOpEdit:
				agg.FilesModified++
			case model.FileOpDelete:
				agg.FilesDeleted++
			}
			agg.LinesAdded += op.LinesAdded
			agg.LinesRemoved += op.LinesRemoved
		}

		// The most recent non-empty models entry is the representative
		// model; deltas are in append order, so the last one wins.
		if len(d.Models) > 0 {
			agg.Model = d.Models[len(d.Models)-1]
		}

		for _, p := range d.UserPrompts {
			agg.TotalUserPrompts += p.Count
		}
	}

	return agg, true
}
