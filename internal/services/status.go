package services

import (
	"context"
	"log/slog"

	"github.com/Lllllllleong/financialstatementflow/internal/models"
)

// reporter persists status changes of one document and pushes them to the requester.
type reporter struct {
	store       DocumentStore
	notifier    Notifier
	documentID  string
	requesterID string
	logCtx      *slog.Logger
}

func (g *Graph) reporter(st State, logCtx *slog.Logger) *reporter {
	return &reporter{
		store:       g.deps.Store,
		notifier:    g.deps.Notifier,
		documentID:  st.DocumentID,
		requesterID: st.Requester.ID,
		logCtx:      logCtx,
	}
}

// updateStatus writes status, the optional progress and any extra fields in
// one patch, then pushes ev. The event carries progress only when one is given.
func (r *reporter) updateStatus(ctx context.Context, status string, progress *float64, extra models.Patch, ev models.StatusEvent) error {
	patch := models.Patch{"status": status}
	if progress != nil {
		patch["progress"] = *progress
	}
	for k, v := range extra {
		patch[k] = v
	}
	if err := r.store.Update(ctx, r.documentID, patch); err != nil {
		return err
	}

	ev.ID = r.documentID
	ev.Status = status
	ev.Progress = progress
	r.push(ctx, ev)
	return nil
}

// progress records an intermediate percentage. Failures are only logged.
func (r *reporter) progress(ctx context.Context, status string, pct float64) {
	if err := r.updateStatus(ctx, status, &pct, nil, models.StatusEvent{}); err != nil {
		r.logCtx.Warn("Failed to record progress.", "status", status, "progress", pct, "error", err)
	}
}

func (r *reporter) push(ctx context.Context, ev models.StatusEvent) {
	if r.requesterID == "" {
		return
	}
	if err := r.notifier.Publish(ctx, r.requesterID, ev); err != nil {
		r.logCtx.Warn("Failed to push status event.", "status", ev.Status, "error", err)
	}
}

func percent(v float64) *float64 {
	return &v
}

func intPtr(v int) *int {
	return &v
}
