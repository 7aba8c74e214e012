package db

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/brensch/annualreview/internal/orchestrator"
)

// Recorder persists orchestrator events to the run event log. Write failures are
// logged and never interrupt the run.
type Recorder struct {
	DB     *sql.DB
	Logger *slog.Logger
}

func (r *Recorder) Record(ctx context.Context, ev orchestrator.Event) {
	err := LogRunEvent(context.WithoutCancel(ctx), r.DB, EventRecord{
		RunID:      ev.RunID,
		Stage:      ev.Stage,
		Event:      ev.Type,
		Timestamp:  ev.At,
		Attempt:    ev.Attempt,
		Subject:    ev.Subject,
		OutputPath: ev.Path,
		Message:    ev.Message,
		DurationMs: ev.Duration.Milliseconds(),
	})
	if err != nil && r.Logger != nil {
		r.Logger.Warn("Failed to record run event.", slog.String("stage", ev.Stage), slog.String("event", ev.Type), "error", err)
	}
}
