package orchestrator

import (
	"context"
	"time"
)

// Stage names used in recorded events.
const (
	StageRun      = "run"
	StageAcquire  = "acquire"
	StageGenerate = "generate"
	StageClassify = "classify"
	StageArchive  = "archive"
	StageNotify   = "notify"
)

// Event types used in recorded events.
const (
	EventStart    = "start"
	EventAttempt  = "attempt"
	EventSuccess  = "success"
	EventFailed   = "failed"
	EventCooldown = "cooldown"
	EventAbsent   = "absent"
	EventMoved    = "moved"
	EventSkipped  = "skipped"
	EventSent     = "sent"
	EventEnd      = "end"
)

// Event is one stage transition of a run.
type Event struct {
	RunID    string
	Stage    string
	Type     string
	At       time.Time
	Attempt  int    // Acquisition attempt number, zero when not applicable
	Subject  string // Report kind or decision the event concerns
	Path     string // File produced or moved
	Message  string // Human readable summary or error text
	Duration time.Duration
}

// Recorder receives stage events. Implementations must not block the run for long.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// MultiRecorder fans each event out to every recorder in order.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, ev Event) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, ev)
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) {}

// record stamps run-level fields and forwards the event.
func record(ctx context.Context, r Recorder, runID string, ev Event) {
	if r == nil {
		return
	}
	ev.RunID = runID
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	r.Record(ctx, ev)
}
