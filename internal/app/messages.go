package app

import (
	"fmt"

	"github.com/brensch/annualreview/internal/orchestrator"
)

// EventMsg carries one recorded stage event to the view.
type EventMsg struct {
	Event orchestrator.Event
}

// RunFinishedMsg signals that the workflow returned.
type RunFinishedMsg struct {
	Outcome orchestrator.Outcome
	Err     error
}

func (e EventMsg) String() string {
	return fmt.Sprintf("Event %s/%s", e.Event.Stage, e.Event.Type)
}

func (f RunFinishedMsg) String() string {
	return fmt.Sprintf("RunFinished acquired=%t", f.Outcome.Acquired)
}
