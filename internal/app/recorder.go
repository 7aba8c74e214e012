package app

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/annualreview/internal/orchestrator"
)

// Recorder forwards orchestrator events to the run view in order. After Close it
// drops events instead of blocking.
type Recorder struct {
	msgs chan tea.Msg
	done chan struct{}
	once sync.Once
}

func NewRecorder() *Recorder {
	return &Recorder{
		msgs: make(chan tea.Msg, 64),
		done: make(chan struct{}),
	}
}

func (r *Recorder) Record(_ context.Context, ev orchestrator.Event) {
	r.send(EventMsg{Event: ev})
}

func (r *Recorder) finish(outcome orchestrator.Outcome, err error) {
	r.send(RunFinishedMsg{Outcome: outcome, Err: err})
}

func (r *Recorder) send(msg tea.Msg) {
	select {
	case <-r.done:
		return
	default:
	}
	select {
	case r.msgs <- msg:
	case <-r.done:
	}
}

// Close stops delivery to the view.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.done) })
}
