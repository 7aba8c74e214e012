// Package app renders a live terminal view of an annual review run.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/annualreview/internal/orchestrator"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	stageStyle   = lipgloss.NewStyle().Bold(true).Width(10)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	bannerStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	eventStyle   = map[string]lipgloss.Style{
		orchestrator.EventStart:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		orchestrator.EventAttempt:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		orchestrator.EventCooldown: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		orchestrator.EventSuccess:  lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		orchestrator.EventMoved:    lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		orchestrator.EventSent:     lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		orchestrator.EventEnd:      lipgloss.NewStyle().Foreground(lipgloss.Color("79")),
		orchestrator.EventFailed:   errorStyle,
		orchestrator.EventAbsent:   lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		orchestrator.EventSkipped:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
)

// maxLines bounds the event history shown when the terminal size is unknown.
const maxLines = 20

// Model is the bubbletea model for a single run.
type Model struct {
	Title         string
	TotalAttempts int
	State         RunState

	spinner  spinner.Model
	progress progress.Model
	cancel   context.CancelFunc
	msgs     <-chan tea.Msg

	activeStage string
	attempts    int
	lines       []string
	started     time.Time

	outcome orchestrator.Outcome
	runErr  error

	termHeight int
}

// NewModel creates the run view. cancel is called when the user asks to stop.
func NewModel(title string, totalAttempts int, cancel context.CancelFunc, msgs <-chan tea.Msg) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &Model{
		Title:         title,
		TotalAttempts: totalAttempts,
		State:         Running,
		spinner:       s,
		progress:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		cancel:        cancel,
		msgs:          msgs,
		activeStage:   orchestrator.StageRun,
		started:       time.Now(),
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForActivityCmd())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.State == Cancelling {
				return m, tea.Quit
			}
			if m.State == Running {
				m.State = Cancelling
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.termHeight = msg.Height
		m.progress.Width = max(10, min(60, msg.Width-20))
		return m, nil

	case EventMsg:
		m.apply(msg.Event)
		return m, m.waitForActivityCmd()

	case RunFinishedMsg:
		m.State = Finished
		m.outcome = msg.Outcome
		m.runErr = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		if m.State == Finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(ev orchestrator.Event) {
	if ev.Stage != orchestrator.StageRun || ev.Type == orchestrator.EventStart {
		m.activeStage = ev.Stage
	}
	if ev.Stage == orchestrator.StageAcquire && ev.Type == orchestrator.EventAttempt {
		m.attempts = ev.Attempt
	}
	m.lines = append(m.lines, formatEvent(ev))
}

func formatEvent(ev orchestrator.Event) string {
	style, ok := eventStyle[ev.Type]
	if !ok {
		style = infoStyle
	}
	var detail []string
	if ev.Attempt > 0 {
		detail = append(detail, fmt.Sprintf("attempt %d", ev.Attempt))
	}
	if ev.Subject != "" {
		detail = append(detail, ev.Subject)
	}
	if ev.Path != "" {
		detail = append(detail, ev.Path)
	}
	if ev.Message != "" {
		detail = append(detail, ev.Message)
	}
	return fmt.Sprintf("%s %s %s %s",
		infoStyle.Render(ev.At.Format("15:04:05")),
		stageStyle.Render(ev.Stage),
		style.Render(fmt.Sprintf("%-8s", ev.Type)),
		strings.Join(detail, " | "))
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.Title))
	b.WriteString("\n\n")

	switch m.State {
	case Running, Cancelling:
		label := "Running"
		if m.State == Cancelling {
			label = "Cancelling"
		}
		fmt.Fprintf(&b, "%s %s: %s (%s)\n", m.spinner.View(), label, m.activeStage, time.Since(m.started).Round(time.Second))
		if m.TotalAttempts > 0 {
			fmt.Fprintf(&b, "Acquisition %s %d/%d\n", m.progress.ViewAs(float64(m.attempts)/float64(m.TotalAttempts)),
				m.attempts, m.TotalAttempts)
		}
	case Finished:
		b.WriteString(m.banner())
	}
	b.WriteString("\n")

	limit := maxLines
	if m.termHeight > 12 {
		limit = m.termHeight - 10
	}
	start := max(0, len(m.lines)-limit)
	for _, line := range m.lines[start:] {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.State != Finished {
		b.WriteString("\n")
		b.WriteString(infoStyle.Render("'q' or Ctrl+C to cancel the run, press again to quit."))
	}
	return b.String()
}

func (m *Model) banner() string {
	if m.runErr != nil || !m.outcome.Succeeded() {
		msg := "Run failed."
		if m.runErr != nil {
			msg = "Run failed: " + m.runErr.Error()
		}
		return bannerStyle.BorderForeground(lipgloss.Color("196")).Render(errorStyle.Render(msg)) + "\n"
	}
	var b strings.Builder
	b.WriteString(successStyle.Render("Run succeeded."))
	fmt.Fprintf(&b, "\nAttempts: %d  Decision: %s", len(m.outcome.Attempts), m.outcome.Decision)
	if m.outcome.ArchiveFolder != "" {
		fmt.Fprintf(&b, "\nArchive: %s", m.outcome.ArchiveFolder)
	}
	fmt.Fprintf(&b, "\nNotification sent: %t", m.outcome.NotificationSent)
	return bannerStyle.BorderForeground(lipgloss.Color("46")).Render(b.String()) + "\n"
}

// waitForActivityCmd reads the next message from the recorder channel.
func (m *Model) waitForActivityCmd() tea.Cmd {
	if m.msgs == nil {
		return nil
	}
	ch := m.msgs
	return func() tea.Msg {
		return <-ch
	}
}

// Run executes work while showing the run view and returns work's result. Quitting the
// view cancels the context passed to work; Run still waits for work to return.
func Run(ctx context.Context, rec *Recorder, title string, totalAttempts int,
	work func(ctx context.Context) (orchestrator.Outcome, error), opts ...tea.ProgramOption) (orchestrator.Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewModel(title, totalAttempts, cancel, rec.msgs)
	p := tea.NewProgram(model, opts...)

	var outcome orchestrator.Outcome
	var runErr error
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		outcome, runErr = work(ctx)
		rec.finish(outcome, runErr)
	}()

	_, uiErr := p.Run()
	cancel()
	rec.Close()
	<-finished

	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return outcome, errors.Join(runErr, fmt.Errorf("run view: %w", uiErr))
	}
	return outcome, runErr
}
