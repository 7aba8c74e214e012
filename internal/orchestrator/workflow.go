package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Workflow sequences acquisition, generation, classification, archival and notification
// for one run.
type Workflow struct {
	Fetcher    Fetcher
	Renderers  map[ReportKind]Renderer
	Notifier   Notifier
	Recipients []string

	ReportA ReportSpec
	ReportB ReportSpec

	StagingDir    string
	WorkDir       string
	ReportsDir    string
	ProcessedDir  string
	FolderSuffix  string
	Policy        Policy
	ReportTimeout time.Duration

	Logger   *slog.Logger
	Recorder Recorder
	RunID    string // Generated when empty
	Now      func() time.Time
}

// Run executes the workflow once. The only error returned is a terminal acquisition
// failure (*AcquisitionError); archival and notification problems are logged as warnings.
func (w *Workflow) Run(ctx context.Context) (Outcome, error) {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	runID := w.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	rec := w.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("run_id", runID))

	outcome := Outcome{
		RunID:     runID,
		StartedAt: now(),
		Artifacts: make(map[ReportKind]Artifact),
	}
	logger.Info("Starting annual review workflow.")
	record(ctx, rec, runID, Event{Stage: StageRun, Type: EventStart, At: outcome.StartedAt})

	finish := func(msg string, typ string) {
		outcome.FinishedAt = now()
		record(ctx, rec, runID, Event{Stage: StageRun, Type: typ, Subject: outcome.Decision.String(), Message: msg,
			Duration: outcome.FinishedAt.Sub(outcome.StartedAt)})
	}

	for _, dir := range []string{w.StagingDir, w.WorkDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Warn("Failed to create working directory.", slog.String("dir", dir), "error", err)
		}
	}

	// --- Phase 1: Acquire dataset ---
	acquirer := &Acquirer{
		Fetcher:    w.Fetcher,
		StagingDir: w.StagingDir,
		Policy:     w.Policy,
		Logger:     logger.With(slog.String("component", "acquirer")),
		Recorder:   rec,
		RunID:      runID,
		Now:        now,
	}
	dataset, err := acquirer.Acquire(ctx)
	outcome.Attempts = dataset.Attempts
	if err != nil {
		logger.Error("Workflow stopped: dataset could not be acquired.", slog.String("attempts", formatAttempts(dataset.Attempts)))
		finish(err.Error(), EventFailed)
		return outcome, err
	}
	outcome.Acquired = true
	outcome.Dataset = dataset.Path
	outcome.DatasetPath = dataset.Path

	// --- Phase 2: Generate reports ---
	gen := &Generator{
		Renderers: w.Renderers,
		WorkDir:   w.WorkDir,
		Timeout:   w.ReportTimeout,
		Logger:    logger.With(slog.String("component", "generator")),
		Recorder:  rec,
		RunID:     runID,
	}
	artA := gen.Generate(ctx, w.ReportA, dataset)
	artB := gen.Generate(ctx, w.ReportB, dataset)
	outcome.Artifacts[KindA] = artA
	outcome.Artifacts[KindB] = artB

	// --- Phase 3: Classify ---
	outcome.Decision = Classify(artA.Present(), artB.Present())
	logger.Info("Report outcome classified.", slog.String("decision", outcome.Decision.String()),
		slog.Bool(w.ReportA.Label, artA.Present()), slog.Bool(w.ReportB.Label, artB.Present()))
	record(ctx, rec, runID, Event{Stage: StageClassify, Type: EventEnd, Subject: outcome.Decision.String(),
		Message: summarizeDecision(outcome.Decision, w.ReportA, w.ReportB)})

	// --- Phase 4: Archive ---
	archiver := &Archiver{
		ReportsDir:   w.ReportsDir,
		ProcessedDir: w.ProcessedDir,
		FolderSuffix: w.FolderSuffix,
		Logger:       logger.With(slog.String("component", "archiver")),
		Recorder:     rec,
		RunID:        runID,
		Now:          now,
	}
	var reports []Artifact
	if outcome.Decision.Archives() {
		reports = []Artifact{artA, artB}
	}
	archived, archErr := archiver.Archive(ctx, reports, dataset)
	if archErr != nil {
		logger.Warn("Archival completed with errors.", "error", archErr)
	}
	outcome.ArchiveFolder = archived.Folder
	outcome.DatasetRelocated = archived.DatasetRelocated
	if archived.DatasetRelocated {
		outcome.DatasetPath = archived.DatasetPath
	}

	// Reports that failed to move are still attached from where they are.
	attach := make(map[ReportKind]string, 2)
	for _, art := range reports {
		if !art.Present() {
			continue
		}
		if p, ok := archived.Reports[art.Kind]; ok {
			attach[art.Kind] = p
		} else {
			attach[art.Kind] = art.Path
		}
	}

	// --- Phase 5: Notify ---
	dispatcher := &Dispatcher{
		Notifier:   w.Notifier,
		Recipients: w.Recipients,
		ReportA:    w.ReportA,
		ReportB:    w.ReportB,
		Logger:     logger.With(slog.String("component", "dispatcher")),
		Recorder:   rec,
		RunID:      runID,
	}
	sent, notifyErr := dispatcher.Dispatch(ctx, outcome.Decision, attach)
	outcome.NotificationSent = sent
	if notifyErr != nil {
		logger.Warn("Notification not delivered.", "error", notifyErr)
	}

	summary := summarizeOutcome(outcome, w.ReportA, w.ReportB)
	logger.Info("Workflow completed.", slog.String("summary", summary),
		slog.Duration("duration", now().Sub(outcome.StartedAt)))
	finish(summary, EventSuccess)
	return outcome, nil
}

func summarizeDecision(d Decision, a, b ReportSpec) string {
	switch d {
	case DecisionBoth:
		return "both reports generated"
	case DecisionOnlyA:
		return fmt.Sprintf("only %s report generated", a.Label)
	case DecisionOnlyB:
		return fmt.Sprintf("only %s report generated", b.Label)
	default:
		return "no reports generated"
	}
}

func summarizeOutcome(o Outcome, a, b ReportSpec) string {
	parts := []string{summarizeDecision(o.Decision, a, b)}
	if o.ArchiveFolder != "" {
		parts = append(parts, "archived to "+o.ArchiveFolder)
	}
	if o.DatasetRelocated {
		parts = append(parts, "dataset moved to "+o.DatasetPath)
	} else {
		parts = append(parts, "dataset left at "+o.DatasetPath)
	}
	if o.NotificationSent {
		parts = append(parts, "notification sent")
	} else {
		parts = append(parts, "notification not sent")
	}
	return strings.Join(parts, "; ")
}

func formatAttempts(attempts []Attempt) string {
	s := make([]string, 0, len(attempts))
	for _, a := range attempts {
		s = append(s, fmt.Sprintf("#%d at %s", a.Seq, a.At.Format(time.RFC3339)))
	}
	return strings.Join(s, ", ")
}
