package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/brensch/annualreview/internal/app"
	"github.com/brensch/annualreview/internal/db"
	"github.com/brensch/annualreview/internal/metrics"
	"github.com/brensch/annualreview/internal/notify"
	"github.com/brensch/annualreview/internal/orchestrator"
)

var (
	runTUI          bool
	runNoEmail      bool
	runSkipCooldown bool
)

// runCmd represents the full reporting cycle
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Acquire the dataset, generate both reports, archive them and notify recipients",
	Long: `Runs one annual review cycle:
 1. Acquire the evaluation dataset, retrying with a cooldown before the final attempt.
 2. Generate the Auto Finance and Three Wheeler reports independently.
 3. Classify which reports exist.
 4. Archive reports into a dated folder and move the dataset to the processed store.
 5. Email the matching notice to every configured recipient.

Exits non-zero only when the dataset could not be acquired.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		conn := getDB()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runID := uuid.NewString()
		logger = logger.With(slog.String("run_id", runID))

		if n, err := db.CompletedRunsOn(ctx, conn, time.Now()); err != nil {
			logger.Warn("Failed to check earlier runs.", "error", err)
		} else if n > 0 {
			logger.Warn("A run already completed today, reports will be archived with a time suffix.", slog.Int("runs", n))
		}

		fetcher, err := newFetcher(cfg, logger)
		if err != nil {
			return err
		}
		reportA, reportB := reportSpecs(cfg)
		policy := newPolicy(cfg, runSkipCooldown)

		collector := metrics.NewCollector()
		recorders := orchestrator.MultiRecorder{
			&db.Recorder{DB: conn, Logger: logger},
			collector,
		}
		var tui *app.Recorder
		if runTUI {
			tui = app.NewRecorder()
			recorders = append(recorders, tui)
		}

		wf := &orchestrator.Workflow{
			Fetcher:       fetcher,
			Renderers:     newRenderers(cfg, logger),
			Notifier:      notify.New(cfg.Email, reportA, reportB, runNoEmail, logger.With(slog.String("component", "notifier"))),
			Recipients:    notify.Recipients(cfg.Email.Groups),
			ReportA:       reportA,
			ReportB:       reportB,
			StagingDir:    cfg.Paths.DataDir,
			WorkDir:       cfg.Paths.WorkDir,
			ReportsDir:    cfg.Paths.ReportsDir,
			ProcessedDir:  cfg.Paths.ProcessedDir,
			FolderSuffix:  cfg.Reports.FolderSuffix,
			Policy:        policy,
			ReportTimeout: cfg.Reports.Timeout,
			Logger:        logger,
			Recorder:      recorders,
			RunID:         runID,
		}

		var outcome orchestrator.Outcome
		var runErr error
		if tui != nil {
			outcome, runErr = app.Run(ctx, tui, "Annual Credit Review", policy.TotalAttempts(), wf.Run, tea.WithOutput(os.Stderr))
		} else {
			outcome, runErr = wf.Run(ctx)
		}

		if path := cfg.Metrics.Textfile; path != "" {
			if err := collector.WriteTextfile(path); err != nil {
				logger.Warn("Failed to write metrics textfile.", "error", err)
			} else {
				logger.Debug("Metrics textfile written.", slog.String("path", path))
			}
		}

		printSummary(cmd, outcome, reportA, reportB, runErr)

		if runErr != nil {
			return fmt.Errorf("annual review process failed: %w", runErr)
		}
		return nil
	},
}

func printSummary(cmd *cobra.Command, o orchestrator.Outcome, a, b orchestrator.ReportSpec, runErr error) {
	w := cmd.OutOrStdout()
	status := "SUCCESS"
	if runErr != nil || !o.Succeeded() {
		status = "FAILED"
	}

	present := func(kind orchestrator.ReportKind) string {
		if art, ok := o.Artifacts[kind]; ok && art.Present() {
			return "generated"
		}
		if !o.Acquired {
			return "not attempted"
		}
		return "not generated"
	}

	t := table.New().Border(lipgloss.NormalBorder()).Headers("Annual Review", "Result")
	t.Row("Status", status)
	t.Row("Run ID", o.RunID)
	t.Row("Download attempts", strconv.Itoa(len(o.Attempts)))
	t.Row(a.Label+" report", present(a.Kind))
	t.Row(b.Label+" report", present(b.Kind))
	if o.ArchiveFolder != "" {
		t.Row("Reports folder", o.ArchiveFolder)
	}
	if o.DatasetPath != "" {
		t.Row("Dataset", o.DatasetPath)
	}
	t.Row("Email sent", strconv.FormatBool(o.NotificationSent))
	if !o.StartedAt.IsZero() && !o.FinishedAt.IsZero() {
		t.Row("Duration", o.FinishedAt.Sub(o.StartedAt).Round(time.Second).String())
	}
	fmt.Fprintln(w, t.Render())
	if runErr != nil {
		fmt.Fprintf(w, "Error: %v\n", runErr)
	}
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a live terminal view of the run")
	runCmd.Flags().BoolVar(&runNoEmail, "no-email", false, "Log notices instead of sending email")
	runCmd.Flags().BoolVar(&runSkipCooldown, "skip-cooldown", false, "Skip the cooldown before the final acquisition attempt")
}
