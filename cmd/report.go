package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brensch/annualreview/internal/notify"
	"github.com/brensch/annualreview/internal/orchestrator"
	"github.com/brensch/annualreview/internal/report"
)

var (
	reportKind    string
	reportDataset string
	reportOutput  string
	reportNotify  bool
)

// reportCmd runs one renderer outside the workflow
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a single report from an existing dataset",
	Long: `Runs the configured renderer for one report against a dataset file.

Unlike 'run', this command tells apart a renderer that found no matching rows from one
that failed. With --notify, a no-data result emails the no-data notice quoting the
report's filter criteria.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		var kind orchestrator.ReportKind
		switch strings.ToLower(reportKind) {
		case "a", "auto", "autofinance":
			kind = orchestrator.KindA
		case "b", "threewheeler", "three-wheeler":
			kind = orchestrator.KindB
		default:
			return fmt.Errorf("invalid --kind %q (use 'a' or 'b')", reportKind)
		}
		if reportDataset == "" {
			return errors.New("--dataset is required")
		}
		if _, err := os.Stat(reportDataset); err != nil {
			return fmt.Errorf("dataset not found: %w", err)
		}

		specA, specB := reportSpecs(cfg)
		spec := specA
		if kind == orchestrator.KindB {
			spec = specB
		}
		output := reportOutput
		if output == "" {
			output = filepath.Join(cfg.Paths.WorkDir, spec.OutputName)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Reports.Timeout)
		defer cancel()

		logger = logger.With(slog.String("report", spec.Label))
		logger.Info("Generating report.", slog.String("dataset", reportDataset), slog.String("output", output))
		res, err := newRenderer(cfg, kind, logger).Render(ctx, reportDataset, output)
		if res.Output != "" {
			logger.Info("Renderer output.", slog.String("output", strings.TrimSpace(res.Output)))
		}

		noData := errors.Is(err, report.ErrNoData)
		switch {
		case noData:
		case err != nil:
			return fmt.Errorf("%s report failed: %w", spec.Label, err)
		case res.ExitCode != 0:
			return fmt.Errorf("%s report failed: renderer exited with code %d", spec.Label, res.ExitCode)
		default:
			if _, statErr := os.Stat(output); statErr != nil {
				noData = true
			}
		}

		if !noData {
			fmt.Fprintf(cmd.OutOrStdout(), "%s report written to %s\n", spec.Label, output)
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "No records found for %s annual credit review with the filtered data.\n", spec.Label)
		if !reportNotify {
			return nil
		}
		recipients := notify.Recipients(cfg.Email.Groups)
		if len(recipients) == 0 {
			logger.Warn("No email recipients configured, no-data notice not sent.")
			return nil
		}
		n := notify.New(cfg.Email, specA, specB, false, logger)
		if err := n.SendNoData(cmd.Context(), recipients, spec.Label, spec.Criteria); err != nil {
			return fmt.Errorf("failed to send no-data notice: %w", err)
		}
		logger.Info("No-data notice sent.", slog.Int("recipients", len(recipients)))
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportKind, "kind", "k", "a", "Report to generate: 'a' (Auto Finance) or 'b' (Three Wheeler)")
	reportCmd.Flags().StringVar(&reportDataset, "dataset", "", "Dataset file to render from")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Output file (defaults to the configured name in paths.work_dir)")
	reportCmd.Flags().BoolVar(&reportNotify, "notify", false, "Email the no-data notice when no records match")
}
