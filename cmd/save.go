package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/brensch/annualreview/internal/db"
	"github.com/brensch/annualreview/internal/saver"
)

var (
	saveOutput string
	saveRun    string
)

// saveCmd exports the event log to Parquet
var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Export the run event log to a Parquet file",
	Long: `Reads the DuckDB run event log and writes it, oldest event first, to a
Snappy-compressed Parquet file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()

		output := saveOutput
		if output == "" {
			output = fmt.Sprintf("review_event_log_%s.parquet", time.Now().Format("20060102_150405"))
		}

		n, err := saver.SaveEventLog(cmd.Context(), getDB(), db.Filter{RunID: saveRun}, output, logger)
		if err != nil {
			logger.Error("Save process completed with errors", "error", err)
			return fmt.Errorf("save failed: %w", err)
		}
		logger.Info("Event log saved.", slog.Int("rows", n), slog.String("output", output))
		return nil
	},
}

func init() {
	saveCmd.Flags().StringVarP(&saveOutput, "output", "o", "", "Parquet file to write (default review_event_log_<timestamp>.parquet)")
	saveCmd.Flags().StringVarP(&saveRun, "run", "r", "", "Only export events of this run ID")
}
