package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/brensch/annualreview/internal/db"
)

var (
	stateLimit int
	stateRun   string
	stateStage string
	stateEvent string
	stateRuns  bool
)

// stateCmd represents the command to view the run event log
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "View the run event log",
	Long: `Queries the DuckDB event log and displays recorded stage events, newest first.
Use --runs for one line per run, or filter events by run, stage and event type.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		dbConn := getDB()
		ctx := context.Background()

		if stateRuns {
			runs, err := db.ListRuns(ctx, dbConn, logger, stateLimit)
			if err != nil {
				logger.Error("Failed to list runs", "error", err)
				return err
			}
			t := table.New().Border(lipgloss.NormalBorder()).Headers("Run ID", "Started", "Finished", "Result", "Summary")
			for _, r := range runs {
				finished := ""
				if !r.FinishedAt.IsZero() {
					finished = r.FinishedAt.Format("2006-01-02 15:04:05")
				}
				t.Row(r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), finished, r.Result, r.Summary)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			fmt.Fprintf(cmd.OutOrStdout(), "Displayed %s runs.\n", strconv.Itoa(len(runs)))
			return nil
		}

		logger.Debug("Querying database event log", "run", stateRun, "stage", stateStage, "event", stateEvent, "limit", stateLimit)
		err := db.DisplayRunHistory(ctx, dbConn, cmd.OutOrStdout(), db.Filter{
			RunID: stateRun,
			Stage: stateStage,
			Event: stateEvent,
			Limit: stateLimit,
		})
		if err != nil {
			logger.Error("Failed to display state history", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of records displayed")
	stateCmd.Flags().StringVarP(&stateRun, "run", "r", "", "Filter events by run ID")
	stateCmd.Flags().StringVarP(&stateStage, "stage", "s", "", "Filter events by stage (acquire, generate, classify, archive, notify, run)")
	stateCmd.Flags().StringVarP(&stateEvent, "event", "e", "", "Filter events by type (e.g., attempt, failed, moved)")
	stateCmd.Flags().BoolVar(&stateRuns, "runs", false, "List runs instead of individual events")
}
