package report

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/brensch/annualreview/internal/orchestrator"
	"github.com/brensch/annualreview/internal/util"
)

// Placeholders substituted in renderer command arguments.
const (
	PlaceholderDataset = "{dataset}"
	PlaceholderOutput  = "{output}"
)

// ExecRenderer runs one external command per report. A clean exit without an output file
// means the command found no data.
type ExecRenderer struct {
	Command []string
	Dir     string
	Logger  *slog.Logger
}

func (r *ExecRenderer) Render(ctx context.Context, datasetPath, outputPath string) (orchestrator.RunResult, error) {
	argv := make([]string, len(r.Command))
	for i, arg := range r.Command {
		arg = strings.ReplaceAll(arg, PlaceholderDataset, datasetPath)
		argv[i] = strings.ReplaceAll(arg, PlaceholderOutput, outputPath)
	}

	start := time.Now()
	code, output, err := util.RunCommand(ctx, argv, nil, r.Dir)
	if r.Logger != nil {
		r.Logger.Debug("Report command finished.", slog.String("command", argv[0]), slog.Int("exit_code", code),
			slog.Duration("duration", time.Since(start)))
	}
	return orchestrator.RunResult{ExitCode: code, Output: output}, err
}
