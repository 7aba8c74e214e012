package downloader

import (
	"context"
	"log/slog"
	"time"

	"github.com/brensch/annualreview/internal/config"
	"github.com/brensch/annualreview/internal/orchestrator"
	"github.com/brensch/annualreview/internal/util"
)

// ExecFetcher runs an external acquisition command, such as a browser automation script,
// that drops the dataset into the staging directory.
type ExecFetcher struct {
	Command  []string
	Timeout  time.Duration
	Env      []string // Extra KEY=VALUE pairs, e.g. ERP credentials
	Dir      string
	Patterns []string
	Logger   *slog.Logger
}

// NewExecFetcher builds a fetcher from the acquisition settings, exporting the ERP
// connection details to the command's environment.
func NewExecFetcher(cfg config.AcquisitionConfig, stagingDir string, logger *slog.Logger) *ExecFetcher {
	env := []string{"ANNUALREVIEW_DATA_DIR=" + stagingDir}
	for k, v := range map[string]string{
		"ERP_URL":      cfg.ERP.URL,
		"ERP_USERNAME": cfg.ERP.Username,
		"ERP_PASSWORD": cfg.ERP.Password,
	} {
		if v != "" {
			env = append(env, k+"="+v)
		}
	}
	return &ExecFetcher{
		Command:  cfg.Command,
		Timeout:  cfg.Timeout,
		Env:      env,
		Patterns: cfg.Patterns,
		Logger:   logger,
	}
}

// Run executes the command once. A timeout or start failure is returned as an error; a
// non-zero exit is reported through the exit code.
func (f *ExecFetcher) Run(ctx context.Context) (orchestrator.RunResult, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = config.DefaultFetchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	code, output, err := util.RunCommand(ctx, f.Command, f.Env, f.Dir)
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("Acquisition command finished.", slog.Int("exit_code", code), slog.Duration("duration", time.Since(start)))
	return orchestrator.RunResult{ExitCode: code, Output: output}, err
}

// LocateOutput finds the newest dataset in dir.
func (f *ExecFetcher) LocateOutput(dir string) (string, bool) {
	return LatestMatch(dir, f.Patterns...)
}
