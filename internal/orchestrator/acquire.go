package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// mtimeSlack allows for coarse filesystem timestamps when deciding whether a located
// dataset was written by the current attempt.
const mtimeSlack = 2 * time.Second

// Acquirer obtains the dataset under a bounded retry policy.
type Acquirer struct {
	Fetcher    Fetcher
	StagingDir string
	Policy     Policy
	Logger     *slog.Logger
	Recorder   Recorder
	RunID      string
	Now        func() time.Time
}

// Acquire runs up to Policy.MaxAttempts attempts, then after a single cooldown one final
// attempt. A terminal failure is returned as *AcquisitionError carrying every attempt.
func (a *Acquirer) Acquire(ctx context.Context) (Dataset, error) {
	logger := a.logger()
	now := a.Now
	if now == nil {
		now = time.Now
	}
	window := a.Policy.MaxAttempts
	if window < 1 {
		window = 1
	}
	total := a.Policy.TotalAttempts()

	var attempts []Attempt
	var lastErr error

	terminal := func(ctxErr error) (Dataset, error) {
		err := &AcquisitionError{Attempts: attempts, Cause: errors.Join(lastErr, ctxErr)}
		logger.Error("Dataset acquisition failed.", slog.Int("attempts", len(attempts)), "error", err)
		record(ctx, a.Recorder, a.RunID, Event{Stage: StageAcquire, Type: EventFailed, Attempt: len(attempts), Message: err.Error()})
		return Dataset{Attempts: attempts}, err
	}

	for seq := 1; seq <= total; seq++ {
		if seq == window+1 {
			logger.Warn("All attempts in the retry window failed, cooling down before final attempt.",
				slog.Int("attempts", len(attempts)), slog.Duration("cooldown", a.Policy.Cooldown))
			record(ctx, a.Recorder, a.RunID, Event{Stage: StageAcquire, Type: EventCooldown, Duration: a.Policy.Cooldown,
				Message: fmt.Sprintf("waiting %s before final attempt", a.Policy.Cooldown)})
			if err := a.Policy.sleep(ctx, a.Policy.Cooldown); err != nil {
				return terminal(err)
			}
		}

		attempt := Attempt{Seq: seq, At: now()}
		attempts = append(attempts, attempt)
		l := logger.With(slog.Int("attempt", seq), slog.Int("max_attempts", total))
		l.Info("Starting dataset acquisition attempt.")
		record(ctx, a.Recorder, a.RunID, Event{Stage: StageAcquire, Type: EventAttempt, Attempt: seq, At: attempt.At})

		start := time.Now()
		path, err := a.try(ctx, seq, start)
		if err == nil {
			l.Info("Dataset acquired.", slog.String("path", path), slog.Duration("duration", time.Since(start)))
			record(ctx, a.Recorder, a.RunID, Event{Stage: StageAcquire, Type: EventSuccess, Attempt: seq, Path: path,
				Duration: time.Since(start)})
			return Dataset{Path: path, Attempts: attempts}, nil
		}
		lastErr = err
		l.Warn("Dataset acquisition attempt failed.", "error", err)

		if ctx.Err() != nil {
			return terminal(ctx.Err())
		}
		if seq < total {
			if err := a.Policy.sleep(ctx, a.Policy.RetryDelay); err != nil {
				return terminal(err)
			}
		}
	}
	return terminal(nil)
}

// try performs one attempt: the fetcher must report success and a dataset written since
// the attempt started must exist.
func (a *Acquirer) try(ctx context.Context, seq int, since time.Time) (string, error) {
	res, err := a.Fetcher.Run(ctx)
	if res.Output != "" {
		a.logger().Debug("Fetcher output.", slog.Int("attempt", seq), slog.String("output", strings.TrimSpace(res.Output)))
	}
	if err != nil {
		return "", &attemptError{Seq: seq, Reason: "fetcher failed", Cause: err}
	}
	if res.ExitCode != 0 {
		return "", &attemptError{Seq: seq, Reason: fmt.Sprintf("fetcher exited with status %d", res.ExitCode)}
	}
	path, ok := a.Fetcher.LocateOutput(a.StagingDir)
	if !ok {
		return "", &attemptError{Seq: seq, Reason: fmt.Sprintf("no dataset found in %s", a.StagingDir)}
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", &attemptError{Seq: seq, Reason: "dataset not readable", Cause: err}
	}
	if info.ModTime().Before(since.Add(-mtimeSlack)) {
		return "", &attemptError{Seq: seq, Reason: fmt.Sprintf("no new dataset, %s last modified %s",
			path, info.ModTime().Format(time.DateTime))}
	}
	return path, nil
}

func (a *Acquirer) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}
