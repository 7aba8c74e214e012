package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
)

// Dispatcher routes a decision to the matching Notifier call.
type Dispatcher struct {
	Notifier   Notifier
	Recipients []string
	ReportA    ReportSpec
	ReportB    ReportSpec
	Logger     *slog.Logger
	Recorder   Recorder
	RunID      string
}

// Dispatch sends the notice for decision. paths holds the archived location of each present
// report. It returns whether the Notifier was called successfully. A delivery failure is
// returned as *NotificationError and is never fatal to the run.
func (d *Dispatcher) Dispatch(ctx context.Context, decision Decision, paths map[ReportKind]string) (bool, error) {
	logger := d.logger().With(slog.String("decision", decision.String()))

	to := dedupe(d.Recipients)
	if len(to) == 0 {
		logger.Warn("No email recipients configured, skipping notification.")
		record(ctx, d.Recorder, d.RunID, Event{Stage: StageNotify, Type: EventSkipped, Subject: decision.String(),
			Message: "no recipients configured"})
		return false, nil
	}
	if d.Notifier == nil {
		logger.Warn("No notifier configured, skipping notification.")
		record(ctx, d.Recorder, d.RunID, Event{Stage: StageNotify, Type: EventSkipped, Subject: decision.String(),
			Message: "no notifier configured"})
		return false, nil
	}

	pathA := attachable(paths[KindA], logger)
	pathB := attachable(paths[KindB], logger)

	var err error
	switch decision {
	case DecisionBoth:
		err = d.Notifier.SendBothReports(ctx, to, pathA, pathB)
	case DecisionOnlyA:
		err = d.Notifier.SendPartial(ctx, to, pathA, "", d.ReportB.Label)
	case DecisionOnlyB:
		err = d.Notifier.SendPartial(ctx, to, "", pathB, d.ReportA.Label)
	case DecisionNeither:
		err = d.Notifier.SendBothFailed(ctx, to, d.ReportA.Criteria, d.ReportB.Criteria)
	default:
		err = errors.New("unknown decision")
	}
	if err != nil {
		nErr := &NotificationError{Decision: decision, Cause: err}
		logger.Warn("Notification failed.", "error", nErr)
		record(ctx, d.Recorder, d.RunID, Event{Stage: StageNotify, Type: EventFailed, Subject: decision.String(),
			Message: nErr.Error()})
		return false, nErr
	}

	logger.Info("Notification sent.", slog.Int("recipients", len(to)))
	record(ctx, d.Recorder, d.RunID, Event{Stage: StageNotify, Type: EventSent, Subject: decision.String(),
		Message: "sent to " + strings.Join(to, ", ")})
	return true, nil
}

// attachable returns path if it still exists as a regular file, otherwise "".
func attachable(path string, logger *slog.Logger) string {
	if path == "" {
		return ""
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		logger.Warn("Attachment missing at send time, sending without it.", slog.String("path", path))
		return ""
	}
	return path
}

// dedupe drops blanks and repeated addresses, keeping first appearance order.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
