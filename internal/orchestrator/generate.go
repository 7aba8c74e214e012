package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Generator runs one renderer per report kind and reports whether its output exists.
type Generator struct {
	Renderers map[ReportKind]Renderer
	WorkDir   string // Directory renderers write their output into
	Timeout   time.Duration
	Logger    *slog.Logger
	Recorder  Recorder
	RunID     string
}

// OutputPath is where the renderer for spec is expected to write.
func (g *Generator) OutputPath(spec ReportSpec) string {
	return filepath.Join(g.WorkDir, spec.OutputName)
}

// Generate invokes the renderer for spec. Any failure collapses to an absent artifact;
// the reason is logged and recorded.
func (g *Generator) Generate(ctx context.Context, spec ReportSpec, dataset Dataset) Artifact {
	logger := g.logger().With(slog.String("report", string(spec.Kind)), slog.String("label", spec.Label))
	out := g.OutputPath(spec)
	absent := Artifact{Kind: spec.Kind}

	record(ctx, g.Recorder, g.RunID, Event{Stage: StageGenerate, Type: EventStart, Subject: string(spec.Kind), Path: out})
	start := time.Now()

	if err := g.run(ctx, spec, dataset.Path, out, logger); err != nil {
		logger.Warn("Report not generated.", "error", err, slog.Duration("duration", time.Since(start)))
		record(ctx, g.Recorder, g.RunID, Event{Stage: StageGenerate, Type: EventAbsent, Subject: string(spec.Kind),
			Message: err.Error(), Duration: time.Since(start)})
		return absent
	}

	logger.Info("Report generated.", slog.String("path", out), slog.Duration("duration", time.Since(start)))
	record(ctx, g.Recorder, g.RunID, Event{Stage: StageGenerate, Type: EventSuccess, Subject: string(spec.Kind),
		Path: out, Duration: time.Since(start)})
	return Artifact{Kind: spec.Kind, Path: out}
}

func (g *Generator) run(ctx context.Context, spec ReportSpec, datasetPath, out string, logger *slog.Logger) error {
	renderer, ok := g.Renderers[spec.Kind]
	if !ok || renderer == nil {
		return &RenderError{Kind: spec.Kind, Reason: "no renderer configured"}
	}

	// Stale output from an earlier run must not be mistaken for this run's report.
	if err := os.Remove(out); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &RenderError{Kind: spec.Kind, Reason: "removing stale output", Cause: err}
	} else if err == nil {
		logger.Info("Removed stale report output.", slog.String("path", out))
	}

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultReportTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// A renderer that ignores ctx is abandoned at the deadline. Its late output lands in
	// WorkDir and is removed as stale by the next run.
	type rendered struct {
		res RunResult
		err error
	}
	done := make(chan rendered, 1)
	go func() {
		res, err := safeRender(rctx, renderer, datasetPath, out)
		done <- rendered{res: res, err: err}
	}()

	var res RunResult
	var err error
	select {
	case r := <-done:
		res, err = r.res, r.err
	case <-rctx.Done():
		err = rctx.Err()
	}
	if text := strings.TrimSpace(res.Output); text != "" {
		logger.Info("Renderer output.", slog.String("output", text))
	}
	if err == nil && rctx.Err() != nil {
		err = rctx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &RenderError{Kind: spec.Kind, Reason: fmt.Sprintf("timed out after %s", timeout), Cause: err}
		}
		return &RenderError{Kind: spec.Kind, Reason: "renderer failed", Cause: err}
	}
	if res.ExitCode != 0 {
		return &RenderError{Kind: spec.Kind, Reason: fmt.Sprintf("renderer exited with status %d", res.ExitCode)}
	}

	info, err := os.Stat(out)
	if err != nil {
		return &RenderError{Kind: spec.Kind, Reason: "renderer produced no output", Cause: err}
	}
	if info.IsDir() {
		return &RenderError{Kind: spec.Kind, Reason: "expected output is a directory"}
	}
	return nil
}

// safeRender converts a panic inside an in-process renderer into an error.
func safeRender(ctx context.Context, r Renderer, datasetPath, out string) (res RunResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("renderer panicked: %v", p)
		}
	}()
	return r.Render(ctx, datasetPath, out)
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}
