package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/brensch/annualreview/internal/config"
	"github.com/brensch/annualreview/internal/downloader"
	"github.com/brensch/annualreview/internal/orchestrator"
	"github.com/brensch/annualreview/internal/report"
	"github.com/brensch/annualreview/internal/util"
)

// reportSpecs returns the two report descriptions. The built-in renderer writes text, so
// its outputs get a .txt extension.
func reportSpecs(cfg config.Config) (orchestrator.ReportSpec, orchestrator.ReportSpec) {
	spec := func(kind orchestrator.ReportKind, rc config.ReportConfig) orchestrator.ReportSpec {
		name := rc.OutputName
		if cfg.Reports.Renderer == config.RendererBuiltin {
			name = strings.TrimSuffix(name, filepath.Ext(name)) + ".txt"
		}
		return orchestrator.ReportSpec{
			Kind:       kind,
			Label:      rc.Label,
			OutputName: name,
			Criteria:   rc.CriteriaText(),
		}
	}
	return spec(orchestrator.KindA, cfg.Reports.AutoFinance), spec(orchestrator.KindB, cfg.Reports.ThreeWheeler)
}

func reportConfig(cfg config.Config, kind orchestrator.ReportKind) config.ReportConfig {
	if kind == orchestrator.KindB {
		return cfg.Reports.ThreeWheeler
	}
	return cfg.Reports.AutoFinance
}

func newRenderer(cfg config.Config, kind orchestrator.ReportKind, logger *slog.Logger) orchestrator.Renderer {
	rc := reportConfig(cfg, kind)
	logger = logger.With(slog.String("component", "renderer"), slog.String("report", rc.Label))
	if cfg.Reports.Renderer == config.RendererBuiltin {
		return &report.BuiltinRenderer{
			Title:    rc.Label,
			Products: rc.Products,
			Criteria: rc.CriteriaText(),
			Logger:   logger,
		}
	}
	return &report.ExecRenderer{Command: rc.Command, Logger: logger}
}

func newRenderers(cfg config.Config, logger *slog.Logger) map[orchestrator.ReportKind]orchestrator.Renderer {
	return map[orchestrator.ReportKind]orchestrator.Renderer{
		orchestrator.KindA: newRenderer(cfg, orchestrator.KindA, logger),
		orchestrator.KindB: newRenderer(cfg, orchestrator.KindB, logger),
	}
}

func newFetcher(cfg config.Config, logger *slog.Logger) (orchestrator.Fetcher, error) {
	logger = logger.With(slog.String("component", "fetcher"))
	acq := cfg.Acquisition
	switch acq.Mode {
	case config.AcquisitionExec:
		return downloader.NewExecFetcher(acq, cfg.Paths.DataDir, logger), nil
	case config.AcquisitionHTTP:
		return &downloader.HTTPFetcher{
			Client:     util.DefaultHTTPClient(acq.Timeout),
			URL:        acq.URL,
			ListingURL: acq.ListingURL,
			LinkSuffix: acq.LinkSuffix,
			StagingDir: cfg.Paths.DataDir,
			Patterns:   acq.Patterns,
			Logger:     logger,
		}, nil
	default:
		return nil, fmt.Errorf("unknown acquisition mode %q", acq.Mode)
	}
}

func newPolicy(cfg config.Config, skipCooldown bool) orchestrator.Policy {
	p := orchestrator.DefaultPolicy()
	p.MaxAttempts = cfg.Retry.MaxAttempts
	p.RetryDelay = cfg.Retry.Delay
	p.Cooldown = cfg.Retry.Cooldown
	p.FinalAttempt = cfg.Retry.FinalAttempt
	if skipCooldown {
		p.Cooldown = 0
	}
	return p
}
