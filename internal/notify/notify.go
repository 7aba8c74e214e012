package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/brensch/annualreview/internal/config"
	"github.com/brensch/annualreview/internal/orchestrator"
)

// Recipients returns the union of all group addresses, deduplicated case-insensitively,
// in group order then first appearance.
func Recipients(groups []config.RecipientGroup) []string {
	seen := make(map[string]bool)
	var out []string
	for _, g := range groups {
		for _, addr := range g.Addresses {
			addr = strings.TrimSpace(addr)
			key := strings.ToLower(addr)
			if addr == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, addr)
		}
	}
	return out
}

// CheckConfig validates the email settings the way an operator would before a run and
// returns the number of distinct recipients.
func CheckConfig(cfg config.EmailConfig, logger *slog.Logger) (int, error) {
	logger.Info("Testing email configuration...")

	var errs error
	if cfg.Sender == "" {
		errs = errors.Join(errs, errors.New("SENDER_EMAIL not configured"))
	}
	if cfg.Password == "" {
		errs = errors.Join(errs, errors.New("SENDER_PASSWORD not configured"))
	}
	if cfg.SMTPServer == "" {
		errs = errors.Join(errs, errors.New("SMTP_SERVER not configured"))
	}

	total := 0
	for _, g := range cfg.Groups {
		logger.Info("Recipient group.", slog.String("group", g.Name), slog.Int("emails", len(g.Addresses)))
		total += len(g.Addresses)
	}
	distinct := len(Recipients(cfg.Groups))
	if distinct == 0 {
		logger.Warn("No email recipients configured.")
	} else {
		logger.Info("Recipients configured.", slog.Int("total", total), slog.Int("distinct", distinct))
	}
	return distinct, errs
}

// LogNotifier records notices in the log instead of sending them.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) SendBothReports(_ context.Context, to []string, pathA, pathB string) error {
	n.Logger.Info("Email disabled, would send both reports.", slog.Any("to", to),
		slog.String("report_a", pathA), slog.String("report_b", pathB))
	return nil
}

func (n *LogNotifier) SendPartial(_ context.Context, to []string, pathA, pathB, missingLabel string) error {
	n.Logger.Info("Email disabled, would send partial report.", slog.Any("to", to),
		slog.String("report_a", pathA), slog.String("report_b", pathB), slog.String("missing", missingLabel))
	return nil
}

func (n *LogNotifier) SendNoData(_ context.Context, to []string, label, criteria string) error {
	n.Logger.Info("Email disabled, would send no-data notice.", slog.Any("to", to),
		slog.String("report", label), slog.String("criteria", criteria))
	return nil
}

func (n *LogNotifier) SendBothFailed(_ context.Context, to []string, criteriaA, criteriaB string) error {
	n.Logger.Info("Email disabled, would send both-failed notice.", slog.Any("to", to),
		slog.String("criteria_a", criteriaA), slog.String("criteria_b", criteriaB))
	return nil
}

// New picks the notifier for the configuration. Email falls back to logging when it is
// disabled or the sender credentials are missing.
func New(cfg config.EmailConfig, a, b orchestrator.ReportSpec, disable bool, logger *slog.Logger) orchestrator.Notifier {
	switch {
	case disable || !cfg.Enabled:
		logger.Info("Email notifications disabled, notices will be logged only.")
		return &LogNotifier{Logger: logger}
	case cfg.Sender == "" || cfg.Password == "":
		logger.Warn("Email credentials not configured, notices will be logged only.")
		return &LogNotifier{Logger: logger}
	}
	return NewMailer(cfg, a, b, logger)
}
