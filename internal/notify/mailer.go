// Package notify delivers the annual review outcome to the configured recipient groups.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/brensch/annualreview/internal/config"
	"github.com/brensch/annualreview/internal/orchestrator"
)

const signature = "Best regards,\nCredit Evaluation Team"

// Mailer sends notices over SMTP with STARTTLS and plain authentication.
type Mailer struct {
	Host     string
	Port     int
	Sender   string
	Password string
	ReportA  orchestrator.ReportSpec
	ReportB  orchestrator.ReportSpec
	Logger   *slog.Logger
	Now      func() time.Time

	// send delivers a composed message; nil means dial the SMTP server.
	send func(ctx context.Context, m *mail.Msg) error
}

// NewMailer builds a Mailer from the email settings.
func NewMailer(cfg config.EmailConfig, a, b orchestrator.ReportSpec, logger *slog.Logger) *Mailer {
	return &Mailer{
		Host:     cfg.SMTPServer,
		Port:     cfg.SMTPPort,
		Sender:   cfg.Sender,
		Password: cfg.Password,
		ReportA:  a,
		ReportB:  b,
		Logger:   logger,
	}
}

func (m *Mailer) SendBothReports(ctx context.Context, to []string, pathA, pathB string) error {
	subject := fmt.Sprintf("Annual Credit Review Reports - %s", m.date())
	body := fmt.Sprintf(`Dear Team,

Please find the Annual Credit Review Reports for %s and %s facilities.

Reports included:
1. %s Annual Review Report
2. %s Annual Review Report

These reports contain the rating and grade summaries of the credit evaluations
and the PRE_APPROVED_USER summaries.

%s`, m.ReportA.Label, m.ReportB.Label, m.ReportA.Label, m.ReportB.Label, signature)
	return m.deliver(ctx, "both reports", to, subject, body, pathA, pathB)
}

func (m *Mailer) SendPartial(ctx context.Context, to []string, pathA, pathB, missingLabel string) error {
	available := m.ReportA.Label
	if missingLabel == m.ReportA.Label {
		available = m.ReportB.Label
	}
	subject := fmt.Sprintf("Annual Credit Review Report - %s - %s", available, m.date())
	body := fmt.Sprintf(`Dear Team,

Please find the Annual Credit Review Report for %s facilities.

Report included:
1. %s Annual Review Report

Note: The %s report was not generated due to insufficient data availability.

This report contains the rating and grade summaries of the credit evaluations
and the PRE_APPROVED_USER summaries.

%s`, available, available, missingLabel, signature)
	return m.deliver(ctx, "partial report", to, subject, body, pathA, pathB)
}

func (m *Mailer) SendNoData(ctx context.Context, to []string, label, criteria string) error {
	subject := fmt.Sprintf("%s Annual Credit Review - No Data Available - %s", label, m.date())
	body := fmt.Sprintf(`Dear Team,

This is to inform you that no records were found for the %s Annual Credit Review report with the current filtered criteria.

Filter criteria applied:
%s

The %s report file will not be generated due to insufficient data.

Please review the data source and filtering criteria if this is unexpected.

%s`, label, criteria, m.outputNameFor(label), signature)
	return m.deliver(ctx, "no data", to, subject, body)
}

func (m *Mailer) SendBothFailed(ctx context.Context, to []string, criteriaA, criteriaB string) error {
	subject := fmt.Sprintf("Annual Credit Review - No Data Available for Both Reports - %s", m.date())
	body := fmt.Sprintf(`Dear Team,

This is to inform you that no records were found for both Annual Credit Review reports with the current filtered criteria.

%s Report - Filter criteria applied:
%s

%s Report - Filter criteria applied:
%s

Neither %s nor %s files will be generated due to insufficient data.

Please review the data source and filtering criteria if this is unexpected.

%s`, m.ReportA.Label, criteriaA, m.ReportB.Label, criteriaB, m.ReportA.OutputName, m.ReportB.OutputName, signature)
	return m.deliver(ctx, "both failed", to, subject, body)
}

// Compose builds the message. Attachments that are empty or no longer exist are skipped.
func (m *Mailer) Compose(to []string, subject, body string, attachments ...string) (*mail.Msg, error) {
	if m.Sender == "" {
		return nil, errors.New("sender address not configured")
	}
	if len(to) == 0 {
		return nil, errors.New("no recipients")
	}

	msg := mail.NewMsg()
	if err := msg.From(m.Sender); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.Sender, err)
	}
	if err := msg.To(to...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, body)

	for _, path := range attachments {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			m.logger().Warn("Attachment not found, sending without it.", slog.String("path", path))
			continue
		}
		msg.AttachFile(path)
		m.logger().Info("Attached file.", slog.String("file", filepath.Base(path)))
	}
	return msg, nil
}

func (m *Mailer) deliver(ctx context.Context, kind string, to []string, subject, body string, attachments ...string) error {
	msg, err := m.Compose(to, subject, body, attachments...)
	if err != nil {
		return fmt.Errorf("compose %s email: %w", kind, err)
	}

	send := m.send
	if send == nil {
		send = m.dial
	}
	if err := send(ctx, msg); err != nil {
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	m.logger().Info("Email sent.", slog.String("kind", kind), slog.String("subject", subject), slog.Int("recipients", len(to)))
	return nil
}

func (m *Mailer) dial(ctx context.Context, msg *mail.Msg) error {
	if m.Password == "" {
		return errors.New("sender password not configured")
	}
	client, err := mail.NewClient(m.Host,
		mail.WithPort(m.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.Sender),
		mail.WithPassword(m.Password),
	)
	if err != nil {
		return fmt.Errorf("create smtp client for %s:%d: %w", m.Host, m.Port, err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func (m *Mailer) outputNameFor(label string) string {
	switch label {
	case m.ReportA.Label:
		return m.ReportA.OutputName
	case m.ReportB.Label:
		return m.ReportB.OutputName
	default:
		return strings.ToLower(strings.ReplaceAll(label, " ", "_")) + "_annual_review_report"
	}
}

func (m *Mailer) date() string {
	now := time.Now()
	if m.Now != nil {
		now = m.Now()
	}
	return now.Format("2006-01-02")
}

func (m *Mailer) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
