package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 900*time.Second, cfg.Retry.Cooldown)
	assert.True(t, cfg.Retry.FinalAttempt)
	assert.Len(t, cfg.Email.Groups, 6)
}

func TestCriteriaText(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "- Blank REPORT_REVIEW_DATE\n- Non-blank PRE_APPROVED_DATE\n"+
		"- Target products: CASH IN HAND, Three Wheeler-Lease-Registered, Three Wheeler-Lease-Brand New, IJARAH SMALL LEASE",
		cfg.Reports.ThreeWheeler.CriteriaText())

	custom := ReportConfig{Criteria: "custom text", Products: []string{"X"}}
	assert.Equal(t, "custom text", custom.CriteriaText())
}

func TestLoadYAMLAndCredentials(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.env")
	require.NoError(t, os.WriteFile(creds, []byte(
		"SENDER_EMAIL=reports@example.com\nSENDER_PASSWORD=secret\nGROUP2_EMAILS=a@example.com, b@example.com\n"), 0o600))

	cfgPath := filepath.Join(dir, "annualreview.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
paths:
  reports_dir: /srv/reports
  credentials: `+creds+`
retry:
  max_attempts: 3
  cooldown: 10m
  final_attempt: false
reports:
  renderer: builtin
  timeout: 2m
`), 0o644))

	// Variables already in the environment win over the credentials file.
	t.Setenv("SENDER_EMAIL", "override@example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SENDER_PASSWORD", "")
	os.Unsetenv("SENDER_PASSWORD")
	t.Setenv("GROUP2_EMAILS", "")
	os.Unsetenv("GROUP2_EMAILS")

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/srv/reports", cfg.Paths.ReportsDir)
	assert.Equal(t, DefaultDataDir, cfg.Paths.DataDir)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Retry.Cooldown)
	assert.False(t, cfg.Retry.FinalAttempt)
	assert.Equal(t, RendererBuiltin, cfg.Reports.Renderer)
	assert.Equal(t, 2*time.Minute, cfg.Reports.Timeout)

	assert.Equal(t, "override@example.com", cfg.Email.Sender)
	assert.Equal(t, "secret", cfg.Email.Password)
	assert.Equal(t, 2525, cfg.Email.SMTPPort)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Email.Groups[2].Addresses)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"GENERAL_EMAILS":              "x@example.com,,y@example.com ",
		"ERP_USERNAME":                "svc_review",
		"ANNUALREVIEW_RETRY_DELAY":    "250ms",
		"ANNUALREVIEW_REPORT_TIMEOUT": "bogus",
		"SMTP_PORT":                   "not-a-port",
	}
	cfg := Default()
	err := ApplyEnv(&cfg, func(k string) (string, bool) { v, ok := env[k]; return v, ok })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANNUALREVIEW_REPORT_TIMEOUT")
	assert.Contains(t, err.Error(), "SMTP_PORT")
	assert.Equal(t, []string{"x@example.com", "y@example.com"}, cfg.Email.Groups[0].Addresses)
	assert.Equal(t, "svc_review", cfg.Acquisition.ERP.Username)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.Delay)
	assert.Equal(t, DefaultReportTimeout, cfg.Reports.Timeout)
	assert.Equal(t, DefaultSMTPPort, cfg.Email.SMTPPort)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty reports dir", func(c *Config) { c.Paths.ReportsDir = "" }, "paths.reports_dir"},
		{"same output names", func(c *Config) { c.Reports.ThreeWheeler.OutputName = c.Reports.AutoFinance.OutputName }, "must differ"},
		{"zero report timeout", func(c *Config) { c.Reports.Timeout = 0 }, "reports.timeout"},
		{"unknown renderer", func(c *Config) { c.Reports.Renderer = "latex" }, "reports.renderer"},
		{"http without url", func(c *Config) { c.Acquisition.Mode = AcquisitionHTTP }, "listing_url"},
		{"no attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "max_attempts"},
		{"bad port", func(c *Config) { c.Email.SMTPPort = 70000 }, "smtp_port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseEmailList(t *testing.T) {
	assert.Nil(t, ParseEmailList(""))
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, ParseEmailList(" a@x.com , ,b@x.com"))
}
