package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDataDir      = "data"
	DefaultProcessedDir = "data_bin"
	DefaultReportsDir   = "reports"
	DefaultWorkDir      = "."
	DefaultDBPath       = "annual_review.duckdb"
	DefaultRunLog       = "annual_review.log"
	DefaultCredentials  = "credentials.env"
	DefaultFolderSuffix = "_Annual_review_reports"

	DefaultFetchTimeout  = 300 * time.Second
	DefaultReportTimeout = 600 * time.Second
	DefaultMaxAttempts   = 5
	DefaultRetryDelay    = 5 * time.Second
	DefaultCooldown      = 900 * time.Second

	DefaultSMTPServer = "smtp.gmail.com"
	DefaultSMTPPort   = 587

	AcquisitionExec = "exec"
	AcquisitionHTTP = "http"
	RendererExec    = "exec"
	RendererBuiltin = "builtin"
)

// Product lists selected by each report.
var (
	DefaultAutoFinanceProducts = []string{
		"VEHICLE LOAN-REGISTERED", "TRACTOR LEASE", "PLEDGE LOAN", "OTHER LEASE", "Murabaha",
		"MINI TRUCK LEASE", "IJARAH LEASE", "HIRE PURCHASE-UN-REGISTERED", "HIRE PURCHASE-REGISTERED",
		"VEHICLE LOAN-UN-REGISTERED",
	}
	DefaultThreeWheelerProducts = []string{
		"CASH IN HAND", "Three Wheeler-Lease-Registered", "Three Wheeler-Lease-Brand New", "IJARAH SMALL LEASE",
	}
	// DefaultGroupNames is the fixed order recipient groups are read from the environment in.
	DefaultGroupNames = []string{"general", "group1", "group2", "group3", "group4", "group5"}
)

// Config holds application settings
type Config struct {
	Paths       PathsConfig       `yaml:"paths"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Retry       RetryConfig       `yaml:"retry"`
	Reports     ReportsConfig     `yaml:"reports"`
	Email       EmailConfig       `yaml:"email"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type PathsConfig struct {
	DataDir      string `yaml:"data_dir"`      // Staging area the fetcher downloads into
	ProcessedDir string `yaml:"processed_dir"` // Store for datasets that have been used
	ReportsDir   string `yaml:"reports_dir"`   // Root of the dated report folders
	WorkDir      string `yaml:"work_dir"`      // Where renderers write before archival
	DBPath       string `yaml:"db_path"`
	RunLog       string `yaml:"run_log"`
	Credentials  string `yaml:"credentials"`
}

type AcquisitionConfig struct {
	Mode       string        `yaml:"mode"`
	Command    []string      `yaml:"command"`
	Timeout    time.Duration `yaml:"timeout"`
	Patterns   []string      `yaml:"patterns"`    // Globs the dataset is located by
	URL        string        `yaml:"url"`         // Direct dataset URL (http mode)
	ListingURL string        `yaml:"listing_url"` // Page linking to the latest export (http mode)
	LinkSuffix string        `yaml:"link_suffix"`
	ERP        ERPConfig     `yaml:"erp"`
}

// ERPConfig is exported to the acquisition command. Credentials only come from the environment.
type ERPConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"-"`
	Password string `yaml:"-"`
}

type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	Delay        time.Duration `yaml:"delay"`
	Cooldown     time.Duration `yaml:"cooldown"`
	FinalAttempt bool          `yaml:"final_attempt"`
}

type ReportsConfig struct {
	Renderer     string        `yaml:"renderer"`
	Timeout      time.Duration `yaml:"timeout"`
	FolderSuffix string        `yaml:"folder_suffix"`
	AutoFinance  ReportConfig  `yaml:"auto_finance"`
	ThreeWheeler ReportConfig  `yaml:"three_wheeler"`
}

// ReportConfig describes one report. Command may use {dataset} and {output} placeholders.
type ReportConfig struct {
	Label      string   `yaml:"label"`
	OutputName string   `yaml:"output_name"`
	Command    []string `yaml:"command"`
	Products   []string `yaml:"products"`
	Criteria   string   `yaml:"criteria"` // Overrides the text derived from Products
}

// CriteriaText is the filter description quoted in no-data notices.
func (r ReportConfig) CriteriaText() string {
	if r.Criteria != "" {
		return r.Criteria
	}
	return "- Blank REPORT_REVIEW_DATE\n- Non-blank PRE_APPROVED_DATE\n- Target products: " + strings.Join(r.Products, ", ")
}

type EmailConfig struct {
	Enabled    bool             `yaml:"enabled"`
	SMTPServer string           `yaml:"smtp_server"`
	SMTPPort   int              `yaml:"smtp_port"`
	Sender     string           `yaml:"sender"`
	Password   string           `yaml:"-"`
	Groups     []RecipientGroup `yaml:"groups"`
}

// RecipientGroup is a named list of addresses. Groups are unioned in order.
type RecipientGroup struct {
	Name      string   `yaml:"name"`
	Addresses []string `yaml:"addresses"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // Prometheus textfile written at the end of a run
}

// Default returns the built-in configuration.
func Default() Config {
	groups := make([]RecipientGroup, 0, len(DefaultGroupNames))
	for _, name := range DefaultGroupNames {
		groups = append(groups, RecipientGroup{Name: name})
	}
	return Config{
		Paths: PathsConfig{
			DataDir:      DefaultDataDir,
			ProcessedDir: DefaultProcessedDir,
			ReportsDir:   DefaultReportsDir,
			WorkDir:      DefaultWorkDir,
			DBPath:       DefaultDBPath,
			RunLog:       DefaultRunLog,
			Credentials:  DefaultCredentials,
		},
		Acquisition: AcquisitionConfig{
			Mode:       AcquisitionExec,
			Command:    []string{"python", "selenium_erp_annual_review.py"},
			Timeout:    DefaultFetchTimeout,
			Patterns:   []string{"*.xlsx", "*.csv"},
			LinkSuffix: ".xlsx",
		},
		Retry: RetryConfig{
			MaxAttempts:  DefaultMaxAttempts,
			Delay:        DefaultRetryDelay,
			Cooldown:     DefaultCooldown,
			FinalAttempt: true,
		},
		Reports: ReportsConfig{
			Renderer:     RendererExec,
			Timeout:      DefaultReportTimeout,
			FolderSuffix: DefaultFolderSuffix,
			AutoFinance: ReportConfig{
				Label:      "Auto Finance",
				OutputName: "Auto_finance_annual_review_report.pdf",
				Command:    []string{"python", "AutoFinance_report.py", "{dataset}", "{output}"},
				Products:   append([]string(nil), DefaultAutoFinanceProducts...),
			},
			ThreeWheeler: ReportConfig{
				Label:      "Three Wheeler",
				OutputName: "ThreeWheeler_annual_review_report.pdf",
				Command:    []string{"python", "ThreeWheel_report.py", "{dataset}", "{output}"},
				Products:   append([]string(nil), DefaultThreeWheelerProducts...),
			},
		},
		Email: EmailConfig{
			Enabled:    true,
			SMTPServer: DefaultSMTPServer,
			SMTPPort:   DefaultSMTPPort,
			Groups:     groups,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if any), then the
// credentials env file, then the process environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// godotenv never overrides variables already set in the environment.
	if cfg.Paths.Credentials != "" {
		if err := godotenv.Load(cfg.Paths.Credentials); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load credentials %s: %w", cfg.Paths.Credentials, err)
		}
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg using lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = errors.Join(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("SMTP_SERVER", &cfg.Email.SMTPServer)
	if v, ok := lookup("SMTP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("SMTP_PORT: %w", err))
		} else {
			cfg.Email.SMTPPort = port
		}
	}
	str("SENDER_EMAIL", &cfg.Email.Sender)
	str("SENDER_PASSWORD", &cfg.Email.Password)

	for _, name := range DefaultGroupNames {
		v, ok := lookup(strings.ToUpper(name) + "_EMAILS")
		if !ok {
			continue
		}
		cfg.Email.setGroup(name, ParseEmailList(v))
	}

	str("ERP_URL", &cfg.Acquisition.ERP.URL)
	str("ERP_USERNAME", &cfg.Acquisition.ERP.Username)
	str("ERP_PASSWORD", &cfg.Acquisition.ERP.Password)

	dur("ANNUALREVIEW_RETRY_DELAY", &cfg.Retry.Delay)
	dur("ANNUALREVIEW_RETRY_COOLDOWN", &cfg.Retry.Cooldown)
	dur("ANNUALREVIEW_REPORT_TIMEOUT", &cfg.Reports.Timeout)
	dur("ANNUALREVIEW_FETCH_TIMEOUT", &cfg.Acquisition.Timeout)
	return errs
}

func (e *EmailConfig) setGroup(name string, addrs []string) {
	for i := range e.Groups {
		if strings.EqualFold(e.Groups[i].Name, name) {
			e.Groups[i].Addresses = addrs
			return
		}
	}
	e.Groups = append(e.Groups, RecipientGroup{Name: name, Addresses: addrs})
}

// ParseEmailList splits a comma separated address list, dropping blanks.
func ParseEmailList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs error
	for name, dir := range map[string]string{
		"paths.data_dir":      c.Paths.DataDir,
		"paths.processed_dir": c.Paths.ProcessedDir,
		"paths.reports_dir":   c.Paths.ReportsDir,
		"paths.work_dir":      c.Paths.WorkDir,
		"paths.db_path":       c.Paths.DBPath,
	} {
		if strings.TrimSpace(dir) == "" {
			errs = errors.Join(errs, fmt.Errorf("%s must not be empty", name))
		}
	}

	switch c.Acquisition.Mode {
	case AcquisitionExec:
		if len(c.Acquisition.Command) == 0 {
			errs = errors.Join(errs, errors.New("acquisition.command is required in exec mode"))
		}
	case AcquisitionHTTP:
		if c.Acquisition.URL == "" && c.Acquisition.ListingURL == "" {
			errs = errors.Join(errs, errors.New("acquisition.url or acquisition.listing_url is required in http mode"))
		}
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown acquisition.mode %q", c.Acquisition.Mode))
	}
	if len(c.Acquisition.Patterns) == 0 {
		errs = errors.Join(errs, errors.New("acquisition.patterns must not be empty"))
	}
	if c.Acquisition.Timeout <= 0 {
		errs = errors.Join(errs, errors.New("acquisition.timeout must be positive"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = errors.Join(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.Delay < 0 || c.Retry.Cooldown < 0 {
		errs = errors.Join(errs, errors.New("retry delays must not be negative"))
	}

	if c.Reports.Timeout <= 0 {
		errs = errors.Join(errs, errors.New("reports.timeout must be positive"))
	}
	switch c.Reports.Renderer {
	case RendererBuiltin:
	case RendererExec:
		if len(c.Reports.AutoFinance.Command) == 0 || len(c.Reports.ThreeWheeler.Command) == 0 {
			errs = errors.Join(errs, errors.New("both report commands are required with the exec renderer"))
		}
	default:
		errs = errors.Join(errs, fmt.Errorf("unknown reports.renderer %q", c.Reports.Renderer))
	}
	if c.Reports.AutoFinance.OutputName == "" || c.Reports.ThreeWheeler.OutputName == "" {
		errs = errors.Join(errs, errors.New("report output names must not be empty"))
	} else if c.Reports.AutoFinance.OutputName == c.Reports.ThreeWheeler.OutputName {
		errs = errors.Join(errs, errors.New("report output names must differ"))
	}

	if c.Email.Enabled && (c.Email.SMTPPort <= 0 || c.Email.SMTPPort > 65535) {
		errs = errors.Join(errs, fmt.Errorf("email.smtp_port %d out of range", c.Email.SMTPPort))
	}
	return errs
}
