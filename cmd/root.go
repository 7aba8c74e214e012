package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brensch/annualreview/internal/config"
	"github.com/brensch/annualreview/internal/db"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	"github.com/spf13/cobra"
)

var (
	// Config flags - bound in init()
	cfgFile   string
	dbPath    string
	logFormat string
	logLevel  string
	logOutput string

	// Global instances populated in PersistentPreRunE
	rootLogger *slog.Logger
	dbConn     *sql.DB
	appConfig  config.Config
	logFiles   []*os.File
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "annualreview",
	Short: "Acquire the credit evaluation export, generate annual review reports and distribute them.",
	Long: `annualreview runs the annual credit review reporting cycle: it acquires the latest
evaluation dataset with bounded retries, generates the Auto Finance and Three Wheeler
reports, archives them into a dated folder without overwriting anything, and emails
the outcome to the configured recipient groups.

Every stage is recorded in a DuckDB event log that 'state' and 'save' read back.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// --- 1. Load/Validate Config ---
		var err error
		appConfig, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if dbPath != "" {
			appConfig.Paths.DBPath = dbPath
		}
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// --- 2. Initialize Logger ---
		rootLogger, err = newLogger(appConfig.Paths.RunLog)
		if err != nil {
			return err
		}
		slog.SetDefault(rootLogger)
		rootLogger.Info("Logger initialized", "level", logLevel, "format", logFormat, "output", logOutput,
			"run_log", appConfig.Paths.RunLog)
		rootLogger.Debug("Configuration loaded", slog.String("config_file", cfgFile),
			slog.String("acquisition_mode", appConfig.Acquisition.Mode), slog.String("renderer", appConfig.Reports.Renderer))

		// Ensure directories exist
		for _, d := range []string{appConfig.Paths.DataDir, appConfig.Paths.ProcessedDir, appConfig.Paths.ReportsDir, appConfig.Paths.WorkDir} {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", d, err)
			}
		}
		if appConfig.Paths.DBPath != ":memory:" {
			dbDir := filepath.Dir(appConfig.Paths.DBPath)
			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}

		// --- 3. Initialize DuckDB Connection & Schema ---
		rootLogger.Debug("Initializing DuckDB connection", "path", appConfig.Paths.DBPath)
		dsn := appConfig.Paths.DBPath
		if dsn == ":memory:" {
			dsn = ""
		}
		dbConn, err = sql.Open("duckdb", dsn)
		if err != nil {
			return fmt.Errorf("failed to open duckdb database (%s): %w", appConfig.Paths.DBPath, err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err = dbConn.PingContext(pingCtx); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to ping duckdb database (%s): %w", appConfig.Paths.DBPath, err)
		}
		if err := db.InitializeSchema(dbConn); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
		rootLogger.Debug("Database schema initialized successfully.")
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		closeResources()
		return nil
	},
}

// newLogger builds the root logger. Output goes to --log-output and, when runLog is set,
// is also appended to the run log file.
func newLogger(runLog string) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var logWriter io.Writer = os.Stderr
	if logOutput != "" && strings.ToLower(logOutput) != "stderr" {
		if strings.ToLower(logOutput) == "stdout" {
			logWriter = os.Stdout
		} else {
			f, err := openAppend(logOutput)
			if err != nil {
				return nil, err
			}
			logWriter = f
		}
	}
	if runLog != "" && runLog != logOutput {
		f, err := openAppend(runLog)
		if err != nil {
			return nil, err
		}
		logWriter = io.MultiWriter(logWriter, f)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if logFormat == "json" {
		handler = slog.NewJSONHandler(logWriter, opts)
	} else {
		handler = slog.NewTextHandler(logWriter, opts)
	}
	return slog.New(handler), nil
}

func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logFiles = append(logFiles, f)
	return f, nil
}

func closeResources() {
	if dbConn != nil {
		if err := dbConn.Close(); err != nil {
			getLogger().Error("Failed to close DuckDB connection cleanly", "error", err)
		}
		dbConn = nil
	}
	for _, f := range logFiles {
		f.Close()
	}
	logFiles = nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(checkEmailCmd)

	err := rootCmd.Execute()
	if err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		closeResources()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db-path", "d", "", "Path to DuckDB event log (overrides paths.db_path, :memory: for in-memory)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.Version = "1.0.0"
}

// Helper to get logger
func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

// Helper to get DB connection
func getDB() *sql.DB {
	return dbConn
}

// Helper to get Config
func getConfig() config.Config {
	return appConfig
}
