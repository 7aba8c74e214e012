package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Driver
)

// Schema SQL
const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS review_event_log_id_seq;`
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS review_event_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('review_event_log_id_seq'),
    run_id          VARCHAR NOT NULL,
    stage           VARCHAR NOT NULL,      -- 'run', 'acquire', 'generate', 'classify', 'archive', 'notify'
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    attempt         INTEGER,               -- Acquisition attempt number
    subject         VARCHAR,               -- Report kind, decision or 'dataset'
    output_path     VARCHAR,
    message         VARCHAR,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_review_event_log_run ON review_event_log (run_id);
CREATE INDEX IF NOT EXISTS idx_review_event_log_stage_event ON review_event_log (stage, event, event_timestamp);
`

// EventRecord is one row of the run event log.
type EventRecord struct {
	LogID      int64
	RunID      string
	Stage      string
	Event      string
	Timestamp  time.Time
	Attempt    int
	Subject    string
	OutputPath string
	Message    string
	DurationMs int64
}

// Filter narrows ListEvents. Zero values match everything; Limit <= 0 means no limit.
type Filter struct {
	RunID string
	Stage string
	Event string
	Limit int
}

// InitializeSchema creates the sequence and tables in the correct order.
func InitializeSchema(db *sql.DB) error {
	// 1. Create Sequence First
	_, err := db.Exec(schemaSequenceSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	// 2. Create Table and Indices
	_, err = db.Exec(schemaTableSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

// LogRunEvent inserts a new event record into the log. A zero Timestamp means now.
func LogRunEvent(ctx context.Context, db *sql.DB, rec EventRecord) error {
	query := `
        INSERT INTO review_event_log (run_id, stage, event, event_timestamp, attempt, subject, output_path, message, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
    `
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := db.ExecContext(ctx, query,
		rec.RunID,
		rec.Stage,
		rec.Event,
		ts.UTC(),
		sql.NullInt64{Int64: int64(rec.Attempt), Valid: rec.Attempt > 0},
		sql.NullString{String: rec.Subject, Valid: rec.Subject != ""},
		sql.NullString{String: rec.OutputPath, Valid: rec.OutputPath != ""},
		sql.NullString{String: rec.Message, Valid: rec.Message != ""},
		sql.NullInt64{Int64: rec.DurationMs, Valid: rec.DurationMs > 0},
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s/%s' for run '%s': %w", rec.Stage, rec.Event, rec.RunID, err)
	}
	return nil
}

// ListEvents returns matching events, newest first.
func ListEvents(ctx context.Context, db *sql.DB, f Filter) ([]EventRecord, error) {
	query := `
        SELECT log_id, run_id, stage, event, event_timestamp, attempt, subject, output_path, message, duration_ms
        FROM review_event_log
    `
	conditions := []string{}
	args := []any{}
	argCounter := 1 // Start with $1 for positional args

	if f.RunID != "" {
		conditions = append(conditions, fmt.Sprintf("run_id = $%d", argCounter))
		args = append(args, f.RunID)
		argCounter++
	}
	if f.Stage != "" {
		conditions = append(conditions, fmt.Sprintf("stage = $%d", argCounter))
		args = append(args, f.Stage)
		argCounter++
	}
	if f.Event != "" {
		conditions = append(conditions, fmt.Sprintf("event = $%d", argCounter))
		args = append(args, f.Event)
		argCounter++
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY event_timestamp DESC, log_id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCounter)
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log: %w \n Query: %s \n Args: %v", err, query, args)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var attempt, durationMs sql.NullInt64
		var subject, outputPath, message sql.NullString
		if err := rows.Scan(&rec.LogID, &rec.RunID, &rec.Stage, &rec.Event, &rec.Timestamp,
			&attempt, &subject, &outputPath, &message, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan event log row: %w", err)
		}
		rec.Attempt = int(attempt.Int64)
		rec.Subject = subject.String
		rec.OutputPath = outputPath.String
		rec.Message = message.String
		rec.DurationMs = durationMs.Int64
		out = append(out, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event log rows: %w", err)
	}
	return out, nil
}

// DisplayRunHistory prints matching events to w.
func DisplayRunHistory(ctx context.Context, db *sql.DB, w io.Writer, f Filter) error {
	events, err := ListEvents(ctx, db, f)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "--- Run Event Log (Limit %d) ---\n", f.Limit)
	fmt.Fprintf(w, "%-36s | %-9s | %-8s | %-20s | %-7s | %-10s | %s\n",
		"Run ID", "Stage", "Event", "Timestamp (UTC)", "Attempt", "DurationMS", "Subject/Details")
	fmt.Fprintln(w, strings.Repeat("-", 150))

	for _, ev := range events {
		attempt := ""
		if ev.Attempt > 0 {
			attempt = fmt.Sprintf("%d", ev.Attempt)
		}
		durationStr := ""
		if ev.DurationMs > 0 {
			durationStr = fmt.Sprintf("%d", ev.DurationMs)
		}

		details := ev.Subject
		if ev.Message != "" {
			if details != "" {
				details += ": "
			}
			details += ev.Message
		}
		if ev.OutputPath != "" {
			details += fmt.Sprintf(" (Output: %s)", filepath.Base(ev.OutputPath))
		}

		fmt.Fprintf(w, "%-36s | %-9s | %-8s | %-20s | %-7s | %-10s | %s\n",
			ev.RunID, ev.Stage, ev.Event, ev.Timestamp.UTC().Format("2006-01-02 15:04:05"), attempt, durationStr,
			strings.ReplaceAll(details, "\n", " "))
	}
	fmt.Fprintf(w, "Displayed %d records.\n", len(events))
	return nil
}
