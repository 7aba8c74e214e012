package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RunSummary is the start and end of one recorded run.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time // Zero if the run never recorded an end
	Result     string    // 'success', 'failed' or '' when unfinished
	Summary    string
}

// ListRuns returns the most recent runs, newest first.
func ListRuns(ctx context.Context, db *sql.DB, logger *slog.Logger, limit int) ([]RunSummary, error) {
	logger.Debug("Querying database for recent runs...")
	if limit <= 0 {
		limit = 20
	}

	query := `
		WITH starts AS (
			SELECT run_id, MIN(event_timestamp) AS started_at
			FROM review_event_log
			WHERE stage = 'run' AND event = 'start'
			GROUP BY run_id
		), ends AS (
			SELECT run_id, event, event_timestamp, message,
			       ROW_NUMBER() OVER (PARTITION BY run_id ORDER BY event_timestamp DESC, log_id DESC) AS rn
			FROM review_event_log
			WHERE stage = 'run' AND event IN ('success', 'failed')
		)
		SELECT s.run_id, s.started_at, e.event_timestamp, e.event, e.message
		FROM starts s
		LEFT JOIN ends e ON e.run_id = s.run_id AND e.rn = 1
		ORDER BY s.started_at DESC
		LIMIT ?;
	`
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		logger.Error("Failed to query recent runs", "error", err)
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	var scanErrors error // Accumulate scan errors
	for rows.Next() {
		var r RunSummary
		var finished sql.NullTime
		var result, summary sql.NullString
		if err := rows.Scan(&r.RunID, &r.StartedAt, &finished, &result, &summary); err != nil {
			logger.Error("Failed to scan run summary", "error", err)
			scanErrors = errors.Join(scanErrors, fmt.Errorf("scan run summary: %w", err))
			continue
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		r.Result = result.String
		r.Summary = summary.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		scanErrors = errors.Join(scanErrors, fmt.Errorf("iterate recent runs: %w", err))
	}

	logger.Debug("Found recent runs in DB.", slog.Int("count", len(runs)))
	return runs, scanErrors
}

// CompletedRunsOn counts successful runs that started on the calendar day of day (UTC).
func CompletedRunsOn(ctx context.Context, db *sql.DB, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	query := `
		SELECT COUNT(DISTINCT run_id)
		FROM review_event_log
		WHERE stage = 'run' AND event = 'success'
		  AND event_timestamp >= ? AND event_timestamp < ?;
	`
	var n int
	if err := db.QueryRowContext(ctx, query, start, start.Add(24*time.Hour)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count completed runs on %s: %w", start.Format("2006-01-02"), err)
	}
	return n, nil
}
