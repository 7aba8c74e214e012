package saver

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/annualreview/internal/db"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.InitializeSchema(conn))
	return conn
}

func TestSaveEventLog(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		require.NoError(t, db.LogRunEvent(ctx, conn, db.EventRecord{
			RunID:     "run-1",
			Stage:     "acquire",
			Event:     "attempt",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Attempt:   i,
			Message:   fmt.Sprintf("attempt %d", i),
		}))
	}
	require.NoError(t, db.LogRunEvent(ctx, conn, db.EventRecord{RunID: "run-2", Stage: "run", Event: "start", Timestamp: base}))

	out := filepath.Join(t.TempDir(), "export", "events.parquet")
	n, err := SaveEventLog(ctx, conn, db.Filter{RunID: "run-1"}, out, logger)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.FileExists(t, out)
	assert.NoFileExists(t, out+".tmp")

	var count, firstAttempt int
	var runID string
	row := conn.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT count(*), min(run_id), first(attempt) FROM read_parquet('%s');`, out))
	require.NoError(t, row.Scan(&count, &runID, &firstAttempt))
	assert.Equal(t, 3, count)
	assert.Equal(t, "run-1", runID)
	assert.Equal(t, 1, firstAttempt, "rows are written oldest first")
}

func TestSaveEventLogEmpty(t *testing.T) {
	conn := openTestDB(t)
	out := filepath.Join(t.TempDir(), "events.parquet")

	n, err := SaveEventLog(context.Background(), conn, db.Filter{}, out, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoFileExists(t, out)
}
