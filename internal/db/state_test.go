package db

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/annualreview/internal/orchestrator"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, InitializeSchema(conn))
	return conn
}

func TestInitializeSchemaIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	require.NoError(t, InitializeSchema(conn))
}

func TestLogAndListEvents(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	records := []EventRecord{
		{RunID: "r1", Stage: "run", Event: "start", Timestamp: base},
		{RunID: "r1", Stage: "acquire", Event: "attempt", Timestamp: base.Add(time.Second), Attempt: 1},
		{RunID: "r1", Stage: "generate", Event: "success", Timestamp: base.Add(2 * time.Second), Subject: "A",
			OutputPath: "/work/Auto_finance_annual_review_report.pdf", DurationMs: 1500},
		{RunID: "r2", Stage: "run", Event: "start", Timestamp: base.Add(time.Hour)},
	}
	for _, rec := range records {
		require.NoError(t, LogRunEvent(ctx, conn, rec))
	}

	all, err := ListEvents(ctx, conn, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "r2", all[0].RunID, "newest first")

	r1, err := ListEvents(ctx, conn, Filter{RunID: "r1", Stage: "generate"})
	require.NoError(t, err)
	require.Len(t, r1, 1)
	assert.Equal(t, "A", r1[0].Subject)
	assert.Equal(t, int64(1500), r1[0].DurationMs)
	assert.Equal(t, "/work/Auto_finance_annual_review_report.pdf", r1[0].OutputPath)

	limited, err := ListEvents(ctx, conn, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	attempts, err := ListEvents(ctx, conn, Filter{Event: "attempt"})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, 1, attempts[0].Attempt)
}

func TestDisplayRunHistory(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	require.NoError(t, LogRunEvent(ctx, conn, EventRecord{RunID: "r1", Stage: "notify", Event: "sent",
		Subject: "both", Message: "sent to a@example.com"}))

	var buf bytes.Buffer
	require.NoError(t, DisplayRunHistory(ctx, conn, &buf, Filter{Limit: 10}))
	out := buf.String()
	assert.Contains(t, out, "both: sent to a@example.com")
	assert.Contains(t, out, "Displayed 1 records.")
}

func TestRecorderAndRuns(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	rec := &Recorder{DB: conn, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	day := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	rec.Record(ctx, orchestrator.Event{RunID: "r1", Stage: orchestrator.StageRun, Type: orchestrator.EventStart, At: day})
	rec.Record(ctx, orchestrator.Event{RunID: "r1", Stage: orchestrator.StageRun, Type: orchestrator.EventSuccess,
		At: day.Add(time.Minute), Message: "both reports generated", Duration: time.Minute})
	rec.Record(ctx, orchestrator.Event{RunID: "r2", Stage: orchestrator.StageRun, Type: orchestrator.EventStart,
		At: day.Add(time.Hour)})

	runs, err := ListRuns(ctx, conn, rec.Logger, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].RunID)
	assert.Empty(t, runs[0].Result)
	assert.True(t, runs[0].FinishedAt.IsZero())
	assert.Equal(t, "r1", runs[1].RunID)
	assert.Equal(t, "success", runs[1].Result)
	assert.Equal(t, "both reports generated", runs[1].Summary)

	n, err := CompletedRunsOn(ctx, conn, day)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = CompletedRunsOn(ctx, conn, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Zero(t, n)

	events, err := ListEvents(ctx, conn, Filter{RunID: "r1", Event: "success"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(60000), events[0].DurationMs)
}
