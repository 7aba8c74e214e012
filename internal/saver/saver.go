// Package saver exports the run event log to Parquet.
package saver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/brensch/annualreview/internal/db"
)

// eventRow is the Parquet layout of one review_event_log row.
type eventRow struct {
	LogID      int64  `parquet:"name=log_id, type=INT64"`
	RunID      string `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Stage      string `parquet:"name=stage, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Event      string `parquet:"name=event, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Timestamp  int64  `parquet:"name=event_timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Attempt    int32  `parquet:"name=attempt, type=INT32"`
	Subject    string `parquet:"name=subject, type=BYTE_ARRAY, convertedtype=UTF8"`
	OutputPath string `parquet:"name=output_path, type=BYTE_ARRAY, convertedtype=UTF8"`
	Message    string `parquet:"name=message, type=BYTE_ARRAY, convertedtype=UTF8"`
	DurationMs int64  `parquet:"name=duration_ms, type=INT64"`
}

// SaveEventLog writes every event matching f to a Snappy-compressed Parquet file at
// outputPath, oldest first, and returns the number of rows written.
func SaveEventLog(ctx context.Context, conn *sql.DB, f db.Filter, outputPath string, logger *slog.Logger) (int, error) {
	logger.Info("--- Starting event log Parquet export ---", slog.String("output", outputPath))

	events, err := db.ListEvents(ctx, conn, f)
	if err != nil {
		return 0, fmt.Errorf("failed to read event log: %w", err)
	}
	if len(events) == 0 {
		logger.Info("No events found to save.")
		return 0, nil
	}

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("failed to create output directory '%s': %w", dir, err)
		}
	}

	tmp := outputPath + ".tmp"
	if err := writeParquet(tmp, events); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to move parquet file into place: %w", err)
	}

	logger.Info("--- Event log Parquet export finished ---", slog.Int("rows", len(events)), slog.String("output", outputPath))
	return len(events), nil
}

func writeParquet(path string, events []db.EventRecord) (err error) {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, fw.Close())
	}()

	pw, err := writer.NewParquetWriter(fw, new(eventRow), 2)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	// ListEvents returns newest first.
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		row := eventRow{
			LogID:      ev.LogID,
			RunID:      ev.RunID,
			Stage:      ev.Stage,
			Event:      ev.Event,
			Timestamp:  ev.Timestamp.UnixMilli(),
			Attempt:    int32(ev.Attempt),
			Subject:    ev.Subject,
			OutputPath: ev.OutputPath,
			Message:    ev.Message,
			DurationMs: ev.DurationMs,
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return fmt.Errorf("failed to write parquet row %d: %w", ev.LogID, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}
