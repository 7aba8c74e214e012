package util

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	// Layout for the per-day archive folder prefix, e.g. "2025-03-14".
	DateFolderLayout = "2006-01-02"
	// Layout for the time-of-day collision suffix, e.g. "153012".
	TimeSuffixLayout = "150405"
	// Layout used for attempt timestamps in logs and operator messages.
	TimestampLayout = "2006-01-02 15:04:05"
)

// DatedFolderName returns the archive folder name for the calendar day of t.
// Runs on the same day share a folder.
func DatedFolderName(t time.Time, suffix string) string {
	return t.Format(DateFolderLayout) + suffix
}

// WithTimeSuffix inserts a time-of-day suffix between the base name and the extension.
// A positive seq > 1 is appended after the time suffix to break ties within the same second.
//
//	WithTimeSuffix("report.pdf", t, 0) -> "report_153012.pdf"
//	WithTimeSuffix("report.pdf", t, 2) -> "report_153012_2.pdf"
func WithTimeSuffix(name string, t time.Time, seq int) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	suffix := t.Format(TimeSuffixLayout)
	if seq > 1 {
		return fmt.Sprintf("%s_%s_%d%s", base, suffix, seq, ext)
	}
	return fmt.Sprintf("%s_%s%s", base, suffix, ext)
}

// FormatTimestamp renders t in the operator-facing timestamp layout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}
