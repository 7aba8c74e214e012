package downloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/annualreview/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(filepath.Base(path)), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestLatestMatch(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	touch(t, filepath.Join(dir, "Evaluation_old.xlsx"), base)
	touch(t, filepath.Join(dir, "Evaluation_new.xlsx"), base.Add(time.Hour))
	touch(t, filepath.Join(dir, "Evaluation_partial.xlsx.crdownload"), base.Add(2*time.Hour))
	touch(t, filepath.Join(dir, "notes.txt"), base.Add(3*time.Hour))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.xlsx"), 0o755))

	got, ok := LatestMatch(dir, "*.xlsx", "*.crdownload")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "Evaluation_new.xlsx"), got)

	touch(t, filepath.Join(dir, "export.csv"), base.Add(4*time.Hour))
	got, ok = LatestMatch(dir, "*.xlsx", "*.csv")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "export.csv"), got)

	_, ok = LatestMatch(t.TempDir(), "*.xlsx")
	assert.False(t, ok)
}

func newExportServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/exports/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="Evaluation_Report_20250201.xlsx">feb</a>
			<a href="Evaluation_Report_20250301.xlsx">mar</a>
			<a href="Evaluation_Report_20250101.xlsx">jan</a>
			<a href="readme.txt">readme</a>
		</body></html>`)
	})
	mux.HandleFunc("/exports/Evaluation_Report_20250301.xlsx", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		fmt.Fprint(w, "march data")
	})
	mux.HandleFunc("/empty/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="readme.txt">readme</a></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetcherFromListing(t *testing.T) {
	srv := newExportServer(t)
	staging := t.TempDir()
	f := &HTTPFetcher{
		Client:     srv.Client(),
		ListingURL: srv.URL + "/exports/",
		LinkSuffix: ".xlsx",
		StagingDir: staging,
		Patterns:   []string{"*.xlsx"},
		Logger:     discardLogger(),
	}

	res, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.ExitCode)

	path, ok := f.LocateOutput(staging)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(staging, "Evaluation_Report_20250301.xlsx"), path)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "march data", string(b))
}

func TestHTTPFetcherNoLinks(t *testing.T) {
	srv := newExportServer(t)
	f := &HTTPFetcher{
		Client:     srv.Client(),
		ListingURL: srv.URL + "/empty/",
		LinkSuffix: ".xlsx",
		StagingDir: t.TempDir(),
		Logger:     discardLogger(),
	}

	res, err := f.Run(context.Background())
	require.Error(t, err)
	assert.NotZero(t, res.ExitCode)
}

func TestHTTPFetcherBadStatus(t *testing.T) {
	srv := newExportServer(t)
	staging := t.TempDir()
	f := &HTTPFetcher{
		Client:     srv.Client(),
		URL:        srv.URL + "/missing/Evaluation.xlsx",
		StagingDir: staging,
		Patterns:   []string{"*.xlsx"},
		Logger:     discardLogger(),
	}

	_, err := f.Run(context.Background())
	require.Error(t, err)
	_, ok := f.LocateOutput(staging)
	assert.False(t, ok, "nothing is left behind on failure")
}

func TestExecFetcher(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	staging := t.TempDir()
	cfg := config.Default().Acquisition
	cfg.Command = []string{"sh", "-c", `echo "user=$ERP_USERNAME"; printf data > "$ANNUALREVIEW_DATA_DIR/Evaluation.xlsx"`}
	cfg.ERP.Username = "svc_review"
	f := NewExecFetcher(cfg, staging, discardLogger())

	res, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.ExitCode)
	assert.Contains(t, res.Output, "user=svc_review")

	path, ok := f.LocateOutput(staging)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(staging, "Evaluation.xlsx"), path)
}

func TestExecFetcherFailures(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	f := &ExecFetcher{Command: []string{"sh", "-c", "echo login failed >&2; exit 3"}, Logger: discardLogger()}
	res, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Output, "login failed")

	f = &ExecFetcher{Command: []string{"sh", "-c", "sleep 10"}, Timeout: 50 * time.Millisecond, Logger: discardLogger()}
	_, err = f.Run(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	f = &ExecFetcher{Command: []string{filepath.Join(t.TempDir(), "does-not-exist")}, Logger: discardLogger()}
	_, err = f.Run(context.Background())
	require.Error(t, err)
}
