package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/brensch/annualreview/internal/orchestrator"
	"github.com/brensch/annualreview/internal/util"
	"golang.org/x/net/html"
)

// partialSuffixes mark downloads still in progress; they are never picked up as datasets.
var partialSuffixes = []string{".crdownload", ".part", ".tmp"}

// LatestMatch returns the most recently modified regular file in dir matching any of
// patterns. Ties are broken by the lexically greatest name.
func LatestMatch(dir string, patterns ...string) (string, bool) {
	var best string
	var bestMod time.Time
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		for _, m := range matches {
			if seen[m] || isPartial(m) || strings.HasPrefix(filepath.Base(m), ".") {
				continue
			}
			seen[m] = true
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			mod := info.ModTime()
			if best == "" || mod.After(bestMod) || (mod.Equal(bestMod) && m > best) {
				best, bestMod = m, mod
			}
		}
	}
	return best, best != ""
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range partialSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// HTTPFetcher downloads the dataset over HTTP, either from a fixed URL or from the newest
// matching link on a listing page.
type HTTPFetcher struct {
	Client     *http.Client
	URL        string
	ListingURL string
	LinkSuffix string
	StagingDir string
	Patterns   []string
	Logger     *slog.Logger
}

// Run performs one download into the staging directory.
func (f *HTTPFetcher) Run(ctx context.Context) (orchestrator.RunResult, error) {
	logger := f.logger()
	client := f.Client
	if client == nil {
		client = util.DefaultHTTPClient(0)
	}

	target := f.URL
	if target == "" {
		latest, err := DiscoverLatestLink(ctx, client, f.ListingURL, f.LinkSuffix, logger)
		if err != nil {
			return orchestrator.RunResult{ExitCode: 1, Output: err.Error()}, err
		}
		target = latest
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return orchestrator.RunResult{ExitCode: 1, Output: err.Error()}, fmt.Errorf("create request %s: %w", target, err)
	}
	req.Header.Set("User-Agent", util.RandomUserAgent())

	start := time.Now()
	body, err := util.DownloadFile(client, req)
	if err != nil {
		return orchestrator.RunResult{ExitCode: 1, Output: err.Error()}, err
	}

	dst := filepath.Join(f.StagingDir, datasetName(target, f.LinkSuffix))
	if err := writeAtomic(f.StagingDir, dst, body); err != nil {
		return orchestrator.RunResult{ExitCode: 1, Output: err.Error()}, err
	}
	logger.Info("Dataset downloaded.", slog.String("url", target), slog.String("path", dst),
		slog.Int("bytes", len(body)), slog.Duration("duration", time.Since(start)))
	return orchestrator.RunResult{Output: fmt.Sprintf("downloaded %s (%d bytes)", target, len(body))}, nil
}

// LocateOutput finds the newest dataset in dir.
func (f *HTTPFetcher) LocateOutput(dir string) (string, bool) {
	return LatestMatch(dir, f.Patterns...)
}

func (f *HTTPFetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

// DiscoverLatestLink fetches a listing page and returns the absolute URL of the lexically
// greatest link ending in suffix. Export names embed their date, so that is the newest.
func DiscoverLatestLink(ctx context.Context, client *http.Client, listingURL, suffix string, logger *slog.Logger) (string, error) {
	base, err := url.Parse(listingURL)
	if err != nil {
		return "", fmt.Errorf("parse listing URL %s: %w", listingURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request %s: %w", listingURL, err)
	}
	req.Header.Set("User-Agent", util.RandomUserAgent())

	page, err := util.DownloadFile(client, req)
	if err != nil {
		return "", fmt.Errorf("fetch listing: %w", err)
	}
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse listing HTML %s: %w", listingURL, err)
	}

	var resolved []string
	for _, link := range util.ParseLinks(root, suffix) {
		abs, err := base.Parse(link)
		if err != nil {
			logger.Warn("Failed to resolve relative link", "link", link, "error", err)
			continue
		}
		resolved = append(resolved, abs.String())
	}
	if len(resolved) == 0 {
		return "", fmt.Errorf("no links ending in %q on %s", suffix, listingURL)
	}
	sort.Strings(resolved)
	latest := resolved[len(resolved)-1]
	logger.Debug("Discovered dataset links.", slog.Int("count", len(resolved)), slog.String("latest", latest))
	return latest, nil
}

func datasetName(rawURL, suffix string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if name := path.Base(u.Path); name != "" && name != "/" && name != "." {
			return name
		}
	}
	return "dataset" + suffix
}

// writeAtomic writes data to a partial file in dir and renames it into place, so the
// dataset never appears half written.
func writeAtomic(dir, dst string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create staging dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".download-*.part")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	_, err = io.Copy(tmp, bytes.NewReader(data))
	err = errors.Join(err, tmp.Sync(), tmp.Close())
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, dst, err)
	}
	return nil
}
