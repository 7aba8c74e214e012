package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/brensch/annualreview/internal/util"
)

// DefaultFolderSuffix is appended to the date of the daily report folder.
const DefaultFolderSuffix = "_Annual_review_reports"

// maxCollisionSeq bounds the _HHMMSS_n candidates tried for one file.
const maxCollisionSeq = 1000

// Filesystem operations used by moveNoClobber, replaced in tests.
var (
	linkFile   = os.Link
	removeFile = os.Remove
)

// ArchiveResult lists where files ended up. Paths are only set for successful moves.
type ArchiveResult struct {
	Folder           string // Dated report folder, empty when no report was archived
	Reports          map[ReportKind]string
	DatasetPath      string
	DatasetRelocated bool
}

// Archiver moves reports into a dated folder and the dataset into the processed store.
// No existing file is ever overwritten.
type Archiver struct {
	ReportsDir   string
	ProcessedDir string
	FolderSuffix string
	Logger       *slog.Logger
	Recorder     Recorder
	RunID        string
	Now          func() time.Time
}

// Archive relocates every present artifact and then the dataset. A failed move leaves its
// source in place and does not stop the others; failures are joined in the returned error.
func (a *Archiver) Archive(ctx context.Context, artifacts []Artifact, dataset Dataset) (ArchiveResult, error) {
	logger := a.logger()
	now := time.Now()
	if a.Now != nil {
		now = a.Now()
	}
	suffix := a.FolderSuffix
	if suffix == "" {
		suffix = DefaultFolderSuffix
	}

	result := ArchiveResult{Reports: make(map[ReportKind]string)}
	var errs error

	// --- Reports ---
	folder := filepath.Join(a.ReportsDir, util.DatedFolderName(now, suffix))
	folderReady := false
	for _, art := range artifacts {
		if !art.Present() {
			logger.Debug("Skipping absent report.", slog.String("report", string(art.Kind)))
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, errors.Join(errs, err)
		}
		if !folderReady {
			if err := os.MkdirAll(folder, 0o755); err != nil {
				mErr := &MoveError{Source: art.Path, Destination: folder, Cause: err}
				logger.Error("Failed to create report folder.", "error", mErr)
				a.recordMove(ctx, string(art.Kind), EventFailed, art.Path, mErr.Error())
				errs = errors.Join(errs, mErr)
				continue
			}
			folderReady = true
			result.Folder = folder
		}
		dst, err := moveNoClobber(art.Path, folder, filepath.Base(art.Path), now)
		if err != nil {
			logger.Error("Failed to archive report, leaving it in place.", slog.String("report", string(art.Kind)), "error", err)
			a.recordMove(ctx, string(art.Kind), EventFailed, art.Path, err.Error())
			errs = errors.Join(errs, err)
			continue
		}
		result.Reports[art.Kind] = dst
		logger.Info("Report archived.", slog.String("report", string(art.Kind)), slog.String("path", dst))
		a.recordMove(ctx, string(art.Kind), EventMoved, dst, fmt.Sprintf("archived %s", filepath.Base(dst)))
	}

	// --- Dataset ---
	if dataset.Path == "" {
		return result, errs
	}
	if err := ctx.Err(); err != nil {
		return result, errors.Join(errs, err)
	}
	if err := os.MkdirAll(a.ProcessedDir, 0o755); err != nil {
		mErr := &MoveError{Source: dataset.Path, Destination: a.ProcessedDir, Cause: err}
		logger.Error("Failed to create processed dataset folder.", "error", mErr)
		a.recordMove(ctx, "dataset", EventFailed, dataset.Path, mErr.Error())
		return result, errors.Join(errs, mErr)
	}
	dst, err := moveNoClobber(dataset.Path, a.ProcessedDir, filepath.Base(dataset.Path), now)
	if err != nil {
		logger.Error("Failed to relocate dataset, leaving it in place.", "error", err)
		a.recordMove(ctx, "dataset", EventFailed, dataset.Path, err.Error())
		return result, errors.Join(errs, err)
	}
	result.DatasetPath = dst
	result.DatasetRelocated = true
	logger.Info("Dataset relocated.", slog.String("path", dst))
	a.recordMove(ctx, "dataset", EventMoved, dst, fmt.Sprintf("relocated %s", filepath.Base(dst)))
	return result, errs
}

func (a *Archiver) recordMove(ctx context.Context, subject, typ, path, msg string) {
	record(ctx, a.Recorder, a.RunID, Event{Stage: StageArchive, Type: typ, Subject: subject, Path: path, Message: msg})
}

func (a *Archiver) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// collisionName returns the seq-th candidate for name: the name itself, then name_HHMMSS,
// then name_HHMMSS_2 and so on.
func collisionName(name string, at time.Time, seq int) string {
	if seq == 0 {
		return name
	}
	return util.WithTimeSuffix(name, at, seq)
}

// moveNoClobber moves src into dir under the first free candidate name and returns the
// destination. The source is only removed once the destination is fully written.
func moveNoClobber(src, dir, name string, at time.Time) (string, error) {
	if _, err := os.Lstat(src); err != nil {
		return "", &MoveError{Source: src, Destination: filepath.Join(dir, name), Cause: err}
	}

	// staged is a complete copy inside dir, used when src cannot be hard linked (cross device).
	staged := ""
	defer func() {
		if staged != "" {
			_ = removeFile(staged)
		}
	}()

	for seq := 0; seq <= maxCollisionSeq; seq++ {
		dst := filepath.Join(dir, collisionName(name, at, seq))
		from := src
		if staged != "" {
			from = staged
		}

		err := linkFile(from, dst)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			if staged != "" {
				return "", &MoveError{Source: src, Destination: dst, Cause: err}
			}
			staged, err = stageCopy(src, dir)
			if err != nil {
				return "", &MoveError{Source: src, Destination: dst, Cause: err}
			}
			seq-- // Retry the same candidate from the staged copy
			continue
		}

		if err := removeFile(src); err != nil {
			// Keep a single owner: undo the link and leave the source where it was.
			_ = removeFile(dst)
			return "", &MoveError{Source: src, Destination: dst, Cause: err}
		}
		return dst, nil
	}
	return "", &MoveError{Source: src, Destination: filepath.Join(dir, name),
		Cause: fmt.Errorf("no free name after %d candidates", maxCollisionSeq)}
}

// stageCopy copies src into an exclusive temporary file in dir and syncs it to disk.
func stageCopy(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, ".archive-*.tmp")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	_ = os.Chmod(tmpPath, info.Mode().Perm())
	_ = os.Chtimes(tmpPath, info.ModTime(), info.ModTime())
	return tmpPath, nil
}
