// Package orchestrator runs the annual review reporting cycle: dataset acquisition with
// retries, per-report rendering, outcome classification, non-destructive archival and
// stakeholder notification.
package orchestrator

import (
	"context"
	"time"
)

// ReportKind identifies one of the two reports produced per run.
type ReportKind string

const (
	KindA ReportKind = "A"
	KindB ReportKind = "B"
)

// ReportSpec describes one report the workflow renders.
type ReportSpec struct {
	Kind       ReportKind
	Label      string // Human name used in notifications, e.g. "Auto Finance"
	OutputName string // File name the renderer writes into the work directory
	Criteria   string // Filter criteria quoted verbatim in no-data notices
}

// RunResult is what an external collaborator reports after one invocation.
type RunResult struct {
	ExitCode int
	Output   string // Captured diagnostic text
}

// Attempt records one acquisition attempt. Entries are appended before the attempt runs.
type Attempt struct {
	Seq int
	At  time.Time
}

// Dataset is the handle to an acquired tabular file.
type Dataset struct {
	Path     string
	Attempts []Attempt
}

// Artifact is a report output. An empty Path means the report is absent.
type Artifact struct {
	Kind ReportKind
	Path string
}

// Present reports whether the renderer produced the artifact.
func (a Artifact) Present() bool { return a.Path != "" }

// Fetcher obtains the raw dataset from the remote system.
type Fetcher interface {
	// Run performs one acquisition. A non-nil error or non-zero exit code is a failure.
	Run(ctx context.Context) (RunResult, error)
	// LocateOutput finds the most recent dataset file in dir.
	LocateOutput(dir string) (string, bool)
}

// Renderer turns a dataset into one report file, or legitimately produces nothing.
type Renderer interface {
	Render(ctx context.Context, datasetPath, outputPath string) (RunResult, error)
}

// Notifier delivers the outcome messages. Empty paths mean "no attachment".
type Notifier interface {
	SendBothReports(ctx context.Context, to []string, pathA, pathB string) error
	SendPartial(ctx context.Context, to []string, pathA, pathB, missingLabel string) error
	SendNoData(ctx context.Context, to []string, label, criteria string) error
	SendBothFailed(ctx context.Context, to []string, criteriaA, criteriaB string) error
}

// Outcome summarises a completed run.
type Outcome struct {
	RunID            string
	StartedAt        time.Time
	FinishedAt       time.Time
	Acquired         bool
	Attempts         []Attempt
	Dataset          string
	Artifacts        map[ReportKind]Artifact
	Decision         Decision
	ArchiveFolder    string
	DatasetRelocated bool
	DatasetPath      string // Location of the dataset after relocation
	NotificationSent bool
}

// Succeeded reports the overall run status. Only acquisition failure fails a run.
func (o Outcome) Succeeded() bool { return o.Acquired }
