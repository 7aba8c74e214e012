package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workflowFixture struct {
	root      string
	fetcher   *fakeFetcher
	rendererA *fakeRenderer
	rendererB *fakeRenderer
	notifier  *fakeNotifier
	sleeper   *sleepSpy
	events    *eventSpy
	wf        *Workflow
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	root := t.TempDir()
	f := &workflowFixture{
		root:      root,
		fetcher:   &fakeFetcher{dir: filepath.Join(root, "data")},
		rendererA: &fakeRenderer{content: "auto finance"},
		rendererB: &fakeRenderer{content: "three wheeler"},
		notifier:  &fakeNotifier{},
		sleeper:   &sleepSpy{},
		events:    &eventSpy{},
	}
	policy := DefaultPolicy()
	policy.Sleep = f.sleeper.Sleep
	f.wf = &Workflow{
		Fetcher:       f.fetcher,
		Renderers:     map[ReportKind]Renderer{KindA: f.rendererA, KindB: f.rendererB},
		Notifier:      f.notifier,
		Recipients:    []string{"credit@example.com", "ops@example.com", "credit@example.com"},
		ReportA:       testSpecA,
		ReportB:       testSpecB,
		StagingDir:    filepath.Join(root, "data"),
		WorkDir:       filepath.Join(root, "work"),
		ReportsDir:    filepath.Join(root, "reports"),
		ProcessedDir:  filepath.Join(root, "data_bin"),
		Policy:        policy,
		ReportTimeout: time.Second,
		Logger:        discardLogger(),
		Recorder:      f.events,
		RunID:         "run-1",
		Now:           stepClock(time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)),
	}
	return f
}

func (f *workflowFixture) reportFolder() string {
	return filepath.Join(f.root, "reports", "2025-03-14_Annual_review_reports")
}

func TestWorkflowBothReportsFirstAttempt(t *testing.T) {
	f := newWorkflowFixture(t)

	out, err := f.wf.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, out.Succeeded())
	assert.Len(t, out.Attempts, 1)
	assert.Equal(t, DecisionBoth, out.Decision)
	assert.Equal(t, f.reportFolder(), out.ArchiveFolder)

	entries, err := os.ReadDir(f.reportFolder())
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.Len(t, f.notifier.calls, 1)
	call := f.notifier.calls[0]
	assert.Equal(t, "both", call.Method)
	assert.Equal(t, []string{"credit@example.com", "ops@example.com"}, call.To)
	assert.Equal(t, filepath.Join(f.reportFolder(), testSpecA.OutputName), call.PathA)
	assert.Equal(t, filepath.Join(f.reportFolder(), testSpecB.OutputName), call.PathB)
	assert.True(t, out.NotificationSent)

	assert.True(t, out.DatasetRelocated)
	assert.Equal(t, filepath.Join(f.root, "data_bin", testDatasetName), out.DatasetPath)
	assert.NoFileExists(t, filepath.Join(f.root, "data", testDatasetName))

	assert.Equal(t, 1, f.events.count(StageRun, EventStart))
	assert.Equal(t, 1, f.events.count(StageRun, EventSuccess))
}

func TestWorkflowSucceedsOnFinalAttempt(t *testing.T) {
	f := newWorkflowFixture(t)
	f.fetcher.failFirst = 5

	out, err := f.wf.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, out.Succeeded())
	assert.Len(t, out.Attempts, 6)
	assert.Contains(t, f.sleeper.slept, DefaultCooldown)
	assert.Equal(t, DecisionBoth, out.Decision)

	entries, err := os.ReadDir(f.reportFolder())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, "both", f.notifier.calls[0].Method)
	assert.True(t, out.DatasetRelocated)
}

func TestWorkflowNoReports(t *testing.T) {
	f := newWorkflowFixture(t)
	f.rendererA.skip = true
	f.rendererB.exitCode = 1

	out, err := f.wf.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, out.Succeeded())
	assert.Equal(t, DecisionNeither, out.Decision)
	assert.Empty(t, out.ArchiveFolder)
	assert.NoDirExists(t, f.reportFolder())

	require.Len(t, f.notifier.calls, 1)
	call := f.notifier.calls[0]
	assert.Equal(t, "both_failed", call.Method)
	assert.Equal(t, testSpecA.Criteria, call.CriteriaA)
	assert.Equal(t, testSpecB.Criteria, call.CriteriaB)

	assert.True(t, out.DatasetRelocated)
	assert.FileExists(t, filepath.Join(f.root, "data_bin", testDatasetName))
	assert.Equal(t, 1, f.events.count(StageArchive, EventMoved), "only the dataset is archived")
}

func TestWorkflowAcquisitionFailure(t *testing.T) {
	f := newWorkflowFixture(t)
	f.fetcher.failFirst = 100

	out, err := f.wf.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAcquisitionFailed)

	assert.False(t, out.Succeeded())
	assert.Len(t, out.Attempts, 6)
	assert.Zero(t, f.rendererA.calls)
	assert.Zero(t, f.rendererB.calls)
	assert.Empty(t, f.notifier.calls)
	assert.NoDirExists(t, filepath.Join(f.root, "reports"))
	assert.Equal(t, 1, f.events.count(StageRun, EventFailed))
}

func TestWorkflowPartial(t *testing.T) {
	f := newWorkflowFixture(t)
	f.rendererB.panicMsg = "sheet missing"

	out, err := f.wf.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, DecisionOnlyA, out.Decision)
	assert.True(t, out.Artifacts[KindA].Present())
	assert.False(t, out.Artifacts[KindB].Present())

	entries, err := os.ReadDir(f.reportFolder())
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.Len(t, f.notifier.calls, 1)
	call := f.notifier.calls[0]
	assert.Equal(t, "partial", call.Method)
	assert.Equal(t, filepath.Join(f.reportFolder(), testSpecA.OutputName), call.PathA)
	assert.Empty(t, call.PathB)
	assert.Equal(t, "Three Wheeler", call.Missing)
}

func TestWorkflowNotificationFailureIsNotFatal(t *testing.T) {
	f := newWorkflowFixture(t)
	f.notifier.err = assert.AnError

	out, err := f.wf.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Succeeded())
	assert.False(t, out.NotificationSent)
	assert.Equal(t, 1, f.events.count(StageNotify, EventFailed))
}

func TestWorkflowGeneratesRunID(t *testing.T) {
	f := newWorkflowFixture(t)
	f.wf.RunID = ""

	out, err := f.wf.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, out.RunID, 36)
}
