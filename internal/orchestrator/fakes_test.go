package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const testDatasetName = "Evaluation_Report.csv"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stepClock returns a clock advancing one second per call.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := cur
		cur = cur.Add(time.Second)
		return t
	}
}

// fakeFetcher fails the first failFirst calls, then writes the dataset into dir.
type fakeFetcher struct {
	dir        string
	failFirst  int
	noFile     bool // Report success without writing anything
	runErr     error
	calls      int
	locateHook func()
}

func (f *fakeFetcher) Run(ctx context.Context) (RunResult, error) {
	f.calls++
	if f.calls <= f.failFirst {
		if f.runErr != nil {
			return RunResult{Output: "login page did not load"}, f.runErr
		}
		return RunResult{ExitCode: 1, Output: "login page did not load"}, nil
	}
	if !f.noFile {
		if err := os.WriteFile(filepath.Join(f.dir, testDatasetName), []byte("PRODUCT\nTRACTOR LEASE\n"), 0o644); err != nil {
			return RunResult{}, err
		}
	}
	return RunResult{Output: "downloaded"}, nil
}

func (f *fakeFetcher) LocateOutput(dir string) (string, bool) {
	if f.locateHook != nil {
		f.locateHook()
	}
	p := filepath.Join(dir, testDatasetName)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// fakeRenderer writes content to the output path unless told otherwise.
type fakeRenderer struct {
	content  string
	skip     bool // Exit cleanly without writing, as when no rows match
	exitCode int
	err      error
	panicMsg string
	block    bool
	calls    int
}

func (r *fakeRenderer) Render(ctx context.Context, datasetPath, outputPath string) (RunResult, error) {
	r.calls++
	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	if r.block {
		<-ctx.Done()
		return RunResult{Output: "killed"}, ctx.Err()
	}
	if r.err != nil {
		return RunResult{Output: "traceback"}, r.err
	}
	if r.exitCode != 0 {
		return RunResult{ExitCode: r.exitCode, Output: "failed"}, nil
	}
	if r.skip {
		return RunResult{Output: "no data found"}, nil
	}
	return RunResult{Output: "ok"}, os.WriteFile(outputPath, []byte(r.content), 0o644)
}

type notifyCall struct {
	Method    string
	To        []string
	PathA     string
	PathB     string
	Missing   string
	Label     string
	CriteriaA string
	CriteriaB string
}

type fakeNotifier struct {
	err   error
	calls []notifyCall
}

func (n *fakeNotifier) SendBothReports(_ context.Context, to []string, pathA, pathB string) error {
	n.calls = append(n.calls, notifyCall{Method: "both", To: to, PathA: pathA, PathB: pathB})
	return n.err
}

func (n *fakeNotifier) SendPartial(_ context.Context, to []string, pathA, pathB, missingLabel string) error {
	n.calls = append(n.calls, notifyCall{Method: "partial", To: to, PathA: pathA, PathB: pathB, Missing: missingLabel})
	return n.err
}

func (n *fakeNotifier) SendNoData(_ context.Context, to []string, label, criteria string) error {
	n.calls = append(n.calls, notifyCall{Method: "nodata", To: to, Label: label, CriteriaA: criteria})
	return n.err
}

func (n *fakeNotifier) SendBothFailed(_ context.Context, to []string, criteriaA, criteriaB string) error {
	n.calls = append(n.calls, notifyCall{Method: "both_failed", To: to, CriteriaA: criteriaA, CriteriaB: criteriaB})
	return n.err
}

type eventSpy struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventSpy) Record(_ context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSpy) count(stage, typ string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Stage == stage && ev.Type == typ {
			n++
		}
	}
	return n
}

type sleepSpy struct {
	slept []time.Duration
	err   error
}

func (s *sleepSpy) Sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	if s.err != nil {
		return s.err
	}
	return ctx.Err()
}

var (
	testSpecA = ReportSpec{Kind: KindA, Label: "Auto Finance", OutputName: "Auto_finance_annual_review_report.pdf",
		Criteria: "- Blank REPORT_REVIEW_DATE\n- Non-blank PRE_APPROVED_DATE\n- Target products: TRACTOR LEASE"}
	testSpecB = ReportSpec{Kind: KindB, Label: "Three Wheeler", OutputName: "ThreeWheeler_annual_review_report.pdf",
		Criteria: "- Blank REPORT_REVIEW_DATE\n- Non-blank PRE_APPROVED_DATE\n- Target products: CASH IN HAND"}
)
