package report

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRating(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		amt     float64
		colour  string
		arrears float64
		want    string
	}{
		{-1, "Green", 0, RatingNegativeExposure},
		{-5, "", nan, RatingNegativeExposure},
		{100, "Green", 0, RatingExcellent},
		{100, "Green", 1, RatingExcellent},
		{100, "Green", 2, RatingSatisfactory},
		{100, "Green", 3, RatingPoorCDB},
		{100, "Yellow", 1, RatingSatisfactory},
		{100, "Yellow", 2, RatingSatisfactory},
		{100, "Yellow", 2.5, RatingPoorCDB},
		{100, "Orange", 1, RatingPoorOtherFIs},
		{100, "Orange", 2, RatingPoorOverall},
		{100, "Red", 0, RatingPoorOtherFIs},
		{100, "Red", 4, RatingPoorOverall},
		{100, "Green", nan, ""},
		{nan, "Red", 0, RatingPoorOtherFIs},
		{100, "Blue", 0, ""},
		{100, "green", 0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Rating(tt.amt, tt.colour, tt.arrears), "amt=%v colour=%q arrears=%v", tt.amt, tt.colour, tt.arrears)
	}
}

func TestGrade(t *testing.T) {
	assert.Equal(t, GradeSatisfactory, Grade(RatingSatisfactory))
	assert.Equal(t, GradeExcellent, Grade(RatingExcellent))
	assert.Equal(t, GradeAverage, Grade(RatingNegativeExposure))
	assert.Equal(t, GradePoor, Grade(RatingPoorOverall))
	assert.Equal(t, GradeAverage, Grade(RatingPoorCDB))
	assert.Equal(t, GradeAverage, Grade(RatingPoorOtherFIs))
	assert.Equal(t, "", Grade(""))
}

func TestSummarizeAndFormatting(t *testing.T) {
	facilities := []Facility{
		{Rating: RatingExcellent, FacilityAmt: 1000, PreApprovedUser: "kamal"},
		{Rating: RatingExcellent, FacilityAmt: 500, PreApprovedUser: "nimal"},
		{Rating: RatingPoorCDB, FacilityAmt: math.NaN(), PreApprovedUser: "kamal"},
	}
	rows := Summarize(facilities, func(f Facility) string { return f.Rating })
	require.Len(t, rows, 2)
	assert.Equal(t, SummaryRow{Key: RatingExcellent, Count: 2, FacilityAmt: 1500}, rows[0])
	assert.Equal(t, SummaryRow{Key: RatingPoorCDB, Count: 1, FacilityAmt: 0}, rows[1])

	assert.Equal(t, []UserCount{{"kamal", 2}, {"nimal", 1}}, CountUsers(facilities))

	assert.Equal(t, "66.67%", Percent(2, 3))
	assert.Equal(t, "0.00%", Percent(1, 0))
	assert.Equal(t, "1,234,567.50", FormatAmount(1234567.5))
	assert.Equal(t, "-999.00", FormatAmount(-999))
	assert.Equal(t, "0.00", FormatAmount(0))
}

const testDataset = `FACILITY_NUMBER,PRODUCT,FACILITY_AMT,PRE_APPROVED_AMT,REVIEW_RATING,NO_REN_IN_ARREARS,PRE_APPROVED_USER,REPORT_REVIEW_DATE,PRE_APPROVED_DATE
F001,TRACTOR LEASE,1000000,50000,Green,0,kamal,,2025-01-10
F002,PLEDGE LOAN,250000,-10,Green,0,nimal,,2025-01-11
F003,TRACTOR LEASE,400000,20000,Orange,3,kamal,,2025-01-12
F004,TRACTOR LEASE,999999,20000,Green,0,kamal,2025-02-01,2025-01-12
F005,TRACTOR LEASE,999999,20000,Green,0,kamal,,
F006,CASH IN HAND,300000,20000,Yellow,1,sunil,,2025-01-15
`

func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Evaluation_Report.csv")
	require.NoError(t, os.WriteFile(path, []byte(testDataset), 0o644))
	return path
}

func TestBuiltinRendererLoad(t *testing.T) {
	r := &BuiltinRenderer{Title: "Auto Finance", Products: []string{"TRACTOR LEASE", "PLEDGE LOAN"}}

	facilities, err := r.Load(context.Background(), writeDataset(t))
	require.NoError(t, err)
	require.Len(t, facilities, 3, "reviewed and non pre-approved rows are excluded")

	byNumber := map[string]Facility{}
	for _, f := range facilities {
		byNumber[f.Number] = f
	}
	assert.Equal(t, RatingExcellent, byNumber["F001"].Rating)
	assert.Equal(t, GradeExcellent, byNumber["F001"].Grade)
	assert.Equal(t, RatingNegativeExposure, byNumber["F002"].Rating)
	assert.Equal(t, RatingPoorOverall, byNumber["F003"].Rating)
	assert.Equal(t, 400000.0, byNumber["F003"].FacilityAmt)
}

func TestBuiltinRendererRender(t *testing.T) {
	dataset := writeDataset(t)
	out := filepath.Join(t.TempDir(), "Auto_finance_annual_review_report.txt")
	r := &BuiltinRenderer{
		Title:    "Auto Finance",
		Products: []string{"TRACTOR LEASE", "PLEDGE LOAN"},
		Criteria: "- Target products: TRACTOR LEASE, PLEDGE LOAN",
		Now:      func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) },
	}

	res, err := r.Render(context.Background(), dataset, out)
	require.NoError(t, err)
	assert.Zero(t, res.ExitCode)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	doc := string(b)
	assert.Contains(t, doc, "Auto Finance Annual Credit Review Report")
	assert.Contains(t, doc, "Generated: 2025-03-14 09:00:00")
	assert.Contains(t, doc, RatingExcellent)
	assert.Contains(t, doc, "TOTAL")
	assert.Contains(t, doc, "1,650,000.00")
	assert.Contains(t, doc, "kamal")
}

func TestBuiltinRendererNoData(t *testing.T) {
	out := filepath.Join(t.TempDir(), "ThreeWheeler_annual_review_report.txt")
	r := &BuiltinRenderer{Title: "Three Wheeler", Products: []string{"Three Wheeler-Lease-Registered"}}

	res, err := r.Render(context.Background(), writeDataset(t), out)
	require.ErrorIs(t, err, ErrNoData)
	assert.Contains(t, res.Output, "No records found")
	assert.NoFileExists(t, out)
}

func TestBuiltinRendererRejectsUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	r := &BuiltinRenderer{Title: "Auto Finance", Products: []string{"TRACTOR LEASE"}}

	_, err := r.Render(context.Background(), path, filepath.Join(t.TempDir(), "out.txt"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoData)
}

func TestExecRenderer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	out := filepath.Join(dir, "report.pdf")
	r := &ExecRenderer{Command: []string{"sh", "-c", `echo "rendering $0"; cp "$0" "$1"`, "{dataset}", "{output}"}}

	res, err := r.Render(context.Background(), writeDataset(t), out)
	require.NoError(t, err)
	assert.Zero(t, res.ExitCode)
	assert.Contains(t, res.Output, "rendering")
	assert.FileExists(t, out)

	r = &ExecRenderer{Command: []string{"sh", "-c", "echo 'KeyError: PRODUCT' >&2; exit 1"}}
	res, err = r.Render(context.Background(), "x.xlsx", out)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Output, "KeyError")
}
