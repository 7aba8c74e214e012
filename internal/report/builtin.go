package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Driver

	"github.com/brensch/annualreview/internal/orchestrator"
)

// ErrNoData means the dataset has no rows matching the report's filter. No file is written.
var ErrNoData = errors.New("no records match the report criteria")

// Facility is one dataset row selected for a report.
type Facility struct {
	Number          string
	Product         string
	FacilityAmt     float64 // NaN when missing
	PreApprovedAmt  float64 // NaN when missing
	ReviewRating    string
	Arrears         float64 // NaN when missing
	PreApprovedUser string
	Rating          string
	Grade           string
}

// BuiltinRenderer produces a text report in process. Each call uses a fresh in-memory
// DuckDB database to load and filter the dataset.
type BuiltinRenderer struct {
	Title    string
	Products []string
	Criteria string
	Logger   *slog.Logger
	Now      func() time.Time
}

// Render loads datasetPath, selects the report's facilities and writes the report to
// outputPath. It returns ErrNoData when nothing matches.
func (r *BuiltinRenderer) Render(ctx context.Context, datasetPath, outputPath string) (orchestrator.RunResult, error) {
	start := time.Now()
	facilities, err := r.Load(ctx, datasetPath)
	if err != nil {
		return orchestrator.RunResult{ExitCode: 1, Output: err.Error()}, err
	}
	if len(facilities) == 0 {
		msg := fmt.Sprintf("No records found for %s annual credit review with the filtered data.", r.Title)
		return orchestrator.RunResult{Output: msg}, ErrNoData
	}

	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	doc := FormatReport(r.Title, r.Criteria, now, facilities)
	if err := writeReport(outputPath, doc); err != nil {
		return orchestrator.RunResult{ExitCode: 1, Output: err.Error()}, err
	}

	msg := fmt.Sprintf("%s report written with %d facilities", r.Title, len(facilities))
	if r.Logger != nil {
		r.Logger.Info("Built-in report rendered.", slog.String("report", r.Title), slog.Int("facilities", len(facilities)),
			slog.String("path", outputPath), slog.Duration("duration", time.Since(start)))
	}
	return orchestrator.RunResult{Output: msg}, nil
}

// Load returns the dataset rows with a blank REPORT_REVIEW_DATE, a non-blank
// PRE_APPROVED_DATE and a PRODUCT in the report's product list, rated and graded.
// A missing date column skips that condition.
func (r *BuiltinRenderer) Load(ctx context.Context, datasetPath string) ([]Facility, error) {
	conn, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	defer conn.Close()

	if err := loadDataset(ctx, conn, datasetPath); err != nil {
		return nil, err
	}

	columns, err := datasetColumns(ctx, conn)
	if err != nil {
		return nil, err
	}
	if !columns["PRODUCT"] {
		return nil, fmt.Errorf("dataset %s has no PRODUCT column", filepath.Base(datasetPath))
	}
	if len(r.Products) == 0 {
		return nil, nil
	}

	text := func(col string) string {
		if !columns[col] {
			return "NULL"
		}
		return fmt.Sprintf("trim(CAST(%q AS VARCHAR))", col)
	}
	number := func(col string) string {
		if !columns[col] {
			return "NULL"
		}
		return fmt.Sprintf("TRY_CAST(%q AS DOUBLE)", col)
	}

	conditions := []string{}
	if columns["REPORT_REVIEW_DATE"] {
		conditions = append(conditions, fmt.Sprintf("coalesce(%s, '') = ''", text("REPORT_REVIEW_DATE")))
	}
	if columns["PRE_APPROVED_DATE"] {
		conditions = append(conditions, fmt.Sprintf("coalesce(%s, '') <> ''", text("PRE_APPROVED_DATE")))
	}
	placeholders := make([]string, len(r.Products))
	args := make([]any, len(r.Products))
	for i, p := range r.Products {
		placeholders[i] = "?"
		args[i] = p
	}
	conditions = append(conditions, fmt.Sprintf("%s IN (%s)", text("PRODUCT"), strings.Join(placeholders, ", ")))

	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s, %s, %s
		FROM dataset
		WHERE %s`,
		text("FACILITY_NUMBER"), text("PRODUCT"), number("FACILITY_AMT"), number("PRE_APPROVED_AMT"),
		text("REVIEW_RATING"), number("NO_REN_IN_ARREARS"), text("PRE_APPROVED_USER"),
		strings.Join(conditions, " AND "))

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset: %w", err)
	}
	defer rows.Close()

	var out []Facility
	for rows.Next() {
		var number, product, rating, user sql.NullString
		var amt, preAmt, arrears sql.NullFloat64
		if err := rows.Scan(&number, &product, &amt, &preAmt, &rating, &arrears, &user); err != nil {
			return nil, fmt.Errorf("failed to scan dataset row: %w", err)
		}
		f := Facility{
			Number:          number.String,
			Product:         product.String,
			FacilityAmt:     orNaN(amt),
			PreApprovedAmt:  orNaN(preAmt),
			ReviewRating:    rating.String,
			Arrears:         orNaN(arrears),
			PreApprovedUser: user.String,
		}
		f.Rating = Rating(f.PreApprovedAmt, f.ReviewRating, f.Arrears)
		f.Grade = Grade(f.Rating)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dataset rows: %w", err)
	}
	return out, nil
}

// loadDataset materializes the file as table "dataset". CSV is read as text; spreadsheets
// go through the spatial extension's GDAL reader.
func loadDataset(ctx context.Context, conn *sql.DB, path string) error {
	var stmt string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		stmt = fmt.Sprintf(`CREATE TABLE dataset AS SELECT * FROM read_csv(%s, header = true, all_varchar = true);`, quoteLiteral(path))
	case ".xlsx", ".xls":
		if _, err := conn.ExecContext(ctx, `INSTALL spatial; LOAD spatial;`); err != nil {
			return fmt.Errorf("failed to load spatial extension for %s: %w", filepath.Base(path), err)
		}
		stmt = fmt.Sprintf(`CREATE TABLE dataset AS SELECT * FROM st_read(%s, open_options = ['HEADERS=FORCE']);`, quoteLiteral(path))
	default:
		return fmt.Errorf("unsupported dataset format %q", filepath.Ext(path))
	}
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to load dataset %s: %w", filepath.Base(path), err)
	}
	return nil
}

func datasetColumns(ctx context.Context, conn *sql.DB) (map[string]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT column_name FROM information_schema.columns WHERE table_name = 'dataset';`)
	if err != nil {
		return nil, fmt.Errorf("failed to describe dataset: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column name: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func writeReport(path, doc string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir %s: %w", dir, err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename report %s: %w", path, err)
	}
	return nil
}
