package report

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// SummaryRow aggregates facilities sharing one rating or grade.
type SummaryRow struct {
	Key         string
	Count       int
	FacilityAmt float64
}

// Summarize groups facilities by key, sorted by key, skipping NaN amounts in the sums.
func Summarize(facilities []Facility, key func(Facility) string) []SummaryRow {
	idx := make(map[string]int)
	var rows []SummaryRow
	for _, f := range facilities {
		k := key(f)
		i, ok := idx[k]
		if !ok {
			i = len(rows)
			idx[k] = i
			rows = append(rows, SummaryRow{Key: k})
		}
		rows[i].Count++
		if !math.IsNaN(f.FacilityAmt) {
			rows[i].FacilityAmt += f.FacilityAmt
		}
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a].Key < rows[b].Key })
	return rows
}

// UserCount is the number of facilities pre-approved by one user.
type UserCount struct {
	User  string
	Count int
}

// CountUsers counts facilities per PRE_APPROVED_USER, most frequent first.
func CountUsers(facilities []Facility) []UserCount {
	counts := make(map[string]int)
	for _, f := range facilities {
		counts[f.PreApprovedUser]++
	}
	out := make([]UserCount, 0, len(counts))
	for u, c := range counts {
		out = append(out, UserCount{User: u, Count: c})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Count != out[b].Count {
			return out[a].Count > out[b].Count
		}
		return out[a].User < out[b].User
	})
	return out
}

// FormatReport renders the full text report.
func FormatReport(title, criteria string, at time.Time, facilities []Facility) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Annual Credit Review Report\n", title)
	fmt.Fprintf(&b, "Generated: %s\n", at.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Facilities: %d\n\n", len(facilities))
	if criteria != "" {
		fmt.Fprintf(&b, "Filter criteria applied:\n%s\n\n", criteria)
	}

	b.WriteString("Annual Credit Review Rating Summary\n")
	b.WriteString(summaryTable("Rating", Summarize(facilities, func(f Facility) string { return f.Rating }), len(facilities)))
	b.WriteString("\n\nAnnual Credit Review Grade Summary\n")
	b.WriteString(summaryTable("Grade", Summarize(facilities, func(f Facility) string { return f.Grade }), len(facilities)))

	b.WriteString("\n\nSummary by PRE_APPROVED_USER\n")
	users := table.New().Border(lipgloss.NormalBorder()).Headers("PRE APPROVED USER", "Count")
	for _, u := range CountUsers(facilities) {
		users.Row(blankAs(u.User, "(blank)"), strconv.Itoa(u.Count))
	}
	b.WriteString(users.Render())
	b.WriteString("\n")
	return b.String()
}

func summaryTable(keyHeader string, rows []SummaryRow, totalCount int) string {
	var totalAmt float64
	for _, r := range rows {
		totalAmt += r.FacilityAmt
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(keyHeader, "Count", "Total FACILITY_AMT", "Count %", "FACILITY_AMT %")
	for _, r := range rows {
		t.Row(blankAs(r.Key, "(unrated)"), strconv.Itoa(r.Count), FormatAmount(r.FacilityAmt),
			Percent(float64(r.Count), float64(totalCount)), Percent(r.FacilityAmt, totalAmt))
	}
	t.Row("TOTAL", strconv.Itoa(totalCount), FormatAmount(totalAmt), Percent(float64(totalCount), float64(totalCount)),
		Percent(totalAmt, totalAmt))
	return t.Render()
}

// Percent formats part/whole with two decimals; a zero whole gives 0.00%.
func Percent(part, whole float64) string {
	if whole == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", part/whole*100)
}

// FormatAmount renders v with two decimals and thousands separators.
func FormatAmount(v float64) string {
	s := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if v < 0 {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

func blankAs(s, alt string) string {
	if strings.TrimSpace(s) == "" {
		return alt
	}
	return s
}
