package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/snapshot"
	"github.com/wesm/contractlens/internal/textutil"
)

const dateLayout = "2006-01-02"

// column is one table column: a header, a display width and whether the
// values are right-aligned.
type column struct {
	header string
	width  int
	right  bool
}

// writeTable renders rows under cols, padding by display width so wide
// (CJK) names stay aligned.
func writeTable(w io.Writer, cols []column, rows [][]string) {
	cells := make([]string, len(cols))
	rule := make([]string, len(cols))
	for i, c := range cols {
		cells[i] = pad(strings.ToUpper(c.header), c)
		rule[i] = strings.Repeat("─", c.width)
	}
	fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	fmt.Fprintln(w, strings.Join(rule, "  "))
	for _, row := range rows {
		for i, c := range cols {
			cells[i] = pad(row[i], c)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

func pad(s string, c column) string {
	if c.right {
		return textutil.PadLeft(s, c.width)
	}
	return textutil.PadRight(s, c.width)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatAmount renders a money value with thousands separators and two
// decimals.
func formatAmount(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

// percentOf returns part as a percentage of whole, or "-" when whole is
// zero.
func percentOf(part, whole decimal.Decimal) string {
	if whole.IsZero() {
		return "-"
	}
	return part.Mul(decimal.NewFromInt(100)).Div(whole).StringFixed(2) + "%"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func writeAggregateTable(w io.Writer, d snapshot.Dimension, res *query.AggregateResult) {
	cols := []column{
		{header: "#", width: 5, right: true},
		{header: string(d), width: 40},
		{header: "count", width: 8, right: true},
		{header: "total value", width: 20, right: true},
		{header: "share", width: 8, right: true},
		{header: "first", width: 10},
		{header: "last", width: 10},
	}
	rows := make([][]string, len(res.Rows))
	for i, r := range res.Rows {
		rows[i] = []string{
			fmt.Sprint(r.Rank),
			r.Name,
			fmt.Sprint(r.Count),
			formatAmount(r.Total),
			percentOf(r.Total, res.GlobalTotals.Total),
			formatDate(r.FirstDate),
			formatDate(r.LastDate),
		}
	}
	writeTable(w, cols, rows)
	fmt.Fprintf(w, "\nShowing %d of %d %ss (all contracts in period: %d, %s)\n",
		len(res.Rows), res.TotalCount, d, res.GlobalTotals.Count, formatAmount(res.GlobalTotals.Total))
	if res.Plan != nil {
		fmt.Fprintf(w, "Plan: %s", res.Plan.Kind)
		if res.Plan.Reason != "" {
			fmt.Fprintf(w, " (%s)", res.Plan.Reason)
		}
		fmt.Fprintln(w)
	}
}

func writeContractsTable(w io.Writer, res *query.SearchResult) {
	cols := []column{
		{header: "date", width: 10},
		{header: "reference", width: 14},
		{header: "contractor", width: 28},
		{header: "organization", width: 28},
		{header: "title", width: 36},
		{header: "amount", width: 18, right: true},
	}
	rows := make([][]string, len(res.Contracts))
	for i, c := range res.Contracts {
		rows[i] = []string{
			formatDate(c.AwardDate),
			c.ReferenceID,
			c.Contractor,
			c.Organization,
			c.AwardTitle,
			formatAmount(c.Amount),
		}
	}
	writeTable(w, cols, rows)
	fmt.Fprintf(w, "\nShowing %d of %d contracts\n", len(res.Contracts), res.TotalCount)
}

func writeOptionsTable(w io.Writer, d snapshot.Dimension, opts []query.FilterOption) {
	cols := []column{
		{header: string(d), width: 48},
		{header: "count", width: 8, right: true},
		{header: "total value", width: 20, right: true},
	}
	rows := make([][]string, len(opts))
	for i, o := range opts {
		rows[i] = []string{o.Name, fmt.Sprint(o.Count), formatAmount(o.Total)}
	}
	writeTable(w, cols, rows)
}

func writePeriodsTable(w io.Writer, tr *query.TimeRanges) {
	fmt.Fprintf(w, "Data covers %s to %s\n\n", formatDate(tr.MinDate), formatDate(tr.MaxDate))
	cols := []column{
		{header: "period", width: 8},
		{header: "from", width: 10},
		{header: "to", width: 10},
		{header: "contracts", width: 10, right: true},
		{header: "total value", width: 20, right: true},
	}
	var rows [][]string
	add := func(periods []query.Period) {
		for _, p := range periods {
			rows = append(rows, []string{
				p.Key, formatDate(p.Start), formatDate(p.End), fmt.Sprint(p.RowCount), formatAmount(p.Total),
			})
		}
	}
	add(tr.Years)
	add(tr.Quarters)
	writeTable(w, cols, rows)
}
