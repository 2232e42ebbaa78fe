package query

import (
	"fmt"
	"strings"

	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/snapshot"
)

// whereBuilder collects AND'd SQL conditions and their positional args.
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return "1=1"
	}
	return strings.Join(w.conds, " AND ")
}

// escapeILIKE escapes ILIKE wildcard characters (% and _) in user input.
func escapeILIKE(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\") // Escape backslash first
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

func containsPattern(s string) string {
	return "%" + escapeILIKE(s) + "%"
}

// addChips ORs the chips on col. Each chip requires all of its terms.
func (w *whereBuilder) addChips(col string, chips []filter.Chip) {
	if len(chips) == 0 {
		return
	}
	var ors []string
	var args []any
	for _, chip := range chips {
		var ands []string
		for _, term := range chip.Terms {
			ands = append(ands, col+` ILIKE ? ESCAPE '\'`)
			args = append(args, containsPattern(term))
		}
		ors = append(ors, "("+strings.Join(ands, " AND ")+")")
	}
	w.add("("+strings.Join(ors, " OR ")+")", args...)
}

func (w *whereBuilder) addKeywords(keywords []string) {
	for _, kw := range keywords {
		w.add(`search_text ILIKE ? ESCAPE '\'`, containsPattern(strings.ToLower(kw)))
	}
}

func (w *whereBuilder) addValueRange(vr filter.ValueRange) {
	if !vr.Set {
		return
	}
	w.add("contract_amount BETWEEN CAST(? AS DECIMAL(18,2)) AND CAST(? AS DECIMAL(18,2))",
		vr.Min.StringFixed(2), vr.Max.StringFixed(2))
}

func (w *whereBuilder) addTimeRanges(ranges []filter.TimeRange) {
	if len(ranges) == 0 {
		return
	}
	var ors []string
	var args []any
	for _, r := range ranges {
		ors = append(ors, "award_date BETWEEN CAST(? AS DATE) AND CAST(? AS DATE)")
		args = append(args, r.Start.Format(snapshot.DateLayout), r.End.Format(snapshot.DateLayout))
	}
	w.add("("+strings.Join(ors, " OR ")+")", args...)
}

// factWhere applies every constraint of chips to fact rows.
func factWhere(chips *filter.ChipSet) *whereBuilder {
	w := &whereBuilder{}
	for _, d := range chips.EntityDimensions() {
		w.addChips(d.Column(), chips.Entities[d])
	}
	w.addKeywords(chips.Keywords)
	w.addValueRange(chips.Value)
	w.addTimeRanges(chips.TimeRanges)
	return w
}

// rollupWhere filters rollup rows of dim by the chips on dim. The planner
// guarantees no other constraint reaches a rollup read.
func rollupWhere(chips *filter.ChipSet, dim snapshot.Dimension) *whereBuilder {
	w := &whereBuilder{}
	w.addChips("entity", chips.Entities[dim])
	return w
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// parquetSource renders a read_parquet call over one or more files.
func parquetSource(paths []string) string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = "'" + escapeSQLString(p) + "'"
	}
	if len(quoted) == 1 {
		return fmt.Sprintf("read_parquet(%s)", quoted[0])
	}
	return fmt.Sprintf("read_parquet([%s])", strings.Join(quoted, ", "))
}

// counterpartSelect returns the JSON-encoded distinct name lists of the
// dimensions other than dim, in canonical order. listExpr renders one
// dimension's list expression.
func counterpartSelect(dim snapshot.Dimension, listExpr func(snapshot.Dimension) string) string {
	var cols []string
	for _, o := range dim.Others() {
		cols = append(cols, fmt.Sprintf("CAST(to_json(%s) AS VARCHAR)", listExpr(o)))
	}
	return strings.Join(cols, ", ")
}

const contractSelect = `reference_id, contract_number, award_title, notice_title,
	awardee_name, organization_name, area_of_delivery, business_category,
	CAST(contract_amount AS VARCHAR), award_date, award_status`
