package query

import (
	"cmp"
	"slices"
	"strings"

	"github.com/wesm/contractlens/internal/filter"
	"golang.org/x/text/cases"
)

// SortField selects the primary ordering of aggregate rows.
type SortField string

const (
	SortTotal   SortField = "total_value"
	SortCount   SortField = "count"
	SortAverage SortField = "avg_value"
	SortName    SortField = "name"
	// SortDate orders raw contracts by award date. For aggregate rows it
	// behaves like SortTotal.
	SortDate SortField = "award_date"
)

// Direction is ascending or descending.
type Direction string

const (
	Desc Direction = "desc"
	Asc  Direction = "asc"
)

// ParseSort validates a client sort. An empty field is kept empty so the
// engine can apply the default for the request kind: total value for
// aggregate rows and award date for contracts. An empty direction takes
// the field's natural direction.
func ParseSort(field, dir string) (SortField, Direction, error) {
	f := SortField(strings.ToLower(strings.TrimSpace(field)))
	switch f {
	case "", SortTotal, SortCount, SortAverage, SortName, SortDate:
	case "value", "total":
		f = SortTotal
	case "avg", "average":
		f = SortAverage
	default:
		return "", "", &filter.ValidationError{Field: "sort", Value: field, Reason: "unknown sort field"}
	}

	d := Direction(strings.ToLower(strings.TrimSpace(dir)))
	switch d {
	case "":
		d = DefaultDirection(f)
	case Asc, Desc:
	default:
		return "", "", &filter.ValidationError{Field: "direction", Value: dir, Reason: "must be asc or desc"}
	}
	return f, d, nil
}

// DefaultDirection returns the natural direction for f.
func DefaultDirection(f SortField) Direction {
	if f == SortName {
		return Asc
	}
	return Desc
}

// SortRows orders rows by field in direction dir and assigns contiguous
// 1-based ranks. Ties on the primary key are broken by entity name
// ascending, compared with Unicode case folding and then byte order, so
// the order is total and independent of input order.
func SortRows(rows []AggregateRow, field SortField, dir Direction) {
	if field == "" {
		field = SortTotal
	}
	if dir == "" {
		dir = DefaultDirection(field)
	}

	// Caser is stateful and not safe for concurrent use.
	fold := cases.Fold()
	keys := make(map[string]string, len(rows))
	for _, r := range rows {
		keys[r.Name] = fold.String(r.Name)
	}

	slices.SortFunc(rows, func(a, b AggregateRow) int {
		c := comparePrimary(a, b, field, keys)
		if dir == Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return compareNames(a.Name, b.Name, keys)
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
}

func comparePrimary(a, b AggregateRow, field SortField, keys map[string]string) int {
	switch field {
	case SortCount:
		return cmp.Compare(a.Count, b.Count)
	case SortAverage:
		return a.Average.Cmp(b.Average)
	case SortName:
		return compareNames(a.Name, b.Name, keys)
	default:
		return a.Total.Cmp(b.Total)
	}
}

func compareNames(a, b string, keys map[string]string) int {
	if c := strings.Compare(keys[a], keys[b]); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// Page returns the rows inside w. A nil window returns rows unchanged.
func Page(rows []AggregateRow, w *filter.Window) []AggregateRow {
	if w == nil {
		return rows
	}
	if w.Offset >= len(rows) {
		return nil
	}
	end := min(w.Offset+w.Limit, len(rows))
	return rows[w.Offset:end]
}

// rawOrderBy returns the total SQL ordering for contract rows.
func rawOrderBy(field SortField, dir Direction) string {
	d := "DESC"
	if dir == Asc {
		d = "ASC"
	}
	switch field {
	case SortTotal, SortAverage, SortCount:
		return "contract_amount " + d + ", reference_id ASC"
	case SortName:
		return "awardee_name " + d + ", award_date DESC, reference_id ASC"
	default:
		return "award_date " + d + ", contract_amount DESC, reference_id ASC"
	}
}
