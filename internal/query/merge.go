package query

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/snapshot"
)

// Partial is one entity's measures from a single rollup bucket or scan.
// Counterparts holds the distinct names seen in each other dimension, so
// merging partials can union them instead of summing counts.
type Partial struct {
	Entity       string
	Count        int64
	Total        decimal.Decimal
	First        time.Time
	Last         time.Time
	Counterparts map[snapshot.Dimension][]string
}

type mergedEntity struct {
	count        int64
	total        decimal.Decimal
	first        time.Time
	last         time.Time
	counterparts map[snapshot.Dimension]map[string]struct{}
}

// Accumulator merges partials by entity name. It is not safe for
// concurrent use.
type Accumulator struct {
	dim      snapshot.Dimension
	entities map[string]*mergedEntity
}

// NewAccumulator returns an empty accumulator for rows of dimension dim.
func NewAccumulator(dim snapshot.Dimension) *Accumulator {
	return &Accumulator{dim: dim, entities: make(map[string]*mergedEntity)}
}

// Add merges p. Counts and totals are summed, counterpart sets unioned,
// and the date span widened. A partial that could only come from a
// corrupt snapshot is rejected with *InternalInconsistencyError.
func (a *Accumulator) Add(p Partial) error {
	if p.Count < 0 {
		return &InternalInconsistencyError{Entity: p.Entity, Detail: fmt.Sprintf("negative contract count %d", p.Count)}
	}
	if p.Count == 0 {
		return nil
	}
	if p.Entity == "" {
		return &InternalInconsistencyError{Detail: fmt.Sprintf("%d contracts grouped under an empty %s name", p.Count, a.dim)}
	}
	if !p.First.IsZero() && !p.Last.IsZero() && p.First.After(p.Last) {
		return &InternalInconsistencyError{
			Entity: p.Entity,
			Detail: fmt.Sprintf("first date %s after last date %s", formatDate(p.First), formatDate(p.Last)),
		}
	}

	e, ok := a.entities[p.Entity]
	if !ok {
		e = &mergedEntity{counterparts: make(map[snapshot.Dimension]map[string]struct{})}
		a.entities[p.Entity] = e
	}
	e.count += p.Count
	e.total = e.total.Add(p.Total)
	if !p.First.IsZero() && (e.first.IsZero() || p.First.Before(e.first)) {
		e.first = p.First
	}
	if p.Last.After(e.last) {
		e.last = p.Last
	}
	for d, names := range p.Counterparts {
		set, ok := e.counterparts[d]
		if !ok {
			set = make(map[string]struct{}, len(names))
			e.counterparts[d] = set
		}
		for _, n := range names {
			set[n] = struct{}{}
		}
	}
	return nil
}

// Len returns the number of distinct entities merged so far.
func (a *Accumulator) Len() int { return len(a.entities) }

// Rows returns one row per entity with the average derived from the
// merged sums. Order is unspecified; use SortRows.
func (a *Accumulator) Rows() []AggregateRow {
	rows := make([]AggregateRow, 0, len(a.entities))
	for name, e := range a.entities {
		if e.count == 0 {
			continue
		}
		row := AggregateRow{
			Name:         name,
			Count:        e.count,
			Total:        e.total,
			Average:      e.total.Div(decimal.NewFromInt(e.count)).Round(2),
			FirstDate:    e.first,
			LastDate:     e.last,
			Counterparts: make(map[snapshot.Dimension]int, len(e.counterparts)),
		}
		for _, o := range a.dim.Others() {
			row.Counterparts[o] = len(e.counterparts[o])
		}
		rows = append(rows, row)
	}
	return rows
}

// Total sums counts and values across every merged entity.
func (a *Accumulator) Total() Totals {
	t := Totals{Total: decimal.Zero}
	for _, e := range a.entities {
		t.Count += e.count
		t.Total = t.Total.Add(e.total)
	}
	return t
}
