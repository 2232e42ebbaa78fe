package query

import (
	"context"

	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/snapshot"
)

// Engine answers queries against the current snapshot. Implementations
// must be safe for concurrent use.
type Engine interface {
	// Search returns raw contracts when req.Dimension is empty and
	// aggregate rows otherwise, windowed by req.Window.
	Search(ctx context.Context, req Request) (*SearchResult, error)

	// Aggregate returns one window of entity rows for req.Dimension along
	// with the global totals for the same time range.
	Aggregate(ctx context.Context, req Request) (*AggregateResult, error)

	// Count returns the number of rows Rows would emit for req. It is the
	// estimate pre-pass of an export and materializes no output.
	Count(ctx context.Context, req Request) (int64, error)

	// Rows returns a lazy sequence over every row of req in the same order
	// Search and Aggregate use. The caller must Close it.
	Rows(ctx context.Context, req Request) (RowSource, error)

	// GlobalTotals returns the unfiltered totals for the chip set's time
	// ranges. Entity, keyword and value constraints are ignored.
	GlobalTotals(ctx context.Context, chips *filter.ChipSet) (*Totals, error)

	// FilterOptions lists entity names of d, largest total first,
	// optionally restricted to names starting with prefix.
	FilterOptions(ctx context.Context, d snapshot.Dimension, prefix string, limit int) ([]FilterOption, error)

	// RelatedEntities drills down from one entity into another dimension.
	RelatedEntities(ctx context.Context, req RelatedRequest) (*AggregateResult, error)

	// TimeRanges lists the years and quarters covered by the snapshot.
	TimeRanges(ctx context.Context) (*TimeRanges, error)

	// Domain returns the current snapshot's date bounds, used to validate
	// time ranges before a request is built.
	Domain() snapshot.Domain

	// Close releases any resources held by the engine.
	Close() error
}

// Request is one query: a canonical chip set, the dimension to group by
// (empty for raw contracts), the sort, and an optional window. A nil
// Window selects every row.
type Request struct {
	Chips     *filter.ChipSet
	Dimension snapshot.Dimension
	Sort      SortField
	Direction Direction
	Window    *filter.Window

	// Snapshot pins the request to one snapshot version; nil reads the
	// engine's current one. See Pin.
	Snapshot *snapshot.Snapshot
}

// Pin binds req to the snapshot e serves right now, so that a Count and
// the Rows that follow it read the same version even if a reload swaps
// the store in between. Engines without a local snapshot return req
// unchanged.
func Pin(e Engine, req Request) Request {
	if p, ok := e.(interface{ Pin(Request) Request }); ok {
		return p.Pin(req)
	}
	return req
}

// Raw reports whether the request asks for contracts rather than
// aggregate rows.
func (r Request) Raw() bool { return r.Dimension == "" }

func (r Request) chips() *filter.ChipSet {
	if r.Chips == nil {
		return filter.Empty()
	}
	return r.Chips
}

// RelatedRequest asks for Target-dimension rows of contracts whose Source
// entity matches Value, within the given chips.
type RelatedRequest struct {
	Source    snapshot.Dimension
	Value     string
	Target    snapshot.Dimension
	Chips     *filter.ChipSet
	Sort      SortField
	Direction Direction
	Window    *filter.Window
}

// RowSource yields CSV records in batches. Next returns io.EOF once the
// sequence is exhausted; a final short batch is returned with a nil error.
type RowSource interface {
	Header() []string
	Next(ctx context.Context, n int) ([][]string, error)
	Close() error
}
