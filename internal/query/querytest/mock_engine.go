// Package querytest provides shared test doubles for the query.Engine interface.
package querytest

import (
	"context"
	"io"

	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/snapshot"
)

// MockEngine implements query.Engine for testing. Each method delegates to an
// optional function field; when the field is nil, the canned result fields
// are returned.
type MockEngine struct {
	Contracts     []query.Contract
	AggregateRows []query.AggregateRow
	Totals        query.Totals
	Options       []query.FilterOption
	Periods       *query.TimeRanges
	DomainValue   snapshot.Domain

	// Requests records every request passed to Search, Aggregate, Count
	// and Rows, in call order.
	Requests []query.Request

	// Optional overrides: set these to customise behavior per-test.
	SearchFunc    func(context.Context, query.Request) (*query.SearchResult, error)
	AggregateFunc func(context.Context, query.Request) (*query.AggregateResult, error)
	CountFunc     func(context.Context, query.Request) (int64, error)
	RowsFunc      func(context.Context, query.Request) (query.RowSource, error)
	RelatedFunc   func(context.Context, query.RelatedRequest) (*query.AggregateResult, error)
}

// Compile-time check.
var _ query.Engine = (*MockEngine)(nil)

func (m *MockEngine) Search(ctx context.Context, req query.Request) (*query.SearchResult, error) {
	m.Requests = append(m.Requests, req)
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, req)
	}
	if req.Raw() {
		return &query.SearchResult{Contracts: m.Contracts, TotalCount: int64(len(m.Contracts))}, nil
	}
	return &query.SearchResult{
		Rows:       query.Page(m.AggregateRows, req.Window),
		TotalCount: int64(len(m.AggregateRows)),
	}, nil
}

func (m *MockEngine) Aggregate(ctx context.Context, req query.Request) (*query.AggregateResult, error) {
	m.Requests = append(m.Requests, req)
	if m.AggregateFunc != nil {
		return m.AggregateFunc(ctx, req)
	}
	return &query.AggregateResult{
		Rows:         query.Page(m.AggregateRows, req.Window),
		TotalCount:   int64(len(m.AggregateRows)),
		GlobalTotals: m.Totals,
	}, nil
}

func (m *MockEngine) Count(ctx context.Context, req query.Request) (int64, error) {
	m.Requests = append(m.Requests, req)
	if m.CountFunc != nil {
		return m.CountFunc(ctx, req)
	}
	if req.Raw() {
		return int64(len(m.Contracts)), nil
	}
	return int64(len(query.Page(m.AggregateRows, req.Window))), nil
}

func (m *MockEngine) Rows(ctx context.Context, req query.Request) (query.RowSource, error) {
	m.Requests = append(m.Requests, req)
	if m.RowsFunc != nil {
		return m.RowsFunc(ctx, req)
	}
	if req.Raw() {
		records := make([][]string, len(m.Contracts))
		for i, c := range m.Contracts {
			records[i] = c.Record()
		}
		return NewRecordSource(query.ContractColumns, records), nil
	}
	rows := query.Page(m.AggregateRows, req.Window)
	records := make([][]string, len(rows))
	for i, r := range rows {
		records[i] = r.Record(req.Dimension)
	}
	return NewRecordSource(query.AggregateColumns(req.Dimension), records), nil
}

func (m *MockEngine) GlobalTotals(_ context.Context, _ *filter.ChipSet) (*query.Totals, error) {
	t := m.Totals
	return &t, nil
}

func (m *MockEngine) FilterOptions(_ context.Context, _ snapshot.Dimension, _ string, _ int) ([]query.FilterOption, error) {
	return m.Options, nil
}

func (m *MockEngine) RelatedEntities(ctx context.Context, req query.RelatedRequest) (*query.AggregateResult, error) {
	if m.RelatedFunc != nil {
		return m.RelatedFunc(ctx, req)
	}
	return &query.AggregateResult{Rows: m.AggregateRows, TotalCount: int64(len(m.AggregateRows)), GlobalTotals: m.Totals}, nil
}

func (m *MockEngine) TimeRanges(_ context.Context) (*query.TimeRanges, error) {
	if m.Periods != nil {
		return m.Periods, nil
	}
	return &query.TimeRanges{}, nil
}

func (m *MockEngine) Domain() snapshot.Domain { return m.DomainValue }

func (m *MockEngine) Close() error { return nil }

// RecordSource is an in-memory query.RowSource.
type RecordSource struct {
	header  []string
	records [][]string
	pos     int
	Closed  bool
}

// NewRecordSource returns a source yielding records under header.
func NewRecordSource(header []string, records [][]string) *RecordSource {
	return &RecordSource{header: header, records: records}
}

func (s *RecordSource) Header() []string { return s.header }

func (s *RecordSource) Next(ctx context.Context, n int) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	end := min(s.pos+n, len(s.records))
	batch := s.records[s.pos:end]
	s.pos = end
	return batch, nil
}

func (s *RecordSource) Close() error {
	s.Closed = true
	return nil
}
