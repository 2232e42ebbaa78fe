package remote

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/snapshot"
)

// Engine implements query.Engine by making HTTP calls to a remote
// contractlens server.
type Engine struct {
	client *Client
	domain snapshot.Domain
}

// Compile-time check that Engine implements query.Engine.
var _ query.Engine = (*Engine)(nil)

// NewEngine connects to the server and fetches the snapshot's date domain.
func NewEngine(ctx context.Context, cfg Config) (*Engine, error) {
	c, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return NewEngineFromClient(ctx, c)
}

// NewEngineFromClient creates a remote query engine from an existing client.
func NewEngineFromClient(ctx context.Context, c *Client) (*Engine, error) {
	e := &Engine{client: c}
	tr, err := e.TimeRanges(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.baseURL, err)
	}
	e.domain = snapshot.Domain{Min: tr.MinDate, Max: tr.MaxDate}
	return e, nil
}

// IsRemote returns true, indicating this is a remote engine.
func (e *Engine) IsRemote() bool {
	return true
}

// Close is a no-op for an HTTP client.
func (e *Engine) Close() error {
	return nil
}

// Domain returns the date bounds fetched when the engine connected.
func (e *Engine) Domain() snapshot.Domain {
	return e.domain
}

// ============================================================================
// API Response Types
// ============================================================================

// params matches the server's request body.
type params struct {
	filter.Raw
	Dimension string `json:"dimension,omitempty"`
	Sort      string `json:"sort,omitempty"`
	Direction string `json:"direction,omitempty"`
	Offset    int    `json:"offset,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type contractJSON struct {
	ReferenceID    string          `json:"reference_id"`
	ContractNumber string          `json:"contract_number"`
	AwardTitle     string          `json:"award_title"`
	NoticeTitle    string          `json:"notice_title"`
	Contractor     string          `json:"awardee_name"`
	Organization   string          `json:"organization_name"`
	Area           string          `json:"area_of_delivery"`
	Category       string          `json:"business_category"`
	Amount         decimal.Decimal `json:"contract_amount"`
	AwardDate      string          `json:"award_date"`
	Status         string          `json:"award_status"`
}

type aggregateRowJSON struct {
	Rank         int             `json:"rank"`
	Name         string          `json:"name"`
	Count        int64           `json:"count"`
	TotalValue   decimal.Decimal `json:"total_value"`
	AvgValue     decimal.Decimal `json:"avg_value"`
	FirstDate    string          `json:"first_date"`
	LastDate     string          `json:"last_date"`
	Counterparts map[string]int  `json:"counterpart_counts"`
}

type totalsJSON struct {
	Count      int64           `json:"count"`
	TotalValue decimal.Decimal `json:"total_value"`
}

type planJSON struct {
	Kind             string   `json:"kind"`
	Buckets          []string `json:"buckets"`
	ScanBuckets      []string `json:"scan_buckets"`
	Reason           string   `json:"reason"`
	Missing          []string `json:"missing_buckets"`
	SecondaryMissing bool     `json:"secondary_missing"`
}

type searchResponse struct {
	Contracts  []contractJSON     `json:"contracts"`
	Rows       []aggregateRowJSON `json:"rows"`
	TotalCount int64              `json:"total_count"`
	Plan       *planJSON          `json:"plan"`
}

type aggregateResponse struct {
	Rows         []aggregateRowJSON `json:"rows"`
	TotalCount   int64              `json:"total_count"`
	GlobalTotals totalsJSON         `json:"global_totals"`
	Plan         *planJSON          `json:"plan"`
}

type estimateResponse struct {
	RowCount int64 `json:"row_count"`
}

type filterOptionsResponse struct {
	Options []struct {
		Name       string          `json:"name"`
		Count      int64           `json:"count"`
		TotalValue decimal.Decimal `json:"total_value"`
	} `json:"options"`
}

type periodJSON struct {
	Key        string          `json:"key"`
	Start      string          `json:"start"`
	End        string          `json:"end"`
	RowCount   int64           `json:"row_count"`
	TotalValue decimal.Decimal `json:"total_value"`
}

type timeRangesResponse struct {
	MinDate  string       `json:"min_date"`
	MaxDate  string       `json:"max_date"`
	Years    []periodJSON `json:"years"`
	Quarters []periodJSON `json:"quarters"`
}

// ============================================================================
// Helper Functions
// ============================================================================

// toParams converts a request into the server's request body.
func toParams(req query.Request) params {
	p := params{
		Raw:       req.Chips.Raw(),
		Dimension: string(req.Dimension),
		Sort:      string(req.Sort),
		Direction: string(req.Direction),
	}
	if req.Window != nil {
		p.Offset = req.Window.Offset
		p.Limit = req.Window.Limit
	}
	return p
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(snapshot.DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func toContracts(in []contractJSON) []query.Contract {
	out := make([]query.Contract, len(in))
	for i, c := range in {
		out[i] = query.Contract{
			ReferenceID:    c.ReferenceID,
			ContractNumber: c.ContractNumber,
			AwardTitle:     c.AwardTitle,
			NoticeTitle:    c.NoticeTitle,
			Contractor:     c.Contractor,
			Organization:   c.Organization,
			Area:           c.Area,
			Category:       c.Category,
			Amount:         c.Amount,
			AwardDate:      parseDate(c.AwardDate),
			Status:         c.Status,
		}
	}
	return out
}

func toRows(in []aggregateRowJSON) []query.AggregateRow {
	out := make([]query.AggregateRow, len(in))
	for i, r := range in {
		var counterparts map[snapshot.Dimension]int
		if len(r.Counterparts) > 0 {
			counterparts = make(map[snapshot.Dimension]int, len(r.Counterparts))
			for k, n := range r.Counterparts {
				counterparts[snapshot.Dimension(k)] = n
			}
		}
		out[i] = query.AggregateRow{
			Rank:         r.Rank,
			Name:         r.Name,
			Count:        r.Count,
			Total:        r.TotalValue,
			Average:      r.AvgValue,
			FirstDate:    parseDate(r.FirstDate),
			LastDate:     parseDate(r.LastDate),
			Counterparts: counterparts,
		}
	}
	return out
}

func toPeriods(in []periodJSON) []query.Period {
	out := make([]query.Period, len(in))
	for i, p := range in {
		out[i] = query.Period{
			Key:      p.Key,
			Start:    parseDate(p.Start),
			End:      parseDate(p.End),
			RowCount: p.RowCount,
			Total:    p.TotalValue,
		}
	}
	return out
}

// planKinds maps the server's plan names back to kinds.
var planKinds = map[string]query.PlanKind{
	query.SingleBucket.String():     query.SingleBucket,
	query.MultiBucketMerge.String(): query.MultiBucketMerge,
	query.FactScan.String():         query.FactScan,
}

func toPlan(p *planJSON, d snapshot.Dimension, secondary bool) *query.Plan {
	if p == nil {
		return nil
	}
	kind, ok := planKinds[p.Kind]
	if !ok {
		kind = query.FactScan
	}
	return &query.Plan{
		Kind:             kind,
		Dimension:        d,
		Buckets:          toBuckets(p.Buckets),
		ScanBuckets:      toBuckets(p.ScanBuckets),
		Secondary:        secondary && !p.SecondaryMissing,
		SecondaryMissing: p.SecondaryMissing,
		Reason:           p.Reason,
		Missing:          toBuckets(p.Missing),
	}
}

func toBuckets(keys []string) []snapshot.Bucket {
	if len(keys) == 0 {
		return nil
	}
	out := make([]snapshot.Bucket, 0, len(keys))
	for _, k := range keys {
		if b, err := snapshot.ParseBucketKey(k); err == nil {
			out = append(out, b)
		}
	}
	return out
}

func includesSecondary(c *filter.ChipSet) bool {
	return c != nil && c.IncludeSecondary
}

// ============================================================================
// Engine Methods
// ============================================================================

// Search runs a raw or aggregate search. A nil window gets the server's
// default page size.
func (e *Engine) Search(ctx context.Context, req query.Request) (*query.SearchResult, error) {
	var resp searchResponse
	if err := e.client.getJSON(ctx, http.MethodPost, "/api/v1/search", nil, toParams(req), &resp); err != nil {
		return nil, err
	}
	res := &query.SearchResult{
		TotalCount: resp.TotalCount,
		Plan:       toPlan(resp.Plan, req.Dimension, includesSecondary(req.Chips)),
	}
	if req.Raw() {
		res.Contracts = toContracts(resp.Contracts)
	} else {
		res.Rows = toRows(resp.Rows)
	}
	return res, nil
}

// Aggregate fetches one window of rows for req.Dimension.
func (e *Engine) Aggregate(ctx context.Context, req query.Request) (*query.AggregateResult, error) {
	var resp aggregateResponse
	if err := e.client.getJSON(ctx, http.MethodPost, "/api/v1/aggregate", nil, toParams(req), &resp); err != nil {
		return nil, err
	}
	return &query.AggregateResult{
		Rows:         toRows(resp.Rows),
		TotalCount:   resp.TotalCount,
		GlobalTotals: query.Totals{Count: resp.GlobalTotals.Count, Total: resp.GlobalTotals.TotalValue},
		Plan:         toPlan(resp.Plan, req.Dimension, includesSecondary(req.Chips)),
	}, nil
}

// Count asks the server to size the export of req.
func (e *Engine) Count(ctx context.Context, req query.Request) (int64, error) {
	var resp estimateResponse
	if err := e.client.getJSON(ctx, http.MethodPost, "/api/v1/export/estimate", nil, toParams(req), &resp); err != nil {
		return 0, err
	}
	return resp.RowCount, nil
}

// Rows streams the server's CSV export of req.
func (e *Engine) Rows(ctx context.Context, req query.Request) (query.RowSource, error) {
	resp, err := e.client.do(ctx, e.client.streamClient, http.MethodPost, "/api/v1/export", nil, toParams(req))
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(resp.Body)
	header, err := r.Read()
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("read export header: %w", err)
	}
	return &csvSource{body: resp.Body, r: r, header: header, jobID: resp.Header.Get("X-Export-Job")}, nil
}

// GlobalTotals reads the totals reported alongside a one-row aggregate
// over the chip set's time ranges.
func (e *Engine) GlobalTotals(ctx context.Context, chips *filter.ChipSet) (*query.Totals, error) {
	if chips == nil {
		chips = filter.Empty()
	}
	res, err := e.Aggregate(ctx, query.Request{
		Chips:     chips.TimeOnly(),
		Dimension: snapshot.Contractor,
		Window:    &filter.Window{Limit: 1},
	})
	if err != nil {
		return nil, err
	}
	t := res.GlobalTotals
	return &t, nil
}

// FilterOptions lists entity names of d.
func (e *Engine) FilterOptions(ctx context.Context, d snapshot.Dimension, prefix string, limit int) ([]query.FilterOption, error) {
	q := url.Values{}
	q.Set("dimension", string(d))
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp filterOptionsResponse
	if err := e.client.getJSON(ctx, http.MethodGet, "/api/v1/filter-options", q, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]query.FilterOption, len(resp.Options))
	for i, o := range resp.Options {
		out[i] = query.FilterOption{Name: o.Name, Count: o.Count, Total: o.TotalValue}
	}
	return out, nil
}

// RelatedEntities aggregates req.Target over the contracts whose source
// entity matches req.Value.
func (e *Engine) RelatedEntities(ctx context.Context, req query.RelatedRequest) (*query.AggregateResult, error) {
	chips := req.Chips
	if chips == nil {
		chips = filter.Empty()
	}
	return e.Aggregate(ctx, query.Request{
		Chips:     chips.WithEntity(req.Source, req.Value),
		Dimension: req.Target,
		Sort:      req.Sort,
		Direction: req.Direction,
		Window:    req.Window,
	})
}

// TimeRanges lists the periods of the server's current snapshot.
func (e *Engine) TimeRanges(ctx context.Context) (*query.TimeRanges, error) {
	var resp timeRangesResponse
	if err := e.client.getJSON(ctx, http.MethodGet, "/api/v1/time-ranges", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &query.TimeRanges{
		MinDate:  parseDate(resp.MinDate),
		MaxDate:  parseDate(resp.MaxDate),
		Years:    toPeriods(resp.Years),
		Quarters: toPeriods(resp.Quarters),
	}, nil
}

// csvSource reads records from a streamed CSV export.
type csvSource struct {
	body   io.ReadCloser
	r      *csv.Reader
	header []string
	jobID  string
	done   bool
}

func (s *csvSource) Header() []string { return s.header }

func (s *csvSource) Next(ctx context.Context, n int) ([][]string, error) {
	if s.done {
		return nil, io.EOF
	}
	batch := make([][]string, 0, n)
	for len(batch) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := s.r.Read()
		if errors.Is(err, io.EOF) {
			s.done = true
			if len(batch) == 0 {
				return nil, io.EOF
			}
			return batch, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read export stream (job %s): %w", s.jobID, err)
		}
		batch = append(batch, rec)
	}
	return batch, nil
}

func (s *csvSource) Close() error {
	return s.body.Close()
}
