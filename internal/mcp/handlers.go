package mcp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/wesm/contractlens/internal/export"
	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/search"
	"github.com/wesm/contractlens/internal/snapshot"
)

const maxLimit = 1000

type handlers struct {
	engine query.Engine
	limits filter.Limits
	widths export.Widths
}

func newHandlers(engine query.Engine, opts Options) *handlers {
	if opts.Limits.Default <= 0 || opts.Limits.Max <= 0 {
		opts.Limits = filter.DefaultLimits()
	}
	if opts.Widths.Raw <= 0 || opts.Widths.Aggregate <= 0 {
		opts.Widths = export.DefaultWidths()
	}
	return &handlers{engine: engine, limits: opts.Limits, widths: opts.Widths}
}

// searchOutput is the search_contracts result.
type searchOutput struct {
	Contracts  []query.Contract `json:"contracts"`
	TotalCount int64            `json:"total_count"`
}

// aggregateOutput is the aggregate_contracts and related_entities result.
type aggregateOutput struct {
	Dimension    snapshot.Dimension   `json:"dimension"`
	Rows         []query.AggregateRow `json:"rows"`
	TotalCount   int64                `json:"total_count"`
	GlobalTotals query.Totals         `json:"global_totals"`
	Plan         *query.Plan          `json:"plan,omitempty"`
}

// params collects the filter, sort and window arguments shared by the
// query tools.
func (h *handlers) params(args map[string]any, dimension string) (query.Params, error) {
	q, _ := args["query"].(string)
	raw, err := search.ParseRaw(q, h.engine.Domain())
	if err != nil {
		return query.Params{}, err
	}
	sortField, _ := args["sort"].(string)
	dir, _ := args["direction"].(string)
	return query.Params{
		Raw:       raw,
		Dimension: dimension,
		Sort:      sortField,
		Direction: dir,
		RawWindow: filter.RawWindow{
			Offset: intArg(args, "offset", 0),
			Limit:  limitArg(args, "limit", h.limits.Default),
		},
	}, nil
}

func (h *handlers) dimensionArg(args map[string]any, key string) (snapshot.Dimension, error) {
	v, _ := args[key].(string)
	if v == "" {
		return "", fmt.Errorf("%s parameter is required", key)
	}
	d, err := snapshot.ParseDimension(v)
	if err != nil {
		return "", fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func (h *handlers) searchContracts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, err := h.params(req.GetArguments(), "")
	if err != nil {
		return toolError("search", err), nil
	}
	r, err := p.Request(h.engine.Domain(), h.limits, false)
	if err != nil {
		return toolError("search", err), nil
	}
	res, err := h.engine.Search(ctx, r)
	if err != nil {
		return toolError("search", err), nil
	}
	contracts := res.Contracts
	if contracts == nil {
		contracts = []query.Contract{}
	}
	return jsonResult(searchOutput{Contracts: contracts, TotalCount: res.TotalCount})
}

func (h *handlers) aggregate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	d, err := h.dimensionArg(args, "group_by")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := h.params(args, string(d))
	if err != nil {
		return toolError("aggregate", err), nil
	}
	r, err := p.Request(h.engine.Domain(), h.limits, false)
	if err != nil {
		return toolError("aggregate", err), nil
	}
	res, err := h.engine.Aggregate(ctx, r)
	if err != nil {
		return toolError("aggregate", err), nil
	}
	return jsonResult(toAggregateOutput(d, res))
}

func (h *handlers) estimateExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	var dim string
	if v, _ := args["group_by"].(string); v != "" {
		d, err := h.dimensionArg(args, "group_by")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		dim = string(d)
	}
	q, _ := args["query"].(string)
	raw, err := search.ParseRaw(q, h.engine.Domain())
	if err != nil {
		return toolError("estimate", err), nil
	}
	r, err := query.Params{Raw: raw, Dimension: dim}.Request(h.engine.Domain(), h.limits, true)
	if err != nil {
		return toolError("estimate", err), nil
	}
	est, err := export.EstimateExport(ctx, h.engine, r, h.widths)
	if err != nil {
		return toolError("estimate", err), nil
	}
	return jsonResult(map[string]any{
		"row_count":       est.RowCount,
		"estimated_bytes": est.Bytes,
		"columns":         est.Header,
	})
}

func (h *handlers) filterOptions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	d, err := h.dimensionArg(args, "dimension")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prefix, _ := args["prefix"].(string)
	limit := limitArg(args, "limit", h.limits.Default)
	if limit == 0 || limit > h.limits.Max {
		limit = h.limits.Default
	}
	opts, err := h.engine.FilterOptions(ctx, d, prefix, limit)
	if err != nil {
		return toolError("filter options", err), nil
	}
	if opts == nil {
		opts = []query.FilterOption{}
	}
	return jsonResult(opts)
}

func (h *handlers) related(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	source, err := h.dimensionArg(args, "source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := h.dimensionArg(args, "target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, _ := args["value"].(string)
	if value == "" {
		return mcp.NewToolResultError("value parameter is required"), nil
	}
	p, err := h.params(args, "")
	if err != nil {
		return toolError("related", err), nil
	}
	chips, err := filter.Normalize(p.Raw, h.engine.Domain())
	if err != nil {
		return toolError("related", err), nil
	}
	sortField, dir, err := query.ParseSort(p.Sort, p.Direction)
	if err != nil {
		return toolError("related", err), nil
	}
	win, err := filter.NormalizeWindow(p.RawWindow, h.limits, false)
	if err != nil {
		return toolError("related", err), nil
	}
	res, err := h.engine.RelatedEntities(ctx, query.RelatedRequest{
		Source:    source,
		Value:     value,
		Target:    target,
		Chips:     chips,
		Sort:      sortField,
		Direction: dir,
		Window:    &win,
	})
	if err != nil {
		return toolError("related", err), nil
	}
	return jsonResult(toAggregateOutput(target, res))
}

func (h *handlers) timeRanges(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tr, err := h.engine.TimeRanges(ctx)
	if err != nil {
		return toolError("time ranges", err), nil
	}
	return jsonResult(tr)
}

func (h *handlers) globalTotals(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, _ := req.GetArguments()["query"].(string)
	raw, err := search.ParseRaw(q, h.engine.Domain())
	if err != nil {
		return toolError("totals", err), nil
	}
	chips, err := filter.Normalize(raw, h.engine.Domain())
	if err != nil {
		return toolError("totals", err), nil
	}
	totals, err := h.engine.GlobalTotals(ctx, chips)
	if err != nil {
		return toolError("totals", err), nil
	}
	return jsonResult(totals)
}

func toAggregateOutput(d snapshot.Dimension, res *query.AggregateResult) aggregateOutput {
	rows := res.Rows
	if rows == nil {
		rows = []query.AggregateRow{}
	}
	return aggregateOutput{
		Dimension:    d,
		Rows:         rows,
		TotalCount:   res.TotalCount,
		GlobalTotals: res.GlobalTotals,
		Plan:         res.Plan,
	}
}

// toolError renders err as a tool error result. Validation errors name the
// offending argument; timeouts and inconsistencies get a fixed message.
func toolError(op string, err error) *mcp.CallToolResult {
	var verr *filter.ValidationError
	var terr *query.TimeoutError
	switch {
	case errors.As(err, &verr):
		return mcp.NewToolResultError(verr.Error())
	case errors.As(err, &terr), errors.Is(err, context.DeadlineExceeded):
		return mcp.NewToolResultError(op + " timed out; narrow the filter or time range")
	case query.IsInconsistency(err):
		return mcp.NewToolResultError(op + " failed: snapshot data is inconsistent")
	default:
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
	}
}

// limitArg extracts a non-negative integer limit from a map, with a default.
// JSON numbers arrive as float64. Clamps to maxLimit to prevent excessive
// result sets.
func limitArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok {
		return def
	}
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if math.IsInf(v, 1) || v > float64(maxLimit) {
		return maxLimit
	}
	return int(v)
}

// intArg extracts an integer argument without clamping. Negative values
// pass through so window validation can reject them.
func intArg(args map[string]any, key string, def int) int {
	v, ok := args[key].(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	if v < math.MinInt32 {
		return math.MinInt32
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
