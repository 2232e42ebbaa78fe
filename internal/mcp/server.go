// Package mcp exposes the contract query engine as Model Context Protocol
// tools served over stdio.
package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wesm/contractlens/internal/export"
	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/query"
)

// Tool name constants.
const (
	ToolSearchContracts = "search_contracts"
	ToolAggregate       = "aggregate_contracts"
	ToolEstimateExport  = "estimate_export"
	ToolFilterOptions   = "filter_options"
	ToolRelated         = "related_entities"
	ToolTimeRanges      = "time_ranges"
	ToolGlobalTotals    = "global_totals"
)

var dimensionNames = []string{"contractor", "organization", "area", "category"}

// Options tune the tools' paging and export estimates.
type Options struct {
	Limits filter.Limits
	Widths export.Widths
}

// Common argument helpers for recurring tool option definitions.

func withQuery(required bool) mcp.ToolOption {
	opts := []mcp.PropertyOption{
		mcp.Description("Filter in the search query language, e.g. 'contractor:\"ACME CORP\" area:cebu year:2020 min:1M road'. " +
			"Operators: contractor:, organization:, area:, category:, year:, quarter:, after:, before:, min:, max:, secondary:true; other words are keywords."),
	}
	if required {
		opts = append(opts, mcp.Required())
	}
	return mcp.WithString("query", opts...)
}

func withLimit(defaultDesc string) mcp.ToolOption {
	return mcp.WithNumber("limit",
		mcp.Description("Maximum results to return (default "+defaultDesc+")"),
	)
}

func withOffset() mcp.ToolOption {
	return mcp.WithNumber("offset",
		mcp.Description("Number of results to skip for pagination (default 0)"),
	)
}

func withSort() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("sort",
			mcp.Description("Sort field"),
			mcp.Enum("total_value", "count", "avg_value", "name", "award_date"),
		),
		mcp.WithString("direction",
			mcp.Description("Sort direction (default: descending, ascending for name)"),
			mcp.Enum("asc", "desc"),
		),
	}
}

func withDimension(name, desc string, required bool) mcp.ToolOption {
	opts := []mcp.PropertyOption{mcp.Description(desc), mcp.Enum(dimensionNames...)}
	if required {
		opts = append(opts, mcp.Required())
	}
	return mcp.WithString(name, opts...)
}

// NewServer creates an MCP server with the contract analysis tools.
func NewServer(engine query.Engine, opts Options) *server.MCPServer {
	s := server.NewMCPServer(
		"contractlens",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	h := newHandlers(engine, opts)

	s.AddTool(searchContractsTool(), h.searchContracts)
	s.AddTool(aggregateTool(), h.aggregate)
	s.AddTool(estimateExportTool(), h.estimateExport)
	s.AddTool(filterOptionsTool(), h.filterOptions)
	s.AddTool(relatedTool(), h.related)
	s.AddTool(timeRangesTool(), h.timeRanges)
	s.AddTool(globalTotalsTool(), h.globalTotals)
	return s
}

// Serve serves the tools over stdio. It blocks until stdin is closed or
// the context is cancelled.
func Serve(ctx context.Context, engine query.Engine, opts Options) error {
	stdio := server.NewStdioServer(NewServer(engine, opts))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func searchContractsTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Search individual contract awards. Returns matching contracts, newest first by default, and the total match count."),
		mcp.WithReadOnlyHintAnnotation(true),
		withQuery(false),
		withLimit("50"),
		withOffset(),
	}
	return mcp.NewTool(ToolSearchContracts, append(opts, withSort()...)...)
}

func aggregateTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Rank entities (e.g. top contractors or organizations) by total contract value, count or average, with the global totals for the same period."),
		mcp.WithReadOnlyHintAnnotation(true),
		withDimension("group_by", "Dimension to group by", true),
		withQuery(false),
		withLimit("50"),
		withOffset(),
	}
	return mcp.NewTool(ToolAggregate, append(opts, withSort()...)...)
}

func estimateExportTool() mcp.Tool {
	return mcp.NewTool(ToolEstimateExport,
		mcp.WithDescription("Estimate the row count and CSV size of an export without producing it."),
		mcp.WithReadOnlyHintAnnotation(true),
		withDimension("group_by", "Dimension to group by; omit to export raw contracts", false),
		withQuery(false),
	)
}

func filterOptionsTool() mcp.Tool {
	return mcp.NewTool(ToolFilterOptions,
		mcp.WithDescription("List entity names of a dimension, largest total value first, to use in filters."),
		mcp.WithReadOnlyHintAnnotation(true),
		withDimension("dimension", "Dimension to list", true),
		mcp.WithString("prefix",
			mcp.Description("Only names starting with this text (case-insensitive)"),
		),
		withLimit("50"),
	)
}

func relatedTool() mcp.Tool {
	return mcp.NewTool(ToolRelated,
		mcp.WithDescription("Drill down from one entity into another dimension, e.g. the areas a contractor worked in."),
		mcp.WithReadOnlyHintAnnotation(true),
		withDimension("source", "Dimension of the entity to drill into", true),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("Entity name (substring match)"),
		),
		withDimension("target", "Dimension to group the entity's contracts by", true),
		withQuery(false),
		withLimit("50"),
	)
}

func timeRangesTool() mcp.Tool {
	return mcp.NewTool(ToolTimeRanges,
		mcp.WithDescription("List the years and quarters covered by the data, with per-period contract counts and totals."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func globalTotalsTool() mcp.Tool {
	return mcp.NewTool(ToolGlobalTotals,
		mcp.WithDescription("Get the unfiltered contract count and total value for the time range in the query (all time when omitted)."),
		mcp.WithReadOnlyHintAnnotation(true),
		withQuery(false),
	)
}
