package query

import (
	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/snapshot"
)

// Params is a client request before validation: the canonical filter
// payload plus grouping, sort and window. It is the JSON body of the HTTP
// API and the common target of the CLI and MCP front ends.
type Params struct {
	filter.Raw
	Dimension string `json:"dimension,omitempty"`
	Sort      string `json:"sort,omitempty"`
	Direction string `json:"direction,omitempty"`
	filter.RawWindow
}

// Request validates p against domain and builds an engine request. Paged
// requests always carry a window. Export requests are unbounded: they get
// a window only when one was asked for, and it is not clamped to the
// maximum page size.
func (p Params) Request(domain snapshot.Domain, limits filter.Limits, export bool) (Request, error) {
	chips, err := filter.Normalize(p.Raw, domain)
	if err != nil {
		return Request{}, err
	}
	req := Request{Chips: chips}

	if p.Dimension != "" {
		d, err := snapshot.ParseDimension(p.Dimension)
		if err != nil {
			return Request{}, &filter.ValidationError{Field: "dimension", Value: p.Dimension, Reason: "unknown dimension"}
		}
		req.Dimension = d
	}

	req.Sort, req.Direction, err = ParseSort(p.Sort, p.Direction)
	if err != nil {
		return Request{}, err
	}

	if export && p.RankRange == nil && p.Limit <= 0 && p.Offset == 0 {
		return req, nil
	}
	w, err := filter.NormalizeWindow(p.RawWindow, limits, export)
	if err != nil {
		return Request{}, err
	}
	req.Window = &w
	return req, nil
}
