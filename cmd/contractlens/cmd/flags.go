package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/search"
	"github.com/wesm/contractlens/internal/snapshot"
)

// queryFlags are the paging, sorting and output flags shared by the query
// commands.
type queryFlags struct {
	limit     int
	offset    int
	rank      string
	sort      string
	direction string
	secondary bool
	json      bool
}

func (f *queryFlags) register(cmd *cobra.Command, paged, jsonOutput bool) {
	if paged {
		cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "Maximum number of results (default from config)")
		cmd.Flags().IntVar(&f.offset, "offset", 0, "Number of results to skip")
	}
	cmd.Flags().StringVar(&f.sort, "sort", "", "Sort field: total_value, count, avg_value, name, award_date")
	cmd.Flags().StringVar(&f.direction, "direction", "", "Sort direction: asc or desc")
	cmd.Flags().StringVar(&f.rank, "rank", "", "Inclusive 1-based rank range, e.g. 101-600")
	cmd.Flags().BoolVar(&f.secondary, "secondary", false, "Include the secondary dataset")
	if jsonOutput {
		cmd.Flags().BoolVar(&f.json, "json", false, "Output as JSON")
	}
}

// params combines the query-language args with the flags.
func (f *queryFlags) params(args []string, dimension string, domain snapshot.Domain) (query.Params, error) {
	raw, err := search.ParseRaw(strings.Join(args, " "), domain)
	if err != nil {
		return query.Params{}, err
	}
	if f.secondary {
		raw.IncludeSecondary = true
	}
	p := query.Params{
		Raw:       raw,
		Dimension: dimension,
		Sort:      f.sort,
		Direction: f.direction,
		RawWindow: filter.RawWindow{Offset: f.offset, Limit: f.limit},
	}
	if f.rank != "" {
		rr, err := parseRankRange(f.rank)
		if err != nil {
			return query.Params{}, err
		}
		p.RankRange = rr
	}
	return p, nil
}

// parseRankRange parses "FROM-TO" or a single rank "N".
func parseRankRange(s string) (*filter.RankRange, error) {
	from, to, found := strings.Cut(strings.TrimSpace(s), "-")
	lo, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return nil, fmt.Errorf("invalid rank range %q: want FROM-TO", s)
	}
	hi := lo
	if found {
		if hi, err = strconv.Atoi(strings.TrimSpace(to)); err != nil {
			return nil, fmt.Errorf("invalid rank range %q: want FROM-TO", s)
		}
	}
	return &filter.RankRange{From: lo, To: hi}, nil
}

// dimensionArg parses the leading dimension argument of the grouping
// commands.
func dimensionArg(s string) (snapshot.Dimension, error) {
	d, err := snapshot.ParseDimension(s)
	if err != nil {
		return "", fmt.Errorf("%w (want one of %s)", err, dimensionNames())
	}
	return d, nil
}

func dimensionNames() string {
	names := make([]string, len(snapshot.Dimensions))
	for i, d := range snapshot.Dimensions {
		names[i] = string(d)
	}
	return strings.Join(names, ", ")
}
