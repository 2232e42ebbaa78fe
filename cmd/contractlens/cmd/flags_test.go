package cmd

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/snapshot"
)

func TestParseRankRange(t *testing.T) {
	tests := []struct {
		in      string
		want    *filter.RankRange
		wantErr bool
	}{
		{in: "101-600", want: &filter.RankRange{From: 101, To: 600}},
		{in: " 1 - 10 ", want: &filter.RankRange{From: 1, To: 10}},
		{in: "5", want: &filter.RankRange{From: 5, To: 5}},
		{in: "a-10", wantErr: true},
		{in: "1-b", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseRankRange(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseRankRange(%q) = %+v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRankRange(%q): %v", tt.in, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestQueryFlags_Params(t *testing.T) {
	domain := snapshot.Domain{
		Min: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Max: time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	f := queryFlags{limit: 10, sort: "count", rank: "11-20", secondary: true}

	p, err := f.params([]string{"contractor:acme", "year:2020"}, "area", domain)
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if p.Dimension != "area" || p.Sort != "count" || p.Limit != 10 {
		t.Errorf("params = %+v", p)
	}
	if !p.IncludeSecondary {
		t.Error("--secondary not applied")
	}
	if diff := cmp.Diff(&filter.RankRange{From: 11, To: 20}, p.RankRange); diff != "" {
		t.Errorf("rank range mismatch (-want +got):\n%s", diff)
	}
	if len(p.EntityFilters["contractor"]) != 1 || len(p.TimeRanges) != 1 {
		t.Errorf("filters not parsed: %+v", p.Raw)
	}

	if _, err := f.params([]string{"min:lots"}, "", domain); err == nil {
		t.Error("expected error for bad query")
	}
}

func TestDimensionArg(t *testing.T) {
	if d, err := dimensionArg("awardee"); err != nil || d != snapshot.Contractor {
		t.Errorf("dimensionArg(awardee) = %q, %v", d, err)
	}
	if _, err := dimensionArg("planet"); err == nil {
		t.Error("expected error for unknown dimension")
	}
}
