package query

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/snapshot"
	"github.com/wesm/contractlens/internal/testutil"
	"github.com/wesm/contractlens/internal/testutil/ptr"
	"github.com/wesm/contractlens/internal/testutil/snapshottest"
)

func TestNewPlan(t *testing.T) {
	snap := snapshottest.Build(t, testutil.AcmeContracts()).Current()
	domain := snap.Domain()

	tests := []struct {
		name        string
		raw         filter.Raw
		dim         snapshot.Dimension
		wantKind    PlanKind
		wantReason  string
		wantBuckets []string
		wantScan    []string
	}{
		{
			name:        "empty filter reads all-time rollup",
			dim:         snapshot.Contractor,
			wantKind:    SingleBucket,
			wantBuckets: []string{"all"},
		},
		{
			name:       "raw records scan",
			wantKind:   FactScan,
			wantReason: ReasonRaw,
			wantScan:   []string{"all"},
		},
		{
			name:        "chip on target dimension uses rollup",
			raw:         filter.Raw{EntityFilters: map[string][]string{"contractor": {"acme"}}},
			dim:         snapshot.Contractor,
			wantKind:    SingleBucket,
			wantBuckets: []string{"all"},
		},
		{
			name:       "chip on other dimension scans",
			raw:        filter.Raw{EntityFilters: map[string][]string{"contractor": {"acme"}}},
			dim:        snapshot.Area,
			wantKind:   FactScan,
			wantReason: ReasonCrossDimension,
			wantScan:   []string{"all"},
		},
		{
			name:       "keywords scan even on a whole year",
			raw:        filter.Raw{Keywords: []string{"road"}, TimeRanges: [][]string{year("2020")}},
			dim:        snapshot.Contractor,
			wantKind:   FactScan,
			wantReason: ReasonKeywords,
			wantScan:   []string{"2020"},
		},
		{
			name:       "value range scans",
			raw:        filter.Raw{ValueRange: &filter.RawValueRange{Min: ptr.To(decimal.NewFromInt(100))}},
			dim:        snapshot.Contractor,
			wantKind:   FactScan,
			wantReason: ReasonValueRange,
			wantScan:   []string{"all"},
		},
		{
			name:        "whole year reads year rollup",
			raw:         filter.Raw{TimeRanges: [][]string{year("2020")}},
			dim:         snapshot.Contractor,
			wantKind:    SingleBucket,
			wantBuckets: []string{"2020"},
		},
		{
			name:        "every year collapses to all-time",
			raw:         filter.Raw{TimeRanges: [][]string{year("2020"), year("2021")}},
			dim:         snapshot.Organization,
			wantKind:    SingleBucket,
			wantBuckets: []string{"all"},
		},
		{
			name:        "half year merges quarters",
			raw:         filter.Raw{TimeRanges: [][]string{{"2020-01-01", "2020-06-30"}}},
			dim:         snapshot.Contractor,
			wantKind:    MultiBucketMerge,
			wantBuckets: []string{"2020-q1", "2020-q2"},
		},
		{
			name:        "quarter aligned range across years",
			raw:         filter.Raw{TimeRanges: [][]string{{"2020-10-01", "2021-03-31"}}},
			dim:         snapshot.Category,
			wantKind:    MultiBucketMerge,
			wantBuckets: []string{"2020-q4", "2021-q1"},
		},
		{
			name:       "unaligned range scans year facts",
			raw:        filter.Raw{TimeRanges: [][]string{{"2020-03-01", "2020-03-31"}}},
			dim:        snapshot.Contractor,
			wantKind:   FactScan,
			wantReason: ReasonUnaligned,
			wantScan:   []string{"2020"},
		},
		{
			name:       "unaligned range across years",
			raw:        filter.Raw{TimeRanges: [][]string{{"2020-12-15", "2021-01-15"}}},
			dim:        snapshot.Contractor,
			wantKind:   FactScan,
			wantReason: ReasonUnaligned,
			wantScan:   []string{"2020", "2021"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlan(snap, chipsFor(t, domain, tt.raw), tt.dim)
			if p.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", p.Kind, tt.wantKind)
			}
			if p.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", p.Reason, tt.wantReason)
			}
			if diff := cmp.Diff(tt.wantBuckets, bucketKeys(p.Buckets), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Buckets mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantScan, bucketKeys(p.ScanBuckets), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("ScanBuckets mismatch (-want +got):\n%s", diff)
			}
			if p.Degraded() {
				t.Errorf("plan unexpectedly degraded: missing %v", bucketKeys(p.Missing))
			}
		})
	}
}

func TestNewPlan_MissingRollupsUseFinerBuckets(t *testing.T) {
	tests := []struct {
		name  string
		drop  []string
		raw   filter.Raw
		want  PlanKind
		wantB []string
	}{
		{
			name:  "year falls back to quarters",
			drop:  []string{"2020"},
			raw:   filter.Raw{TimeRanges: [][]string{year("2020")}},
			want:  MultiBucketMerge,
			wantB: []string{"2020-q1", "2020-q2", "2020-q3", "2020-q4"},
		},
		{
			name:  "all-time falls back to years",
			drop:  []string{"all"},
			raw:   filter.Raw{},
			want:  MultiBucketMerge,
			wantB: []string{"2020", "2021"},
		},
		{
			name:  "all-time and a year fall back to mixed buckets",
			drop:  []string{"all", "2021"},
			raw:   filter.Raw{},
			want:  MultiBucketMerge,
			wantB: []string{"2020", "2021-q1", "2021-q2", "2021-q3", "2021-q4"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshottest.Build(t, testutil.AcmeContracts(), snapshottest.WithoutBuckets(tt.drop...)).Current()
			chips := chipsFor(t, snap.Domain(), tt.raw)

			p := NewPlan(snap, chips, snapshot.Contractor)
			if p.Kind != tt.want {
				t.Fatalf("Kind = %s (reason %q), want %s", p.Kind, p.Reason, tt.want)
			}
			if p.Degraded() {
				t.Errorf("plan degraded: missing %v", bucketKeys(p.Missing))
			}
			testutil.AssertStrings(t, bucketKeys(p.Buckets), tt.wantB...)
		})
	}
}

func TestNewPlan_MissingBucketsDegrade(t *testing.T) {
	// Dropping one quarter leaves the year unrecoverable from finer buckets.
	snap := snapshottest.Build(t, testutil.AcmeContracts(), snapshottest.WithoutBuckets("2020", "2020-q3")).Current()
	chips := chipsFor(t, snap.Domain(), filter.Raw{TimeRanges: [][]string{year("2020")}})

	p := NewPlan(snap, chips, snapshot.Contractor)
	if p.Kind != FactScan || p.Reason != ReasonMissingBuckets {
		t.Fatalf("plan = %s/%q, want fact_scan/%q", p.Kind, p.Reason, ReasonMissingBuckets)
	}
	if !p.Degraded() {
		t.Error("Degraded() = false, want true")
	}
	testutil.AssertStrings(t, bucketKeys(p.Missing), "2020")
	// The year's fact table is gone from the manifest too.
	testutil.AssertStrings(t, bucketKeys(p.ScanBuckets), "all")
}

func TestNewPlan_SecondaryFlags(t *testing.T) {
	snap := snapshottest.Build(t, testutil.AcmeContracts()).Current()
	chips := chipsFor(t, snap.Domain(), filter.Raw{IncludeSecondary: true})

	p := NewPlan(snap, chips, snapshot.Contractor)
	if p.Secondary {
		t.Error("Secondary = true for a snapshot without a secondary dataset")
	}
	if !p.SecondaryMissing {
		t.Error("SecondaryMissing = false, want true")
	}
	if p.Kind != SingleBucket {
		t.Errorf("Kind = %s, want single_bucket", p.Kind)
	}
}

func TestCoverBuckets_ZeroRanges(t *testing.T) {
	buckets, ok := coverBuckets(snapshot.Domain{}, nil)
	if !ok {
		t.Fatal("coverBuckets(nil) not aligned")
	}
	testutil.AssertStrings(t, bucketKeys(buckets), "all")
}

func TestDegradedPlanWarning_String(t *testing.T) {
	w := DegradedPlanWarning{
		Dimension: snapshot.Area,
		Missing:   []snapshot.Bucket{snapshot.YearBucket(2020), snapshot.QuarterBucket(2021, 3)},
	}
	want := "missing area rollups for buckets [2020 2021-q3]; scanning facts"
	if got := w.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
