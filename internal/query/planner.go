package query

import (
	"time"

	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/snapshot"
)

// PlanKind is the execution strategy chosen for a request.
type PlanKind int

const (
	// SingleBucket reads one rollup bucket.
	SingleBucket PlanKind = iota
	// MultiBucketMerge reads and merges several rollup buckets of one
	// granularity.
	MultiBucketMerge
	// FactScan groups fact rows directly.
	FactScan
)

// MarshalText renders the kind by name.
func (k PlanKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k PlanKind) String() string {
	switch k {
	case SingleBucket:
		return "single_bucket"
	case MultiBucketMerge:
		return "multi_bucket_merge"
	case FactScan:
		return "fact_scan"
	default:
		return "unknown"
	}
}

// Scan reasons recorded on fact-scan plans.
const (
	ReasonRaw            = "raw_records"
	ReasonKeywords       = "keywords"
	ReasonValueRange     = "value_range"
	ReasonCrossDimension = "cross_dimension_entities"
	ReasonUnaligned      = "unaligned_time_range"
	ReasonMissingBuckets = "missing_buckets"
)

// Plan is the planner's decision for one request.
type Plan struct {
	Kind      PlanKind           `json:"kind"`
	Dimension snapshot.Dimension `json:"dimension,omitempty"`

	// Buckets are the rollup buckets to merge, in time order. Empty for
	// fact scans.
	Buckets []snapshot.Bucket `json:"buckets,omitempty"`

	// ScanBuckets name the fact tables a scan reads: the all-time table or
	// a set of year tables.
	ScanBuckets []snapshot.Bucket `json:"scan_buckets,omitempty"`

	// Secondary adds the secondary dataset to the result. SecondaryMissing
	// is set when the request asked for it but the snapshot has none.
	Secondary        bool `json:"secondary,omitempty"`
	SecondaryMissing bool `json:"secondary_missing,omitempty"`

	// Reason says why a scan was chosen.
	Reason string `json:"reason,omitempty"`

	// Missing lists the rollup buckets whose absence forced a scan.
	Missing []snapshot.Bucket `json:"missing_buckets,omitempty"`
}

// Degraded reports whether a rollup plan fell back to scanning.
func (p *Plan) Degraded() bool { return len(p.Missing) > 0 }

// NewPlan chooses the cheapest correct plan for grouping by dim under
// chips. An empty dim plans a raw fact scan. Rollups carry no per-keyword
// breakdown, store only summed values, and are keyed by a single
// dimension, so keywords, a value range and chips on another dimension
// all require a scan. A time constraint that does not tile whole buckets
// does too. A missing rollup falls back to finer buckets before a scan.
func NewPlan(snap *snapshot.Snapshot, chips *filter.ChipSet, dim snapshot.Dimension) *Plan {
	if chips == nil {
		chips = filter.Empty()
	}
	p := &Plan{Dimension: dim}
	if chips.IncludeSecondary {
		if _, ok := snap.SecondaryFactsPath(); ok {
			p.Secondary = true
		} else {
			p.SecondaryMissing = true
		}
	}

	switch {
	case dim == "":
		p.Reason = ReasonRaw
	case len(chips.Keywords) > 0:
		p.Reason = ReasonKeywords
	case chips.Value.Set:
		p.Reason = ReasonValueRange
	case hasForeignChips(chips, dim):
		p.Reason = ReasonCrossDimension
	}

	if p.Reason == "" {
		cover, aligned := coverBuckets(snap.Domain(), chips.TimeRanges)
		if !aligned {
			p.Reason = ReasonUnaligned
		} else {
			buckets, missing := rollupCover(snap, cover, dim)
			p.Missing = missing
			if len(p.Missing) == 0 {
				p.Buckets = buckets
				p.Kind = MultiBucketMerge
				if len(buckets) == 1 {
					p.Kind = SingleBucket
				}
				return p
			}
			p.Reason = ReasonMissingBuckets
		}
	}

	p.Kind = FactScan
	p.ScanBuckets = scanBuckets(snap, chips.TimeRanges)
	return p
}

func hasForeignChips(chips *filter.ChipSet, dim snapshot.Dimension) bool {
	for _, d := range chips.EntityDimensions() {
		if d != dim {
			return true
		}
	}
	return false
}

// coverBuckets expresses ranges as whole buckets of the coarsest single
// granularity that tiles them exactly. It reports false when no
// granularity does. No ranges, or ranges covering every year of the
// domain, yield the all-time bucket.
func coverBuckets(domain snapshot.Domain, ranges []filter.TimeRange) ([]snapshot.Bucket, bool) {
	if len(ranges) == 0 {
		return []snapshot.Bucket{snapshot.AllTimeBucket()}, true
	}
	if len(ranges) == 1 && ranges[0].Start.Equal(domain.Min) && ranges[0].End.Equal(domain.Max) {
		return []snapshot.Bucket{snapshot.AllTimeBucket()}, true
	}

	if years, ok := yearCover(ranges); ok {
		if coversDomain(domain, years) {
			return []snapshot.Bucket{snapshot.AllTimeBucket()}, true
		}
		return years, true
	}
	if quarters, ok := quarterCover(ranges); ok {
		return quarters, true
	}
	return nil, false
}

// rollupCover resolves cover to buckets that have a dim rollup. A bucket
// without one is replaced by its children, all-time by the domain's years
// and a year by its quarters, as long as every child resolves. missing
// lists the cover buckets that could not be resolved.
func rollupCover(snap *snapshot.Snapshot, cover []snapshot.Bucket, dim snapshot.Dimension) (buckets, missing []snapshot.Bucket) {
	for _, b := range cover {
		parts, ok := resolveRollup(snap, b, dim)
		if !ok {
			missing = append(missing, b)
			continue
		}
		buckets = append(buckets, parts...)
	}
	return buckets, missing
}

func resolveRollup(snap *snapshot.Snapshot, b snapshot.Bucket, dim snapshot.Dimension) ([]snapshot.Bucket, bool) {
	if snap.HasRollup(b, dim) {
		return []snapshot.Bucket{b}, true
	}
	var children []snapshot.Bucket
	switch b.Granularity {
	case snapshot.AllTime:
		for _, y := range snap.Domain().Years() {
			children = append(children, snapshot.YearBucket(y))
		}
	case snapshot.Yearly:
		for q := 1; q <= 4; q++ {
			children = append(children, snapshot.QuarterBucket(b.Year, q))
		}
	}
	if len(children) == 0 {
		return nil, false
	}
	var out []snapshot.Bucket
	for _, c := range children {
		parts, ok := resolveRollup(snap, c, dim)
		if !ok {
			return nil, false
		}
		out = append(out, parts...)
	}
	return out, true
}

func yearCover(ranges []filter.TimeRange) ([]snapshot.Bucket, bool) {
	var out []snapshot.Bucket
	for _, r := range ranges {
		if !isYearStart(r.Start) || !isYearEnd(r.End) {
			return nil, false
		}
		for y := r.Start.Year(); y <= r.End.Year(); y++ {
			out = append(out, snapshot.YearBucket(y))
		}
	}
	return out, true
}

func quarterCover(ranges []filter.TimeRange) ([]snapshot.Bucket, bool) {
	var out []snapshot.Bucket
	for _, r := range ranges {
		if !isQuarterStart(r.Start) || !isQuarterEnd(r.End) {
			return nil, false
		}
		for d := r.Start; !d.After(r.End); d = d.AddDate(0, 3, 0) {
			out = append(out, snapshot.QuarterBucket(d.Year(), quarterOf(d)))
		}
	}
	return out, true
}

func coversDomain(domain snapshot.Domain, years []snapshot.Bucket) bool {
	all := domain.Years()
	if len(all) == 0 || len(years) != len(all) {
		return false
	}
	for i, y := range all {
		if years[i].Year != y {
			return false
		}
	}
	return true
}

func quarterOf(d time.Time) int { return (int(d.Month())-1)/3 + 1 }

func isYearStart(d time.Time) bool { return d.Month() == time.January && d.Day() == 1 }

func isYearEnd(d time.Time) bool { return d.Month() == time.December && d.Day() == 31 }

func isQuarterStart(d time.Time) bool { return d.Day() == 1 && (int(d.Month())-1)%3 == 0 }

func isQuarterEnd(d time.Time) bool {
	return int(d.Month())%3 == 0 && d.AddDate(0, 0, 1).Day() == 1
}

// scanBuckets picks the fact tables covering ranges: the year tables when
// every overlapping year has one, the all-time table otherwise.
func scanBuckets(snap *snapshot.Snapshot, ranges []filter.TimeRange) []snapshot.Bucket {
	allTime := []snapshot.Bucket{snapshot.AllTimeBucket()}
	if len(ranges) == 0 {
		return allTime
	}
	seen := make(map[int]bool)
	var years []snapshot.Bucket
	for _, r := range ranges {
		for y := r.Start.Year(); y <= r.End.Year(); y++ {
			if seen[y] {
				continue
			}
			seen[y] = true
			b := snapshot.YearBucket(y)
			if !snap.HasFacts(b) {
				return allTime
			}
			years = append(years, b)
		}
	}
	return years
}
