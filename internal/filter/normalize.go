package filter

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/snapshot"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// termSeparator splits one chip or keyword entry into AND'd terms.
const termSeparator = "&&"

// Normalize validates raw against the snapshot domain and returns the
// canonical chip set. A zero domain skips the time-range bounds check.
// Errors are *ValidationError naming the offending field.
func Normalize(raw Raw, domain snapshot.Domain) (*ChipSet, error) {
	if err := validateStruct(&raw); err != nil {
		return nil, err
	}

	// Caser is stateful; one per call.
	fold := cases.Fold()

	cs := Empty()
	cs.IncludeSecondary = raw.IncludeSecondary

	entities, err := normalizeEntities(raw.EntityFilters, fold)
	if err != nil {
		return nil, err
	}
	cs.Entities = entities

	cs.Keywords = normalizeKeywords(raw.Keywords, fold)

	if raw.ValueRange != nil {
		vr, err := normalizeValueRange(*raw.ValueRange)
		if err != nil {
			return nil, err
		}
		cs.Value = vr
	}

	ranges, err := normalizeTimeRanges(raw.TimeRanges, domain)
	if err != nil {
		return nil, err
	}
	cs.TimeRanges = ranges

	return cs, nil
}

func cleanText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// splitTerms splits an entry on "&&" and drops empty terms.
func splitTerms(s string) []string {
	var terms []string
	for _, part := range strings.Split(s, termSeparator) {
		if t := cleanText(part); t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

func normalizeEntities(in map[string][]string, fold cases.Caser) (map[snapshot.Dimension][]Chip, error) {
	out := make(map[snapshot.Dimension][]Chip)
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		dim, err := snapshot.ParseDimension(key)
		if err != nil {
			return nil, &ValidationError{
				Field:  "entity_filters." + key,
				Value:  key,
				Reason: "unknown dimension",
			}
		}
		seen := make(map[string]bool)
		for _, ch := range out[dim] {
			seen[fold.String(ch.String())] = true
		}
		for _, name := range in[key] {
			terms := splitTerms(name)
			if len(terms) == 0 {
				continue
			}
			chip := Chip{Terms: terms}
			k := fold.String(chip.String())
			if seen[k] {
				continue
			}
			seen[k] = true
			out[dim] = append(out[dim], chip)
		}
	}
	for d, chips := range out {
		if len(chips) == 0 {
			delete(out, d)
		}
	}
	return out, nil
}

// normalizeKeywords trims and splits keywords and drops case-insensitive
// duplicates, keeping first-seen order.
func normalizeKeywords(in []string, fold cases.Caser) []string {
	var out []string
	seen := make(map[string]bool)
	for _, kw := range in {
		for _, term := range splitTerms(kw) {
			k := fold.String(term)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, term)
		}
	}
	return out
}

func normalizeValueRange(raw RawValueRange) (ValueRange, error) {
	if raw.Min == nil && raw.Max == nil {
		return ValueRange{Min: decimal.Zero, Max: MaxValue}, nil
	}
	vr := ValueRange{Min: decimal.Zero, Max: MaxValue, Set: true}
	if raw.Min != nil {
		if raw.Min.IsNegative() {
			return vr, &ValidationError{Field: "value_range.min", Value: raw.Min.String(), Reason: "must not be negative"}
		}
		vr.Min = raw.Min.Round(2)
	}
	if raw.Max != nil {
		if raw.Max.IsNegative() {
			return vr, &ValidationError{Field: "value_range.max", Value: raw.Max.String(), Reason: "must not be negative"}
		}
		vr.Max = decimal.Min(raw.Max.Round(2), MaxValue)
	}
	if vr.Min.GreaterThan(vr.Max) {
		return vr, &ValidationError{
			Field:  "value_range",
			Value:  vr.Min.String() + ".." + vr.Max.String(),
			Reason: "min is greater than max",
		}
	}
	return vr, nil
}

// normalizeTimeRanges parses, bounds-checks and merges the intervals.
// Overlapping and adjacent intervals are coalesced so the result is
// sorted and pairwise disjoint.
func normalizeTimeRanges(in [][]string, domain snapshot.Domain) ([]TimeRange, error) {
	if len(in) == 0 {
		return nil, nil
	}
	ranges := make([]TimeRange, 0, len(in))
	for i, pair := range in {
		field := fmt.Sprintf("time_ranges[%d]", i)
		value := strings.Join(pair, "..")
		start, err := parseDate(pair[0])
		if err != nil {
			return nil, &ValidationError{Field: field, Value: value, Reason: "start is not a YYYY-MM-DD date"}
		}
		end, err := parseDate(pair[1])
		if err != nil {
			return nil, &ValidationError{Field: field, Value: value, Reason: "end is not a YYYY-MM-DD date"}
		}
		if end.Before(start) {
			return nil, &ValidationError{Field: field, Value: value, Reason: "start is after end"}
		}
		if !domain.Min.IsZero() && (!domain.Contains(start) || !domain.Contains(end)) {
			reason := fmt.Sprintf("outside available data %s..%s",
				domain.Min.Format(snapshot.DateLayout), domain.Max.Format(snapshot.DateLayout))
			return nil, &ValidationError{Field: field, Value: value, Reason: reason}
		}
		ranges = append(ranges, TimeRange{Start: start, End: end})
	}
	return MergeRanges(ranges), nil
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(snapshot.DateLayout, strings.TrimSpace(s))
}

// MergeRanges sorts ranges and coalesces those that overlap or touch.
func MergeRanges(ranges []TimeRange) []TimeRange {
	if len(ranges) == 0 {
		return nil
	}
	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, func(a, b TimeRange) int {
		return a.Start.Compare(b.Start)
	})
	out := []TimeRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if !r.Start.After(last.End.AddDate(0, 0, 1)) {
			if r.End.After(last.End) {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
