package filter

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/snapshot"
	"github.com/wesm/contractlens/internal/testutil"
	"github.com/wesm/contractlens/internal/testutil/ptr"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(snapshot.DateLayout, s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return d
}

func testDomain(t *testing.T) snapshot.Domain {
	return snapshot.Domain{Min: day(t, "2019-01-01"), Max: day(t, "2021-12-31")}
}

func requireValidationError(t *testing.T, err error, field string) *ValidationError {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError for %s, got %v", field, err)
	}
	if ve.Field != field {
		t.Errorf("ValidationError.Field = %q, want %q (%v)", ve.Field, field, ve)
	}
	return ve
}

func TestNormalize_Empty(t *testing.T) {
	cs, err := Normalize(Raw{}, testDomain(t))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(cs.Entities) != 0 || len(cs.Keywords) != 0 || len(cs.TimeRanges) != 0 {
		t.Errorf("empty raw produced constraints: %+v", cs)
	}
	if cs.Value.Set {
		t.Error("value range should not be set")
	}
	if !cs.Value.Min.IsZero() || !cs.Value.Max.Equal(MaxValue) {
		t.Errorf("default value range = %s..%s, want 0..MAX", cs.Value.Min, cs.Value.Max)
	}
}

func TestNormalize_Entities(t *testing.T) {
	raw := Raw{EntityFilters: map[string][]string{
		"contractor": {"  ACME CORP ", "acme corp", "", "   ", "Road && Bridge"},
		"awardee":    {"Beta Supplies", "ACME Corp"},
		"area":       {""},
	}}
	cs, err := Normalize(raw, testDomain(t))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	// "awardee" sorts before "contractor", so its chips come first.
	want := map[snapshot.Dimension][]Chip{
		snapshot.Contractor: {
			{Terms: []string{"Beta Supplies"}},
			{Terms: []string{"ACME Corp"}},
			{Terms: []string{"Road", "Bridge"}},
		},
	}
	if diff := cmp.Diff(want, cs.Entities); diff != "" {
		t.Errorf("entities mismatch (-want +got):\n%s", diff)
	}
	if cs.HasEntities(snapshot.Area) {
		t.Error("blank area chip should be dropped, not match nothing")
	}
}

func TestNormalize_UnknownDimension(t *testing.T) {
	_, err := Normalize(Raw{EntityFilters: map[string][]string{"supplier": {"x"}}}, testDomain(t))
	ve := requireValidationError(t, err, "entity_filters.supplier")
	if ve.Value != "supplier" {
		t.Errorf("Value = %q, want supplier", ve.Value)
	}
}

func TestNormalize_Keywords(t *testing.T) {
	cs, err := Normalize(Raw{Keywords: []string{" road ", "ROAD", "bridge && canal", ""}}, testDomain(t))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	testutil.AssertStrings(t, cs.Keywords, "road", "bridge", "canal")
}

func TestNormalize_KeywordNFC(t *testing.T) {
	// "e" + combining acute accent composes to U+00E9.
	cs, err := Normalize(Raw{Keywords: []string{"cafe\u0301", "caf\u00e9"}}, testDomain(t))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	testutil.AssertStrings(t, cs.Keywords, "caf\u00e9")
}

func TestNormalize_ValueRange(t *testing.T) {
	dec := func(s string) *decimal.Decimal { return ptr.To(decimal.RequireFromString(s)) }

	t.Run("both bounds", func(t *testing.T) {
		cs, err := Normalize(Raw{ValueRange: &RawValueRange{Min: dec("100"), Max: dec("500.555")}}, testDomain(t))
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if !cs.Value.Set {
			t.Fatal("value range not set")
		}
		if !cs.Value.Min.Equal(decimal.NewFromInt(100)) || cs.Value.Max.String() != "500.56" {
			t.Errorf("range = %s..%s, want 100..500.56", cs.Value.Min, cs.Value.Max)
		}
	})
	t.Run("min only", func(t *testing.T) {
		cs, err := Normalize(Raw{ValueRange: &RawValueRange{Min: dec("10")}}, testDomain(t))
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if !cs.Value.Set || !cs.Value.Max.Equal(MaxValue) {
			t.Errorf("range = %+v, want set with MAX upper bound", cs.Value)
		}
	})
	t.Run("empty object", func(t *testing.T) {
		cs, err := Normalize(Raw{ValueRange: &RawValueRange{}}, testDomain(t))
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if cs.Value.Set {
			t.Error("empty value_range should leave the range unset")
		}
	})
	t.Run("inverted", func(t *testing.T) {
		_, err := Normalize(Raw{ValueRange: &RawValueRange{Min: dec("500"), Max: dec("100")}}, testDomain(t))
		requireValidationError(t, err, "value_range")
	})
	t.Run("negative", func(t *testing.T) {
		_, err := Normalize(Raw{ValueRange: &RawValueRange{Min: dec("-1")}}, testDomain(t))
		requireValidationError(t, err, "value_range.min")
	})
}

func TestNormalize_TimeRanges(t *testing.T) {
	raw := Raw{TimeRanges: [][]string{
		{"2021-01-01", "2021-03-31"},
		{"2020-01-01", "2020-06-30"},
		{"2020-07-01", "2020-12-31"},
		{"2020-03-01", "2020-04-30"},
	}}
	cs, err := Normalize(raw, testDomain(t))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	var got []string
	for _, r := range cs.TimeRanges {
		got = append(got, r.String())
	}
	testutil.AssertStrings(t, got, "2020-01-01..2020-12-31", "2021-01-01..2021-03-31")
}

func TestNormalize_TimeRangeErrors(t *testing.T) {
	tests := []struct {
		name   string
		ranges [][]string
		field  string
	}{
		{"inverted", [][]string{{"2020-12-31", "2020-01-01"}}, "time_ranges[0]"},
		{"bad date", [][]string{{"2020-01-01", "2020-01-01"}, {"2020-13-01", "2020-12-31"}}, "time_ranges[1]"},
		{"before domain", [][]string{{"2018-01-01", "2019-12-31"}}, "time_ranges[0]"},
		{"after domain", [][]string{{"2021-01-01", "2022-01-01"}}, "time_ranges[0]"},
		{"overruns both ends", [][]string{{"2020-01-01", "2020-06-30"}, {"2018-06-01", "2022-06-01"}}, "time_ranges[1]"},
		{"wrong arity", [][]string{{"2020-01-01"}}, "time_ranges[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(Raw{TimeRanges: tt.ranges}, testDomain(t))
			requireValidationError(t, err, tt.field)
		})
	}
}

func TestNormalize_ZeroDomainSkipsBounds(t *testing.T) {
	cs, err := Normalize(Raw{TimeRanges: [][]string{{"1990-01-01", "1990-12-31"}}}, snapshot.Domain{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(cs.TimeRanges) != 1 {
		t.Errorf("got %d ranges, want 1", len(cs.TimeRanges))
	}
}

func TestNormalize_TagLimits(t *testing.T) {
	many := make([]string, 51)
	for i := range many {
		many[i] = "kw"
	}
	_, err := Normalize(Raw{Keywords: many}, testDomain(t))
	requireValidationError(t, err, "keywords")
}

func TestChipSet_RawRoundTrip(t *testing.T) {
	raw := Raw{
		EntityFilters:    map[string][]string{"contractor": {"ACME CORP", "a && b"}, "area": {"Cebu"}},
		Keywords:         []string{"road"},
		ValueRange:       &RawValueRange{Min: ptr.To(decimal.NewFromInt(1)), Max: ptr.To(decimal.NewFromInt(9))},
		TimeRanges:       [][]string{{"2020-01-01", "2020-12-31"}},
		IncludeSecondary: true,
	}
	cs, err := Normalize(raw, testDomain(t))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	again, err := Normalize(cs.Raw(), testDomain(t))
	if err != nil {
		t.Fatalf("Normalize(Raw()): %v", err)
	}
	opts := cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })
	if diff := cmp.Diff(cs, again, opts); diff != "" {
		t.Errorf("round trip mismatch (-first +second):\n%s", diff)
	}
}

func TestChipSet_WithEntityAndTimeOnly(t *testing.T) {
	cs, err := Normalize(Raw{
		EntityFilters: map[string][]string{"contractor": {"ACME"}},
		Keywords:      []string{"road"},
		TimeRanges:    [][]string{{"2020-01-01", "2020-12-31"}},
	}, testDomain(t))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	drill := cs.WithEntity(snapshot.Area, "Cebu")
	if !drill.HasEntities(snapshot.Area) || !drill.HasEntities(snapshot.Contractor) {
		t.Errorf("WithEntity lost chips: %+v", drill.Entities)
	}
	if cs.HasEntities(snapshot.Area) {
		t.Error("WithEntity mutated the original")
	}

	base := cs.TimeOnly()
	if len(base.Entities) != 0 || len(base.Keywords) != 0 || base.Value.Set {
		t.Errorf("TimeOnly kept constraints: %+v", base)
	}
	if len(base.TimeRanges) != 1 {
		t.Errorf("TimeOnly dropped time ranges")
	}
}
