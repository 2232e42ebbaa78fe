// Package filter turns the raw filter payload shared by every query
// surface into a canonical, validated ChipSet.
//
// Entity chips are OR'd within a dimension and AND'd across dimensions. A
// single chip may itself require several terms ("a && b"). Keywords are
// AND'd and matched as case-insensitive substrings of a contract's
// searchable text. Time ranges are OR'd.
package filter

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/snapshot"
)

// MaxValue is the largest contract amount the snapshot schema can hold.
var MaxValue = decimal.RequireFromString("9999999999999999.99")

// Raw is the filter payload as received from a client.
type Raw struct {
	EntityFilters    map[string][]string `json:"entity_filters,omitempty" validate:"max=4,dive,max=100,dive,max=200"`
	Keywords         []string            `json:"keywords,omitempty" validate:"max=50,dive,max=200"`
	ValueRange       *RawValueRange      `json:"value_range,omitempty"`
	TimeRanges       [][]string          `json:"time_ranges,omitempty" validate:"max=20,dive,len=2"`
	IncludeSecondary bool                `json:"include_secondary_dataset,omitempty"`
}

// RawValueRange bounds contract amounts. Either side may be omitted.
type RawValueRange struct {
	Min *decimal.Decimal `json:"min,omitempty"`
	Max *decimal.Decimal `json:"max,omitempty"`
}

// Chip is one entity constraint. A contract matches when its entity name
// contains every term, case-insensitively.
type Chip struct {
	Terms []string
}

func (c Chip) String() string {
	return strings.Join(c.Terms, " && ")
}

// ValueRange is a closed amount interval. Set is false when the client
// supplied no range, in which case Min and Max span every amount.
type ValueRange struct {
	Min decimal.Decimal
	Max decimal.Decimal
	Set bool
}

// TimeRange is an inclusive interval of award dates.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (r TimeRange) String() string {
	return r.Start.Format(snapshot.DateLayout) + ".." + r.End.Format(snapshot.DateLayout)
}

// ChipSet is the canonical filter. Time ranges are sorted and disjoint.
type ChipSet struct {
	Entities         map[snapshot.Dimension][]Chip
	Keywords         []string
	Value            ValueRange
	TimeRanges       []TimeRange
	IncludeSecondary bool
}

// Empty returns a chip set that matches every contract.
func Empty() *ChipSet {
	return &ChipSet{Value: ValueRange{Min: decimal.Zero, Max: MaxValue}}
}

// HasEntities reports whether any chip constrains dimension d.
func (c *ChipSet) HasEntities(d snapshot.Dimension) bool {
	return c != nil && len(c.Entities[d]) > 0
}

// EntityDimensions returns the dimensions carrying chips, in canonical order.
func (c *ChipSet) EntityDimensions() []snapshot.Dimension {
	if c == nil {
		return nil
	}
	var dims []snapshot.Dimension
	for _, d := range snapshot.Dimensions {
		if len(c.Entities[d]) > 0 {
			dims = append(dims, d)
		}
	}
	return dims
}

// HasTimeRanges reports whether the set restricts award dates.
func (c *ChipSet) HasTimeRanges() bool {
	return c != nil && len(c.TimeRanges) > 0
}

// Clone returns a deep copy.
func (c *ChipSet) Clone() *ChipSet {
	if c == nil {
		return Empty()
	}
	out := *c
	out.Keywords = slices.Clone(c.Keywords)
	out.TimeRanges = slices.Clone(c.TimeRanges)
	out.Entities = make(map[snapshot.Dimension][]Chip, len(c.Entities))
	for d, chips := range c.Entities {
		cp := make([]Chip, len(chips))
		for i, ch := range chips {
			cp[i] = Chip{Terms: slices.Clone(ch.Terms)}
		}
		out.Entities[d] = cp
	}
	return &out
}

// WithEntity returns a copy whose only chip on d is an exact-name chip
// for name. It is used to drill down from one entity to related ones.
func (c *ChipSet) WithEntity(d snapshot.Dimension, name string) *ChipSet {
	out := c.Clone()
	out.Entities[d] = []Chip{{Terms: []string{name}}}
	return out
}

// TimeOnly keeps the time ranges and secondary flag and drops every other
// constraint. Global totals are computed over this reduced set.
func (c *ChipSet) TimeOnly() *ChipSet {
	out := Empty()
	if c != nil {
		out.TimeRanges = slices.Clone(c.TimeRanges)
		out.IncludeSecondary = c.IncludeSecondary
	}
	return out
}

// Raw converts the set back into its wire form.
func (c *ChipSet) Raw() Raw {
	var r Raw
	if c == nil {
		return r
	}
	for _, d := range c.EntityDimensions() {
		if r.EntityFilters == nil {
			r.EntityFilters = make(map[string][]string)
		}
		for _, ch := range c.Entities[d] {
			r.EntityFilters[string(d)] = append(r.EntityFilters[string(d)], ch.String())
		}
	}
	r.Keywords = slices.Clone(c.Keywords)
	if c.Value.Set {
		lo, hi := c.Value.Min, c.Value.Max
		r.ValueRange = &RawValueRange{Min: &lo, Max: &hi}
	}
	for _, tr := range c.TimeRanges {
		r.TimeRanges = append(r.TimeRanges, []string{
			tr.Start.Format(snapshot.DateLayout), tr.End.Format(snapshot.DateLayout),
		})
	}
	r.IncludeSecondary = c.IncludeSecondary
	return r
}
