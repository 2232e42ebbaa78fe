package filter

import "fmt"

// Page size bounds used when the caller does not configure its own.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// RawWindow is the pagination part of a request. A rank range, when
// present, takes precedence over offset and limit.
type RawWindow struct {
	Offset    int        `json:"offset,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	RankRange *RankRange `json:"rank_range,omitempty"`
}

// RankRange is an inclusive, 1-based rank interval.
type RankRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Window is a validated slice of a deterministically ordered result:
// zero-based Offset and a positive Limit.
type Window struct {
	Offset int
	Limit  int
}

// FirstRank returns the 1-based rank of the window's first row.
func (w Window) FirstRank() int { return w.Offset + 1 }

// Limits bounds page sizes.
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits returns the stock page size bounds.
func DefaultLimits() Limits {
	return Limits{Default: DefaultLimit, Max: MaxLimit}
}

// NormalizeWindow converts raw into a Window. A non-positive limit takes
// the default and an oversized one is clamped. A negative offset or an
// inverted rank range is a *ValidationError. Rank ranges wider than the
// maximum page are clamped like limits unless unbounded is set, which
// export slicing uses.
func NormalizeWindow(raw RawWindow, limits Limits, unbounded bool) (Window, error) {
	if limits.Default <= 0 {
		limits.Default = DefaultLimit
	}
	if limits.Max <= 0 {
		limits.Max = MaxLimit
	}

	if rr := raw.RankRange; rr != nil {
		if rr.From < 1 {
			return Window{}, &ValidationError{Field: "rank_range.from", Value: fmt.Sprint(rr.From), Reason: "ranks start at 1"}
		}
		if rr.To < rr.From {
			return Window{}, &ValidationError{
				Field:  "rank_range",
				Value:  fmt.Sprintf("%d-%d", rr.From, rr.To),
				Reason: "to is before from",
			}
		}
		w := Window{Offset: rr.From - 1, Limit: rr.To - rr.From + 1}
		if !unbounded && w.Limit > limits.Max {
			w.Limit = limits.Max
		}
		return w, nil
	}

	if raw.Offset < 0 {
		return Window{}, &ValidationError{Field: "offset", Value: fmt.Sprint(raw.Offset), Reason: "must not be negative"}
	}
	w := Window{Offset: raw.Offset, Limit: raw.Limit}
	switch {
	case w.Limit <= 0:
		w.Limit = limits.Default
	case w.Limit > limits.Max && !unbounded:
		w.Limit = limits.Max
	}
	return w, nil
}
