// Package search parses the operator query language used by the CLI and
// MCP tools into the canonical filter payload.
//
//	contractor:"ACME CORP" area:cebu year:2020 min:1M road "drainage canal"
package search

import (
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/snapshot"
)

// Query represents a parsed search query with all supported filters.
type Query struct {
	Keywords         []string                        // bare words, "quoted phrases" and kw:
	Entities         map[snapshot.Dimension][]string // contractor:, org:, area:, category:
	Years            []int                           // year:
	Quarters         []snapshot.Bucket               // quarter:
	After            *time.Time                      // after: (inclusive)
	Before           *time.Time                      // before: (inclusive)
	MinValue         *decimal.Decimal                // min:
	MaxValue         *decimal.Decimal                // max:
	IncludeSecondary bool                            // secondary:true
}

// IsEmpty returns true if the query has no search criteria.
func (q *Query) IsEmpty() bool {
	return len(q.Keywords) == 0 &&
		len(q.Entities) == 0 &&
		len(q.Years) == 0 &&
		len(q.Quarters) == 0 &&
		q.After == nil &&
		q.Before == nil &&
		q.MinValue == nil &&
		q.MaxValue == nil &&
		!q.IncludeSecondary
}

// operatorFn applies a parsed operator:value pair to the query.
type operatorFn func(q *Query, value string) error

// operators maps operator names to their handler functions. Dimension
// names and their aliases are resolved separately.
var operators = map[string]operatorFn{
	"kw":      addKeyword,
	"keyword": addKeyword,
	"year": func(q *Query, v string) error {
		y, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || y < 1 || y > 9999 {
			return invalid("year", v, "want a four-digit year")
		}
		q.Years = append(q.Years, y)
		return nil
	},
	"quarter": addQuarter,
	"q":       addQuarter,
	"after": func(q *Query, v string) error {
		t, err := parseDate(v)
		if err != nil {
			return invalid("after", v, "want YYYY-MM-DD")
		}
		q.After = &t
		return nil
	},
	"before": func(q *Query, v string) error {
		t, err := parseDate(v)
		if err != nil {
			return invalid("before", v, "want YYYY-MM-DD")
		}
		q.Before = &t
		return nil
	},
	"min": func(q *Query, v string) error {
		d, err := parseAmount(v)
		if err != nil {
			return invalid("min", v, err.Error())
		}
		q.MinValue = &d
		return nil
	},
	"max": func(q *Query, v string) error {
		d, err := parseAmount(v)
		if err != nil {
			return invalid("max", v, err.Error())
		}
		q.MaxValue = &d
		return nil
	},
	"secondary": func(q *Query, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return invalid("secondary", v, "want true or false")
		}
		q.IncludeSecondary = b
		return nil
	},
}

func init() {
	operators["since"] = operators["after"]
	operators["until"] = operators["before"]
}

func invalid(field, value, reason string) error {
	return &filter.ValidationError{Field: "query." + field, Value: value, Reason: reason}
}

func addKeyword(q *Query, v string) error {
	if v = strings.TrimSpace(v); v != "" {
		q.Keywords = append(q.Keywords, v)
	}
	return nil
}

func addQuarter(q *Query, v string) error {
	key := strings.ToLower(strings.TrimSpace(v))
	key = strings.Replace(key, "-q", "q", 1)
	yearPart, quarterPart, ok := strings.Cut(key, "q")
	if !ok {
		return invalid("quarter", v, "want YYYYqN")
	}
	b, err := snapshot.ParseBucketKey(yearPart + "-q" + quarterPart)
	if err != nil || b.Granularity != snapshot.Quarterly {
		return invalid("quarter", v, "want YYYYqN with N in 1-4")
	}
	q.Quarters = append(q.Quarters, b)
	return nil
}

// Parse parses an operator query string into a Query.
//
// Supported operators:
//   - contractor:, organization: (org:), area:, category: and their
//     aliases - entity chips; "a && b" inside one value requires both
//   - year:2020, quarter:2021q2 - whole-bucket time ranges, OR'd
//   - after:, before: (since:, until:) - inclusive date bounds
//   - min:, max: - contract value bounds (e.g., 250K, 1.5M, 2B)
//   - secondary:true - include the secondary dataset
//   - Bare words, kw: and "quoted phrases" - required keywords
//
// Unknown operators are kept as keywords.
func Parse(queryStr string) (*Query, error) {
	q := &Query{}
	for _, token := range tokenize(queryStr) {
		if isQuotedPhrase(token) {
			q.Keywords = append(q.Keywords, unquote(token))
			continue
		}

		if idx := strings.Index(token, ":"); idx > 0 {
			op := strings.ToLower(token[:idx])
			value := unquote(token[idx+1:])

			if d, err := snapshot.ParseDimension(op); err == nil {
				if v := strings.TrimSpace(value); v != "" {
					if q.Entities == nil {
						q.Entities = make(map[snapshot.Dimension][]string)
					}
					q.Entities[d] = append(q.Entities[d], v)
				}
				continue
			}
			if handler, ok := operators[op]; ok {
				if err := handler(q, value); err != nil {
					return nil, err
				}
				continue
			}
		}

		q.Keywords = append(q.Keywords, token)
	}
	return q, nil
}

// Raw converts q into the filter payload. Open after/before bounds take
// the domain's edges. When years or quarters are given as well, the date
// bounds clip them instead of adding a separate range.
func (q *Query) Raw(domain snapshot.Domain) (filter.Raw, error) {
	raw := filter.Raw{
		Keywords:         slices.Clone(q.Keywords),
		IncludeSecondary: q.IncludeSecondary,
	}
	for _, d := range snapshot.Dimensions {
		if names := q.Entities[d]; len(names) > 0 {
			if raw.EntityFilters == nil {
				raw.EntityFilters = make(map[string][]string)
			}
			raw.EntityFilters[string(d)] = slices.Clone(names)
		}
	}
	if q.MinValue != nil || q.MaxValue != nil {
		raw.ValueRange = &filter.RawValueRange{Min: q.MinValue, Max: q.MaxValue}
	}

	lo, hi := domain.Min, domain.Max
	if lo.IsZero() {
		lo = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
		hi = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
	if q.After != nil {
		lo = *q.After
	}
	if q.Before != nil {
		hi = *q.Before
	}

	var spans []filter.TimeRange
	for _, y := range q.Years {
		start, end := snapshot.YearBucket(y).Span(domain)
		spans = append(spans, filter.TimeRange{Start: start, End: end})
	}
	for _, b := range q.Quarters {
		start, end := b.Span(domain)
		spans = append(spans, filter.TimeRange{Start: start, End: end})
	}
	bounded := q.After != nil || q.Before != nil

	if len(spans) == 0 {
		if bounded {
			raw.TimeRanges = [][]string{{formatDate(lo), formatDate(hi)}}
		}
		return raw, nil
	}
	if !bounded {
		for _, s := range spans {
			raw.TimeRanges = append(raw.TimeRanges, []string{formatDate(s.Start), formatDate(s.End)})
		}
		return raw, nil
	}
	for _, s := range spans {
		if s.Start.Before(lo) {
			s.Start = lo
		}
		if s.End.After(hi) {
			s.End = hi
		}
		if s.End.Before(s.Start) {
			continue
		}
		raw.TimeRanges = append(raw.TimeRanges, []string{formatDate(s.Start), formatDate(s.End)})
	}
	if len(raw.TimeRanges) == 0 {
		return raw, &filter.ValidationError{
			Field:  "query.after",
			Value:  formatDate(lo) + ".." + formatDate(hi),
			Reason: "date bounds exclude every requested year and quarter",
		}
	}
	return raw, nil
}

// ParseRaw parses queryStr and converts it into the filter payload.
func ParseRaw(queryStr string, domain snapshot.Domain) (filter.Raw, error) {
	q, err := Parse(queryStr)
	if err != nil {
		return filter.Raw{}, err
	}
	return q.Raw(domain)
}

func formatDate(t time.Time) string { return t.Format(snapshot.DateLayout) }

// unquote removes surrounding double quotes from a string if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// isQuotedPhrase returns true if the token is a double-quoted phrase.
func isQuotedPhrase(token string) bool {
	return len(token) > 2 && token[0] == '"' && token[len(token)-1] == '"'
}

// tokenize splits a query string, preserving quoted phrases and operator:value pairs.
// Handles cases like contractor:"ACME CORP" where the operator and quoted value should stay together.
func tokenize(queryStr string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)
	// Track if we just saw a colon (for op:"value" handling)
	afterColon := false
	// Track if this quoted section started as op:"value" (quote immediately after colon)
	opQuoted := false

	for _, char := range queryStr {
		switch {
		case (char == '"' || char == '\'') && !inQuotes:
			inQuotes = true
			quoteChar = char
			opQuoted = afterColon
			if !afterColon && current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			// Values keep a double quote so unquote can strip it.
			if afterColon {
				current.WriteRune('"')
			}
			afterColon = false
		case char == quoteChar && inQuotes:
			inQuotes = false
			if opQuoted {
				current.WriteRune('"')
				tokens = append(tokens, current.String())
				current.Reset()
			} else if current.Len() > 0 {
				// Standalone quoted phrase (may contain colons, but not op:"value")
				tokens = append(tokens, "\""+current.String()+"\"")
				current.Reset()
			}
			quoteChar = 0
			opQuoted = false
		case (char == ' ' || char == '\t') && !inQuotes:
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			afterColon = false
		default:
			current.WriteRune(char)
			afterColon = char == ':'
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// parseDate parses date strings like YYYY-MM-DD or YYYY/MM/DD.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var err error
	for _, format := range []string{snapshot.DateLayout, "2006/01/02"} {
		var t time.Time
		if t, err = time.Parse(format, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, err
}

var amountSuffixes = []struct {
	suffix string
	mult   decimal.Decimal
}{
	{"K", decimal.New(1, 3)},
	{"M", decimal.New(1, 6)},
	{"B", decimal.New(1, 9)},
}

// parseAmount parses amounts like 1500, 1,500.50, 250K, 1.5M or 2B.
func parseAmount(value string) (decimal.Decimal, error) {
	value = strings.ReplaceAll(strings.TrimSpace(strings.ToUpper(value)), ",", "")
	mult := decimal.NewFromInt(1)
	for _, s := range amountSuffixes {
		if strings.HasSuffix(value, s.suffix) {
			value = strings.TrimSuffix(value, s.suffix)
			mult = s.mult
			break
		}
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, errors.New("want an amount like 1500, 250K or 1.5M")
	}
	return d.Mul(mult), nil
}
