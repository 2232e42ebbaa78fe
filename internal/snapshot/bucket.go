package snapshot

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Granularity is the time resolution of a bucket.
type Granularity int

const (
	AllTime Granularity = iota
	Yearly
	Quarterly
)

func (g Granularity) String() string {
	switch g {
	case AllTime:
		return "all_time"
	case Yearly:
		return "year"
	case Quarterly:
		return "quarter"
	default:
		return fmt.Sprintf("Granularity(%d)", int(g))
	}
}

// Bucket identifies one time slice of pre-aggregated data. Buckets of the
// same granularity never overlap, and AllTime equals the union of all years.
type Bucket struct {
	Granularity Granularity
	Year        int
	Quarter     int
}

// AllTimeBucket returns the bucket covering the whole snapshot domain.
func AllTimeBucket() Bucket { return Bucket{Granularity: AllTime} }

// YearBucket returns the bucket for calendar year y.
func YearBucket(y int) Bucket { return Bucket{Granularity: Yearly, Year: y} }

// QuarterBucket returns the bucket for quarter q (1-4) of year y.
func QuarterBucket(y, q int) Bucket { return Bucket{Granularity: Quarterly, Year: y, Quarter: q} }

// Key returns the manifest key: "all", "2020" or "2020-q1".
func (b Bucket) Key() string {
	switch b.Granularity {
	case Yearly:
		return strconv.Itoa(b.Year)
	case Quarterly:
		return fmt.Sprintf("%d-q%d", b.Year, b.Quarter)
	default:
		return "all"
	}
}

func (b Bucket) String() string {
	return b.Key()
}

// MarshalText encodes the bucket as its key.
func (b Bucket) MarshalText() ([]byte, error) { return []byte(b.Key()), nil }

// UnmarshalText decodes a bucket key.
func (b *Bucket) UnmarshalText(text []byte) error {
	parsed, err := ParseBucketKey(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ParseBucketKey is the inverse of Key.
func ParseBucketKey(key string) (Bucket, error) {
	if key == "all" {
		return AllTimeBucket(), nil
	}
	yearPart, quarterPart, hasQuarter := strings.Cut(key, "-q")
	y, err := strconv.Atoi(yearPart)
	if err != nil {
		return Bucket{}, fmt.Errorf("invalid bucket key %q", key)
	}
	if !hasQuarter {
		return YearBucket(y), nil
	}
	q, err := strconv.Atoi(quarterPart)
	if err != nil || q < 1 || q > 4 {
		return Bucket{}, fmt.Errorf("invalid bucket key %q", key)
	}
	return QuarterBucket(y, q), nil
}

// Dir returns the bucket's directory relative to the snapshot root.
func (b Bucket) Dir() string {
	switch b.Granularity {
	case Yearly:
		return filepath.Join("yearly", fmt.Sprintf("year_%d", b.Year))
	case Quarterly:
		return filepath.Join("quarterly", fmt.Sprintf("year_%d_q%d", b.Year, b.Quarter))
	default:
		return ""
	}
}

// Span returns the inclusive first and last day of a year or quarter bucket.
// For AllTime it returns the domain bounds.
func (b Bucket) Span(domain Domain) (time.Time, time.Time) {
	switch b.Granularity {
	case Yearly:
		start := time.Date(b.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, -1)
	case Quarterly:
		start := time.Date(b.Year, time.Month(3*(b.Quarter-1)+1), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, -1)
	default:
		return domain.Min, domain.Max
	}
}

// Domain is the inclusive date range a snapshot covers.
type Domain struct {
	Min time.Time
	Max time.Time
}

// Contains reports whether day falls inside the domain.
func (d Domain) Contains(day time.Time) bool {
	return !day.Before(d.Min) && !day.After(d.Max)
}

// Years returns every calendar year the domain touches.
func (d Domain) Years() []int {
	if d.Min.IsZero() || d.Max.Before(d.Min) {
		return nil
	}
	var years []int
	for y := d.Min.Year(); y <= d.Max.Year(); y++ {
		years = append(years, y)
	}
	return years
}

// DateLayout is the wire format for dates in manifests, filters and exports.
const DateLayout = "2006-01-02"
