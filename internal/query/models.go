// Package query answers filtered aggregate and raw-record queries over a
// contract snapshot. A Plan decides whether a request is served from one
// rollup bucket, a merge of several, or a scan of fact rows; the
// Accumulator merges partial aggregates; SortRows and Page impose the
// deterministic order that search, aggregate and export share.
package query

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/snapshot"
)

// Contract is one fact row.
type Contract struct {
	ReferenceID    string          `json:"reference_id"`
	ContractNumber string          `json:"contract_number"`
	AwardTitle     string          `json:"award_title"`
	NoticeTitle    string          `json:"notice_title"`
	Contractor     string          `json:"awardee_name"`
	Organization   string          `json:"organization_name"`
	Area           string          `json:"area_of_delivery"`
	Category       string          `json:"business_category"`
	Amount         decimal.Decimal `json:"contract_amount"`
	AwardDate      time.Time       `json:"award_date"`
	Status         string          `json:"award_status,omitempty"`
}

// ContractColumns is the fixed CSV header for raw contract exports.
var ContractColumns = []string{
	"reference_id", "contract_number", "award_title", "notice_title",
	"awardee_name", "organization_name", "area_of_delivery", "business_category",
	"contract_amount", "award_date", "award_status",
}

// Record renders c in ContractColumns order.
func (c Contract) Record() []string {
	return []string{
		c.ReferenceID, c.ContractNumber, c.AwardTitle, c.NoticeTitle,
		c.Contractor, c.Organization, c.Area, c.Category,
		c.Amount.StringFixed(2), formatDate(c.AwardDate), c.Status,
	}
}

// AggregateRow is one entity's merged measures. Average is always
// Total/Count computed after merging.
type AggregateRow struct {
	Rank         int                        `json:"rank"`
	Name         string                     `json:"name"`
	Count        int64                      `json:"count"`
	Total        decimal.Decimal            `json:"total_value"`
	Average      decimal.Decimal            `json:"avg_value"`
	FirstDate    time.Time                  `json:"first_date"`
	LastDate     time.Time                  `json:"last_date"`
	Counterparts map[snapshot.Dimension]int `json:"counterpart_counts"`
}

// AggregateColumns is the fixed CSV header for aggregate exports by d.
func AggregateColumns(d snapshot.Dimension) []string {
	cols := []string{string(d), "total_value", "count", "avg_value", "first_date", "last_date"}
	for _, o := range d.Others() {
		cols = append(cols, string(o)+"_count")
	}
	return cols
}

// Record renders r in AggregateColumns(d) order.
func (r AggregateRow) Record(d snapshot.Dimension) []string {
	rec := []string{
		r.Name,
		r.Total.StringFixed(2),
		strconv.FormatInt(r.Count, 10),
		r.Average.StringFixed(2),
		formatDate(r.FirstDate),
		formatDate(r.LastDate),
	}
	for _, o := range d.Others() {
		rec = append(rec, strconv.Itoa(r.Counterparts[o]))
	}
	return rec
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(snapshot.DateLayout)
}

// Totals are the unfiltered count and value for a time range, used as
// the denominator of percentage-of-total figures.
type Totals struct {
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total_value"`
}

// SearchResult holds either raw contracts (no target dimension) or
// aggregate rows, plus the size of the whole result.
type SearchResult struct {
	Contracts  []Contract     `json:"contracts,omitempty"`
	Rows       []AggregateRow `json:"rows,omitempty"`
	TotalCount int64          `json:"total_count"`
	Plan       *Plan          `json:"plan,omitempty"`
}

// AggregateResult is one window of aggregate rows and the global totals
// for the same time range.
type AggregateResult struct {
	Rows         []AggregateRow `json:"rows"`
	TotalCount   int64          `json:"total_count"`
	GlobalTotals Totals         `json:"global_totals"`
	Plan         *Plan          `json:"plan,omitempty"`
}

// FilterOption is a selectable entity name for one dimension.
type FilterOption struct {
	Name  string          `json:"name"`
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total_value"`
}

// Period is one year or quarter available in the snapshot.
type Period struct {
	Key      string          `json:"key"`
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	RowCount int64           `json:"row_count"`
	Total    decimal.Decimal `json:"total_value"`
}

// TimeRanges lists the periods a client can pick whole-bucket ranges from.
type TimeRanges struct {
	MinDate  time.Time `json:"min_date"`
	MaxDate  time.Time `json:"max_date"`
	Years    []Period  `json:"years"`
	Quarters []Period  `json:"quarters"`
}
