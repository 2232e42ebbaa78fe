package api

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/export"
	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/snapshot"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

// ContractResponse is one raw contract.
type ContractResponse struct {
	ReferenceID    string `json:"reference_id"`
	ContractNumber string `json:"contract_number"`
	AwardTitle     string `json:"award_title"`
	NoticeTitle    string `json:"notice_title"`
	Contractor     string `json:"awardee_name"`
	Organization   string `json:"organization_name"`
	Area           string `json:"area_of_delivery"`
	Category       string `json:"business_category"`
	Amount         string `json:"contract_amount"`
	AwardDate      string `json:"award_date"`
	Status         string `json:"award_status,omitempty"`
}

// AggregateRowResponse is one entity's merged measures.
type AggregateRowResponse struct {
	Rank           int            `json:"rank"`
	Name           string         `json:"name"`
	Count          int64          `json:"count"`
	TotalValue     string         `json:"total_value"`
	AvgValue       string         `json:"avg_value"`
	FirstDate      string         `json:"first_date"`
	LastDate       string         `json:"last_date"`
	Counterparts   map[string]int `json:"counterpart_counts"`
	PercentOfTotal string         `json:"percent_of_total,omitempty"`
}

// TotalsResponse are global totals for a time range.
type TotalsResponse struct {
	Count      int64  `json:"count"`
	TotalValue string `json:"total_value"`
}

// PlanResponse describes how a query was served.
type PlanResponse struct {
	Kind             string   `json:"kind"`
	Buckets          []string `json:"buckets,omitempty"`
	ScanBuckets      []string `json:"scan_buckets,omitempty"`
	Reason           string   `json:"reason,omitempty"`
	Missing          []string `json:"missing_buckets,omitempty"`
	SecondaryMissing bool     `json:"secondary_missing,omitempty"`
}

// SearchResponse holds contracts for raw searches and rows otherwise.
type SearchResponse struct {
	Dimension  string                 `json:"dimension,omitempty"`
	Contracts  []ContractResponse     `json:"contracts,omitempty"`
	Rows       []AggregateRowResponse `json:"rows,omitempty"`
	TotalCount int64                  `json:"total_count"`
	Plan       *PlanResponse          `json:"plan,omitempty"`
}

// AggregateResponse is one window of aggregate rows.
type AggregateResponse struct {
	Dimension    string                 `json:"dimension"`
	Rows         []AggregateRowResponse `json:"rows"`
	TotalCount   int64                  `json:"total_count"`
	GlobalTotals TotalsResponse         `json:"global_totals"`
	Plan         *PlanResponse          `json:"plan,omitempty"`
}

// EstimateResponse sizes an export.
type EstimateResponse struct {
	RowCount       int64    `json:"row_count"`
	EstimatedBytes int64    `json:"estimated_bytes"`
	Columns        []string `json:"columns"`
}

// FilterOptionResponse is one selectable entity name.
type FilterOptionResponse struct {
	Name       string `json:"name"`
	Count      int64  `json:"count"`
	TotalValue string `json:"total_value"`
}

// PeriodResponse is one available year or quarter.
type PeriodResponse struct {
	Key        string `json:"key"`
	Start      string `json:"start"`
	End        string `json:"end"`
	RowCount   int64  `json:"row_count"`
	TotalValue string `json:"total_value"`
}

// TimeRangesResponse lists the periods covered by the snapshot.
type TimeRangesResponse struct {
	MinDate  string           `json:"min_date"`
	MaxDate  string           `json:"max_date"`
	Years    []PeriodResponse `json:"years"`
	Quarters []PeriodResponse `json:"quarters"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

// ExportsResponse lists running exports.
type ExportsResponse struct {
	Exports []export.Status `json:"exports"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

func toContractResponses(contracts []query.Contract) []ContractResponse {
	out := make([]ContractResponse, len(contracts))
	for i, c := range contracts {
		out[i] = ContractResponse{
			ReferenceID:    c.ReferenceID,
			ContractNumber: c.ContractNumber,
			AwardTitle:     c.AwardTitle,
			NoticeTitle:    c.NoticeTitle,
			Contractor:     c.Contractor,
			Organization:   c.Organization,
			Area:           c.Area,
			Category:       c.Category,
			Amount:         c.Amount.StringFixed(2),
			AwardDate:      formatDate(c.AwardDate),
			Status:         c.Status,
		}
	}
	return out
}

// toRowResponses converts rows; a non-zero grand total adds each row's
// percentage of it.
func toRowResponses(rows []query.AggregateRow, grand decimal.Decimal) []AggregateRowResponse {
	hundred := decimal.NewFromInt(100)
	out := make([]AggregateRowResponse, len(rows))
	for i, r := range rows {
		counterparts := make(map[string]int, len(r.Counterparts))
		for d, n := range r.Counterparts {
			counterparts[string(d)] = n
		}
		out[i] = AggregateRowResponse{
			Rank:         r.Rank,
			Name:         r.Name,
			Count:        r.Count,
			TotalValue:   r.Total.StringFixed(2),
			AvgValue:     r.Average.StringFixed(2),
			FirstDate:    formatDate(r.FirstDate),
			LastDate:     formatDate(r.LastDate),
			Counterparts: counterparts,
		}
		if !grand.IsZero() {
			out[i].PercentOfTotal = r.Total.Mul(hundred).Div(grand).StringFixed(2)
		}
	}
	return out
}

func toTotalsResponse(t query.Totals) TotalsResponse {
	return TotalsResponse{Count: t.Count, TotalValue: t.Total.StringFixed(2)}
}

func toPlanResponse(p *query.Plan) *PlanResponse {
	if p == nil {
		return nil
	}
	return &PlanResponse{
		Kind:             p.Kind.String(),
		Buckets:          bucketKeys(p.Buckets),
		ScanBuckets:      bucketKeys(p.ScanBuckets),
		Reason:           p.Reason,
		Missing:          bucketKeys(p.Missing),
		SecondaryMissing: p.SecondaryMissing,
	}
}

func toPeriodResponses(periods []query.Period) []PeriodResponse {
	out := make([]PeriodResponse, len(periods))
	for i, p := range periods {
		out[i] = PeriodResponse{
			Key:        p.Key,
			Start:      formatDate(p.Start),
			End:        formatDate(p.End),
			RowCount:   p.RowCount,
			TotalValue: p.Total.StringFixed(2),
		}
	}
	return out
}

func bucketKeys(buckets []snapshot.Bucket) []string {
	if len(buckets) == 0 {
		return nil
	}
	keys := make([]string, len(buckets))
	for i, b := range buckets {
		keys[i] = b.Key()
	}
	return keys
}
