package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/export"
	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/query/querytest"
	"github.com/wesm/contractlens/internal/snapshot"
)

func day(s string) time.Time {
	d, err := time.Parse(snapshot.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func newMockEngine() *querytest.MockEngine {
	return &querytest.MockEngine{
		Contracts: []query.Contract{
			{
				ReferenceID: "R-001", ContractNumber: "C-1", AwardTitle: "Road widening",
				Contractor: "ACME CORP", Organization: "DPWH Region VII", Area: "Cebu", Category: "Civil Works",
				Amount: decimal.RequireFromString("100"), AwardDate: day("2020-03-01"), Status: "awarded",
			},
			{
				ReferenceID: "R-002", ContractNumber: "C-2", AwardTitle: "Drainage, canal",
				Contractor: "ACME CORP", Organization: "DPWH Region VII", Area: "Bohol", Category: "Civil Works",
				Amount: decimal.RequireFromString("200.5"), AwardDate: day("2020-07-01"), Status: "awarded",
			},
		},
		AggregateRows: []query.AggregateRow{
			{
				Rank: 1, Name: "ACME CORP", Count: 3,
				Total: decimal.RequireFromString("350"), Average: decimal.RequireFromString("116.666666"),
				FirstDate: day("2020-03-01"), LastDate: day("2021-01-01"),
				Counterparts: map[snapshot.Dimension]int{snapshot.Organization: 2, snapshot.Area: 2, snapshot.Category: 1},
			},
			{
				Rank: 2, Name: "Gamma Builders", Count: 1,
				Total: decimal.RequireFromString("150"), Average: decimal.RequireFromString("150"),
				FirstDate: day("2021-02-01"), LastDate: day("2021-02-01"),
				Counterparts: map[snapshot.Dimension]int{snapshot.Organization: 1, snapshot.Area: 1, snapshot.Category: 1},
			},
		},
		Totals: query.Totals{Count: 4, Total: decimal.RequireFromString("500")},
	}
}

func TestHandleSearch_Raw(t *testing.T) {
	engine := newMockEngine()
	srv := newTestServer(t, testConfig(t), engine, nil)

	w := serve(srv, "POST", "/api/v1/search", `{"keywords":["road"],"limit":10}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}

	var resp SearchResponse
	decodeBody(t, w, &resp)
	if resp.TotalCount != 2 || len(resp.Contracts) != 2 {
		t.Fatalf("got %d contracts, total %d; want 2, 2", len(resp.Contracts), resp.TotalCount)
	}
	if got := resp.Contracts[1].Amount; got != "200.50" {
		t.Errorf("contract_amount = %q, want %q", got, "200.50")
	}
	if got := resp.Contracts[0].AwardDate; got != "2020-03-01" {
		t.Errorf("award_date = %q, want %q", got, "2020-03-01")
	}

	if len(engine.Requests) != 1 {
		t.Fatalf("engine saw %d requests, want 1", len(engine.Requests))
	}
	req := engine.Requests[0]
	if !req.Raw() {
		t.Error("request should be raw without a dimension")
	}
	if diff := cmp.Diff([]string{"road"}, req.Chips.Keywords); diff != "" {
		t.Errorf("keywords mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(&filter.Window{Limit: 10}, req.Window); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleSearch_Aggregated(t *testing.T) {
	engine := newMockEngine()
	srv := newTestServer(t, testConfig(t), engine, nil)

	w := serve(srv, "POST", "/api/v1/search", `{"dimension":"awardee","sort":"name"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}

	var resp SearchResponse
	decodeBody(t, w, &resp)
	if resp.Dimension != "contractor" {
		t.Errorf("dimension = %q, want contractor", resp.Dimension)
	}
	if len(resp.Rows) != 2 || len(resp.Contracts) != 0 {
		t.Fatalf("got %d rows and %d contracts, want 2 and 0", len(resp.Rows), len(resp.Contracts))
	}
	if resp.Rows[0].PercentOfTotal != "" {
		t.Errorf("search rows should carry no percentage, got %q", resp.Rows[0].PercentOfTotal)
	}
	req := engine.Requests[0]
	if req.Sort != query.SortName || req.Direction != query.Asc {
		t.Errorf("sort = %s %s, want name asc", req.Sort, req.Direction)
	}
	if diff := cmp.Diff(&filter.Window{Limit: 50}, req.Window); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleAggregate(t *testing.T) {
	engine := newMockEngine()
	srv := newTestServer(t, testConfig(t), engine, nil)

	body := `{
		"dimension": "contractor",
		"entity_filters": {"area": ["cebu"]},
		"value_range": {"min": "50", "max": 1000},
		"time_ranges": [["2020-01-01", "2020-12-31"]]
	}`
	w := serve(srv, "POST", "/api/v1/aggregate", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}

	var resp AggregateResponse
	decodeBody(t, w, &resp)

	want := AggregateResponse{
		Dimension: "contractor",
		Rows: []AggregateRowResponse{
			{
				Rank: 1, Name: "ACME CORP", Count: 3, TotalValue: "350.00", AvgValue: "116.67",
				FirstDate: "2020-03-01", LastDate: "2021-01-01",
				Counterparts:   map[string]int{"organization": 2, "area": 2, "category": 1},
				PercentOfTotal: "70.00",
			},
			{
				Rank: 2, Name: "Gamma Builders", Count: 1, TotalValue: "150.00", AvgValue: "150.00",
				FirstDate: "2021-02-01", LastDate: "2021-02-01",
				Counterparts:   map[string]int{"organization": 1, "area": 1, "category": 1},
				PercentOfTotal: "30.00",
			},
		},
		TotalCount:   2,
		GlobalTotals: TotalsResponse{Count: 4, TotalValue: "500.00"},
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}

	chips := engine.Requests[0].Chips
	if !chips.HasEntities(snapshot.Area) {
		t.Error("area chip was not passed to the engine")
	}
	if !chips.Value.Set {
		t.Error("value range was not passed to the engine")
	}
	if len(chips.TimeRanges) != 1 {
		t.Errorf("time ranges = %v, want one", chips.TimeRanges)
	}
}

func TestHandleAggregate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		engineErr error
		wantCode  int
		wantError string
		wantField string
	}{
		{
			name:      "missing dimension",
			body:      `{}`,
			wantCode:  http.StatusBadRequest,
			wantError: "validation_error",
			wantField: "dimension",
		},
		{
			name:      "malformed body",
			body:      `{"dimension":`,
			wantCode:  http.StatusBadRequest,
			wantError: "validation_error",
			wantField: "body",
		},
		{
			name:      "time range outside snapshot",
			body:      `{"dimension":"area","time_ranges":[["2019-01-01","2019-12-31"]]}`,
			wantCode:  http.StatusBadRequest,
			wantError: "validation_error",
			wantField: "time_ranges[0]",
		},
		{
			name:      "inverted rank range",
			body:      `{"dimension":"area","rank_range":{"from":10,"to":2}}`,
			wantCode:  http.StatusBadRequest,
			wantError: "validation_error",
			wantField: "rank_range",
		},
		{
			name:      "timeout",
			body:      `{"dimension":"area"}`,
			engineErr: &query.TimeoutError{Op: "aggregate", Budget: time.Second},
			wantCode:  http.StatusGatewayTimeout,
			wantError: "timeout",
		},
		{
			name:      "inconsistent snapshot",
			body:      `{"dimension":"area"}`,
			engineErr: &query.InternalInconsistencyError{Detail: "rollup rows sum to 5, manifest says 7"},
			wantCode:  http.StatusInternalServerError,
			wantError: "internal_inconsistency",
		},
		{
			name:      "other failure",
			body:      `{"dimension":"area"}`,
			engineErr: errors.New("parquet file truncated"),
			wantCode:  http.StatusInternalServerError,
			wantError: "internal_error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newMockEngine()
			if tt.engineErr != nil {
				engine.AggregateFunc = func(context.Context, query.Request) (*query.AggregateResult, error) {
					return nil, tt.engineErr
				}
			}
			srv := newTestServer(t, testConfig(t), engine, nil)

			w := serve(srv, "POST", "/api/v1/aggregate", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body)
			}
			var resp ErrorResponse
			decodeBody(t, w, &resp)
			if resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
			if resp.Field != tt.wantField {
				t.Errorf("field = %q, want %q", resp.Field, tt.wantField)
			}
			if tt.wantCode == http.StatusInternalServerError && strings.Contains(resp.Message, "manifest") {
				t.Errorf("internal details leaked to client: %q", resp.Message)
			}
		})
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantName string
	}{
		{"validation", &filter.ValidationError{Field: "keywords"}, http.StatusBadRequest, "validation_error"},
		{"wrapped timeout", errors.Join(errors.New("search"), &query.TimeoutError{Op: "search"}), http.StatusGatewayTimeout, "timeout"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"inconsistency", &query.InternalInconsistencyError{}, http.StatusInternalServerError, "internal_inconsistency"},
		{"cancelled export", &query.CancelledError{RowsEmitted: 3}, http.StatusConflict, "cancelled"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, name := statusForError(tt.err)
			if code != tt.wantCode || name != tt.wantName {
				t.Errorf("statusForError() = %d %q, want %d %q", code, name, tt.wantCode, tt.wantName)
			}
		})
	}
}

func TestHandleEstimate(t *testing.T) {
	engine := newMockEngine()
	srv := newTestServer(t, testConfig(t), engine, nil)

	w := serve(srv, "POST", "/api/v1/export/estimate", `{}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}
	var resp EstimateResponse
	decodeBody(t, w, &resp)

	headerBytes := int64(len(strings.Join(query.ContractColumns, ",")) + 1)
	want := EstimateResponse{
		RowCount:       2,
		EstimatedBytes: headerBytes + 2*export.DefaultRawRowWidth,
		Columns:        query.ContractColumns,
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("estimate mismatch (-want +got):\n%s", diff)
	}
	if engine.Requests[0].Window != nil {
		t.Errorf("estimate window = %+v, want nil for a full export", engine.Requests[0].Window)
	}
}

func TestHandleExport_Raw(t *testing.T) {
	engine := newMockEngine()
	srv := newTestServer(t, testConfig(t), engine, nil)

	w := serve(srv, "POST", "/api/v1/export", `{}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}
	if got := w.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/csv") {
		t.Errorf("Content-Type = %q, want text/csv", got)
	}
	if w.Header().Get(headerExportJob) == "" {
		t.Errorf("missing %s header", headerExportJob)
	}
	if got := w.Header().Get(headerEstimatedRows); got != "2" {
		t.Errorf("%s = %q, want 2", headerEstimatedRows, got)
	}
	if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, "contracts.csv") {
		t.Errorf("Content-Disposition = %q", got)
	}

	lines := strings.Split(strings.TrimRight(w.Body.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d CSV lines, want 3:\n%s", len(lines), w.Body)
	}
	if lines[0] != strings.Join(query.ContractColumns, ",") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[2], `"Drainage, canal"`) {
		t.Errorf("row with comma not quoted: %q", lines[2])
	}

	if jobs := srv.jobs.List(); len(jobs) != 0 {
		t.Errorf("finished export still registered: %+v", jobs)
	}
}

func TestHandleExport_AggregateRankRange(t *testing.T) {
	engine := newMockEngine()
	srv := newTestServer(t, testConfig(t), engine, nil)

	w := serve(srv, "POST", "/api/v1/export", `{"dimension":"contractor","rank_range":{"from":2,"to":2}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}
	if got := w.Header().Get(headerEstimatedRows); got != "1" {
		t.Errorf("%s = %q, want 1", headerEstimatedRows, got)
	}
	want := strings.Join(query.AggregateColumns(snapshot.Contractor), ",") + "\n" +
		"Gamma Builders,150.00,1,150.00,2021-02-01,2021-02-01,1,1,1\n"
	if diff := cmp.Diff(want, w.Body.String()); diff != "" {
		t.Errorf("CSV mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleExport_ErrorBeforeFirstRow(t *testing.T) {
	engine := newMockEngine()
	engine.RowsFunc = func(context.Context, query.Request) (query.RowSource, error) {
		return nil, &query.TimeoutError{Op: "rows", Budget: time.Second}
	}
	srv := newTestServer(t, testConfig(t), engine, nil)

	w := serve(srv, "POST", "/api/v1/export", `{}`)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusGatewayTimeout, w.Body)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if jobs := srv.jobs.List(); len(jobs) != 0 {
		t.Errorf("failed export still registered: %+v", jobs)
	}
}

func TestExportJobEndpoints(t *testing.T) {
	srv := newTestServer(t, testConfig(t), newMockEngine(), nil)
	job := srv.jobs.Start(query.Request{}, export.Estimate{RowCount: 42})

	w := serve(srv, "GET", "/api/v1/exports/"+job.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want %d", w.Code, http.StatusOK)
	}
	var st export.Status
	decodeBody(t, w, &st)
	if st.ID != job.ID || st.EstimatedRows != 42 || st.Cancelled {
		t.Errorf("status = %+v", st)
	}

	w = serve(srv, "GET", "/api/v1/exports", "")
	var list ExportsResponse
	decodeBody(t, w, &list)
	if len(list.Exports) != 1 {
		t.Errorf("exports = %+v, want one", list.Exports)
	}

	w = serve(srv, "DELETE", "/api/v1/exports/"+job.ID, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("DELETE status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if !job.Cancelled() {
		t.Error("job not cancelled after DELETE")
	}

	for _, method := range []string{"GET", "DELETE"} {
		w = serve(srv, method, "/api/v1/exports/no-such-job", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("%s unknown job status = %d, want %d", method, w.Code, http.StatusNotFound)
		}
	}
}

func TestHandleFilterOptions(t *testing.T) {
	engine := newMockEngine()
	engine.Options = []query.FilterOption{
		{Name: "DPWH Region VII", Count: 3, Total: decimal.RequireFromString("400")},
	}
	srv := newTestServer(t, testConfig(t), engine, nil)

	w := serve(srv, "GET", "/api/v1/filter-options?dimension=organization_name&prefix=dp", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}
	var resp struct {
		Dimension string                 `json:"dimension"`
		Options   []FilterOptionResponse `json:"options"`
	}
	decodeBody(t, w, &resp)
	if resp.Dimension != "organization" {
		t.Errorf("dimension = %q, want organization", resp.Dimension)
	}
	want := []FilterOptionResponse{{Name: "DPWH Region VII", Count: 3, TotalValue: "400.00"}}
	if diff := cmp.Diff(want, resp.Options); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}

	for _, path := range []string{
		"/api/v1/filter-options",
		"/api/v1/filter-options?dimension=region",
		"/api/v1/filter-options?dimension=area&limit=ten",
	} {
		if w := serve(srv, "GET", path, ""); w.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want %d", path, w.Code, http.StatusBadRequest)
		}
	}
}

func TestHandleRelated(t *testing.T) {
	engine := newMockEngine()
	var got query.RelatedRequest
	engine.RelatedFunc = func(_ context.Context, req query.RelatedRequest) (*query.AggregateResult, error) {
		got = req
		return &query.AggregateResult{Rows: engine.AggregateRows[:1], TotalCount: 1, GlobalTotals: engine.Totals}, nil
	}
	srv := newTestServer(t, testConfig(t), engine, nil)

	w := serve(srv, "GET", "/api/v1/related?source=contractor&value=ACME+CORP&target=area&q=year:2020&limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}
	var resp AggregateResponse
	decodeBody(t, w, &resp)
	if resp.Dimension != "area" || len(resp.Rows) != 1 {
		t.Errorf("response = %+v", resp)
	}

	if got.Source != snapshot.Contractor || got.Target != snapshot.Area || got.Value != "ACME CORP" {
		t.Errorf("request = %+v", got)
	}
	if len(got.Chips.TimeRanges) != 1 || !got.Chips.TimeRanges[0].Start.Equal(day("2020-01-01")) {
		t.Errorf("time ranges = %v, want 2020", got.Chips.TimeRanges)
	}
	if diff := cmp.Diff(&filter.Window{Limit: 5}, got.Window); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}

	if w := serve(srv, "GET", "/api/v1/related?source=contractor&target=area", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing value status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleTimeRanges(t *testing.T) {
	engine := newMockEngine()
	engine.Periods = &query.TimeRanges{
		MinDate: day("2020-03-01"),
		MaxDate: day("2021-02-01"),
		Years: []query.Period{
			{Key: "2020", Start: day("2020-01-01"), End: day("2020-12-31"), RowCount: 2, Total: decimal.RequireFromString("300")},
		},
	}
	srv := newTestServer(t, testConfig(t), engine, nil)

	w := serve(srv, "GET", "/api/v1/time-ranges", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp TimeRangesResponse
	decodeBody(t, w, &resp)
	want := TimeRangesResponse{
		MinDate:  "2020-03-01",
		MaxDate:  "2021-02-01",
		Years:    []PeriodResponse{{Key: "2020", Start: "2020-01-01", End: "2020-12-31", RowCount: 2, TotalValue: "300.00"}},
		Quarters: []PeriodResponse{},
	}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("time ranges mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleTotals(t *testing.T) {
	srv := newTestServer(t, testConfig(t), newMockEngine(), nil)

	w := serve(srv, "GET", "/api/v1/totals?q=year:2021", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body)
	}
	var resp TotalsResponse
	decodeBody(t, w, &resp)
	if diff := cmp.Diff(TotalsResponse{Count: 4, TotalValue: "500.00"}, resp); diff != "" {
		t.Errorf("totals mismatch (-want +got):\n%s", diff)
	}

	if w := serve(srv, "GET", "/api/v1/totals?q=year:1999", ""); w.Code != http.StatusBadRequest {
		t.Errorf("out-of-range year status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
