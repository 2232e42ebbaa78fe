package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/wesm/contractlens/internal/export"
	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/query"
	"github.com/wesm/contractlens/internal/scheduler"
	"github.com/wesm/contractlens/internal/search"
	"github.com/wesm/contractlens/internal/snapshot"
)

// Response headers set on CSV exports.
const (
	headerExportJob     = "X-Export-Job"
	headerEstimatedRows = "X-Export-Estimated-Rows"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(snapshot.DateLayout)
}

// decodeParams reads the JSON request body. An empty body is the empty
// filter.
func decodeParams(w http.ResponseWriter, r *http.Request) (query.Params, error) {
	var p query.Params
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return p, &filter.ValidationError{Field: "body", Reason: err.Error()}
	}
	return p, nil
}

// queryChips parses the q parameter, written in the search query language,
// into a chip set. An absent q is the empty filter.
func (s *Server) queryChips(r *http.Request) (*filter.ChipSet, error) {
	domain := s.engine.Domain()
	raw, err := search.ParseRaw(r.URL.Query().Get("q"), domain)
	if err != nil {
		return nil, err
	}
	return filter.Normalize(raw, domain)
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &filter.ValidationError{Field: name, Value: v, Reason: "must be an integer"}
	}
	return n, nil
}

func dimensionParam(r *http.Request, name string) (snapshot.Dimension, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", &filter.ValidationError{Field: name, Reason: "is required"}
	}
	d, err := snapshot.ParseDimension(v)
	if err != nil {
		return "", &filter.ValidationError{Field: name, Value: v, Reason: "unknown dimension"}
	}
	return d, nil
}

func (s *Server) requireEngine(w http.ResponseWriter) bool {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "engine_unavailable", "No snapshot loaded")
		return false
	}
	return true
}

// handleSearch returns raw contracts, or aggregate rows when a dimension
// is given.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	p, err := decodeParams(w, r)
	if err != nil {
		s.writeQueryError(w, r, "search", err)
		return
	}
	req, err := p.Request(s.engine.Domain(), s.limits(), false)
	if err != nil {
		s.writeQueryError(w, r, "search", err)
		return
	}

	res, err := s.engine.Search(r.Context(), req)
	if err != nil {
		s.writeQueryError(w, r, "search", err)
		return
	}

	resp := SearchResponse{
		Dimension:  string(req.Dimension),
		TotalCount: res.TotalCount,
		Plan:       toPlanResponse(res.Plan),
	}
	if req.Raw() {
		resp.Contracts = toContractResponses(res.Contracts)
	} else {
		resp.Rows = toRowResponses(res.Rows, decimal.Zero)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAggregate returns one window of rows for a dimension together with
// the global totals for the same time range.
func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	p, err := decodeParams(w, r)
	if err != nil {
		s.writeQueryError(w, r, "aggregate", err)
		return
	}
	if p.Dimension == "" {
		s.writeQueryError(w, r, "aggregate", &filter.ValidationError{Field: "dimension", Reason: "is required"})
		return
	}
	req, err := p.Request(s.engine.Domain(), s.limits(), false)
	if err != nil {
		s.writeQueryError(w, r, "aggregate", err)
		return
	}

	res, err := s.engine.Aggregate(r.Context(), req)
	if err != nil {
		s.writeQueryError(w, r, "aggregate", err)
		return
	}

	writeJSON(w, http.StatusOK, AggregateResponse{
		Dimension:    string(req.Dimension),
		Rows:         toRowResponses(res.Rows, res.GlobalTotals.Total),
		TotalCount:   res.TotalCount,
		GlobalTotals: toTotalsResponse(res.GlobalTotals),
		Plan:         toPlanResponse(res.Plan),
	})
}

// handleEstimate sizes an export without producing it.
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	p, err := decodeParams(w, r)
	if err != nil {
		s.writeQueryError(w, r, "estimate", err)
		return
	}
	req, err := p.Request(s.engine.Domain(), s.limits(), true)
	if err != nil {
		s.writeQueryError(w, r, "estimate", err)
		return
	}

	est, err := export.EstimateExport(r.Context(), s.engine, req, s.widths())
	if err != nil {
		s.writeQueryError(w, r, "estimate", err)
		return
	}
	writeJSON(w, http.StatusOK, EstimateResponse{
		RowCount:       est.RowCount,
		EstimatedBytes: est.Bytes,
		Columns:        est.Header,
	})
}

// countingWriter records whether any byte reached the client.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// handleExport streams the request as CSV. The job ID and the estimated
// row count are sent as headers before the first row so a client can show
// progress and cancel through /exports/{id}.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	p, err := decodeParams(w, r)
	if err != nil {
		s.writeQueryError(w, r, "export", err)
		return
	}
	req, err := p.Request(s.engine.Domain(), s.limits(), true)
	if err != nil {
		s.writeQueryError(w, r, "export", err)
		return
	}
	req = query.Pin(s.engine, req)

	est, err := export.EstimateExport(r.Context(), s.engine, req, s.widths())
	if err != nil {
		s.writeQueryError(w, r, "export", err)
		return
	}

	job := s.jobs.Start(req, *est)
	defer s.jobs.Remove(job.ID)

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	filename := "contracts.csv"
	if !req.Raw() {
		filename = string(req.Dimension) + ".csv"
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set(headerExportJob, job.ID)
	w.Header().Set(headerEstimatedRows, strconv.FormatInt(est.RowCount, 10))

	cw := &countingWriter{w: w}
	n, err := s.streamer.Stream(r.Context(), job, cw, func(int64, int64) { _ = rc.Flush() })
	switch {
	case err == nil:
	case cw.n == 0:
		// Nothing sent yet, so the error can still become a JSON response.
		w.Header().Del("Content-Disposition")
		s.writeQueryError(w, r, "export", err)
	case errors.Is(err, query.ErrCancelled):
		s.logger.Info("export stream cancelled", "job", job.ID, "rows", n)
	default:
		s.logger.Error("export stream failed", "job", job.ID, "rows", n, "error", err)
	}
}

// handleListExports lists running exports.
func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ExportsResponse{Exports: s.jobs.List()})
}

// handleExportStatus reports a running export's progress.
func (s *Server) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Export not found or already finished")
		return
	}
	writeJSON(w, http.StatusOK, job.Status())
}

// handleCancelExport asks a running export to stop at its next batch.
func (s *Server) handleCancelExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.jobs.Cancel(id) {
		writeError(w, http.StatusNotFound, "not_found", "Export not found or already finished")
		return
	}
	s.logger.Info("export cancel requested", "job", id)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "cancelling",
		"message": "Export " + id + " will stop at the next batch",
	})
}

// handleFilterOptions lists entity names for one dimension.
func (s *Server) handleFilterOptions(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	d, err := dimensionParam(r, "dimension")
	if err != nil {
		s.writeQueryError(w, r, "filter_options", err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeQueryError(w, r, "filter_options", err)
		return
	}
	if limit <= 0 || limit > s.cfg.Query.MaxPageSize {
		limit = s.cfg.Query.DefaultPageSize
	}

	opts, err := s.engine.FilterOptions(r.Context(), d, r.URL.Query().Get("prefix"), limit)
	if err != nil {
		s.writeQueryError(w, r, "filter_options", err)
		return
	}
	out := make([]FilterOptionResponse, len(opts))
	for i, o := range opts {
		out[i] = FilterOptionResponse{Name: o.Name, Count: o.Count, TotalValue: o.Total.StringFixed(2)}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dimension": string(d),
		"options":   out,
	})
}

// handleRelated drills down from one entity into another dimension.
func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	q := r.URL.Query()
	source, err := dimensionParam(r, "source")
	if err != nil {
		s.writeQueryError(w, r, "related", err)
		return
	}
	target, err := dimensionParam(r, "target")
	if err != nil {
		s.writeQueryError(w, r, "related", err)
		return
	}
	value := q.Get("value")
	if value == "" {
		s.writeQueryError(w, r, "related", &filter.ValidationError{Field: "value", Reason: "is required"})
		return
	}
	chips, err := s.queryChips(r)
	if err != nil {
		s.writeQueryError(w, r, "related", err)
		return
	}
	sortField, dir, err := query.ParseSort(q.Get("sort"), q.Get("direction"))
	if err != nil {
		s.writeQueryError(w, r, "related", err)
		return
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		s.writeQueryError(w, r, "related", err)
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeQueryError(w, r, "related", err)
		return
	}
	win, err := filter.NormalizeWindow(filter.RawWindow{Offset: offset, Limit: limit}, s.limits(), false)
	if err != nil {
		s.writeQueryError(w, r, "related", err)
		return
	}

	res, err := s.engine.RelatedEntities(r.Context(), query.RelatedRequest{
		Source:    source,
		Value:     value,
		Target:    target,
		Chips:     chips,
		Sort:      sortField,
		Direction: dir,
		Window:    &win,
	})
	if err != nil {
		s.writeQueryError(w, r, "related", err)
		return
	}
	writeJSON(w, http.StatusOK, AggregateResponse{
		Dimension:    string(target),
		Rows:         toRowResponses(res.Rows, res.GlobalTotals.Total),
		TotalCount:   res.TotalCount,
		GlobalTotals: toTotalsResponse(res.GlobalTotals),
		Plan:         toPlanResponse(res.Plan),
	})
}

// handleTimeRanges lists the years and quarters in the snapshot.
func (s *Server) handleTimeRanges(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	tr, err := s.engine.TimeRanges(r.Context())
	if err != nil {
		s.writeQueryError(w, r, "time_ranges", err)
		return
	}
	writeJSON(w, http.StatusOK, TimeRangesResponse{
		MinDate:  formatDate(tr.MinDate),
		MaxDate:  formatDate(tr.MaxDate),
		Years:    toPeriodResponses(tr.Years),
		Quarters: toPeriodResponses(tr.Quarters),
	})
}

// handleTotals returns the global totals for the time ranges in q.
func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	if !s.requireEngine(w) {
		return
	}
	chips, err := s.queryChips(r)
	if err != nil {
		s.writeQueryError(w, r, "totals", err)
		return
	}
	t, err := s.engine.GlobalTotals(r.Context(), chips)
	if err != nil {
		s.writeQueryError(w, r, "totals", err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsResponse(*t))
}

// handleSchedulerStatus returns the scheduler status.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, SchedulerStatusResponse{Jobs: []JobStatus{}})
		return
	}
	writeJSON(w, http.StatusOK, SchedulerStatusResponse{
		Running: s.scheduler.IsRunning(),
		Jobs:    s.scheduler.Status(),
	})
}

// handleReload triggers an immediate snapshot refresh.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler_unavailable", "Snapshot refresh is not scheduled")
		return
	}
	if err := s.scheduler.Trigger(scheduler.SnapshotReloadJob); err != nil {
		s.logger.Error("failed to trigger snapshot reload", "error", err)
		writeError(w, http.StatusConflict, "reload_error", err.Error())
		return
	}
	s.logger.Info("snapshot reload triggered via API")
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Snapshot reload started",
	})
}
