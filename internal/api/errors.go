package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/wesm/contractlens/internal/filter"
	"github.com/wesm/contractlens/internal/query"
)

// statusForError maps an engine error to an HTTP status and error code.
func statusForError(err error) (int, string) {
	var ve *filter.ValidationError
	var te *query.TimeoutError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation_error"
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case query.IsInconsistency(err):
		return http.StatusInternalServerError, "internal_inconsistency"
	case errors.Is(err, query.ErrCancelled), errors.Is(err, context.Canceled):
		return http.StatusConflict, "cancelled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeQueryError logs err at the level its kind deserves and writes the
// matching error response. Server-side failures are not echoed to the
// client.
func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusForError(err)
	resp := ErrorResponse{Error: code, Message: err.Error()}

	switch code {
	case "validation_error":
		var ve *filter.ValidationError
		if errors.As(err, &ve) {
			resp.Field = ve.Field
		}
		s.logger.Debug("rejected request", "op", op, "error", err)
	case "timeout", "cancelled":
		s.logger.Warn("query did not complete", "op", op, "error", err)
	case "internal_inconsistency":
		s.logger.Error("snapshot inconsistency", "op", op, "error", err)
		resp.Message = "Snapshot data is inconsistent"
	default:
		s.logger.Error("query failed", "op", op, "path", r.URL.Path, "error", err)
		resp.Message = "Query failed"
	}
	writeJSON(w, status, resp)
}
