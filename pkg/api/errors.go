package api

import (
	"context"
	"errors"
	"net/http"

	"smartwallet/pkg/entities"
	"smartwallet/pkg/ledger"
	"smartwallet/pkg/resilience"

	"go.uber.org/zap"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Available string `json:"available,omitempty"`
	Requested string `json:"requested,omitempty"`
}

// statusFor maps an error to its HTTP status. Open breakers are checked
// first because they surface wrapped in a StorageError.
func statusFor(err error) int {
	switch {
	case resilience.IsCircuitOpen(err), resilience.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case ledger.IsClientError(err):
		return clientStatus(err)
	case errors.Is(err, entities.ErrInvalidEntity), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func clientStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrAccountsNotFound), errors.Is(err, ledger.ErrEntityNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	code := ledger.ClassifyError(err)
	switch {
	case resilience.IsCircuitOpen(err):
		code = "unavailable"
	case errors.Is(err, errBadRequest), errors.Is(err, entities.ErrInvalidEntity):
		code = "invalid_input"
	}

	resp := errorResponse{Error: err.Error(), Code: code}
	var funds *ledger.InsufficientFundsError
	if errors.As(err, &funds) {
		resp.Available = funds.Available.String()
		resp.Requested = funds.Requested.String()
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}

	writeJSON(w, status, resp)
}
