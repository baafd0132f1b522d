package server

import (
	"encoding/json"
	"net/http"

	"github.com/rpistatus/host/internal/controller"
	"github.com/rpistatus/host/internal/errors"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// ControllerCode is the controller's response byte for
	// "controller.rejected" errors.
	ControllerCode *uint8 `json:"controller_code,omitempty"`
}

// OKResponse is the body of a successful control request.
type OKResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// httpStatus maps a coded error to its HTTP status.
func httpStatus(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeControllerConnect:
		return http.StatusServiceUnavailable
	case errors.CodeControllerTimeout:
		return http.StatusGatewayTimeout
	case errors.CodeControllerRejected, errors.CodeControllerInvalidResponse:
		return http.StatusBadGateway
	case errors.CodeServerInvalidRequest:
		return http.StatusBadRequest
	case errors.CodeServerRateLimited:
		return http.StatusTooManyRequests
	case errors.CodeControllerAddress, errors.CodeControllerAuth,
		errors.CodeControllerIO, errors.CodeControllerInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// retryAfterSecs is sent with rate-limited and connectivity-class errors.
const retryAfterSecs = "1"

// writeError writes err as an ErrorResponse with its mapped status. Errors
// the caller may simply retry also carry Retry-After.
func writeError(w http.ResponseWriter, err error) {
	if errors.IsRetryable(err) || errors.IsCode(err, errors.CodeServerRateLimited) {
		w.Header().Set("Retry-After", retryAfterSecs)
	}
	code, msg := errors.ToCodeAndMessage(err)
	resp := ErrorResponse{Code: code, Message: msg}
	if rc, ok := controller.RejectedCode(err); ok {
		resp.ControllerCode = &rc
	}
	writeJSON(w, httpStatus(err), resp)
}

func writeRateLimited(w http.ResponseWriter) {
	writeError(w, errors.New(errors.CodeServerRateLimited, "too many control requests"))
}
