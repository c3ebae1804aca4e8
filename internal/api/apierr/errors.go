package apierr

import (
	"errors"
	"net/http"

	"github.com/mcoot/gamelobby-go/internal/wire"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// statusByCode maps wire error codes onto HTTP statuses
var statusByCode = map[string]int{
	wire.CodeBadRequest:            http.StatusBadRequest,
	wire.CodeAuthRequired:          http.StatusUnauthorized,
	wire.CodeConflict:              http.StatusConflict,
	wire.CodeAlreadyLoggedIn:       http.StatusConflict,
	wire.CodeNotFound:              http.StatusNotFound,
	wire.CodeForbidden:             http.StatusForbidden,
	wire.CodeFull:                  http.StatusConflict,
	wire.CodeInGame:                http.StatusConflict,
	wire.CodePrivate:               http.StatusForbidden,
	wire.CodeNoInvite:              http.StatusNotFound,
	wire.CodeUnknownGame:           http.StatusNotFound,
	wire.CodeAlreadyIn:             http.StatusConflict,
	wire.CodeOversizeFrame:         http.StatusRequestEntityTooLarge,
	wire.CodeDownstreamUnavailable: http.StatusServiceUnavailable,
	wire.CodeTimeout:               http.StatusGatewayTimeout,
	wire.CodeTransportClosed:       http.StatusBadGateway,
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	writeJSON(w, he.status, ErrorResponse{Error: he.apiError})
}

// toHTTPError converts an error to an httpError. Errors are classified by
// their wire code, so replies relayed from the database map the same way
// as local sentinels.
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	code := wire.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		return &httpError{http.StatusInternalServerError, APIError{wire.CodeInternal, "Internal server error"}}
	}
	message := err.Error()
	var remote *wire.RemoteError
	if errors.As(err, &remote) {
		message = remote.Message
	}
	return &httpError{status, APIError{code, message}}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := wire.Marshal(body)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{wire.CodeBadRequest, message}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{wire.CodeInternal, "Internal server error"}}
}
