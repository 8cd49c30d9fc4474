package errors

import "net/http"

type HTTPError interface {
	error
	StatusCode() int
}

type apiError struct {
	msg  string
	code int
}

func (e *apiError) Error() string   { return e.msg }
func (e *apiError) StatusCode() int { return e.code }

var (
	ErrSlotInFuture = &apiError{msg: "slot in future", code: http.StatusBadRequest}
	ErrSlotNotFound = &apiError{msg: "slot not found", code: http.StatusNotFound}
	ErrNoData       = &apiError{msg: "no statistics collected yet", code: http.StatusNotFound}
	ErrInvalidLimit = &apiError{msg: "invalid limit", code: http.StatusBadRequest}

	ErrNothingToCollect = &apiError{msg: "no finalized epochs to collect", code: http.StatusConflict}
	ErrShapeMismatch    = &apiError{msg: "record does not match the ethereum shape", code: http.StatusUnprocessableEntity}

	ErrBeaconRejected = &apiError{msg: "beacon node rejected the request", code: http.StatusBadGateway}
	ErrRequestTimeout = &apiError{msg: "request timed out", code: http.StatusGatewayTimeout}
)
