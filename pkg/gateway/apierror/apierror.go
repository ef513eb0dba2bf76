package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/veerhq/voicekit/pkg/voice"
)

// Error is the wire shape for HTTP error responses.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Param     string `json:"param,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type Envelope struct {
	Error *Error `json:"error"`
}

// FromError maps an error to its canonical wire shape and HTTP status.
func FromError(err error, requestID string) (*Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Code:      "timeout",
			Message:   "request timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &Error{
			Code:      "cancelled",
			Message:   "request cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	var voiceErr *voice.Error
	if errors.As(err, &voiceErr) && voiceErr != nil {
		out := &Error{
			Code:      string(voiceErr.Kind),
			Message:   voiceErr.Message,
			RequestID: requestID,
		}
		if out.Message == "" && voiceErr.Err != nil {
			out.Message = voiceErr.Err.Error()
		}
		switch voiceErr.Kind {
		case voice.ErrUnsupported:
			return out, http.StatusNotImplemented
		case voice.ErrListener, voice.ErrSynthesis:
			return out, http.StatusBadGateway
		default:
			return out, http.StatusInternalServerError
		}
	}

	// Unknown errors: treat as internal (do not leak details by default).
	return &Error{
		Code:      "internal",
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func BadRequest(message, param, requestID string) *Error {
	return &Error{Code: "bad_request", Message: message, Param: param, RequestID: requestID}
}

func MethodNotAllowed(requestID string) *Error {
	return &Error{Code: "method_not_allowed", Message: "method not allowed", RequestID: requestID}
}

func NotFound(requestID string) *Error {
	return &Error{Code: "not_found", Message: "not found", RequestID: requestID}
}

func Forbidden(message, param, requestID string) *Error {
	return &Error{Code: "forbidden", Message: message, Param: param, RequestID: requestID}
}

func Internal(message, requestID string) *Error {
	return &Error{Code: "internal", Message: message, RequestID: requestID}
}
