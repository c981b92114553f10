package gateway

import (
	"errors"

	"github.com/pulse-os/pulse-observer/internal/policy"
)

// Envelope kinds.
const (
	KindOK     = "ok"
	KindDenied = "denied"
	KindError  = "error"
)

// Error codes carried in ErrorDetail.
const (
	CodeCancelled          = "cancelled"
	CodeNotFound           = "not_found"
	CodeStorageUnavailable = "storage_unavailable"
	CodeInvalidArgument    = "invalid_argument"
	CodeInternal           = "internal"
)

// Envelope is the wire shape of every operation result. Exactly one of
// Result, the denial fields or Error is populated according to Kind.
type Envelope struct {
	Kind           string       `json:"kind"`
	Result         any          `json:"result,omitempty"`
	Code           policy.Code  `json:"code,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	InvalidColumns []string     `json:"invalid_columns,omitempty"`
	Error          *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail describes an operational failure.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// OK wraps a successful result.
func OK(result any) Envelope {
	return Envelope{Kind: KindOK, Result: result}
}

// IsFailure reports whether the envelope is a denial or an error.
func (e Envelope) IsFailure() bool { return e.Kind != KindOK }

// FromError maps err onto the envelope taxonomy. Denials keep their
// policy code and reason. Storage causes are logged by the gateway and
// never returned to the caller.
func FromError(err error) Envelope {
	if err == nil {
		return OK(nil)
	}

	var denied *policy.DeniedError
	switch {
	case errors.Is(err, ErrCancelled):
		return errorEnvelope(CodeCancelled, err, false)
	case errors.As(err, &denied):
		return Envelope{
			Kind:           KindDenied,
			Code:           denied.Decision.Code,
			Reason:         denied.Decision.Reason,
			InvalidColumns: denied.Decision.InvalidColumns,
		}
	case errors.Is(err, ErrNotFound):
		return errorEnvelope(CodeNotFound, err, false)
	case errors.Is(err, ErrStorageUnavailable):
		return Envelope{Kind: KindError, Error: &ErrorDetail{
			Code:      CodeStorageUnavailable,
			Message:   "storage unavailable; retry later",
			Retryable: true,
		}}
	case errors.Is(err, ErrInvalidArgument):
		return errorEnvelope(CodeInvalidArgument, err, false)
	default:
		return errorEnvelope(CodeInternal, err, false)
	}
}

func errorEnvelope(code string, err error, retryable bool) Envelope {
	return Envelope{Kind: KindError, Error: &ErrorDetail{
		Code:      code,
		Message:   err.Error(),
		Retryable: retryable,
	}}
}
