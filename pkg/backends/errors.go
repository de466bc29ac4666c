package backends

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

type Kind int

const (
	KindServerFault Kind = iota
	KindRateLimited
	KindClientFault
	KindMalformedResponse
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate-limited"
	case KindServerFault:
		return "server-fault"
	case KindClientFault:
		return "client-fault"
	case KindMalformedResponse:
		return "malformed-response"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the only error type adapters return for failed calls.
type Error struct {
	Kind       Kind
	StatusCode int
	// Payload is the raw provider body, kept for logging malformed responses.
	Payload string
	Err     error
}

func NewError(kind Kind, statusCode int, payload string, err error) *Error {
	if err == nil {
		err = errors.New(http.StatusText(statusCode))
	}
	return &Error{Kind: kind, StatusCode: statusCode, Payload: payload, Err: err}
}

// FromStatus builds an error whose kind is derived from an HTTP status.
func FromStatus(statusCode int, payload string, err error) *Error {
	return NewError(Classify(statusCode), statusCode, payload, err)
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify maps an HTTP status to an error kind. A zero status means the
// request never got an answer and is treated as a server fault.
func Classify(statusCode int) Kind {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case statusCode == 0,
		statusCode == http.StatusRequestTimeout,
		statusCode >= 500:
		return KindServerFault
	case statusCode >= 400:
		return KindClientFault
	}
	return KindMalformedResponse
}

// KindOf extracts the kind of err. Errors that are not *Error are server faults.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServerFault
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	k := KindOf(err)
	return k == KindRateLimited || k == KindServerFault
}
