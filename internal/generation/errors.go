package generation

import (
	"errors"
	"fmt"
)

// Kind classifies a transport failure for the retry policy.
type Kind int

const (
	// KindUnknown is an opaque upstream fault. It is never retried.
	KindUnknown Kind = iota
	// KindRateLimited signals a rate-limit or quota response. It is retried with backoff.
	KindRateLimited
	// KindInvalidRequest signals malformed input or arguments. It is never retried.
	KindInvalidRequest
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindInvalidRequest:
		return "invalid_request"
	default:
		return "unknown"
	}
}

var (
	// ErrQuotaExhausted is returned once a rate-limited call has used its retry budget.
	ErrQuotaExhausted = errors.New("generation quota exhausted")
	// ErrInvalidRequest is returned for requests the service rejected as malformed.
	ErrInvalidRequest = errors.New("invalid generation request")
	// ErrEmptyResponse indicates the service answered without usable content.
	ErrEmptyResponse = errors.New("empty generation response")
)

// Error is a classified transport failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports invalid-request failures as ErrInvalidRequest.
func (e *Error) Is(target error) bool {
	return target == ErrInvalidRequest && e.Kind == KindInvalidRequest
}

// RateLimited marks err as a rate-limit failure.
func RateLimited(err error) error {
	return &Error{Kind: KindRateLimited, Err: err}
}

// InvalidRequest marks err as a malformed-request failure.
func InvalidRequest(err error) error {
	return &Error{Kind: KindInvalidRequest, Err: err}
}

// Classify returns the failure kind carried by err. Errors that were not
// classified by a transport are KindUnknown.
func Classify(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnknown
}

// IsQuotaExhausted reports whether err ended a retry budget on rate limiting.
func IsQuotaExhausted(err error) bool {
	return errors.Is(err, ErrQuotaExhausted)
}
