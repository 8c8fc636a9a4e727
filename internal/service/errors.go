package service

import (
	"errors"
	"fmt"
)

// Kind classifies errors crossing the service boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindNotFound
	KindDelivery
	KindRateLimited
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindDelivery:
		return "delivery"
	case KindRateLimited:
		return "rate_limited"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error is what services return to handlers. Message is safe to show to
// clients; Err is the cause and only goes to logs.
type Error struct {
	Kind    Kind
	Message string
	// Status overrides the HTTP status derived from Kind. Set only when an
	// upstream status is passed through.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a service error from err. Anything else is internal.
func AsError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Kind: KindInternal, Message: "internal server error", Err: err}
}

// reason is why an operation failed, as seen from inside the service.
type reason int

const (
	reasonUnknownEmail reason = iota
	reasonPasswordMismatch
	reasonCodeRejected
	reasonTokenInvalid
	reasonUserVanished
	reasonAccountNotFound
	reasonDeliveryFailed
	reasonUpstreamUnreachable
	reasonUpstreamRejected
	reasonInternal
)

var ErrInvalidOrExpired = errors.New("verification code invalid or expired")

// publicError maps an internal reason to the error clients see. Reasons that
// must be indistinguishable share one message.
func publicError(r reason, cause error) *Error {
	switch r {
	case reasonUnknownEmail, reasonPasswordMismatch:
		return &Error{Kind: KindAuthentication, Message: "invalid credentials", Err: cause}
	case reasonCodeRejected:
		return &Error{Kind: KindAuthentication, Message: "invalid or expired code", Err: cause}
	case reasonTokenInvalid:
		return &Error{Kind: KindAuthentication, Message: "invalid token", Err: cause}
	case reasonUserVanished:
		return &Error{Kind: KindNotFound, Message: "user not found", Err: cause}
	case reasonAccountNotFound:
		return &Error{Kind: KindNotFound, Message: "account not found", Err: cause}
	case reasonDeliveryFailed:
		return &Error{Kind: KindDelivery, Message: "failed to send verification code", Err: cause}
	case reasonUpstreamUnreachable:
		return &Error{Kind: KindUpstream, Message: "failed to reach n8n", Err: cause}
	case reasonUpstreamRejected:
		return &Error{Kind: KindUpstream, Message: "n8n rejected the request", Err: cause}
	default:
		return &Error{Kind: KindInternal, Message: "internal server error", Err: cause}
	}
}

func validationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}
