package emitter

import (
	"errors"
	"fmt"
)

// Kind classifies a failed delivery.
type Kind string

// Delivery failure kinds.
const (
	KindValidation  Kind = "validation"
	KindRateLimited Kind = "rate_limited"
	KindServerError Kind = "server_error"
	KindTransport   Kind = "transport"
)

// Sentinel errors matched by DeliveryError through errors.Is.
var (
	// ErrValidation is returned when the backend rejects the payload (4xx).
	ErrValidation = errors.New("lineage events rejected by backend")

	// ErrRateLimited is returned when the backend answers 429.
	ErrRateLimited = errors.New("rate limited by backend")

	// ErrServer is returned for 5xx and unexpected status codes.
	ErrServer = errors.New("backend server error")

	// ErrTransport is returned when no response was received: connection
	// refused, DNS, TLS or timeout.
	ErrTransport = errors.New("lineage transport failure")

	// ErrNoEvents is returned when Send is called with an empty batch.
	ErrNoEvents = errors.New("no lineage events to send")

	// ErrInvalidEndpoint is returned when the endpoint is not an absolute
	// http(s) URL.
	ErrInvalidEndpoint = errors.New("invalid lineage endpoint")
)

// maxBodyExcerpt bounds the response body kept on a DeliveryError.
const maxBodyExcerpt = 500

// DeliveryError describes a failed delivery attempt.
type DeliveryError struct {
	Kind Kind

	// StatusCode is zero for transport failures.
	StatusCode int

	// Body holds at most the first 500 bytes of the response body.
	Body string

	// Endpoint is the target URL with credentials removed.
	Endpoint string

	// Err is the underlying client error for transport failures.
	Err error
}

func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("%s: POST %s", e.Kind.sentinel(), e.Endpoint)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying client error.
func (e *DeliveryError) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindRateLimited:
		return ErrRateLimited
	case KindTransport:
		return ErrTransport
	default:
		return ErrServer
	}
}

// KindOf returns the delivery kind of err, or "" when err is not a
// DeliveryError.
func KindOf(err error) Kind {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func excerpt(body []byte) string {
	if len(body) > maxBodyExcerpt {
		body = body[:maxBodyExcerpt]
	}
	return string(body)
}
