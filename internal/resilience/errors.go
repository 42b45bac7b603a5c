// Package resilience classifies platform failures into transient transport errors, which
// may be retried, and permanent rejections, which must never be retried.
package resilience

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// TransportError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransportError struct {
	Err        error
	StatusCode int
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps an error as transient with an optional HTTP status code.
func NewTransportError(err error, statusCode int) *TransportError {
	return &TransportError{Err: err, StatusCode: statusCode}
}

// RejectionError is a permanent refusal from a platform: invalid destination, unknown
// template, opted-out recipient. Retrying it repeats the side effect or the failure.
type RejectionError struct {
	Platform   string
	Reason     string
	StatusCode int
}

func (e *RejectionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: rejected (%d): %s", e.Platform, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("%s: rejected: %s", e.Platform, e.Reason)
}

// NewRejectionError builds a permanent platform rejection.
func NewRejectionError(platform, reason string, statusCode int) *RejectionError {
	return &RejectionError{Platform: platform, Reason: reason, StatusCode: statusCode}
}

// IsRejection reports whether err (or any error in its chain) is a RejectionError.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}

// networkFailures are error texts from the net stack that outlive wrapping by clients
// which only keep the message.
var networkFailures = []string{
	"connection reset by peer",
	"connection refused",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"tls handshake timeout",
}

// IsTransient reports whether a platform call may succeed if repeated: a TransportError,
// a network timeout or a dropped connection. A rejection is never transient.
func IsTransient(err error) bool {
	if err == nil || IsRejection(err) {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, errno := range []error{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.EPIPE} {
		if errors.Is(err, errno) {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, f := range networkFailures {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether a platform response status is worth retrying.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// FromHTTPStatus classifies a non-2xx platform response. 4xx other than 408/429 is a
// rejection; everything else is a transport failure.
func FromHTTPStatus(platform string, statusCode int, body string) error {
	if statusCode >= 400 && statusCode < 500 && !IsTransientHTTPStatus(statusCode) {
		return NewRejectionError(platform, strings.TrimSpace(body), statusCode)
	}
	return NewTransportError(fmt.Errorf("%s: unexpected status %d: %s", platform, statusCode, body), statusCode)
}
