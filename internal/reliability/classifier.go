package reliability

import (
	"context"
	"errors"
	"net"
)

// IsRetryableHTTPStatus classifies HTTP status codes worth a manual resend.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsTimeout reports whether err came from a deadline, either the context's or the transport's.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsRetryableTransportError reports whether a transport failure is likely transient.
// Caller cancellation is not.
func IsRetryableTransportError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if IsTimeout(err) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
