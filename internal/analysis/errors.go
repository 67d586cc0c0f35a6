package analysis

import (
	"fmt"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/reliability"
)

// Kind classifies analysis failures.
type Kind string

const (
	KindTransport  Kind = "transport"
	KindServer     Kind = "server"
	KindMalformed  Kind = "malformed_response"
	KindAttachment Kind = "attachment"
)

// Error is the single failure type surfaced by analyzers. Every kind is handled the same
// way by the router: a visible assistant error turn plus a notification.
type Error struct {
	Kind   Kind
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("analysis %s (status %d): %v", e.Kind, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("analysis %s (status %d): %s", e.Kind, e.Status, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("analysis %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("analysis %s: %s", e.Kind, e.Detail)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage is a best-effort detail string safe to show in the conversation.
func (e *Error) UserMessage() string {
	if e.Detail != "" {
		return e.Detail
	}
	switch e.Kind {
	case KindTransport:
		if reliability.IsTimeout(e.Err) {
			return "The analysis service took too long to respond."
		}
		return "The analysis service could not be reached."
	case KindServer:
		return fmt.Sprintf("The analysis service returned an error (HTTP %d).", e.Status)
	case KindMalformed:
		return "The analysis service returned a response that could not be read."
	case KindAttachment:
		return "The attachment could not be read."
	default:
		return "Unexpected error."
	}
}

// Retryable hints whether sending the same message again may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport:
		return reliability.IsRetryableTransportError(e.Err)
	case KindServer:
		return reliability.IsRetryableHTTPStatus(e.Status)
	default:
		return false
	}
}

// NewAttachmentError reports a capture or read failure of a user upload.
func NewAttachmentError(detail string, err error) *Error {
	return &Error{Kind: KindAttachment, Detail: detail, Err: err}
}
