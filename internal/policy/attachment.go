package policy

import (
	"fmt"
	"mime"
	"strings"
)

// AttachmentDecision is the outcome of checking a user upload before it is sent.
type AttachmentDecision struct {
	Allowed bool
	Kind    string
	Reason  string
}

// Evidence kinds accepted by the incident form.
var attachmentKinds = map[string]string{
	"image/":           "image",
	"audio/":           "audio",
	"video/":           "video",
	"application/pdf":  "file",
	"text/plain":       "text",
	"message/rfc822":   "file",
	"application/json": "file",
}

// CheckAttachment validates the declared content type and size of an upload.
func CheckAttachment(contentType string, size, maxBytes int64) AttachmentDecision {
	if size <= 0 {
		return AttachmentDecision{Reason: "attachment is empty"}
	}
	if maxBytes > 0 && size > maxBytes {
		return AttachmentDecision{Reason: fmt.Sprintf("attachment is %d bytes, limit is %d", size, maxBytes)}
	}

	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(contentType))
	if err != nil {
		return AttachmentDecision{Reason: fmt.Sprintf("unreadable content type %q", contentType)}
	}
	mediaType = strings.ToLower(mediaType)
	for prefix, kind := range attachmentKinds {
		if strings.HasSuffix(prefix, "/") && strings.HasPrefix(mediaType, prefix) {
			return AttachmentDecision{Allowed: true, Kind: kind}
		}
		if mediaType == prefix {
			return AttachmentDecision{Allowed: true, Kind: kind}
		}
	}
	return AttachmentDecision{Reason: fmt.Sprintf("content type %q is not accepted", mediaType)}
}
