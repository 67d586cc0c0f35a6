// Package complaint turns a complaint_ready summary into the pre-fill parameters of the
// incident submission form.
package complaint

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
)

// DefaultKeys is the key set read by the incident submission form.
var DefaultKeys = []string{"title", "category", "description"}

// Materializer maps summaries onto a form's key set. The zero value uses DefaultKeys.
type Materializer struct {
	Keys    []string
	FormURL string
}

// Draft is a materialized complaint ready to hand off.
type Draft struct {
	TurnID string               `json:"turn_id"`
	Params url.Values           `json:"params"`
	URL    string               `json:"url,omitempty"`
	Source conversation.Summary `json:"summary"`
}

// Materialize uses the default key set.
func Materialize(s conversation.Summary) url.Values {
	return Materializer{}.Materialize(s)
}

// Materialize returns the form parameters for s. Blank fields are omitted, never defaulted,
// so the form's own required-field validation still applies.
func (m Materializer) Materialize(s conversation.Summary) url.Values {
	keys := m.Keys
	if len(keys) == 0 {
		keys = DefaultKeys
	}
	out := url.Values{}
	for _, key := range keys {
		if v := strings.TrimSpace(fieldValue(s, key)); v != "" {
			out.Set(key, v)
		}
	}
	return out
}

// Build materializes the summary of a complaint_ready turn and resolves the hand-off URL.
func (m Materializer) Build(turn conversation.Turn) (Draft, error) {
	if turn.Intent != conversation.IntentComplaintReady || turn.Summary == nil {
		return Draft{}, errors.New("complaint: turn carries no complaint draft")
	}
	d := Draft{
		TurnID: turn.ID,
		Params: m.Materialize(*turn.Summary),
		Source: *turn.Summary.Clone(),
	}
	if m.FormURL != "" {
		u, err := HandoffURL(m.FormURL, d.Params)
		if err != nil {
			return Draft{}, err
		}
		d.URL = u
	}
	return d, nil
}

// HandoffURL appends params to base, keeping any query parameters base already has.
func HandoffURL(base string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("complaint: parse form url: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		q.Del(k)
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func fieldValue(s conversation.Summary, key string) string {
	switch key {
	case "title":
		return s.Title
	case "category":
		return s.Category
	case "description":
		return s.Description
	case "evidenceType", "evidence_type":
		return s.EvidenceType
	case "evidenceText", "evidence_text":
		return s.EvidenceText
	case "evidenceUrl", "evidence_url":
		return s.EvidenceURL
	default:
		return s.Extra[key]
	}
}
