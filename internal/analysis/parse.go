package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
)

var errNoContent = errors.New("response carries no answer, analysis or summary")

// Intent aliases emitted by older classifier prompts.
var intentAliases = map[string]conversation.Intent{
	"ask_complaint_field": conversation.IntentRequestInformation,
	"complaint_filing":    conversation.IntentRequestInformation,
}

// ParseReply validates a classifier body into a Reply. Variant fields that fail validation
// are dropped, so the reply shows no affordance.
func ParseReply(body []byte) (Reply, error) {
	body = bytes.TrimSpace(body)
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		if err == nil {
			err = errors.New("response is not a JSON object")
		}
		return Reply{}, fmt.Errorf("decode response: %w", err)
	}

	r := Reply{
		Intent:   normalizeIntent(stringField(obj, "intent")),
		Text:     firstString(obj, "answer", "response", "question", "message"),
		Question: stringField(obj, "question"),
	}

	a := parseAnalysis(obj)
	if nested, ok := obj["analysis"]; ok && a.Empty() {
		var inner map[string]json.RawMessage
		if json.Unmarshal(nested, &inner) == nil {
			a = parseAnalysis(inner)
		}
	}
	if !a.Empty() {
		r.Analysis = a
	}

	// A variant whose payload fails validation keeps the classifier's intent; the missing
	// payload is what hides the affordance.
	if r.Intent == conversation.IntentComplaintReady {
		r.Summary = parseSummary(obj["summary"])
	}

	if r.Text == "" && r.Analysis != nil {
		r.Text = firstNonEmpty(r.Analysis.UserAlert, r.Analysis.DetectionSummary)
	}
	if r.Text == "" && r.Summary != nil && r.Summary.Title != "" {
		r.Text = "Your complaint draft is ready: " + strings.TrimSpace(r.Summary.Title)
	}
	if r.Text == "" && r.Analysis == nil && r.Summary == nil {
		return Reply{}, errNoContent
	}
	return r, nil
}

func normalizeIntent(raw string) conversation.Intent {
	in := conversation.Intent(strings.ToLower(strings.TrimSpace(raw)))
	if in.Valid() {
		return in
	}
	if alias, ok := intentAliases[string(in)]; ok {
		return alias
	}
	return conversation.IntentGeneralQuestion
}

func parseAnalysis(obj map[string]json.RawMessage) *conversation.Analysis {
	a := &conversation.Analysis{
		Severity:          stringField(obj, "severity"),
		DetectionSummary:  stringField(obj, "detection_summary"),
		UserAlert:         stringField(obj, "user_alert"),
		Playbook:          stringList(obj, "playbook"),
		EvidenceToCollect: stringList(obj, "evidence_to_collect"),
		CertAlert:         stringField(obj, "cert_alert"),
	}
	if raw, ok := obj["technical_details"]; ok {
		var inner map[string]json.RawMessage
		if json.Unmarshal(raw, &inner) == nil {
			td := &conversation.TechnicalDetails{
				Indicators: stringList(inner, "indicators"),
				Analysis:   stringField(inner, "analysis"),
			}
			if len(td.Indicators) > 0 || td.Analysis != "" {
				a.TechnicalDetails = td
			}
		}
	}
	if raw, ok := obj["ui_labels"]; ok {
		var inner map[string]json.RawMessage
		if json.Unmarshal(raw, &inner) == nil {
			l := &conversation.UILabels{
				Category:          stringField(inner, "category"),
				Status:            stringField(inner, "status"),
				RecommendedAction: stringField(inner, "recommended_action"),
			}
			if *l != (conversation.UILabels{}) {
				a.UILabels = l
			}
		}
	}
	return a
}

func parseSummary(raw json.RawMessage) *conversation.Summary {
	if len(raw) == 0 {
		return nil
	}
	var s conversation.Summary
	if err := json.Unmarshal(raw, &s); err != nil || s.Empty() {
		return nil
	}
	return &s
}

func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// stringList accepts either a JSON array of strings or a single string.
func stringList(obj map[string]json.RawMessage, key string) []string {
	raw, ok := obj[key]
	if !ok {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		out := list[:0]
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	if s := stringField(obj, key); s != "" {
		return []string{s}
	}
	return nil
}

func firstString(obj map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if v := stringField(obj, k); v != "" {
			return v
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
