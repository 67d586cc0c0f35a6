package conversation

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSummaryKeepsSourceKeysAndUnknownFields(t *testing.T) {
	in := `{"title":"Phish","evidence_type":"text","evidenceText":"click here","priority":"high","count":3}`

	var s Summary
	if err := json.Unmarshal([]byte(in), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if s.Title != "Phish" || s.EvidenceType != "text" || s.EvidenceText != "click here" {
		t.Fatalf("Summary = %+v", s)
	}
	if s.Extra["priority"] != "high" {
		t.Fatalf("Extra = %v", s.Extra)
	}
	if string(s.Other["count"]) != "3" {
		t.Fatalf("Other = %v", s.Other)
	}

	out, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var want, got map[string]any
	_ = json.Unmarshal([]byte(in), &want)
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("Marshal() = %s, want %s", out, in)
	}
}

func TestSummaryBlankKnownFieldStaysAsSent(t *testing.T) {
	var s Summary
	if err := json.Unmarshal([]byte(`{"title":" ","category":"phishing"}`), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if s.Title != "" || s.Extra["title"] != " " {
		t.Fatalf("blank title should be kept verbatim outside Title: %+v", s)
	}
	if s.Empty() {
		t.Fatalf("Empty() = true for a summary with a category")
	}
	if !(&Summary{}).Empty() {
		t.Fatalf("Empty() = false for a zero summary")
	}
}

func TestSummarySurvivesPersistence(t *testing.T) {
	turns := []Turn{{
		ID:      "t1",
		Role:    RoleAssistant,
		Intent:  IntentComplaintReady,
		Content: "ready",
		Summary: &Summary{
			Title:        "Phish",
			EvidenceType: "text",
			Extra:        map[string]string{"priority": "high"},
			SourceKeys:   map[string]string{"evidenceType": "evidence_type"},
		},
	}}
	blob, err := Encode(turns)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !reflect.DeepEqual(got[0].Summary, turns[0].Summary) {
		t.Fatalf("Summary = %+v, want %+v", got[0].Summary, turns[0].Summary)
	}
}
