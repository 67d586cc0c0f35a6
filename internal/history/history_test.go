package history

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
)

func sampleTurns() []conversation.Turn {
	return []conversation.Turn{
		{ID: "1", Role: conversation.RoleUser, Content: "I think I got a phishing email"},
		{
			ID:      "2",
			Role:    conversation.RoleAssistant,
			Content: "This looks like credential phishing.",
			Intent:  conversation.IntentAnalyzeThreat,
			Analysis: &conversation.Analysis{
				Severity:          "High",
				DetectionSummary:  "Credential harvesting link",
				Playbook:          []string{"Do not click", "Report to CERT"},
				EvidenceToCollect: []string{"Email headers"},
				TechnicalDetails:  &conversation.TechnicalDetails{Indicators: []string{"evil.test"}},
			},
		},
		{ID: "3", Role: conversation.RoleUser, Content: "ACTION:START_COMPLAINT", AttachmentRef: "ref-1"},
		{
			ID:      "4",
			Role:    conversation.RoleAssistant,
			Content: "Your complaint is ready.",
			Intent:  conversation.IntentComplaintReady,
			Summary: &conversation.Summary{Title: "Suspicious Email", Category: "phishing", Description: "Phishing email"},
		},
		{ID: "5", Role: conversation.RoleUser, Content: "what now?"},
		{
			ID:       "6",
			Role:     conversation.RoleAssistant,
			Content:  "Which bank?",
			Intent:   conversation.IntentRequestInformation,
			Question: "Which bank was impersonated?",
		},
	}
}

func TestBuildPreservesOrderAndRoles(t *testing.T) {
	turns := sampleTurns()
	entries, err := Build(turns)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(entries) != len(turns) {
		t.Fatalf("len(entries) = %d, want %d", len(entries), len(turns))
	}
	for i, e := range entries {
		if e.Role != turns[i].Role {
			t.Fatalf("entry %d role = %q, want %q", i, e.Role, turns[i].Role)
		}
		if e.Role == conversation.RoleUser && e.Content != turns[i].Content {
			t.Fatalf("user entry %d content = %q, want %q", i, e.Content, turns[i].Content)
		}
	}
}

func TestAssistantEntriesRoundTrip(t *testing.T) {
	turns := sampleTurns()
	entries, err := Build(turns)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for i, e := range entries {
		if e.Role != conversation.RoleAssistant {
			continue
		}
		got, err := DecodeAssistant(e.Content)
		if err != nil {
			t.Fatalf("DecodeAssistant(entry %d) error = %v", i, err)
		}
		want := turns[i]
		if got.Intent != want.Intent || got.Answer != want.Content || got.Question != want.Question {
			t.Fatalf("entry %d scalar fields = %+v, want turn %+v", i, got, want)
		}
		if !reflect.DeepEqual(got.Analysis, want.Analysis) {
			t.Fatalf("entry %d analysis = %+v, want %+v", i, got.Analysis, want.Analysis)
		}
		if !reflect.DeepEqual(got.Summary, want.Summary) {
			t.Fatalf("entry %d summary = %+v, want %+v", i, got.Summary, want.Summary)
		}
	}
}

func TestErrorTurnOmitsIntent(t *testing.T) {
	content, err := EncodeAssistant(conversation.Turn{Role: conversation.RoleAssistant, Content: "Sorry"})
	if err != nil {
		t.Fatalf("EncodeAssistant() error = %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		t.Fatalf("content is not JSON: %v", err)
	}
	if _, ok := raw["intent"]; ok {
		t.Fatalf("error turn should not carry an intent: %s", content)
	}
	if raw["answer"] != "Sorry" {
		t.Fatalf("answer = %v, want %q", raw["answer"], "Sorry")
	}
}

func TestEncodeEmptyHistory(t *testing.T) {
	got, err := Encode(nil)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if got != "[]" {
		t.Fatalf("Encode(nil) = %q, want %q", got, "[]")
	}
}

func TestEncodeIsJSONArrayOfRoleContent(t *testing.T) {
	got, err := Encode(sampleTurns()[:2])
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	var arr []map[string]string
	if err := json.Unmarshal([]byte(got), &arr); err != nil {
		t.Fatalf("history is not an array of string maps: %v", err)
	}
	if len(arr) != 2 || arr[0]["role"] != "user" || arr[1]["role"] != "assistant" {
		t.Fatalf("unexpected history: %s", got)
	}
}

func TestBuildRejectsUnknownRole(t *testing.T) {
	_, err := Build([]conversation.Turn{{ID: "x", Role: "system"}})
	if err == nil {
		t.Fatalf("Build() expected error for unknown role")
	}
}
