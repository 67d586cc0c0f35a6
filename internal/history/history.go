// Package history rebuilds the conversation-so-far in the shape the classifier expects.
//
// Assistant turns are re-encoded as the structured object the classifier originally
// returned so it can use its own prior output as context. The full history is sent on
// every turn; nothing is truncated or reordered.
package history

import (
	"encoding/json"
	"fmt"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
)

// Entry is one element of the history array.
type Entry struct {
	Role    conversation.Role `json:"role"`
	Content string            `json:"content"`
}

// AssistantPayload is the structured object carried in an assistant entry's content.
type AssistantPayload struct {
	Intent   conversation.Intent    `json:"intent,omitempty"`
	Analysis *conversation.Analysis `json:"analysis,omitempty"`
	Answer   string                 `json:"answer"`
	Summary  *conversation.Summary  `json:"summary,omitempty"`
	Question string                 `json:"question,omitempty"`
}

// Build converts turns, in order, into history entries.
func Build(turns []conversation.Turn) ([]Entry, error) {
	out := make([]Entry, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case conversation.RoleUser:
			out = append(out, Entry{Role: conversation.RoleUser, Content: t.Content})
		case conversation.RoleAssistant:
			content, err := EncodeAssistant(t)
			if err != nil {
				return nil, err
			}
			out = append(out, Entry{Role: conversation.RoleAssistant, Content: content})
		default:
			return nil, fmt.Errorf("history: turn %s has unknown role %q", t.ID, t.Role)
		}
	}
	return out, nil
}

// Encode builds the history and marshals it as the JSON array sent in the history field.
func Encode(turns []conversation.Turn) (string, error) {
	entries, err := Build(turns)
	if err != nil {
		return "", err
	}
	return Marshal(entries)
}

// Marshal renders entries as a JSON array; an empty history is "[]".
func Marshal(entries []Entry) (string, error) {
	if entries == nil {
		entries = []Entry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("history: marshal: %w", err)
	}
	return string(raw), nil
}

// EncodeAssistant renders an assistant turn as its structured payload string.
func EncodeAssistant(t conversation.Turn) (string, error) {
	p := AssistantPayload{
		Intent:   t.Intent,
		Analysis: t.Analysis,
		Answer:   t.Content,
		Summary:  t.Summary,
		Question: t.Question,
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("history: encode assistant turn %s: %w", t.ID, err)
	}
	return string(raw), nil
}

// DecodeAssistant parses an assistant entry's content back into its payload.
func DecodeAssistant(content string) (AssistantPayload, error) {
	var p AssistantPayload
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return AssistantPayload{}, fmt.Errorf("history: decode assistant entry: %w", err)
	}
	return p, nil
}
