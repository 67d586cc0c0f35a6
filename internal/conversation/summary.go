package conversation

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Summary is the complaint draft produced when the classifier reaches complaint_ready.
//
// It encodes back to the object the classifier sent: known fields keep the key they
// arrived under, and every other field is written at the top level unchanged.
type Summary struct {
	Title        string
	Category     string
	Description  string
	EvidenceType string
	EvidenceText string
	EvidenceURL  string

	// Extra keeps string fields that have no dedicated field.
	Extra map[string]string
	// Other keeps non-string fields as raw JSON.
	Other map[string]json.RawMessage
	// SourceKeys records the key a dedicated field arrived under when it was not the
	// canonical one (for example evidence_type).
	SourceKeys map[string]string
}

type summaryField struct {
	keys  []string
	value func(*Summary) *string
}

// The first key of each entry is canonical; the form uses camelCase, the API snake_case.
var summaryFields = []summaryField{
	{[]string{"title"}, func(s *Summary) *string { return &s.Title }},
	{[]string{"category"}, func(s *Summary) *string { return &s.Category }},
	{[]string{"description"}, func(s *Summary) *string { return &s.Description }},
	{[]string{"evidenceType", "evidence_type"}, func(s *Summary) *string { return &s.EvidenceType }},
	{[]string{"evidenceText", "evidence_text"}, func(s *Summary) *string { return &s.EvidenceText }},
	{[]string{"evidenceUrl", "evidence_url"}, func(s *Summary) *string { return &s.EvidenceURL }},
}

// Empty reports whether the summary carries no field at all.
func (s *Summary) Empty() bool {
	if s == nil {
		return true
	}
	for _, f := range summaryFields {
		if *f.value(s) != "" {
			return false
		}
	}
	return len(s.Extra) == 0 && len(s.Other) == 0
}

// MarshalJSON writes the summary as a flat object under the keys it was received with.
func (s Summary) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+len(s.Other)+len(summaryFields))
	for k, v := range s.Other {
		out[k] = v
	}
	for k, v := range s.Extra {
		out[k] = v
	}
	for _, f := range summaryFields {
		v := *f.value(&s)
		if v == "" {
			continue
		}
		key := f.keys[0]
		if src, ok := s.SourceKeys[key]; ok {
			key = src
		}
		out[key] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts any JSON object. The first non-blank string under a known key or
// one of its aliases fills the dedicated field; everything else is kept as is.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*s = Summary{}
	for _, f := range summaryFields {
		for _, key := range f.keys {
			v, ok := jsonString(obj[key])
			if !ok || strings.TrimSpace(v) == "" {
				continue
			}
			*f.value(s) = v
			if key != f.keys[0] {
				if s.SourceKeys == nil {
					s.SourceKeys = make(map[string]string)
				}
				s.SourceKeys[f.keys[0]] = key
			}
			delete(obj, key)
			break
		}
	}
	for k, raw := range obj {
		if v, ok := jsonString(raw); ok {
			if s.Extra == nil {
				s.Extra = make(map[string]string)
			}
			s.Extra[k] = v
			continue
		}
		if s.Other == nil {
			s.Other = make(map[string]json.RawMessage)
		}
		s.Other[k] = append(json.RawMessage(nil), raw...)
	}
	return nil
}

// Clone returns a deep copy.
func (s *Summary) Clone() *Summary {
	if s == nil {
		return nil
	}
	c := *s
	if s.Extra != nil {
		c.Extra = make(map[string]string, len(s.Extra))
		for k, v := range s.Extra {
			c.Extra[k] = v
		}
	}
	if s.Other != nil {
		c.Other = make(map[string]json.RawMessage, len(s.Other))
		for k, v := range s.Other {
			c.Other[k] = append(json.RawMessage(nil), v...)
		}
	}
	if s.SourceKeys != nil {
		c.SourceKeys = make(map[string]string, len(s.SourceKeys))
		for k, v := range s.SourceKeys {
			c.SourceKeys[k] = v
		}
	}
	return &c
}

func jsonString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}
