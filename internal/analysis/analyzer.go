package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/history"
)

// Request is one classifier call: the new user input, everything said before it,
// and an optional attachment.
type Request struct {
	Text       string
	History    []history.Entry
	Attachment *conversation.Attachment
	// Token is the caller's bearer credential, forwarded as-is.
	Token string
}

// Reply is a validated classifier response. Intent is always one of the known intents.
type Reply struct {
	Intent   conversation.Intent
	Text     string
	Question string
	Analysis *conversation.Analysis
	Summary  *conversation.Summary
}

// Turn converts the reply into the assistant turn to append. Analysis and summary are
// only attached for the intents that own them.
func (r Reply) Turn() conversation.Turn {
	t := conversation.Turn{
		Role:     conversation.RoleAssistant,
		Content:  r.Text,
		Intent:   r.Intent,
		Question: r.Question,
	}
	switch r.Intent {
	case conversation.IntentAnalyzeThreat:
		t.Analysis = r.Analysis.Clone()
	case conversation.IntentComplaintReady:
		t.Analysis = r.Analysis.Clone()
		t.Summary = r.Summary.Clone()
	}
	return t
}

// Analyzer sends one user turn to the classifier.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Reply, error)
}

// Config controls analyzer construction.
type Config struct {
	Mode    string
	URL     string
	Timeout time.Duration
}

// NewAnalyzer builds the analyzer selected by cfg.Mode: http, mock, or auto
// (http when a URL is configured, otherwise mock).
func NewAnalyzer(cfg Config) (Analyzer, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.URL) != "" {
			return NewHTTPClient(cfg.URL, cfg.Timeout), nil
		}
		return NewMockAnalyzer(), nil
	case "http":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, errors.New("analysis url is required for http mode")
		}
		return NewHTTPClient(cfg.URL, cfg.Timeout), nil
	case "mock":
		return NewMockAnalyzer(), nil
	default:
		return nil, fmt.Errorf("unsupported analysis mode %q", cfg.Mode)
	}
}

// ModeOf names the backend behind a, for health and onboarding output.
func ModeOf(a Analyzer) string {
	switch a.(type) {
	case *HTTPClient:
		return "http"
	case *MockAnalyzer:
		return "mock"
	default:
		return "custom"
	}
}
