package analysis

import (
	"context"
	"strings"

	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"
	"github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/history"
)

// MockAnalyzer provides deterministic local replies when no classifier endpoint is configured.
type MockAnalyzer struct{}

func NewMockAnalyzer() *MockAnalyzer { return &MockAnalyzer{} }

type threatProfile struct {
	keywords    []string
	title       string
	category    string
	severity    string
	summary     string
	playbook    []string
	evidence    []string
	evidenceTyp string
}

var mockProfiles = []threatProfile{
	{
		keywords:    []string{"sms", "text message", "whatsapp"},
		title:       "Spam SMS Received",
		category:    "phishing",
		severity:    "Medium",
		summary:     "Unsolicited message containing a suspicious link or request.",
		playbook:    []string{"Do not reply or open links in the message", "Block the sender", "Report the number to your carrier"},
		evidence:    []string{"Screenshot of the message", "Sender number"},
		evidenceTyp: "text",
	},
	{
		keywords:    []string{"phishing", "email", "link", "login page", "password reset"},
		title:       "Suspicious Email",
		category:    "phishing",
		severity:    "High",
		summary:     "Likely credential phishing attempt delivered by email.",
		playbook:    []string{"Do not click links or open attachments", "Change passwords if credentials were entered", "Report the email to the security team"},
		evidence:    []string{"Full email headers", "Suspicious URLs", "Screenshot of the email"},
		evidenceTyp: "url",
	},
	{
		keywords:    []string{"malware", "virus", "ransom", "encrypted my files", "trojan"},
		title:       "Malware Infection",
		category:    "malware",
		severity:    "Critical",
		summary:     "Possible malware infection on an endpoint.",
		playbook:    []string{"Disconnect the device from the network", "Do not pay any ransom", "Contact the incident response team"},
		evidence:    []string{"Ransom note or alert screenshot", "Suspicious file names"},
		evidenceTyp: "file",
	},
	{
		keywords:    []string{"fraud", "upi", "otp", "bank", "transaction"},
		title:       "Fraud Attempt",
		category:    "fraud",
		severity:    "High",
		summary:     "Attempted financial fraud or OTP harvesting.",
		playbook:    []string{"Never share OTPs or PINs", "Call your bank using the official number", "Freeze affected cards or accounts"},
		evidence:    []string{"Transaction IDs", "Caller number or message"},
		evidenceTyp: "text",
	},
}

func (a *MockAnalyzer) Analyze(ctx context.Context, req Request) (Reply, error) {
	select {
	case <-ctx.Done():
		return Reply{}, &Error{Kind: KindTransport, Err: ctx.Err()}
	default:
	}

	text := strings.TrimSpace(req.Text)
	if text == conversation.StartComplaintSentinel {
		return buildMockComplaint(req.History), nil
	}

	lower := strings.ToLower(text)
	if p, ok := matchProfile(lower); ok {
		return buildMockThreat(p), nil
	}
	if req.Attachment != nil {
		return buildMockThreat(threatProfile{
			title:       "Suspicious Content",
			category:    "opsec",
			severity:    "Low",
			summary:     "Uploaded content needs review by an analyst.",
			playbook:    []string{"Keep the original file", "Avoid forwarding it further"},
			evidence:    []string{"Original file"},
			evidenceTyp: strings.SplitN(req.Attachment.ContentType, "/", 2)[0],
		}), nil
	}
	if strings.Contains(lower, "hacked") || strings.Contains(lower, "compromised") || strings.Contains(lower, "attack") {
		q := "Can you describe what happened and how you first noticed it?"
		return Reply{Intent: conversation.IntentRequestInformation, Text: q, Question: q}, nil
	}
	if text == "" {
		q := "What would you like help with?"
		return Reply{Intent: conversation.IntentRequestInformation, Text: q, Question: q}, nil
	}
	return Reply{
		Intent: conversation.IntentGeneralQuestion,
		Text:   "I can help analyze suspicious messages, links, files and incidents. Describe what you saw.",
	}, nil
}

func matchProfile(lower string) (threatProfile, bool) {
	for _, p := range mockProfiles {
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				return p, true
			}
		}
	}
	return threatProfile{}, false
}

func buildMockThreat(p threatProfile) Reply {
	return Reply{
		Intent: conversation.IntentAnalyzeThreat,
		Text:   p.summary,
		Analysis: &conversation.Analysis{
			Severity:          p.severity,
			DetectionSummary:  p.summary,
			UserAlert:         "Potential " + p.category + " incident detected.",
			Playbook:          append([]string(nil), p.playbook...),
			EvidenceToCollect: append([]string(nil), p.evidence...),
			UILabels: &conversation.UILabels{
				Category:          p.category,
				Status:            "open",
				RecommendedAction: "File a complaint",
			},
			TechnicalDetails: &conversation.TechnicalDetails{Analysis: p.title},
		},
	}
}

// buildMockComplaint drafts a complaint from the most recent threat analysis and the
// user message that triggered it.
func buildMockComplaint(entries []history.Entry) Reply {
	p := threatProfile{title: "Cybersecurity Incident", category: "opsec", evidenceTyp: "text"}
	var userText string
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Role == conversation.RoleUser && userText == "" && e.Content != conversation.StartComplaintSentinel {
			userText = e.Content
		}
	}
	if matched, ok := matchProfile(strings.ToLower(userText)); ok {
		p = matched
	} else {
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].Role != conversation.RoleAssistant {
				continue
			}
			payload, err := history.DecodeAssistant(entries[i].Content)
			if err == nil && payload.Analysis != nil && payload.Analysis.UILabels != nil && payload.Analysis.UILabels.Category != "" {
				p.category = payload.Analysis.UILabels.Category
				break
			}
		}
	}

	description := p.summary
	if userText != "" {
		description = strings.TrimSpace(p.summary + " Reported: " + userText)
	}
	summary := &conversation.Summary{
		Title:        p.title,
		Category:     p.category,
		Description:  description,
		EvidenceType: p.evidenceTyp,
	}
	if p.evidenceTyp == "text" {
		summary.EvidenceText = userText
	}
	return Reply{
		Intent:  conversation.IntentComplaintReady,
		Text:    "I have drafted your complaint. Review it and submit when ready.",
		Summary: summary,
	}
}
