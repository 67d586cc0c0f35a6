package triage

import "github.com/Sarvesh-Jhawar/CyberRakshak-v.1.0/internal/conversation"

// State is the router's position in the send cycle.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingResponse State = "awaiting_response"
	StateHandoffInitiated State = "handoff_initiated"
)

// Outcome describes how the most recent exchange resolved.
type Outcome string

const (
	OutcomeNone           Outcome = ""
	OutcomeGeneralAnswer  Outcome = "general_answer"
	OutcomeInfoRequested  Outcome = "info_requested"
	OutcomeThreatAnalyzed Outcome = "threat_analyzed"
	OutcomeComplaintReady Outcome = "complaint_ready"
	OutcomeFailed         Outcome = "failed"
)

// Affordance is the single follow-up action offered after a reply.
type Affordance string

const (
	AffordanceNone            Affordance = "none"
	AffordanceStartComplaint  Affordance = "start_complaint"
	AffordanceReviewAndSubmit Affordance = "review_and_submit"
)

// AffordanceFor projects the affordance from the last turn of a conversation.
func AffordanceFor(last conversation.Turn, ok bool) Affordance {
	if !ok || last.Role != conversation.RoleAssistant {
		return AffordanceNone
	}
	switch last.Intent {
	case conversation.IntentAnalyzeThreat:
		if last.Analysis != nil {
			return AffordanceStartComplaint
		}
	case conversation.IntentComplaintReady:
		if last.Summary != nil {
			return AffordanceReviewAndSubmit
		}
	}
	return AffordanceNone
}

// OutcomeFor maps the last turn to the outcome it represents. A variant whose payload is
// missing counts as a general answer.
func OutcomeFor(last conversation.Turn, ok bool) Outcome {
	if !ok || last.Role != conversation.RoleAssistant {
		return OutcomeNone
	}
	switch last.Intent {
	case "":
		return OutcomeFailed
	case conversation.IntentAnalyzeThreat:
		if last.Analysis == nil {
			return OutcomeGeneralAnswer
		}
		return OutcomeThreatAnalyzed
	case conversation.IntentComplaintReady:
		if last.Summary == nil {
			return OutcomeGeneralAnswer
		}
		return OutcomeComplaintReady
	case conversation.IntentRequestInformation:
		return OutcomeInfoRequested
	default:
		return OutcomeGeneralAnswer
	}
}
