package conversation

import "time"

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Intent is the classifier-assigned tag that decides how the flow branches after a reply.
type Intent string

const (
	IntentAnalyzeThreat      Intent = "analyze_threat"
	IntentGeneralQuestion    Intent = "general_question"
	IntentRequestInformation Intent = "request_information"
	IntentComplaintReady     Intent = "complaint_ready"
)

// Valid reports whether i is one of the known intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentAnalyzeThreat, IntentGeneralQuestion, IntentRequestInformation, IntentComplaintReady:
		return true
	default:
		return false
	}
}

// TechnicalDetails carries the indicator list and free-form analysis of a threat.
type TechnicalDetails struct {
	Indicators []string `json:"indicators,omitempty"`
	Analysis   string   `json:"analysis,omitempty"`
}

// UILabels are short display hints produced alongside a threat analysis.
type UILabels struct {
	Category          string `json:"category,omitempty"`
	Status            string `json:"status,omitempty"`
	RecommendedAction string `json:"recommended_action,omitempty"`
}

// Analysis is the structured payload of a completed threat analysis.
type Analysis struct {
	Severity          string            `json:"severity,omitempty"`
	DetectionSummary  string            `json:"detection_summary,omitempty"`
	UserAlert         string            `json:"user_alert,omitempty"`
	Playbook          []string          `json:"playbook,omitempty"`
	EvidenceToCollect []string          `json:"evidence_to_collect,omitempty"`
	CertAlert         string            `json:"cert_alert,omitempty"`
	TechnicalDetails  *TechnicalDetails `json:"technical_details,omitempty"`
	UILabels          *UILabels         `json:"ui_labels,omitempty"`
}

// Empty reports whether no analysis field carries information.
func (a *Analysis) Empty() bool {
	if a == nil {
		return true
	}
	return a.Severity == "" &&
		a.DetectionSummary == "" &&
		a.UserAlert == "" &&
		len(a.Playbook) == 0 &&
		len(a.EvidenceToCollect) == 0 &&
		a.CertAlert == "" &&
		a.TechnicalDetails == nil &&
		a.UILabels == nil
}

// Clone returns a deep copy.
func (a *Analysis) Clone() *Analysis {
	if a == nil {
		return nil
	}
	c := *a
	c.Playbook = cloneStrings(a.Playbook)
	c.EvidenceToCollect = cloneStrings(a.EvidenceToCollect)
	if a.TechnicalDetails != nil {
		td := *a.TechnicalDetails
		td.Indicators = cloneStrings(a.TechnicalDetails.Indicators)
		c.TechnicalDetails = &td
	}
	if a.UILabels != nil {
		l := *a.UILabels
		c.UILabels = &l
	}
	return &c
}

// Turn is one message in the conversation. Turns are never modified after they are appended.
type Turn struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	Intent        Intent    `json:"intent,omitempty"`
	Analysis      *Analysis `json:"analysis,omitempty"`
	Summary       *Summary  `json:"summary,omitempty"`
	Question      string    `json:"question,omitempty"`
	AttachmentRef string    `json:"attachmentRef,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Clone returns a deep copy.
func (t Turn) Clone() Turn {
	t.Analysis = t.Analysis.Clone()
	t.Summary = t.Summary.Clone()
	return t
}

// Failed reports whether t is an assistant turn recording a failed classifier call.
func (t Turn) Failed() bool {
	return t.Role == RoleAssistant && t.Intent == ""
}

// Attachment is a user-supplied file waiting to be sent with the next turn.
type Attachment struct {
	Ref         string `json:"ref"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// StartComplaintSentinel is the control turn that asks the classifier to begin drafting a complaint.
const StartComplaintSentinel = "ACTION:START_COMPLAINT"
