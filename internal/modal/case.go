package modal

import "time"

type CaseStatus string

const (
	CaseOpen      CaseStatus = "OPEN"
	CaseContacted CaseStatus = "CONTACTED"
	CaseFailed    CaseStatus = "FAILED"
	CaseCompleted CaseStatus = "COMPLETED"
)

// Case is the subject of the outreach process. Orchestrators only see it through activities.
type Case struct {
	ID            string          `json:"id"`
	ClientName    string          `json:"clientName"`
	Phone         string          `json:"phone"`
	Status        CaseStatus      `json:"status"`
	FailureReason string          `json:"failureReason,omitempty"`
	Assessment    *CaseAssessment `json:"assessment,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// CaseAssessment is the structured output of transcript analysis.
type CaseAssessment struct {
	Summary         string   `json:"summary"`
	IncidentDate    string   `json:"incidentDate,omitempty"`
	Injuries        []string `json:"injuries"`
	TreatmentStatus string   `json:"treatmentStatus"`
	CaseStrength    string   `json:"caseStrength"`
	FollowUps       []string `json:"followUps"`
}

// Message is one SMS in a case thread, inbound or outbound.
type Message struct {
	ID         string    `json:"id"`
	CaseID     string    `json:"caseId"`
	Direction  string    `json:"direction"`
	Body       string    `json:"body"`
	ExternalID string    `json:"externalId,omitempty"`
	At         time.Time `json:"at"`
}

const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// CallRecord is the store's view of one outbound call attempt. The call webhook writes the
// outcome here before signalling, which lets the reconciler recover a lost signal.
type CallRecord struct {
	ConversationID string     `json:"conversationId"`
	CaseID         string     `json:"caseId"`
	WorkflowID     string     `json:"workflowId"`
	Purpose        string     `json:"purpose"`
	Completed      bool       `json:"completed"`
	TalkedToHuman  bool       `json:"talkedToHuman"`
	Failed         bool       `json:"failed"`
	FailureReason  string     `json:"failureReason,omitempty"`
	Transcript     string     `json:"transcript,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

const (
	CallPurposeOutreach = "outreach"
	CallPurposeFollowUp = "provider_follow_up"
)
