package session

import "time"

// CreateResponse returns created or resumed session metadata.
type CreateResponse struct {
	SessionID       string    `json:"session_id"`
	Owner           string    `json:"owner"`
	Status          Status    `json:"status"`
	Resumed         bool      `json:"resumed"`
	StartedAt       time.Time `json:"started_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}

// NewCreateResponse describes s for API clients.
func NewCreateResponse(s *Session, created bool, ttl time.Duration) CreateResponse {
	return CreateResponse{
		SessionID:       s.ID,
		Owner:           s.Owner,
		Status:          s.Status,
		Resumed:         !created,
		StartedAt:       s.StartedAt,
		LastActivityAt:  s.LastActivityAt,
		InactivityTTLMS: ttl.Milliseconds(),
	}
}
