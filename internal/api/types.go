package api

import "time"

// TokenRequest represents the request payload for learner authentication
type TokenRequest struct {
	LearnerID string `json:"learner_id"`
	AccessKey string `json:"access_key"`
}

// TokenResponse represents the response payload for learner authentication
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	LearnerID string    `json:"learner_id"`
}

// SessionListResponse lists the live sessions
type SessionListResponse struct {
	Sessions []string `json:"sessions"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
