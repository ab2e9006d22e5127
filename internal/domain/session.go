package domain

import "time"

// SessionRecord is the persisted snapshot of a session's latest state.
type SessionRecord struct {
	ID             string    `json:"session_id"`
	WorkflowID     string    `json:"workflow_id,omitempty"`
	State          StateKind `json:"state"`
	FailedStage    Stage     `json:"failed_stage,omitempty"`
	IntentID       string    `json:"intent_id,omitempty"`
	ConfirmationID string    `json:"confirmation_id,omitempty"`
	Message        string    `json:"message,omitempty"`
	LastSeq        int64     `json:"last_seq"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
