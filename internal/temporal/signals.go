package temporal

import (
	"nda-clarity/internal/domain"
	"nda-clarity/internal/payment"
)

const (
	SubmitDocumentSignalName = "submitDocument"
	ConfirmPaymentSignalName = "confirmPayment"
	RetryAnalysisSignalName  = "retryAnalysis"
	ResetSignalName          = "reset"

	StateQueryName = "state"
)

// SubmitDocumentSignal references a document already staged in blob storage.
type SubmitDocumentSignal struct {
	Document  domain.DocumentRef `json:"document"`
	ObjectKey string             `json:"object_key"`
}

type ConfirmPaymentSignal struct {
	IntentID string                `json:"intent_id"`
	Method   payment.MethodDetails `json:"method"`
}

type RetryAnalysisSignal struct {
	ConfirmationID string `json:"confirmation_id"`
}

type ResetSignal struct {
	Reason string `json:"reason,omitempty"`
}

// SessionView is the answer to the state query.
type SessionView struct {
	SessionID string               `json:"session_id"`
	State     domain.WorkflowState `json:"state"`
	Busy      bool                 `json:"busy"`
	Seq       int64                `json:"seq"`
}
