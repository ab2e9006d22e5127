package domain

import (
	"strings"
	"time"
)

type StateKind string

const (
	StateIdle            StateKind = "IDLE"
	StateSubmitting      StateKind = "SUBMITTING"
	StateAwaitingPayment StateKind = "AWAITING_PAYMENT"
	StateAnalyzing       StateKind = "ANALYZING"
	StateComplete        StateKind = "COMPLETE"
	StateFailed          StateKind = "FAILED"
)

type Stage string

const (
	StageSubmission Stage = "submission"
	StagePayment    Stage = "payment"
	StageAnalysis   Stage = "analysis"
)

const clientSecretMarker = "_secret_"

// DocumentRef identifies a submitted document without holding its bytes.
type DocumentRef struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Digest   string `json:"digest"`
}

// PaymentIntent is the server-issued token pair returned by intent creation.
// The charge amount and currency are encoded upstream and never decided here.
type PaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// NewPaymentIntent derives the intent id from a client secret of the form
// "<id>_secret_<suffix>". Tokens without the marker are used as the id.
func NewPaymentIntent(clientSecret string) PaymentIntent {
	secret := strings.TrimSpace(clientSecret)
	id := secret
	if i := strings.Index(secret, clientSecretMarker); i > 0 {
		id = secret[:i]
	}
	return PaymentIntent{ID: id, ClientSecret: secret}
}

// WorkflowState is a tagged variant: Kind selects which of the other fields
// are meaningful. Exactly one kind is active at a time.
type WorkflowState struct {
	Kind           StateKind      `json:"kind"`
	Document       *DocumentRef   `json:"document,omitempty"`
	Intent         *PaymentIntent `json:"intent,omitempty"`
	PaymentError   string         `json:"payment_error,omitempty"`
	ConfirmationID string         `json:"confirmation_id,omitempty"`
	Report         *RiskReport    `json:"report,omitempty"`
	FailedStage    Stage          `json:"failed_stage,omitempty"`
	Message        string         `json:"message,omitempty"`
}

func Idle() WorkflowState {
	return WorkflowState{Kind: StateIdle}
}

func Submitting(doc DocumentRef) WorkflowState {
	return WorkflowState{Kind: StateSubmitting, Document: &doc}
}

func AwaitingPayment(intent PaymentIntent, doc DocumentRef) WorkflowState {
	return WorkflowState{Kind: StateAwaitingPayment, Document: &doc, Intent: &intent}
}

func Analyzing(confirmationID string) WorkflowState {
	return WorkflowState{Kind: StateAnalyzing, ConfirmationID: confirmationID}
}

func Complete(report RiskReport) WorkflowState {
	return WorkflowState{Kind: StateComplete, Report: &report}
}

func Failed(stage Stage, message string) WorkflowState {
	return WorkflowState{Kind: StateFailed, FailedStage: stage, Message: message}
}

func (s WorkflowState) IsIdle() bool {
	return s.Kind == "" || s.Kind == StateIdle
}

func (s WorkflowState) FailedAt(stage Stage) bool {
	return s.Kind == StateFailed && s.FailedStage == stage
}

// IntentID returns the held payment intent id, or "" when none is held.
func (s WorkflowState) IntentID() string {
	if s.Intent == nil {
		return ""
	}
	return s.Intent.ID
}

// Transition is an observable record of one state change within a session.
type Transition struct {
	SessionID      string    `json:"session_id"`
	Seq            int64     `json:"seq"`
	From           StateKind `json:"from"`
	To             StateKind `json:"to"`
	Stage          Stage     `json:"stage,omitempty"`
	IntentID       string    `json:"intent_id,omitempty"`
	ConfirmationID string    `json:"confirmation_id,omitempty"`
	Note           string    `json:"note,omitempty"`
	Message        string    `json:"message,omitempty"`
	At             time.Time `json:"at"`
}

const NoteIntentSuperseded = "intent.superseded"

// NewTransition describes the move from one state to the next. When a live
// intent is dropped without being confirmed, the transition is noted as
// superseded so orphaned intents stay visible.
func NewTransition(sessionID string, seq int64, from, to WorkflowState, at time.Time) Transition {
	t := Transition{
		SessionID:      sessionID,
		Seq:            seq,
		From:           from.Kind,
		To:             to.Kind,
		IntentID:       to.IntentID(),
		ConfirmationID: to.ConfirmationID,
		Message:        to.Message,
		At:             at.UTC(),
	}
	if to.Kind == StateFailed {
		t.Stage = to.FailedStage
	}
	if t.IntentID == "" {
		t.IntentID = from.IntentID()
	}
	if t.ConfirmationID == "" {
		t.ConfirmationID = from.ConfirmationID
	}
	if from.Intent != nil && to.IntentID() != from.IntentID() && to.Kind != StateAnalyzing {
		t.Note = NoteIntentSuperseded
	}
	if t.From == "" {
		t.From = StateIdle
	}
	return t
}
