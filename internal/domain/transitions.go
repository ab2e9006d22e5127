package domain

import "fmt"

// Transition functions take the current state by value and return the next
// one. They never mutate their input and perform no I/O.

func Submit(s WorkflowState, doc DocumentRef) (WorkflowState, error) {
	if !s.IsIdle() && s.Kind != StateFailed {
		return s, invalid(s, "submit document")
	}
	return Submitting(doc), nil
}

func IntentCreated(s WorkflowState, intent PaymentIntent) (WorkflowState, error) {
	if s.Kind != StateSubmitting || s.Document == nil {
		return s, invalid(s, "accept payment intent")
	}
	if intent.ID == "" {
		return s, fmt.Errorf("%w: empty payment intent", ErrMalformedResponse)
	}
	return AwaitingPayment(intent, *s.Document), nil
}

func SubmissionFailed(s WorkflowState, message string) (WorkflowState, error) {
	if s.Kind != StateSubmitting {
		return s, invalid(s, "fail submission")
	}
	return Failed(StageSubmission, message), nil
}

// CanConfirm reports whether intentID may be confirmed from s. Payment
// failures keep the intent, so Failed(payment) remains confirmable.
func CanConfirm(s WorkflowState, intentID string) error {
	if s.Kind != StateAwaitingPayment && !s.FailedAt(StagePayment) {
		return invalid(s, "confirm payment")
	}
	if s.Intent == nil || s.Intent.ID != intentID {
		return fmt.Errorf("%w: %q is not the held intent", ErrStaleIntent, intentID)
	}
	return nil
}

func PaymentSucceeded(s WorkflowState, confirmationID string) (WorkflowState, error) {
	if err := CanConfirm(s, s.IntentID()); err != nil {
		return s, err
	}
	if confirmationID == "" {
		return s, fmt.Errorf("%w: empty confirmation id", ErrMalformedResponse)
	}
	return Analyzing(confirmationID), nil
}

// PaymentDeclined records a processor-reported, user-recoverable outcome.
// The workflow stays in AwaitingPayment with the same intent.
func PaymentDeclined(s WorkflowState, message string) (WorkflowState, error) {
	if err := CanConfirm(s, s.IntentID()); err != nil {
		return s, err
	}
	next := AwaitingPayment(*s.Intent, derefDoc(s.Document))
	next.PaymentError = message
	return next, nil
}

// PaymentFailed records an unexpected payment error. The intent and document
// are kept so the user can retry confirmation without re-submitting.
func PaymentFailed(s WorkflowState, message string) (WorkflowState, error) {
	if err := CanConfirm(s, s.IntentID()); err != nil {
		return s, err
	}
	next := Failed(StagePayment, message)
	intent := *s.Intent
	doc := derefDoc(s.Document)
	next.Intent = &intent
	next.Document = &doc
	return next, nil
}

// CanAnalyze reports whether analysis may be requested for confirmationID.
func CanAnalyze(s WorkflowState, confirmationID string) error {
	if s.Kind != StateAnalyzing && !s.FailedAt(StageAnalysis) {
		return invalid(s, "request analysis")
	}
	if s.ConfirmationID != confirmationID {
		return fmt.Errorf("%w: %q is not the held confirmation", ErrStaleIntent, confirmationID)
	}
	return nil
}

func BeginAnalysisRetry(s WorkflowState) (WorkflowState, error) {
	if !s.FailedAt(StageAnalysis) {
		return s, invalid(s, "retry analysis")
	}
	return Analyzing(s.ConfirmationID), nil
}

func AnalysisSucceeded(s WorkflowState, report RiskReport) (WorkflowState, error) {
	if s.Kind != StateAnalyzing {
		return s, invalid(s, "complete analysis")
	}
	return Complete(report), nil
}

func AnalysisFailed(s WorkflowState, message string) (WorkflowState, error) {
	if s.Kind != StateAnalyzing {
		return s, invalid(s, "fail analysis")
	}
	next := Failed(StageAnalysis, message)
	next.ConfirmationID = s.ConfirmationID
	return next, nil
}

// Reset is total: every state, including Idle, resets to Idle.
func Reset(WorkflowState) WorkflowState {
	return Idle()
}

func derefDoc(doc *DocumentRef) DocumentRef {
	if doc == nil {
		return DocumentRef{}
	}
	return *doc
}

func invalid(s WorkflowState, op string) error {
	kind := s.Kind
	if kind == "" {
		kind = StateIdle
	}
	if kind == StateFailed {
		return fmt.Errorf("%w: cannot %s from %s(%s)", ErrInvalidTransition, op, kind, s.FailedStage)
	}
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, op, kind)
}
