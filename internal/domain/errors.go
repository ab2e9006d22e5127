package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid workflow transition")
	ErrCallInFlight      = errors.New("a remote call is already in flight")
	ErrStaleIntent       = errors.New("stale payment reference")
	ErrMalformedResponse = errors.New("malformed response")
	ErrSessionNotFound   = errors.New("session not found")
	ErrReportNotFound    = errors.New("archived report not found")
)

// StageError is the error kind for a failed workflow stage: SubmissionError,
// PaymentError or AnalysisError depending on Stage. Message is user-facing;
// Err holds the underlying cause for logs.
type StageError struct {
	Stage   Stage
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Stage, e.Message, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func NewStageError(stage Stage, message string, err error) *StageError {
	return &StageError{Stage: stage, Message: message, Err: err}
}

// IsStage reports whether err is a StageError for stage.
func IsStage(err error, stage Stage) bool {
	var se *StageError
	return errors.As(err, &se) && se.Stage == stage
}

// User-facing stage failure texts.
const (
	MsgSubmissionFailed   = "Error processing document"
	MsgPaymentUnconfirmed = "Payment could not be confirmed. Please try again."

	ReasonTimedOut         = "timed out"
	ReasonAnalysisService  = "the analysis service returned an error"
	ReasonUnreadableReport = "the analysis could not be read"
)

// AnalysisFailureMessage is shown when money has moved without a report.
func AnalysisFailureMessage(reason, paymentIntentID, supportContact string) string {
	if supportContact == "" {
		supportContact = "support"
	}
	return fmt.Sprintf("Analysis failed: %s. Your payment %s was received; contact %s with this reference.", reason, paymentIntentID, supportContact)
}
