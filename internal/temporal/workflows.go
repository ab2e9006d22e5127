package temporal

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"nda-clarity/internal/domain"
	"nda-clarity/internal/payment"
)

const (
	ContractReviewWorkflowName = "ContractReviewWorkflow"

	defaultIdleTimeout = 30 * time.Minute
)

type SessionInput struct {
	SessionID      string
	SupportContact string

	// IdleTimeout ends the session when no signal arrives and no call is in
	// flight for this long.
	IdleTimeout       time.Duration
	SubmissionTimeout time.Duration
	PaymentTimeout    time.Duration
	AnalysisTimeout   time.Duration
}

type SessionResult struct {
	SessionID   string
	State       domain.WorkflowState
	Transitions int64
}

// ContractReviewWorkflow is one user session: it holds the WorkflowState and
// drives submission, payment and analysis from signals, one remote call at
// a time.
func ContractReviewWorkflow(ctx workflow.Context, input SessionInput) (SessionResult, error) {
	if input.SessionID == "" {
		input.SessionID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	if input.IdleTimeout <= 0 {
		input.IdleTimeout = defaultIdleTimeout
	}

	s := &session{
		ctx:    ctx,
		input:  input,
		logger: log.With(workflow.GetLogger(ctx), "session_id", input.SessionID),
		state:  domain.Idle(),
	}

	if err := workflow.SetQueryHandler(ctx, StateQueryName, func() (SessionView, error) {
		return s.view(), nil
	}); err != nil {
		return SessionResult{}, err
	}

	submitCh := workflow.GetSignalChannel(ctx, SubmitDocumentSignalName)
	confirmCh := workflow.GetSignalChannel(ctx, ConfirmPaymentSignalName)
	retryCh := workflow.GetSignalChannel(ctx, RetryAnalysisSignalName)
	resetCh := workflow.GetSignalChannel(ctx, ResetSignalName)

	for {
		idle := false
		sel := workflow.NewSelector(ctx)
		sel.AddReceive(submitCh, func(c workflow.ReceiveChannel, _ bool) {
			var sig SubmitDocumentSignal
			c.Receive(ctx, &sig)
			s.submit(sig)
		})
		sel.AddReceive(confirmCh, func(c workflow.ReceiveChannel, _ bool) {
			var sig ConfirmPaymentSignal
			c.Receive(ctx, &sig)
			s.confirm(sig)
		})
		sel.AddReceive(retryCh, func(c workflow.ReceiveChannel, _ bool) {
			var sig RetryAnalysisSignal
			c.Receive(ctx, &sig)
			s.retryAnalysis(sig)
		})
		sel.AddReceive(resetCh, func(c workflow.ReceiveChannel, _ bool) {
			var sig ResetSignal
			c.Receive(ctx, &sig)
			s.reset(sig)
		})

		var cancelTimer workflow.CancelFunc
		if call := s.pending; call != nil {
			sel.AddFuture(call.future, func(f workflow.Future) {
				s.finish(call, f)
			})
		} else {
			var timerCtx workflow.Context
			timerCtx, cancelTimer = workflow.WithCancel(ctx)
			sel.AddFuture(workflow.NewTimer(timerCtx, input.IdleTimeout), func(workflow.Future) {
				idle = true
			})
		}

		sel.Select(ctx)
		if cancelTimer != nil {
			cancelTimer()
		}
		if idle && submitCh.Len() == 0 && confirmCh.Len() == 0 && retryCh.Len() == 0 && resetCh.Len() == 0 {
			break
		}
	}

	s.logger.Info("session idle, closing", "state", string(s.state.Kind))
	return SessionResult{SessionID: input.SessionID, State: s.state, Transitions: s.seq}, nil
}

type pendingCall struct {
	stage  domain.Stage
	future workflow.Future
	cancel workflow.CancelFunc
}

type session struct {
	ctx    workflow.Context
	input  SessionInput
	logger log.Logger

	state   domain.WorkflowState
	seq     int64
	pending *pendingCall

	uploadKey    string
	uploadDigest string
}

func (s *session) view() SessionView {
	return SessionView{
		SessionID: s.input.SessionID,
		State:     s.state,
		Busy:      s.pending != nil,
		Seq:       s.seq,
	}
}

func (s *session) submit(sig SubmitDocumentSignal) {
	if s.pending != nil {
		s.logger.Warn("ignoring document while a call is in flight", "error", domain.ErrCallInFlight)
		s.discardUpload(sig.ObjectKey)
		return
	}
	next, err := domain.Submit(s.state, sig.Document)
	if err != nil {
		s.logger.Warn("ignoring document", "error", err)
		s.discardUpload(sig.ObjectKey)
		return
	}
	if !(s.state.FailedAt(domain.StageSubmission) && s.uploadDigest == sig.Document.Digest && s.uploadKey != "") {
		s.uploadKey = s.newKey()
		s.uploadDigest = sig.Document.Digest
	}
	s.transition(next)
	s.start(domain.StageSubmission, ActivityPolicyCreatePaymentIntent, s.input.SubmissionTimeout,
		(*Activities).CreatePaymentIntentActivity, CreatePaymentIntentInput{
			SessionID:      s.input.SessionID,
			Document:       sig.Document,
			ObjectKey:      sig.ObjectKey,
			IdempotencyKey: s.uploadKey,
		})
}

func (s *session) confirm(sig ConfirmPaymentSignal) {
	if s.pending != nil {
		s.logger.Warn("ignoring payment confirmation while a call is in flight", "error", domain.ErrCallInFlight)
		return
	}
	if err := domain.CanConfirm(s.state, sig.IntentID); err != nil {
		s.logger.Warn("ignoring payment confirmation", "error", err)
		return
	}
	s.start(domain.StagePayment, ActivityPolicyConfirmPayment, s.input.PaymentTimeout,
		(*Activities).ConfirmPaymentActivity, ConfirmPaymentInput{
			SessionID: s.input.SessionID,
			Intent:    *s.state.Intent,
			Method:    sig.Method,
		})
}

func (s *session) retryAnalysis(sig RetryAnalysisSignal) {
	if s.pending != nil {
		s.logger.Warn("ignoring analysis retry while a call is in flight", "error", domain.ErrCallInFlight)
		return
	}
	if err := domain.CanAnalyze(s.state, sig.ConfirmationID); err != nil {
		s.logger.Warn("ignoring analysis retry", "error", err)
		return
	}
	next, err := domain.BeginAnalysisRetry(s.state)
	if err != nil {
		s.logger.Warn("ignoring analysis retry", "error", err)
		return
	}
	s.transition(next)
	s.startAnalysis()
}

func (s *session) reset(sig ResetSignal) {
	if s.pending != nil {
		s.logger.Info("cancelling in-flight call", "stage", string(s.pending.stage))
		s.pending.cancel()
		s.pending = nil
	}
	s.uploadKey, s.uploadDigest = "", ""
	if s.state.IsIdle() {
		return
	}
	s.transition(domain.Reset(s.state))
	s.logger.Info("session reset", "reason", sig.Reason)
}

func (s *session) startAnalysis() {
	s.start(domain.StageAnalysis, ActivityPolicyRetrieveAnalysis, s.input.AnalysisTimeout,
		(*Activities).RetrieveAnalysisActivity, RetrieveAnalysisInput{
			SessionID:       s.input.SessionID,
			PaymentIntentID: s.state.ConfirmationID,
		})
}

func (s *session) start(stage domain.Stage, policy string, timeout time.Duration, activityFn any, arg any) {
	callCtx, cancel := workflow.WithCancel(s.ctx)
	callCtx = mustActivityContext(callCtx, policy, timeout)
	s.pending = &pendingCall{
		stage:  stage,
		future: workflow.ExecuteActivity(callCtx, activityFn, arg),
		cancel: cancel,
	}
}

func (s *session) finish(call *pendingCall, f workflow.Future) {
	if s.pending != call {
		return
	}
	s.pending = nil
	call.cancel()

	switch call.stage {
	case domain.StageSubmission:
		s.finishSubmission(f)
	case domain.StagePayment:
		s.finishPayment(f)
	case domain.StageAnalysis:
		s.finishAnalysis(f)
	}
}

func (s *session) finishSubmission(f workflow.Future) {
	var out CreatePaymentIntentOutput
	err := f.Get(s.ctx, &out)
	next := s.state
	if err == nil {
		next, err = domain.IntentCreated(s.state, out.Intent)
	}
	if err != nil {
		msg := domain.MsgSubmissionFailed
		if temporal.IsTimeoutError(err) {
			msg = domain.ReasonTimedOut
		}
		s.logger.Warn("submission failed", "error", err)
		failed, _ := domain.SubmissionFailed(s.state, msg)
		s.transition(failed)
		return
	}
	s.uploadKey, s.uploadDigest = "", ""
	s.transition(next)
	s.logger.Info("awaiting payment", "intent_id", next.IntentID())
}

func (s *session) finishPayment(f workflow.Future) {
	var out ConfirmPaymentOutput
	if err := f.Get(s.ctx, &out); err != nil {
		msg := domain.MsgPaymentUnconfirmed
		if temporal.IsTimeoutError(err) {
			msg = domain.ReasonTimedOut
		}
		s.logger.Warn("payment confirmation failed", "error", err)
		failed, _ := domain.PaymentFailed(s.state, msg)
		s.transition(failed)
		return
	}

	if out.Outcome.Status != payment.StatusSucceeded {
		next, _ := domain.PaymentDeclined(s.state, out.Outcome.Message)
		s.transition(next)
		s.logger.Info("payment not completed", "outcome", string(out.Outcome.Status))
		return
	}

	next, err := domain.PaymentSucceeded(s.state, out.Outcome.ConfirmationID)
	if err != nil {
		s.logger.Error("payment succeeded without a usable confirmation", "error", err)
		failed, _ := domain.PaymentFailed(s.state, domain.MsgPaymentUnconfirmed)
		s.transition(failed)
		return
	}
	s.transition(next)
	s.startAnalysis()
}

func (s *session) finishAnalysis(f workflow.Future) {
	var out RetrieveAnalysisOutput
	if err := f.Get(s.ctx, &out); err != nil {
		reason := domain.ReasonAnalysisService
		var appErr *temporal.ApplicationError
		switch {
		case temporal.IsTimeoutError(err):
			reason = domain.ReasonTimedOut
		case errors.As(err, &appErr) && appErr.Type() == MalformedResponseErrorType:
			reason = domain.ReasonUnreadableReport
		}
		msg := domain.AnalysisFailureMessage(reason, s.state.ConfirmationID, s.input.SupportContact)
		s.logger.Error("analysis failed after payment", "intent_id", s.state.ConfirmationID, "error", err)
		failed, _ := domain.AnalysisFailed(s.state, msg)
		s.transition(failed)
		return
	}
	next, _ := domain.AnalysisSucceeded(s.state, out.Report)
	s.transition(next)
	s.logger.Info("analysis complete")
}

// transition records synchronously so history order matches state order.
// A recording failure is logged and never changes the state.
func (s *session) transition(next domain.WorkflowState) {
	prev := s.state
	s.state = next
	s.seq++

	t := domain.NewTransition(s.input.SessionID, s.seq, prev, next, workflow.Now(s.ctx))
	recordCtx := mustActivityContext(s.ctx, ActivityPolicyRecordTransition, 0)
	if err := workflow.ExecuteActivity(recordCtx, (*Activities).RecordTransitionActivity, t).Get(s.ctx, nil); err != nil {
		s.logger.Warn("record transition", "seq", t.Seq, "error", err)
	}
}

// discardUpload deletes the staged copy of a document that was not
// submitted. Accepted documents are deleted by the submission activity.
func (s *session) discardUpload(objectKey string) {
	if objectKey == "" {
		return
	}
	discardCtx := mustActivityContext(s.ctx, ActivityPolicyDiscardUpload, 0)
	if err := workflow.ExecuteActivity(discardCtx, (*Activities).DiscardUploadActivity, objectKey).Get(s.ctx, nil); err != nil {
		s.logger.Error("discard rejected upload", "object_key", objectKey, "error", err)
	}
}

func (s *session) newKey() string {
	var key string
	encoded := workflow.SideEffect(s.ctx, func(workflow.Context) any {
		return uuid.NewString()
	})
	if err := encoded.Get(&key); err != nil {
		s.logger.Warn("decode idempotency key", "error", err)
	}
	return key
}
