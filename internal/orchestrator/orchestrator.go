package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"nda-clarity/internal/backend"
	"nda-clarity/internal/domain"
	"nda-clarity/internal/payment"
)

var (
	ErrSuperseded    = errors.New("operation superseded by reset")
	ErrEmptyDocument = errors.New("document is empty")
)

// Recorder receives every state transition. Failures are logged only.
type Recorder interface {
	RecordTransition(ctx context.Context, t domain.Transition) error
}

// Archive keeps raw analysis payloads keyed by payment intent id.
type Archive interface {
	ArchiveReport(ctx context.Context, paymentIntentID string, raw []byte) error
}

type Timeouts struct {
	Submission time.Duration
	Payment    time.Duration
	Analysis   time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Submission: 60 * time.Second,
		Payment:    60 * time.Second,
		Analysis:   3 * time.Minute,
	}
}

type Document struct {
	Filename string
	Content  []byte
}

type Options struct {
	SessionID      string
	Backend        backend.Client
	Processor      payment.Processor
	Recorder       Recorder
	Archive        Archive
	Logger         logrus.FieldLogger
	Timeouts       Timeouts
	SupportContact string
	Now            func() time.Time
}

// Orchestrator owns one session's workflow state and sequences the three
// remote calls. At most one call is in flight at a time.
type Orchestrator struct {
	opts Options
	log  logrus.FieldLogger

	mu           sync.Mutex
	state        domain.WorkflowState
	busy         bool
	epoch        uint64
	cancel       context.CancelFunc
	uploadKey    string
	uploadDigest string
	seq          int64
}

func New(opts Options) *Orchestrator {
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		opts.Logger = l
	}
	def := DefaultTimeouts()
	if opts.Timeouts.Submission <= 0 {
		opts.Timeouts.Submission = def.Submission
	}
	if opts.Timeouts.Payment <= 0 {
		opts.Timeouts.Payment = def.Payment
	}
	if opts.Timeouts.Analysis <= 0 {
		opts.Timeouts.Analysis = def.Analysis
	}
	return &Orchestrator{
		opts:  opts,
		log:   opts.Logger.WithField("session_id", opts.SessionID),
		state: domain.Idle(),
	}
}

func (o *Orchestrator) SessionID() string {
	return o.opts.SessionID
}

func (o *Orchestrator) State() domain.WorkflowState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SubmitDocument sends doc to intent creation. A retry of the same document
// after a submission failure reuses the previous idempotency key.
func (o *Orchestrator) SubmitDocument(ctx context.Context, doc Document) (domain.WorkflowState, error) {
	if len(doc.Content) == 0 {
		return o.State(), ErrEmptyDocument
	}
	sum := sha256.Sum256(doc.Content)
	digest := hex.EncodeToString(sum[:])

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return o.State(), domain.ErrCallInFlight
	}
	ref := domain.DocumentRef{ID: uuid.NewString(), Filename: doc.Filename, Size: int64(len(doc.Content)), Digest: digest}
	next, err := domain.Submit(o.state, ref)
	if err != nil {
		s := o.state
		o.mu.Unlock()
		return s, err
	}
	if !(o.state.FailedAt(domain.StageSubmission) && o.uploadDigest == digest && o.uploadKey != "") {
		o.uploadKey = uuid.NewString()
		o.uploadDigest = digest
	}
	key := o.uploadKey
	o.transitionLocked(next)
	callCtx, epoch := o.beginCallLocked(ctx, o.opts.Timeouts.Submission)
	o.mu.Unlock()

	log := o.log.WithFields(logrus.Fields{"stage": domain.StageSubmission, "document_id": ref.ID, "size": ref.Size})
	log.Info("submitting document")

	secret, callErr := o.opts.Backend.CreatePaymentIntent(callCtx, backend.UploadRequest{
		Filename:       doc.Filename,
		Content:        doc.Content,
		IdempotencyKey: key,
	})

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.endCallLocked(epoch) {
		log.Warn("discarding superseded submission result")
		return o.state, ErrSuperseded
	}

	if callErr == nil {
		next, callErr = domain.IntentCreated(o.state, domain.NewPaymentIntent(secret))
	}
	if callErr != nil {
		msg := domain.MsgSubmissionFailed
		if errors.Is(callErr, context.DeadlineExceeded) {
			msg = domain.ReasonTimedOut
		}
		log.WithError(callErr).Warn("submission failed")
		failed, _ := domain.SubmissionFailed(o.state, msg)
		o.transitionLocked(failed)
		return o.state, domain.NewStageError(domain.StageSubmission, msg, callErr)
	}

	o.uploadKey, o.uploadDigest = "", ""
	o.transitionLocked(next)
	log.WithField("intent_id", next.IntentID()).Info("payment intent created")
	return o.state, nil
}

// ConfirmPayment confirms the held intent. Declines and pending outcomes
// keep the workflow in AwaitingPayment with the same intent.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, intentID string, details payment.MethodDetails) (domain.WorkflowState, error) {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return o.State(), domain.ErrCallInFlight
	}
	if err := domain.CanConfirm(o.state, intentID); err != nil {
		s := o.state
		o.mu.Unlock()
		return s, err
	}
	intent := *o.state.Intent
	callCtx, epoch := o.beginCallLocked(ctx, o.opts.Timeouts.Payment)
	o.mu.Unlock()

	log := o.log.WithFields(logrus.Fields{"stage": domain.StagePayment, "intent_id": intent.ID})
	log.Info("confirming payment")

	outcome, callErr := o.opts.Processor.Confirm(callCtx, intent, details)

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.endCallLocked(epoch) {
		if callErr == nil && outcome.Status == payment.StatusSucceeded {
			log.Warn("payment succeeded after reset; intent will not be analyzed")
		}
		return o.state, ErrSuperseded
	}

	if callErr != nil {
		msg := domain.MsgPaymentUnconfirmed
		if errors.Is(callErr, context.DeadlineExceeded) {
			msg = domain.ReasonTimedOut
		}
		log.WithError(callErr).Warn("payment confirmation failed")
		failed, _ := domain.PaymentFailed(o.state, msg)
		o.transitionLocked(failed)
		return o.state, domain.NewStageError(domain.StagePayment, msg, callErr)
	}

	switch outcome.Status {
	case payment.StatusSucceeded:
		next, err := domain.PaymentSucceeded(o.state, outcome.ConfirmationID)
		if err != nil {
			failed, _ := domain.PaymentFailed(o.state, domain.MsgPaymentUnconfirmed)
			o.transitionLocked(failed)
			return o.state, domain.NewStageError(domain.StagePayment, failed.Message, err)
		}
		o.transitionLocked(next)
		log.WithField("confirmation_id", next.ConfirmationID).Info("payment confirmed")
		return o.state, nil
	default:
		next, _ := domain.PaymentDeclined(o.state, outcome.Message)
		o.transitionLocked(next)
		log.WithField("outcome", outcome.Status).Info("payment not completed")
		return o.state, domain.NewStageError(domain.StagePayment, outcome.Message, nil)
	}
}

// RequestAnalysis retrieves the report for a confirmed payment. From
// Failed(analysis) it is the explicit user retry.
func (o *Orchestrator) RequestAnalysis(ctx context.Context, confirmationID string) (domain.WorkflowState, error) {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return o.State(), domain.ErrCallInFlight
	}
	if err := domain.CanAnalyze(o.state, confirmationID); err != nil {
		s := o.state
		o.mu.Unlock()
		return s, err
	}
	if o.state.FailedAt(domain.StageAnalysis) {
		next, _ := domain.BeginAnalysisRetry(o.state)
		o.transitionLocked(next)
	}
	callCtx, epoch := o.beginCallLocked(ctx, o.opts.Timeouts.Analysis)
	o.mu.Unlock()

	log := o.log.WithFields(logrus.Fields{"stage": domain.StageAnalysis, "confirmation_id": confirmationID})
	log.Info("requesting analysis")

	raw, callErr := o.opts.Backend.RetrieveAnalysis(callCtx, confirmationID)
	if callErr == nil && o.opts.Archive != nil {
		archiveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := o.opts.Archive.ArchiveReport(archiveCtx, confirmationID, raw); err != nil {
			log.WithError(err).Warn("archive analysis payload")
		}
		cancel()
	}
	var report domain.RiskReport
	if callErr == nil {
		report, callErr = domain.DecodeRiskReport(raw)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.endCallLocked(epoch) {
		log.Warn("discarding superseded analysis result")
		return o.state, ErrSuperseded
	}

	if callErr != nil {
		reason := domain.ReasonAnalysisService
		switch {
		case errors.Is(callErr, context.DeadlineExceeded):
			reason = domain.ReasonTimedOut
		case errors.Is(callErr, domain.ErrMalformedResponse):
			reason = domain.ReasonUnreadableReport
		}
		msg := domain.AnalysisFailureMessage(reason, confirmationID, o.opts.SupportContact)
		log.WithError(callErr).Error("analysis failed after payment")
		failed, _ := domain.AnalysisFailed(o.state, msg)
		o.transitionLocked(failed)
		return o.state, domain.NewStageError(domain.StageAnalysis, msg, callErr)
	}

	if len(report.Defects) > 0 {
		log.WithField("defects", report.Defects).Warn("analysis report has unusable fields")
	}
	next, _ := domain.AnalysisSucceeded(o.state, report)
	o.transitionLocked(next)
	log.Info("analysis complete")
	return o.state, nil
}

// Reset returns to Idle from any state, cancelling an in-flight call.
func (o *Orchestrator) Reset() domain.WorkflowState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.epoch++
	o.busy = false
	o.uploadKey, o.uploadDigest = "", ""
	if !o.state.IsIdle() {
		o.transitionLocked(domain.Reset(o.state))
		o.log.Info("session reset")
	}
	return o.state
}

func (o *Orchestrator) beginCallLocked(ctx context.Context, timeout time.Duration) (context.Context, uint64) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	o.busy = true
	o.epoch++
	o.cancel = cancel
	return callCtx, o.epoch
}

// endCallLocked reports whether the call started at epoch is still current.
func (o *Orchestrator) endCallLocked(epoch uint64) bool {
	if o.epoch != epoch {
		return false
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.busy = false
	return true
}

func (o *Orchestrator) transitionLocked(next domain.WorkflowState) {
	prev := o.state
	o.state = next
	o.seq++
	if o.opts.Recorder == nil {
		return
	}
	t := domain.NewTransition(o.opts.SessionID, o.seq, prev, next, o.opts.Now())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.opts.Recorder.RecordTransition(ctx, t); err != nil {
		o.log.WithError(err).WithField("seq", t.Seq).Warn("record transition")
	}
}
