package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"nda-clarity/internal/backend"
	"nda-clarity/internal/domain"
	"nda-clarity/internal/payment"
)

// MalformedResponseErrorType marks remote payloads that cannot be used.
// Retrying would only repeat the same answer.
const MalformedResponseErrorType = "MalformedResponse"

type BlobStore interface {
	GetDocument(ctx context.Context, objectKey string) ([]byte, error)
	DeleteDocument(ctx context.Context, objectKey string) error
	ArchiveReport(ctx context.Context, paymentIntentID string, raw []byte) error
}

type TransitionStore interface {
	RecordTransition(ctx context.Context, t domain.Transition) error
}

type Activities struct {
	Backend   backend.Client
	Processor payment.Processor
	Blob      BlobStore
	Store     TransitionStore
}

type CreatePaymentIntentInput struct {
	SessionID      string
	Document       domain.DocumentRef
	ObjectKey      string
	IdempotencyKey string
}

type CreatePaymentIntentOutput struct {
	Intent domain.PaymentIntent
}

type ConfirmPaymentInput struct {
	SessionID string
	Intent    domain.PaymentIntent
	Method    payment.MethodDetails
}

type ConfirmPaymentOutput struct {
	Outcome payment.Outcome
}

type RetrieveAnalysisInput struct {
	SessionID       string
	PaymentIntentID string
}

type RetrieveAnalysisOutput struct {
	Report domain.RiskReport
}

func (a *Activities) CreatePaymentIntentActivity(ctx context.Context, input CreatePaymentIntentInput) (CreatePaymentIntentOutput, error) {
	logger := activity.GetLogger(ctx)

	content, err := a.Blob.GetDocument(ctx, input.ObjectKey)
	if err != nil {
		return CreatePaymentIntentOutput{}, fmt.Errorf("load staged document %s: %w", input.ObjectKey, err)
	}
	defer a.discardUpload(ctx, input.ObjectKey)
	if len(content) == 0 {
		return CreatePaymentIntentOutput{}, temporal.NewNonRetryableApplicationError("staged document is empty", "EmptyDocument", nil)
	}

	secret, err := a.Backend.CreatePaymentIntent(ctx, backend.UploadRequest{
		Filename:       input.Document.Filename,
		Content:        content,
		IdempotencyKey: input.IdempotencyKey,
	})
	if err != nil {
		return CreatePaymentIntentOutput{}, classify(err)
	}

	intent := domain.NewPaymentIntent(secret)
	if intent.ID == "" {
		return CreatePaymentIntentOutput{}, classify(fmt.Errorf("%w: empty client secret", domain.ErrMalformedResponse))
	}

	logger.Info("payment intent created", "session_id", input.SessionID, "intent_id", intent.ID)
	return CreatePaymentIntentOutput{Intent: intent}, nil
}

func (a *Activities) ConfirmPaymentActivity(ctx context.Context, input ConfirmPaymentInput) (ConfirmPaymentOutput, error) {
	outcome, err := a.Processor.Confirm(ctx, input.Intent, input.Method)
	if err != nil {
		return ConfirmPaymentOutput{}, err
	}
	activity.GetLogger(ctx).Info("payment confirmation finished",
		"session_id", input.SessionID, "intent_id", input.Intent.ID, "outcome", string(outcome.Status))
	return ConfirmPaymentOutput{Outcome: outcome}, nil
}

// RetrieveAnalysisActivity archives the raw payload before decoding it, so
// a paid report stays recoverable even when it cannot be rendered.
func (a *Activities) RetrieveAnalysisActivity(ctx context.Context, input RetrieveAnalysisInput) (RetrieveAnalysisOutput, error) {
	logger := activity.GetLogger(ctx)

	raw, err := a.Backend.RetrieveAnalysis(ctx, input.PaymentIntentID)
	if err != nil {
		return RetrieveAnalysisOutput{}, classify(err)
	}
	if a.Blob != nil {
		if err := a.Blob.ArchiveReport(ctx, input.PaymentIntentID, raw); err != nil {
			logger.Warn("archive analysis payload", "intent_id", input.PaymentIntentID, "error", err)
		}
	}

	report, err := domain.DecodeRiskReport(raw)
	if err != nil {
		return RetrieveAnalysisOutput{}, classify(err)
	}
	if len(report.Defects) > 0 {
		logger.Warn("analysis report has unusable fields", "intent_id", input.PaymentIntentID, "defects", report.Defects)
	}
	return RetrieveAnalysisOutput{Report: report}, nil
}

func (a *Activities) RecordTransitionActivity(ctx context.Context, t domain.Transition) error {
	if a.Store == nil {
		return nil
	}
	return a.Store.RecordTransition(ctx, t)
}

// DiscardUploadActivity removes a staged document the session did not
// accept.
func (a *Activities) DiscardUploadActivity(ctx context.Context, objectKey string) error {
	if err := a.Blob.DeleteDocument(ctx, objectKey); err != nil {
		return fmt.Errorf("delete staged document %s: %w", objectKey, err)
	}
	activity.GetLogger(ctx).Info("discarded rejected upload", "object_key", objectKey)
	return nil
}

// discardUpload removes the staged copy once the backend has had its one
// attempt at it. A retry stages the document again.
func (a *Activities) discardUpload(ctx context.Context, objectKey string) {
	if err := a.Blob.DeleteDocument(ctx, objectKey); err != nil {
		activity.GetLogger(ctx).Warn("delete staged document", "object_key", objectKey, "error", err)
	}
}

func classify(err error) error {
	if errors.Is(err, domain.ErrMalformedResponse) {
		return temporal.NewNonRetryableApplicationError(err.Error(), MalformedResponseErrorType, err)
	}
	return err
}
