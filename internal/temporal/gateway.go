package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"nda-clarity/internal/domain"
)

// Gateway addresses session workflows by session id.
type Gateway struct {
	client    client.Client
	taskQueue string
	prefix    string
	defaults  SessionInput
}

// NewGateway returns a gateway that starts sessions on taskQueue. defaults
// supplies the timeouts and support contact of every new session.
func NewGateway(c client.Client, taskQueue, workflowIDPrefix string, defaults SessionInput) *Gateway {
	return &Gateway{client: c, taskQueue: taskQueue, prefix: workflowIDPrefix, defaults: defaults}
}

func (g *Gateway) WorkflowID(sessionID string) string {
	return fmt.Sprintf("%s-%s", g.prefix, sessionID)
}

// StartSession starts the session workflow. Starting an already running
// session is not an error.
func (g *Gateway) StartSession(ctx context.Context, sessionID string) (string, error) {
	input := g.defaults
	input.SessionID = sessionID
	workflowID := g.WorkflowID(sessionID)

	_, err := g.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                                       workflowID,
		TaskQueue:                                g.taskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, ContractReviewWorkflowName, input)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			return workflowID, nil
		}
		return "", fmt.Errorf("start session %s: %w", sessionID, err)
	}
	return workflowID, nil
}

func (g *Gateway) Describe(ctx context.Context, sessionID string) (SessionView, error) {
	resp, err := g.client.QueryWorkflow(ctx, g.WorkflowID(sessionID), "", StateQueryName)
	if err != nil {
		return SessionView{}, mapNotFound(sessionID, err)
	}
	var view SessionView
	if err := resp.Get(&view); err != nil {
		return SessionView{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return view, nil
}

func (g *Gateway) SubmitDocument(ctx context.Context, sessionID string, sig SubmitDocumentSignal) error {
	return g.signal(ctx, sessionID, SubmitDocumentSignalName, sig)
}

func (g *Gateway) ConfirmPayment(ctx context.Context, sessionID string, sig ConfirmPaymentSignal) error {
	return g.signal(ctx, sessionID, ConfirmPaymentSignalName, sig)
}

func (g *Gateway) RetryAnalysis(ctx context.Context, sessionID string, sig RetryAnalysisSignal) error {
	return g.signal(ctx, sessionID, RetryAnalysisSignalName, sig)
}

func (g *Gateway) Reset(ctx context.Context, sessionID string, sig ResetSignal) error {
	return g.signal(ctx, sessionID, ResetSignalName, sig)
}

func (g *Gateway) signal(ctx context.Context, sessionID, name string, payload any) error {
	if err := g.client.SignalWorkflow(ctx, g.WorkflowID(sessionID), "", name, payload); err != nil {
		return mapNotFound(sessionID, err)
	}
	return nil
}

func mapNotFound(sessionID string, err error) error {
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return err
}
