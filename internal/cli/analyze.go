package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"nda-clarity/internal/backend"
	"nda-clarity/internal/domain"
	"nda-clarity/internal/orchestrator"
	"nda-clarity/internal/payment"
	"nda-clarity/internal/storage"
)

func (a *app) analyzeCmd() *cobra.Command {
	var method payment.MethodDetails
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Submit an NDA, pay for it and render the risk report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(method.PaymentMethodID) == "" {
				return fmt.Errorf("--payment-method is required")
			}
			return a.analyze(cmd.Context(), args[0], method)
		},
	}
	cmd.Flags().StringVar(&method.PaymentMethodID, "payment-method", "", "tokenized payment method id (pm_...)")
	cmd.Flags().StringVar(&method.ReturnURL, "return-url", "", "return URL for payment methods that redirect")
	return cmd
}

func (a *app) analyze(ctx context.Context, path string, method payment.MethodDetails) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".pdf":
	default:
		return fmt.Errorf("%s: only .txt and .pdf documents are accepted", path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cfg, err := a.config()
	if err != nil {
		return err
	}
	if cfg.AllowedUploadBytes > 0 && int64(len(content)) > cfg.AllowedUploadBytes {
		return fmt.Errorf("%s: document exceeds %d bytes", path, cfg.AllowedUploadBytes)
	}
	log, err := a.logger(cfg)
	if err != nil {
		return err
	}
	history, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer history.Close()

	orch := orchestrator.New(orchestrator.Options{
		Backend:   backend.NewHTTPClient(cfg.BackendBaseURL, cfg.SubmitRPM),
		Processor: payment.NewHTTPProcessor(cfg.PaymentAPIBaseURL, cfg.PaymentPublishableKey),
		Recorder:  history,
		Logger:    log,
		Timeouts: orchestrator.Timeouts{
			Submission: cfg.SubmissionTimeout(),
			Payment:    cfg.PaymentTimeout(),
			Analysis:   cfg.AnalysisTimeout(),
		},
		SupportContact: cfg.SupportContact,
	})

	state, err := orch.SubmitDocument(ctx, orchestrator.Document{Filename: filepath.Base(path), Content: content})
	if err != nil {
		return stageFailure(state, err)
	}
	fmt.Fprintf(a.errOut, "Document accepted. Paying %s for intent %s...\n", cfg.PriceLabel, state.IntentID())

	state, err = orch.ConfirmPayment(ctx, state.IntentID(), method)
	if err != nil {
		return stageFailure(state, err)
	}
	fmt.Fprintf(a.errOut, "Payment confirmed (%s). Analyzing...\n", state.ConfirmationID)

	state, err = orch.RequestAnalysis(ctx, state.ConfirmationID)
	if err != nil {
		return stageFailure(state, err)
	}

	if a.v.GetBool("json") {
		return a.printJSON(map[string]any{
			"session_id": orch.SessionID(),
			"report":     state.Report.View(),
		})
	}
	renderReport(a.out, *state.Report)
	fmt.Fprintf(a.errOut, "Session %s\n", orch.SessionID())
	return nil
}

// stageError shows the user-facing message and keeps the cause for
// exitCode.
type stageError struct {
	msg string
	err error
}

func (e *stageError) Error() string { return e.msg }
func (e *stageError) Unwrap() error { return e.err }

// stageFailure prefers the user-facing stage message over the cause.
func stageFailure(state domain.WorkflowState, err error) error {
	var se *domain.StageError
	if errors.As(err, &se) && se.Message != "" {
		return &stageError{msg: fmt.Sprintf("%s: %s", se.Stage, se.Message), err: err}
	}
	if state.PaymentError != "" {
		return &stageError{msg: state.PaymentError, err: err}
	}
	return err
}
