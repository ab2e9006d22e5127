package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"nda-clarity/internal/config"
	"nda-clarity/internal/domain"
	"nda-clarity/internal/payment"
	appTemporal "nda-clarity/internal/temporal"
)

// SessionEngine runs session workflows. *temporal.Gateway implements it.
type SessionEngine interface {
	StartSession(ctx context.Context, sessionID string) (string, error)
	Describe(ctx context.Context, sessionID string) (appTemporal.SessionView, error)
	SubmitDocument(ctx context.Context, sessionID string, sig appTemporal.SubmitDocumentSignal) error
	ConfirmPayment(ctx context.Context, sessionID string, sig appTemporal.ConfirmPaymentSignal) error
	RetryAnalysis(ctx context.Context, sessionID string, sig appTemporal.RetryAnalysisSignal) error
	Reset(ctx context.Context, sessionID string, sig appTemporal.ResetSignal) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, sessionID, workflowID string) error
	GetSession(ctx context.Context, sessionID string) (domain.SessionRecord, error)
	ListTransitions(ctx context.Context, sessionID string) ([]domain.Transition, error)
	ListFailedAnalyses(ctx context.Context, limit int) ([]domain.SessionRecord, error)
	CountSessions(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// BlobStore stages uploads for the worker and serves archived reports.
type BlobStore interface {
	PutDocument(ctx context.Context, documentID, filename string, content []byte) (string, error)
	DeleteDocument(ctx context.Context, objectKey string) error
	GetReport(ctx context.Context, paymentIntentID string) ([]byte, error)
}

type Handler struct {
	cfg      config.Config
	logger   logrus.FieldLogger
	sessions SessionEngine
	store    SessionStore
	blob     BlobStore
}

type sessionResponse struct {
	SessionID  string                `json:"session_id"`
	State      domain.WorkflowState  `json:"state"`
	Busy       bool                  `json:"busy"`
	Closed     bool                  `json:"closed,omitempty"`
	PriceLabel string                `json:"price_label"`
	Summary    *domain.Summary       `json:"summary,omitempty"`
	Report     *domain.View          `json:"report,omitempty"`
	Snapshot   *domain.SessionRecord `json:"snapshot,omitempty"`
}

type paymentRequest struct {
	IntentID        string `json:"intent_id"`
	PaymentMethodID string `json:"payment_method_id"`
	ReturnURL       string `json:"return_url,omitempty"`
}

type resetRequest struct {
	Reason string `json:"reason,omitempty"`
}

func NewHandler(cfg config.Config, logger logrus.FieldLogger, sessions SessionEngine, store SessionStore, blob BlobStore) *Handler {
	return &Handler{cfg: cfg, logger: logger, sessions: sessions, store: store, blob: blob}
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	sessionID := uuid.NewString()
	workflowID, err := h.sessions.StartSession(ctx, sessionID)
	if err != nil {
		h.log(r).WithError(err).Error("start session")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to start session"})
		return
	}
	if err := h.store.CreateSession(ctx, sessionID, workflowID); err != nil {
		h.log(r).WithError(err).WithField("session_id", sessionID).Warn("record session")
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID:  sessionID,
		State:      domain.Idle(),
		PriceLabel: h.cfg.PriceLabel,
	})
}

// GetSession answers from the live workflow and falls back to the stored
// snapshot once the session has closed.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	view, err := h.sessions.Describe(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		rec, storeErr := h.store.GetSession(ctx, sessionID)
		if storeErr != nil {
			h.writeError(w, r, storeErr, "fetch session")
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{
			SessionID:  sessionID,
			State:      domain.WorkflowState{Kind: rec.State, FailedStage: rec.FailedStage, Message: rec.Message, ConfirmationID: rec.ConfirmationID},
			Closed:     true,
			PriceLabel: h.cfg.PriceLabel,
			Snapshot:   &rec,
		})
		return
	}
	if err != nil {
		h.writeError(w, r, err, "describe session")
		return
	}

	resp := sessionResponse{
		SessionID:  sessionID,
		State:      view.State,
		Busy:       view.Busy,
		PriceLabel: h.cfg.PriceLabel,
	}
	if view.State.Kind == domain.StateComplete && view.State.Report != nil {
		summary := view.State.Report.Summary()
		report := view.State.Report.View()
		resp.Summary = &summary
		resp.Report = &report
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.AllowedUploadBytes+1<<20)
	if err := r.ParseMultipartForm(h.cfg.AllowedUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid multipart payload"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "file form field is required"})
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, h.cfg.AllowedUploadBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read file"})
		return
	}
	if int64(len(body)) > h.cfg.AllowedUploadBytes {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "file exceeds size limit"})
		return
	}
	if !isSupportedUpload(header.Filename, body) {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{"error": "only .txt and .pdf documents are accepted"})
		return
	}

	sum := sha256.Sum256(body)
	ref := domain.DocumentRef{
		ID:       uuid.NewString(),
		Filename: header.Filename,
		Size:     int64(len(body)),
		Digest:   hex.EncodeToString(sum[:]),
	}

	view, err := h.sessions.Describe(ctx, sessionID)
	if err != nil {
		h.writeError(w, r, err, "describe session")
		return
	}
	if view.Busy {
		h.writeError(w, r, domain.ErrCallInFlight, "submit document")
		return
	}
	if _, err := domain.Submit(view.State, ref); err != nil {
		h.writeError(w, r, err, "submit document")
		return
	}

	objectKey, err := h.blob.PutDocument(ctx, ref.ID, ref.Filename, body)
	if err != nil {
		h.log(r).WithError(err).Error("stage upload")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to upload file"})
		return
	}
	// The worker deletes the staged copy once intent creation has used it.
	if err := h.sessions.SubmitDocument(ctx, sessionID, appTemporal.SubmitDocumentSignal{Document: ref, ObjectKey: objectKey}); err != nil {
		if delErr := h.blob.DeleteDocument(context.WithoutCancel(ctx), objectKey); delErr != nil {
			h.log(r).WithError(delErr).WithField("object_key", objectKey).Error("delete unsignalled upload")
		}
		h.writeError(w, r, err, "signal document")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id": sessionID,
		"document":   ref,
		"status":     domain.StateSubmitting,
	})
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.IntentID) == "" || strings.TrimSpace(req.PaymentMethodID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "intent_id and payment_method_id are required"})
		return
	}

	view, err := h.sessions.Describe(ctx, sessionID)
	if err != nil {
		h.writeError(w, r, err, "describe session")
		return
	}
	if view.Busy {
		h.writeError(w, r, domain.ErrCallInFlight, "confirm payment")
		return
	}
	if err := domain.CanConfirm(view.State, req.IntentID); err != nil {
		h.writeError(w, r, err, "confirm payment")
		return
	}

	sig := appTemporal.ConfirmPaymentSignal{
		IntentID: req.IntentID,
		Method:   payment.MethodDetails{PaymentMethodID: req.PaymentMethodID, ReturnURL: req.ReturnURL},
	}
	if err := h.sessions.ConfirmPayment(ctx, sessionID, sig); err != nil {
		h.writeError(w, r, err, "signal payment")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"session_id": sessionID, "intent_id": req.IntentID, "status": "payment_signal_sent"})
}

// RetryAnalysis is the explicit user retry after a failed analysis. The
// payment is not confirmed again.
func (h *Handler) RetryAnalysis(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	view, err := h.sessions.Describe(ctx, sessionID)
	if err != nil {
		h.writeError(w, r, err, "describe session")
		return
	}
	if view.Busy {
		h.writeError(w, r, domain.ErrCallInFlight, "retry analysis")
		return
	}
	if _, err := domain.BeginAnalysisRetry(view.State); err != nil {
		h.writeError(w, r, err, "retry analysis")
		return
	}

	sig := appTemporal.RetryAnalysisSignal{ConfirmationID: view.State.ConfirmationID}
	if err := h.sessions.RetryAnalysis(ctx, sessionID, sig); err != nil {
		h.writeError(w, r, err, "signal analysis retry")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"session_id": sessionID, "status": "analysis_retry_sent"})
}

// Reset is accepted from every state; it also serves as cancel while a
// payment is awaited.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req resetRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
			return
		}
	}
	if err := h.sessions.Reset(ctx, sessionID, appTemporal.ResetSignal{Reason: req.Reason}); err != nil {
		h.writeError(w, r, err, "signal reset")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"session_id": sessionID, "status": "reset_signal_sent"})
}

func (h *Handler) ListTransitions(w http.ResponseWriter, r *http.Request, sessionID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.store.ListTransitions(ctx, sessionID)
	if err != nil {
		h.writeError(w, r, err, "list transitions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "items": items})
}

// FailedAnalyses lists sessions where money moved but no report was
// delivered.
func (h *Handler) FailedAnalyses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	items, err := h.store.ListFailedAnalyses(ctx, limit)
	if err != nil {
		h.writeError(w, r, err, "list failed analyses")
		return
	}
	total, err := h.store.CountSessions(ctx)
	if err != nil {
		h.writeError(w, r, err, "count sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total_sessions": total})
}

// ArchivedReport renders the raw analysis payload kept for a payment, so
// support can hand over a report the session no longer holds.
func (h *Handler) ArchivedReport(w http.ResponseWriter, r *http.Request, paymentIntentID string) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	raw, err := h.blob.GetReport(ctx, paymentIntentID)
	if err != nil {
		h.writeError(w, r, err, "fetch archived report")
		return
	}
	report, err := domain.DecodeRiskReport(raw)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"payment_intent_id": paymentIntentID,
			"error":             err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payment_intent_id": paymentIntentID,
		"summary":           report.Summary(),
		"report":            report.View(),
	})
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "session not found"})
	case errors.Is(err, domain.ErrReportNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "report not found"})
	case errors.Is(err, domain.ErrCallInFlight),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrStaleIntent):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
	default:
		h.log(r).WithError(err).Error(action)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to " + action})
	}
}

func (h *Handler) log(r *http.Request) logrus.FieldLogger {
	return h.logger.WithField("request_id", middleware.GetReqID(r.Context()))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
