//go:build system

package system_test

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/lib/pq"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/client"

	"nda-clarity/internal/domain"
	appTemporal "nda-clarity/internal/temporal"
)

var _ = Describe("System blackbox session", Ordered, func() {
	var repoRoot string
	var cfg systemTestConfig
	var apiBaseURL string

	BeforeAll(func() {
		if os.Getenv("RUN_BLACKBOX_SYSTEM_TEST") != "1" {
			Skip("set RUN_BLACKBOX_SYSTEM_TEST=1 to run real blackbox system test")
		}

		cfg = loadSystemTestConfig()
		apiBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

		var err error
		repoRoot, err = findRepoRoot()
		Expect(err).ToNot(HaveOccurred())

		By("verifying required docker compose services (including worker) are already running")
		Expect(requireComposeServicesRunning(repoRoot, cfg.RequiredComposeServices)).To(Succeed())

		By("failing fast if infrastructure is unreachable")
		Expect(waitForPostgres(cfg.PostgresDSN, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForTemporal(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(cfg.MinioReadyURL, http.StatusOK, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(apiBaseURL+cfg.APIHealthPath, http.StatusOK, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForHTTPStatus(apiBaseURL+cfg.APIReadyPath, http.StatusOK, cfg.PreflightTimeout)).To(Succeed())
		Expect(waitForWorkerPoller(cfg.TemporalAddress, cfg.TemporalNamespace, cfg.TemporalTaskQueue, cfg.WorkerPollerTimeout)).To(Succeed())
	})

	It("submits, pays and renders a report through the real worker", func() {
		By("opening a session")
		created, err := createSession(apiBaseURL)
		Expect(err).ToNot(HaveOccurred())
		Expect(created.SessionID).ToNot(BeEmpty())
		Expect(created.State.Kind).To(Equal(domain.StateIdle))
		sessionID := created.SessionID

		By("uploading the contract exactly like a user")
		filePath := filepath.Join(repoRoot, cfg.UploadFixturePath)
		status, err := uploadDocument(apiBaseURL, sessionID, filePath)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusAccepted))

		By("waiting for the payment intent")
		var current sessionResponse
		Eventually(func() domain.StateKind {
			current, err = getSession(apiBaseURL, sessionID)
			Expect(err).ToNot(HaveOccurred())
			Expect(current.State.Kind).ToNot(Equal(domain.StateFailed), current.State.Message)
			return current.State.Kind
		}, cfg.SessionCompletionTimeout, cfg.SessionPollInterval).Should(Equal(domain.StateAwaitingPayment))
		Expect(current.State.Intent).ToNot(BeNil())
		intentID := current.State.Intent.ID
		Expect(intentID).ToNot(BeEmpty())

		By("rejecting a second upload while payment is awaited")
		status, err = uploadDocument(apiBaseURL, sessionID, filePath)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusConflict))

		By("confirming the payment")
		Expect(confirmPayment(apiBaseURL, sessionID, intentID, cfg.PaymentMethodID)).To(Succeed())

		Eventually(func() domain.StateKind {
			current, err = getSession(apiBaseURL, sessionID)
			Expect(err).ToNot(HaveOccurred())
			Expect(current.State.Kind).ToNot(Equal(domain.StateFailed), current.State.Message)
			return current.State.Kind
		}, cfg.SessionCompletionTimeout, cfg.SessionPollInterval).Should(Equal(domain.StateComplete))

		By("checking the rendered report")
		Expect(current.State.ConfirmationID).To(Equal(intentID))
		Expect(current.Report).ToNot(BeNil())
		Expect(current.Report.Disclaimer).ToNot(BeEmpty())
		Expect(current.Report.RiskLevel).ToNot(BeEmpty())

		By("checking the transition history over HTTP")
		history, err := getTransitions(apiBaseURL, sessionID)
		Expect(err).ToNot(HaveOccurred())
		var path []domain.StateKind
		for i, t := range history.Items {
			Expect(t.Seq).To(BeEquivalentTo(i + 1))
			path = append(path, t.To)
		}
		Expect(path).To(Equal([]domain.StateKind{
			domain.StateSubmitting,
			domain.StateAwaitingPayment,
			domain.StateAnalyzing,
			domain.StateComplete,
		}))

		By("validating the remote calls from Temporal workflow history")
		temporalClient, err := client.Dial(client.Options{
			HostPort:  cfg.TemporalAddress,
			Namespace: cfg.TemporalNamespace,
		})
		Expect(err).ToNot(HaveOccurred())
		defer temporalClient.Close()

		workflowID := cfg.WorkflowIDPrefix + "-" + sessionID
		trace, err := collectActivityTrace(context.Background(), temporalClient, workflowID)
		Expect(err).ToNot(HaveOccurred())
		Expect(trace.ScheduledOrder).To(Equal(cfg.ExpectedActivityOrder))
		Expect(trace.CompletedOrder).To(Equal(cfg.ExpectedActivityOrder))

		createIn := trace.Inputs["CreatePaymentIntentActivity"].(appTemporal.CreatePaymentIntentInput)
		Expect(createIn.SessionID).To(Equal(sessionID))
		Expect(createIn.Document.Filename).To(Equal(filepath.Base(filePath)))
		Expect(createIn.IdempotencyKey).ToNot(BeEmpty())

		createOut := trace.Outputs["CreatePaymentIntentActivity"].(appTemporal.CreatePaymentIntentOutput)
		Expect(createOut.Intent.ID).To(Equal(intentID))

		confirmIn := trace.Inputs["ConfirmPaymentActivity"].(appTemporal.ConfirmPaymentInput)
		Expect(confirmIn.Intent.ID).To(Equal(intentID))
		Expect(confirmIn.Method.PaymentMethodID).To(Equal(cfg.PaymentMethodID))

		analysisIn := trace.Inputs["RetrieveAnalysisActivity"].(appTemporal.RetrieveAnalysisInput)
		Expect(analysisIn.PaymentIntentID).To(Equal(intentID))

		By("verifying the session snapshot and transitions in Postgres")
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		states, err := fetchStringRows(db, `SELECT to_state FROM session_transitions WHERE session_id = $1 ORDER BY seq`, sessionID)
		Expect(err).ToNot(HaveOccurred())
		Expect(states).To(Equal([]string{"SUBMITTING", "AWAITING_PAYMENT", "ANALYZING", "COMPLETE"}))

		snapshot, err := fetchStringRows(db, `SELECT state FROM sessions WHERE id = $1`, sessionID)
		Expect(err).ToNot(HaveOccurred())
		Expect(snapshot).To(Equal([]string{"COMPLETE"}))
	})

	It("resets a session that is waiting for payment without charging", func() {
		created, err := createSession(apiBaseURL)
		Expect(err).ToNot(HaveOccurred())
		sessionID := created.SessionID

		status, err := uploadDocument(apiBaseURL, sessionID, filepath.Join(repoRoot, cfg.UploadFixturePath))
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(http.StatusAccepted))

		Eventually(func() domain.StateKind {
			current, err := getSession(apiBaseURL, sessionID)
			Expect(err).ToNot(HaveOccurred())
			return current.State.Kind
		}, cfg.SessionCompletionTimeout, cfg.SessionPollInterval).Should(Equal(domain.StateAwaitingPayment))

		Expect(resetSession(apiBaseURL, sessionID)).To(Succeed())

		Eventually(func() domain.StateKind {
			current, err := getSession(apiBaseURL, sessionID)
			Expect(err).ToNot(HaveOccurred())
			return current.State.Kind
		}, cfg.SessionCompletionTimeout, cfg.SessionPollInterval).Should(Equal(domain.StateIdle))

		history, err := getTransitions(apiBaseURL, sessionID)
		Expect(err).ToNot(HaveOccurred())
		Expect(history.Items).ToNot(BeEmpty())
		last := history.Items[len(history.Items)-1]
		Expect(last.To).To(Equal(domain.StateIdle))
		Expect(last.Note).To(Equal(domain.NoteIntentSuperseded))
	})
})
