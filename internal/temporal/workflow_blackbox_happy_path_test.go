package temporal

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/converter"
	"go.temporal.io/sdk/testsuite"

	"nda-clarity/internal/domain"
	"nda-clarity/internal/payment"
)

// activityTrace records the paid calls only; transition bookkeeping is
// asserted through the store.
type activityTrace struct {
	mu sync.Mutex

	startedOrder []string

	createIn  *CreatePaymentIntentInput
	createOut *CreatePaymentIntentOutput
	confirmIn *ConfirmPaymentInput
	analyzeIn *RetrieveAnalysisInput
}

func (t *activityTrace) started() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.startedOrder...)
}

var _ = Describe("ContractReviewWorkflow blackbox", func() {
	var (
		env       *testsuite.TestWorkflowEnvironment
		back      *fakeBackend
		processor *fakeProcessor
		blob      *fakeBlob
		store     *fakeStore
		trace     *activityTrace
		method    payment.MethodDetails
	)

	submit := func(delay time.Duration, key string) {
		blob.stage(key, []byte("This Mutual Non-Disclosure Agreement..."))
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(SubmitDocumentSignalName, SubmitDocumentSignal{
				Document:  domain.DocumentRef{ID: key, Filename: "nda.txt", Size: 39, Digest: "abc"},
				ObjectKey: key,
			})
		}, delay)
	}

	signal := func(delay time.Duration, name string, arg any) {
		env.RegisterDelayedCallback(func() {
			env.SignalWorkflow(name, arg)
		}, delay)
	}

	run := func() SessionResult {
		env.ExecuteWorkflow(ContractReviewWorkflow, SessionInput{
			SessionID:      "sess-blackbox",
			SupportContact: "support@ndaclarity.test",
			IdleTimeout:    10 * time.Minute,
		})
		Expect(env.IsWorkflowCompleted()).To(BeTrue())
		Expect(env.GetWorkflowError()).ToNot(HaveOccurred())

		var result SessionResult
		Expect(env.GetWorkflowResult(&result)).To(Succeed())
		return result
	}

	BeforeEach(func() {
		var suite testsuite.WorkflowTestSuite
		env = suite.NewTestWorkflowEnvironment()
		back = &fakeBackend{createFn: secretSequence("pi_123"), analyzeFn: reportBody(sampleReport)}
		processor = &fakeProcessor{}
		blob = newFakeBlob()
		store = &fakeStore{}
		trace = &activityTrace{}
		method = payment.MethodDetails{PaymentMethodID: "pm_card_visa", ReturnURL: "https://ndaclarity.test/return"}

		env.RegisterWorkflow(ContractReviewWorkflow)
		env.RegisterActivity(&Activities{Backend: back, Processor: processor, Blob: blob, Store: store})

		env.SetOnActivityStartedListener(func(info *activity.Info, _ context.Context, args converter.EncodedValues) {
			name := info.ActivityType.Name
			if name == "RecordTransitionActivity" {
				return
			}
			trace.mu.Lock()
			defer trace.mu.Unlock()
			trace.startedOrder = append(trace.startedOrder, name)
			switch name {
			case "CreatePaymentIntentActivity":
				var in CreatePaymentIntentInput
				_ = args.Get(&in)
				trace.createIn = &in
			case "ConfirmPaymentActivity":
				var in ConfirmPaymentInput
				_ = args.Get(&in)
				trace.confirmIn = &in
			case "RetrieveAnalysisActivity":
				var in RetrieveAnalysisInput
				_ = args.Get(&in)
				trace.analyzeIn = &in
			}
		})
		env.SetOnActivityCompletedListener(func(info *activity.Info, result converter.EncodedValue, err error) {
			if info.ActivityType.Name != "CreatePaymentIntentActivity" || err != nil {
				return
			}
			var out CreatePaymentIntentOutput
			_ = result.Get(&out)
			trace.mu.Lock()
			trace.createOut = &out
			trace.mu.Unlock()
		})
	})

	It("scenario A: submits, pays once and renders the report", func() {
		submit(time.Second, "uploads/doc-a/nda.txt")
		signal(2*time.Second, ConfirmPaymentSignalName, ConfirmPaymentSignal{IntentID: "pi_123", Method: method})

		By("running the session until it goes idle")
		result := run()

		By("checking the three remote calls ran once each, in order")
		Expect(trace.started()).To(Equal([]string{
			"CreatePaymentIntentActivity",
			"ConfirmPaymentActivity",
			"RetrieveAnalysisActivity",
		}))
		Expect(trace.createIn.SessionID).To(Equal("sess-blackbox"))
		Expect(trace.createIn.ObjectKey).To(Equal("uploads/doc-a/nda.txt"))
		Expect(trace.createIn.IdempotencyKey).ToNot(BeEmpty())
		Expect(trace.createOut.Intent).To(Equal(domain.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret_test"}))
		Expect(trace.confirmIn.Intent.ID).To(Equal("pi_123"))
		Expect(trace.confirmIn.Method.PaymentMethodID).To(Equal("pm_card_visa"))
		Expect(trace.analyzeIn.PaymentIntentID).To(Equal("pi_123"))

		By("checking the final state and the rendered view")
		Expect(result.State.Kind).To(Equal(domain.StateComplete))
		view := result.State.Report.View()
		Expect(view.ScoreLabel).To(Equal("72/100"))
		Expect(view.RiskTone).To(Equal(domain.ToneDanger))
		summary := result.State.Report.Summary()
		Expect(summary.Critical).To(Equal(2))
		Expect(summary.Warnings).To(BeZero())
		Expect(summary.Positives).To(BeZero())
		Expect(summary.Recommendations).To(Equal(1))

		By("checking every transition was recorded in order")
		Expect(store.kinds()).To(Equal([]domain.StateKind{
			domain.StateSubmitting,
			domain.StateAwaitingPayment,
			domain.StateAnalyzing,
			domain.StateComplete,
		}))
		transitions := store.all()
		for i, t := range transitions {
			Expect(t.Seq).To(Equal(int64(i + 1)))
			Expect(t.SessionID).To(Equal("sess-blackbox"))
		}
		Expect(transitions[len(transitions)-1].ConfirmationID).To(Equal("pi_123"))
		Expect(blob.archive("pi_123")).To(MatchJSON(sampleReport))
	})

	It("scenario B: reset while awaiting payment never charges", func() {
		submit(time.Second, "uploads/doc-b/nda.txt")
		signal(2*time.Second, ResetSignalName, ResetSignal{Reason: "user cancelled"})

		result := run()

		Expect(result.State.Kind).To(Equal(domain.StateIdle))
		Expect(processor.confirmed()).To(BeEmpty())
		Expect(back.analyzed()).To(BeEmpty())
		Expect(trace.started()).To(Equal([]string{"CreatePaymentIntentActivity"}))

		transitions := store.all()
		Expect(transitions).To(HaveLen(3))
		last := transitions[2]
		Expect(last.From).To(Equal(domain.StateAwaitingPayment))
		Expect(last.To).To(Equal(domain.StateIdle))
		Expect(last.Note).To(Equal(domain.NoteIntentSuperseded))
	})

	It("scenario C: resubmitting after reset gets an independent intent", func() {
		back.createFn = secretSequence("pi_1", "pi_2")

		submit(time.Second, "uploads/doc-c1/nda.txt")
		signal(2*time.Second, ResetSignalName, ResetSignal{})
		submit(3*time.Second, "uploads/doc-c2/nda.txt")
		signal(4*time.Second, ConfirmPaymentSignalName, ConfirmPaymentSignal{IntentID: "pi_1", Method: method})
		signal(5*time.Second, ConfirmPaymentSignalName, ConfirmPaymentSignal{IntentID: "pi_2", Method: method})

		result := run()

		Expect(result.State.Kind).To(Equal(domain.StateComplete))
		keys := back.uploadKeys()
		Expect(keys).To(HaveLen(2))
		Expect(keys[0]).ToNot(Equal(keys[1]))
		Expect(processor.confirmed()).To(Equal([]string{"pi_2"}))
		Expect(back.analyzed()).To(Equal([]string{"pi_2"}))
	})
})
