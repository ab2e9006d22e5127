package orchestrator

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"nda-clarity/internal/backend"
	"nda-clarity/internal/domain"
	"nda-clarity/internal/payment"
)

var _ = Describe("Contract review orchestration", func() {
	var (
		ctx       context.Context
		back      *fakeBackend
		processor *fakeProcessor
		recorder  *fakeRecorder
		orch      *Orchestrator
		doc       Document
	)

	BeforeEach(func() {
		ctx = context.Background()
		back = &fakeBackend{}
		processor = &fakeProcessor{confirmFn: succeedPayment}
		recorder = &fakeRecorder{}
		doc = Document{Filename: "nda.txt", Content: []byte("This Mutual Non-Disclosure Agreement...")}
	})

	JustBeforeEach(func() {
		orch = New(Options{
			SessionID:      "sess-1",
			Backend:        back,
			Processor:      processor,
			Recorder:       recorder,
			SupportContact: "support@ndaclarity.test",
		})
	})

	Context("scenario A: a paid document produces a report", func() {
		BeforeEach(func() {
			back.createFn = secretFor("pi_123")
			back.analyzeFn = reportBody(`{"overallScore":72,"riskLevel":"HIGH","criticalIssues":[{"title":"a","severity":"critical"},{"title":"b","severity":"critical"}]}`)
		})

		It("walks submit, confirm and analyze once each and ends Complete", func() {
			state, err := orch.SubmitDocument(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Kind).To(Equal(domain.StateAwaitingPayment))
			Expect(state.IntentID()).To(Equal("pi_123"))
			Expect(state.Document.Filename).To(Equal("nda.txt"))

			state, err = orch.ConfirmPayment(ctx, "pi_123", payment.MethodDetails{PaymentMethodID: "pm_card_visa"})
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Kind).To(Equal(domain.StateAnalyzing))

			state, err = orch.RequestAnalysis(ctx, state.ConfirmationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Kind).To(Equal(domain.StateComplete))
			Expect(*state.Report.OverallScore).To(Equal(72))
			Expect(state.Report.Summary()).To(Equal(domain.Summary{Critical: 2}))

			Expect(back.uploadKeys()).To(HaveLen(1))
			Expect(processor.confirmed()).To(Equal([]string{"pi_123"}))
			Expect(back.analyzed()).To(Equal([]string{"pi_123"}))

			var kinds []domain.StateKind
			for _, t := range recorder.all() {
				kinds = append(kinds, t.To)
			}
			Expect(kinds).To(Equal([]domain.StateKind{
				domain.StateSubmitting,
				domain.StateAwaitingPayment,
				domain.StateAnalyzing,
				domain.StateComplete,
			}))
		})
	})

	Context("scenario B: submission fails and is retried with the same document", func() {
		BeforeEach(func() {
			calls := 0
			back.createFn = func(context.Context, backend.UploadRequest) (string, error) {
				calls++
				if calls == 1 {
					return "", &backend.StatusError{StatusCode: 502}
				}
				return "pi_456_secret_x", nil
			}
		})

		It("fails at submission, then reaches AwaitingPayment reusing the upload key", func() {
			state, err := orch.SubmitDocument(ctx, doc)
			Expect(domain.IsStage(err, domain.StageSubmission)).To(BeTrue())
			Expect(state.FailedAt(domain.StageSubmission)).To(BeTrue())
			Expect(state.Document).To(BeNil())

			state, err = orch.SubmitDocument(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Kind).To(Equal(domain.StateAwaitingPayment))
			Expect(state.IntentID()).To(Equal("pi_456"))

			keys := back.uploadKeys()
			Expect(keys).To(HaveLen(2))
			Expect(keys[0]).NotTo(BeEmpty())
			Expect(keys[1]).To(Equal(keys[0]))
		})
	})

	Context("scenario C: cancelling payment and starting over", func() {
		BeforeEach(func() {
			n := 0
			back.createFn = func(context.Context, backend.UploadRequest) (string, error) {
				n++
				if n == 1 {
					return "pi_first_secret_a", nil
				}
				return "pi_second_secret_b", nil
			}
			back.analyzeFn = reportBody(`{"overallScore":10,"riskLevel":"LOW"}`)
		})

		It("creates an independent intent and never touches the first one again", func() {
			state, err := orch.SubmitDocument(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.IntentID()).To(Equal("pi_first"))

			Expect(orch.Reset().IsIdle()).To(BeTrue())

			state, err = orch.SubmitDocument(ctx, Document{Filename: "other.txt", Content: []byte("another agreement")})
			Expect(err).NotTo(HaveOccurred())
			Expect(state.IntentID()).To(Equal("pi_second"))

			_, err = orch.ConfirmPayment(ctx, "pi_first", payment.MethodDetails{PaymentMethodID: "pm"})
			Expect(errors.Is(err, domain.ErrStaleIntent)).To(BeTrue())

			state, err = orch.ConfirmPayment(ctx, "pi_second", payment.MethodDetails{PaymentMethodID: "pm"})
			Expect(err).NotTo(HaveOccurred())
			state, err = orch.RequestAnalysis(ctx, state.ConfirmationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Kind).To(Equal(domain.StateComplete))

			Expect(processor.confirmed()).To(Equal([]string{"pi_second"}))
			Expect(back.analyzed()).To(Equal([]string{"pi_second"}))

			keys := back.uploadKeys()
			Expect(keys[0]).NotTo(Equal(keys[1]))

			var superseded []string
			for _, t := range recorder.all() {
				if t.Note == domain.NoteIntentSuperseded {
					superseded = append(superseded, t.IntentID)
				}
			}
			Expect(superseded).To(Equal([]string{"pi_first"}))
		})
	})
})
