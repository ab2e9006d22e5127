package orchestrator

import (
	"context"
	"sync"

	"nda-clarity/internal/backend"
	"nda-clarity/internal/domain"
	"nda-clarity/internal/payment"
)

type fakeBackend struct {
	mu sync.Mutex

	createFn  func(ctx context.Context, req backend.UploadRequest) (string, error)
	analyzeFn func(ctx context.Context, id string) ([]byte, error)

	uploads       []backend.UploadRequest
	analysisCalls []string
}

func (f *fakeBackend) CreatePaymentIntent(ctx context.Context, req backend.UploadRequest) (string, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, req)
	fn := f.createFn
	f.mu.Unlock()
	return fn(ctx, req)
}

func (f *fakeBackend) RetrieveAnalysis(ctx context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	f.analysisCalls = append(f.analysisCalls, id)
	fn := f.analyzeFn
	f.mu.Unlock()
	return fn(ctx, id)
}

func (f *fakeBackend) uploadKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.uploads))
	for _, u := range f.uploads {
		out = append(out, u.IdempotencyKey)
	}
	return out
}

func (f *fakeBackend) analyzed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.analysisCalls...)
}

type fakeProcessor struct {
	mu sync.Mutex

	confirmFn func(ctx context.Context, intent domain.PaymentIntent) (payment.Outcome, error)
	intents   []string
}

func (f *fakeProcessor) Confirm(ctx context.Context, intent domain.PaymentIntent, _ payment.MethodDetails) (payment.Outcome, error) {
	f.mu.Lock()
	f.intents = append(f.intents, intent.ID)
	fn := f.confirmFn
	f.mu.Unlock()
	return fn(ctx, intent)
}

func (f *fakeProcessor) confirmed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.intents...)
}

type fakeRecorder struct {
	mu          sync.Mutex
	transitions []domain.Transition
}

func (f *fakeRecorder) RecordTransition(_ context.Context, t domain.Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, t)
	return nil
}

func (f *fakeRecorder) all() []domain.Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Transition(nil), f.transitions...)
}

type fakeArchive struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (f *fakeArchive) ArchiveReport(_ context.Context, id string, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string][]byte{}
	}
	f.saved[id] = raw
	return nil
}

func secretFor(id string) func(context.Context, backend.UploadRequest) (string, error) {
	return func(context.Context, backend.UploadRequest) (string, error) {
		return id + "_secret_test", nil
	}
}

func succeedPayment(_ context.Context, intent domain.PaymentIntent) (payment.Outcome, error) {
	return payment.Succeeded(intent.ID), nil
}

func reportBody(body string) func(context.Context, string) ([]byte, error) {
	return func(context.Context, string) ([]byte, error) {
		return []byte(body), nil
	}
}
