package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"

	"nda-clarity/internal/backend"
	"nda-clarity/internal/domain"
	"nda-clarity/internal/payment"
)

type fakeBackend struct {
	mu sync.Mutex

	createFn  func(req backend.UploadRequest) (string, error)
	analyzeFn func(id string) ([]byte, error)

	uploads       []backend.UploadRequest
	analysisCalls []string
}

func (f *fakeBackend) CreatePaymentIntent(_ context.Context, req backend.UploadRequest) (string, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, req)
	fn := f.createFn
	f.mu.Unlock()
	return fn(req)
}

func (f *fakeBackend) RetrieveAnalysis(_ context.Context, id string) ([]byte, error) {
	f.mu.Lock()
	f.analysisCalls = append(f.analysisCalls, id)
	fn := f.analyzeFn
	f.mu.Unlock()
	return fn(id)
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

	outcomes []payment.Outcome
	intents  []string
}

// Confirm replays outcomes in order and repeats the last one.
func (f *fakeProcessor) Confirm(_ context.Context, intent domain.PaymentIntent, _ payment.MethodDetails) (payment.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, intent.ID)
	if len(f.outcomes) == 0 {
		return payment.Succeeded(intent.ID), nil
	}
	out := f.outcomes[0]
	if len(f.outcomes) > 1 {
		f.outcomes = f.outcomes[1:]
	}
	if out.Status == payment.StatusSucceeded && out.ConfirmationID == "" {
		out.ConfirmationID = intent.ID
	}
	return out, nil
}

func (f *fakeProcessor) confirmed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.intents...)
}

type fakeBlob struct {
	mu       sync.Mutex
	objects  map[string][]byte
	deleted  []string
	archived map[string][]byte
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: map[string][]byte{}, archived: map[string][]byte{}}
}

func (f *fakeBlob) stage(key string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = content
}

func (f *fakeBlob) GetDocument(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return content, nil
}

func (f *fakeBlob) DeleteDocument(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeBlob) ArchiveReport(_ context.Context, id string, raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived[id] = raw
	return nil
}

func (f *fakeBlob) deletedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *fakeBlob) staged() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	return keys
}

func (f *fakeBlob) archive(id string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.archived[id]
}

type fakeStore struct {
	mu          sync.Mutex
	transitions []domain.Transition
}

func (f *fakeStore) RecordTransition(_ context.Context, t domain.Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, t)
	return nil
}

func (f *fakeStore) all() []domain.Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Transition(nil), f.transitions...)
}

func (f *fakeStore) kinds() []domain.StateKind {
	var out []domain.StateKind
	for _, t := range f.all() {
		out = append(out, t.To)
	}
	return out
}

// fakeTemporalClient implements the slice of client.Client the gateway uses.
type fakeTemporalClient struct {
	client.Client

	mu       sync.Mutex
	started  []client.StartWorkflowOptions
	inputs   []SessionInput
	signals  []sentSignal
	startErr error
	err      error
	views    map[string]SessionView
}

type sentSignal struct {
	WorkflowID string
	Name       string
	Arg        any
}

func (f *fakeTemporalClient) ExecuteWorkflow(_ context.Context, options client.StartWorkflowOptions, _ interface{}, args ...interface{}) (client.WorkflowRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, options)
	if len(args) > 0 {
		if in, ok := args[0].(SessionInput); ok {
			f.inputs = append(f.inputs, in)
		}
	}
	return nil, nil
}

func (f *fakeTemporalClient) SignalWorkflow(_ context.Context, workflowID string, _ string, signalName string, arg interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.signals = append(f.signals, sentSignal{WorkflowID: workflowID, Name: signalName, Arg: arg})
	return nil
}

func (f *fakeTemporalClient) QueryWorkflow(_ context.Context, workflowID string, _ string, _ string, _ ...interface{}) (converter.EncodedValue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	view, ok := f.views[workflowID]
	if !ok {
		return nil, serviceerror.NewNotFound("workflow not found")
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return nil, err
	}
	return jsonValue(raw), nil
}

type jsonValue []byte

func (v jsonValue) HasValue() bool { return len(v) > 0 }

func (v jsonValue) Get(valuePtr interface{}) error {
	return json.Unmarshal(v, valuePtr)
}

func secretSequence(ids ...string) func(backend.UploadRequest) (string, error) {
	var mu sync.Mutex
	next := 0
	return func(backend.UploadRequest) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		id := ids[next]
		if next < len(ids)-1 {
			next++
		}
		return id + "_secret_test", nil
	}
}

func reportBody(body string) func(string) ([]byte, error) {
	return func(string) ([]byte, error) {
		return []byte(body), nil
	}
}

const sampleReport = `{"overallScore":72,"riskLevel":"HIGH","criticalIssues":[{"title":"Unlimited term","severity":"critical"},{"title":"One-sided remedies","severity":"critical"}],"warnings":[],"positives":[],"recommendations":["Cap the term at three years"]}`
