package decorator

import (
	"context"
	"sync"

	"relay/internal/adapter"
	"relay/pkg/models"
)

// fakeAdapter records calls and fails according to an injectable script.
type fakeAdapter struct {
	name string

	mu         sync.Mutex
	calls      map[string]int
	lastEvent  models.Event
	failures   int
	err        error
	batchCalls int
	batchErr   error
	batchable  bool
	batches    [][]adapter.Item
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{
		name:  name,
		calls: make(map[string]int),
	}
}

// failNext makes the next n dispatch calls return err.
func (f *fakeAdapter) failNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
	f.err = err
}

func (f *fakeAdapter) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeAdapter) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	return nil
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Initialize(ctx context.Context) error { return f.record("initialize") }

func (f *fakeAdapter) Track(ctx context.Context, event models.Event) error {
	f.mu.Lock()
	f.lastEvent = event
	f.mu.Unlock()
	return f.record("track")
}

func (f *fakeAdapter) Identify(ctx context.Context, payload models.IdentifyPayload) error {
	return f.record("identify")
}

func (f *fakeAdapter) Group(ctx context.Context, payload models.GroupPayload) error {
	return f.record("group")
}

func (f *fakeAdapter) Page(ctx context.Context, payload models.PagePayload) error {
	return f.record("page")
}

func (f *fakeAdapter) Flush(ctx context.Context) error { return f.record("flush") }

func (f *fakeAdapter) Destroy(ctx context.Context) error { return f.record("destroy") }

// batchingFake adds a native batch call on top of fakeAdapter.
type batchingFake struct {
	*fakeAdapter
}

func newBatchingFake(name string) *batchingFake {
	return &batchingFake{fakeAdapter: newFakeAdapter(name)}
}

func (f *batchingFake) SendBatch(ctx context.Context, items []adapter.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	f.batches = append(f.batches, items)
	return f.batchErr
}
