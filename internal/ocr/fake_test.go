package ocr

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/text/language"

	"ocrapi/internal/lang"
)

// fakeBackend returns canned outputs per engine tag and counts every call.
type fakeBackend struct {
	mu      sync.Mutex
	outputs map[string]Output
	fail    map[string]error // NewEngine errors per tag
	recErr  error

	loads   atomic.Int32
	calls   atomic.Int32
	closed  atomic.Int32
	loading chan struct{} // when set, NewEngine blocks until closed
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		outputs: make(map[string]Output),
		fail:    make(map[string]error),
	}
}

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) Version() string { return "0.0.1" }
func (f *fakeBackend) EngineTag(t language.Tag) string { return lang.EngineTag(t) }
func (f *fakeBackend) Languages() ([]string, error) { return lang.EngineTags(), nil }
func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) NewEngine(ctx context.Context, engineTag string) (Engine, error) {
	f.loads.Add(1)
	if f.loading != nil {
		<-f.loading
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[engineTag]; ok {
		delete(f.fail, engineTag)
		return nil, err
	}
	return &fakeEngine{backend: f, tag: engineTag}, nil
}

type fakeEngine struct {
	backend *fakeBackend
	tag     string
}

func (e *fakeEngine) Recognize(ctx context.Context, img Image) (Output, error) {
	e.backend.calls.Add(1)
	if e.backend.recErr != nil {
		return Output{}, e.backend.recErr
	}
	e.backend.mu.Lock()
	defer e.backend.mu.Unlock()
	return e.backend.outputs[e.tag], nil
}

func (e *fakeEngine) Close() error {
	e.backend.closed.Add(1)
	return nil
}

var errBoom = errors.New("boom")
