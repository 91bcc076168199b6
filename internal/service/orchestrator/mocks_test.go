package orchestrator

import (
	"context"
	"sync"

	"github.com/ChaseRain/slidegen/internal/service/generation"
	"github.com/ChaseRain/slidegen/internal/service/session"
)

// fakeGenerator records requests and replies with a fixed result.
type fakeGenerator struct {
	mu       sync.Mutex
	requests []generation.Request
	result   generation.Result
	// block, when set, holds Generate until it is closed.
	block   chan struct{}
	started chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, req generation.Request) generation.Result {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}

	// hand out a copy so callers can mutate the artifact freely
	res := f.result
	if res.Artifact != nil {
		a := *res.Artifact
		res.Artifact = &a
	}
	return res
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type downloadCall struct {
	FileBase64, Filename, ContentType string
}

type spyDownloader struct {
	mu    sync.Mutex
	calls []downloadCall
}

func (s *spyDownloader) Download(fileBase64, filename, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, downloadCall{fileBase64, filename, contentType})
}

// failingStore wraps a Store and fails every Save.
type failingStore struct {
	session.Store
	err error
}

func (f failingStore) Save(context.Context, string, session.Record) error {
	return f.err
}
