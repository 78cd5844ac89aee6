package agentcore

import (
	"context"
	"fmt"
	"sync"
)

// fakeProvider scripts completions per call index, mirroring how the real
// providers behave: stateless per call, safe for concurrent use.
type fakeProvider struct {
	mu sync.Mutex

	name     string
	requests [][]Message

	complete func(call int, msgs []Message) (CompletionResponse, error)
	stream   func(call int, msgs []Message) ([]StreamChunk, error)

	healthErr    error
	healthChecks int
}

func (p *fakeProvider) Name() string {
	if p.name != "" {
		return p.name
	}
	return "fake"
}

func (p *fakeProvider) Model() string { return "fake-model" }

func (p *fakeProvider) HealthCheck(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthChecks++
	return p.healthErr
}

func (p *fakeProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return []ModelInfo{{ID: "fake-model", Name: "Fake Model"}}, nil
}

func (p *fakeProvider) Complete(ctx context.Context, msgs []Message, opts CompletionOptions) (CompletionResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, append([]Message(nil), msgs...))
	call := len(p.requests) - 1
	fn := p.complete
	p.mu.Unlock()
	if fn == nil {
		return CompletionResponse{}, fmt.Errorf("fakeProvider.Complete not configured")
	}
	return fn(call, msgs)
}

func (p *fakeProvider) CompleteStream(ctx context.Context, msgs []Message, opts CompletionOptions) (<-chan StreamChunk, error) {
	p.mu.Lock()
	p.requests = append(p.requests, append([]Message(nil), msgs...))
	call := len(p.requests) - 1
	fn := p.stream
	p.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("fakeProvider.CompleteStream not configured")
	}
	chunks, err := fn(call, msgs)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk, StreamBufferSize)
	go func() {
		defer close(ch)
		for _, chunk := range chunks {
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (p *fakeProvider) Requests() [][]Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]Message, len(p.requests))
	copy(out, p.requests)
	return out
}

var _ Provider = (*fakeProvider)(nil)
