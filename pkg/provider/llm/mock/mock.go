// Package mock provides a canned [llm.Responder] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/halcyoncraft/sightline/pkg/provider/llm"
)

var _ llm.Responder = (*Responder)(nil)

// Responder returns canned replies and records every request.
type Responder struct {
	// Reply is the content returned by every Respond call.
	Reply string

	// Err, when set, is returned by every Respond call.
	Err error

	// Delay, when set, runs before the reply is returned; use it to make
	// the responder block on ctx in timeout tests.
	Delay func(ctx context.Context) error

	mu    sync.Mutex
	calls []llm.Request
}

// Respond implements [llm.Responder].
func (m *Responder) Respond(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	cp := req
	cp.Messages = append([]llm.Message(nil), req.Messages...)
	m.calls = append(m.calls, cp)
	m.mu.Unlock()

	if m.Delay != nil {
		if err := m.Delay(ctx); err != nil {
			return nil, err
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &llm.Response{Content: m.Reply}, nil
}

// Calls returns a copy of every Request passed to Respond.
func (m *Responder) Calls() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.calls...)
}
