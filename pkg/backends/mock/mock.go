package mock

import (
	"context"
	"sync"

	"github.com/go-go-golems/synthgen/pkg/backends"
)

// Response is one scripted outcome.
type Response struct {
	Text string
	Err  error
}

// Backend replays scripted responses in order and records every request.
// When the script runs out, Fallback is used; a nil Fallback returns "".
type Backend struct {
	mu       sync.Mutex
	script   []Response
	Fallback func(req backends.Request) (string, error)
	Requests []backends.Request
}

var _ backends.Backend = (*Backend)(nil)

func New(script ...Response) *Backend {
	return &Backend{script: script}
}

func Texts(texts ...string) []Response {
	ret := make([]Response, 0, len(texts))
	for _, t := range texts {
		ret = append(ret, Response{Text: t})
	}
	return ret
}

func (b *Backend) Generate(_ context.Context, req backends.Request) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Requests = append(b.Requests, req)
	if len(b.script) == 0 {
		if b.Fallback != nil {
			return b.Fallback(req)
		}
		return "", nil
	}
	r := b.script[0]
	b.script = b.script[1:]
	return r.Text, r.Err
}

// Calls returns a copy of the recorded requests.
func (b *Backend) Calls() []backends.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backends.Request{}, b.Requests...)
}
