package backends

import (
	"context"
	"strings"

	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/pkg/errors"
)

// Request is everything an adapter needs for one generation call.
//
// History is sent as prior messages, then Prompt is sent as a message with Role.
type Request struct {
	History    []turns.Turn
	Role       turns.Role
	Prompt     string
	MaxTokens  int
	Credential string
}

func (r Request) Validate() error {
	if r.MaxTokens <= 0 {
		return NewError(KindClientFault, 0, "", errors.Errorf("max tokens must be positive, got %d", r.MaxTokens))
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return NewError(KindClientFault, 0, "", errors.New("prompt is empty"))
	}
	if !r.Role.Valid() {
		return NewError(KindClientFault, 0, "", errors.Errorf("invalid role %q", r.Role))
	}
	return nil
}

// Backend executes exactly one generation call per invocation and never retries.
//
// Errors are returned as *Error so the caller can tell retryable faults apart.
// A blank string with a nil error means the provider answered with no content.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type BackendFunc func(ctx context.Context, req Request) (string, error)

func (f BackendFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
