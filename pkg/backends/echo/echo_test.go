package echo

import (
	"context"
	"testing"

	"github.com/go-go-golems/synthgen/pkg/backends"
	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoIsDeterministic(t *testing.T) {
	b, err := New("echo", &settings.BackendSettings{Type: settings.ApiTypeEcho, Model: "echo"}, nil)
	require.NoError(t, err)

	req := backends.Request{Role: turns.RoleUser, Prompt: "line one\nask something", MaxTokens: 100}
	a, err := b.Generate(context.Background(), req)
	require.NoError(t, err)
	c, err := b.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, a, c)
	assert.Contains(t, a, "ask something")
	assert.Contains(t, a, "[echo user #0")
}

func TestEchoTruncatesToBudget(t *testing.T) {
	b, err := New("echo", &settings.BackendSettings{Model: "echo"}, nil)
	require.NoError(t, err)
	out, err := b.Generate(context.Background(), backends.Request{Role: turns.RoleUser, Prompt: "a long prompt indeed", MaxTokens: 2})
	require.NoError(t, err)
	assert.Len(t, []rune(out), 8)
}
