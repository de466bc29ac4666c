package turns

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRoleOpposite(t *testing.T) {
	assert.Equal(t, RoleAssistant, RoleUser.Opposite())
	assert.Equal(t, RoleUser, RoleAssistant.Opposite())
	assert.Equal(t, RoleUser, RoleSystem.Opposite())
}

func TestTokenCountIsRuneLength(t *testing.T) {
	tr := NewTurn(uuid.New(), 0, RoleAssistant, ResponseTypeAssistant, "Professor", "🧙: hi")
	assert.Equal(t, 5, tr.TokenCount())
}

func TestIsSubsequence(t *testing.T) {
	id := uuid.New()
	full := []Turn{
		NewTurn(id, 0, RoleUser, ResponseTypeUser, "Joseph", "a"),
		NewTurn(id, 1, RoleAssistant, ResponseTypeChainOfReason, "CoR", "b"),
		NewTurn(id, 2, RoleAssistant, ResponseTypeAssistant, "Professor", "c"),
	}
	assert.True(t, IsSubsequence([]Turn{full[0], full[2]}, full))
	assert.True(t, IsSubsequence(nil, full))
	assert.False(t, IsSubsequence([]Turn{full[2], full[0]}, full))
}

func TestRenderTranscript(t *testing.T) {
	id := uuid.New()
	ts := []Turn{
		NewTurn(id, 0, RoleUser, ResponseTypeUser, "Joseph", " hello "),
		NewTurn(id, 1, RoleAssistant, ResponseTypeAssistant, "", "hi"),
	}
	assert.Equal(t, "Joseph: hello\n\nassistant: hi", RenderTranscript(ts))

	var buf bytes.Buffer
	FprintTurns(&buf, ts)
	assert.Contains(t, buf.String(), "[1] assistant (assistant): hi")
}
