package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidateOnceBackendIsSelected(t *testing.T) {
	s := NewSettings()
	err := s.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "no backend selected")

	s.Backend = "echo"
	require.NoError(t, s.Validate())
}

func TestValidateReportsEveryProblem(t *testing.T) {
	s := NewSettings()
	s.Backend = "nope"
	s.Conversation.MinTurns = 0
	s.Retry.MaxRetries = -1
	s.Workers = 0
	s.Prompts.Followup = " "

	err := s.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown backend "nope"`)
	assert.Contains(t, msg, "conversation.min-turns")
	assert.Contains(t, msg, "retry.max-retries")
	assert.Contains(t, msg, "workers")
	assert.Contains(t, msg, "prompts.followup")
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "synthgen.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
backend: groq
backends:
  groq:
    model: mixtral
    credentials: [a, b]
    rate-limits:
      requests-per-minute: 2
  mine:
    type: local
    base-url: http://127.0.0.1:8080/v1
    model: m
retry:
  initial-delay: 10ms
  max-delay: 1s
  max-retries: 3
conversation:
  min-turns: 2
  max-turns: 2
`), 0o644))

	s, err := Load(p)
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	b, err := s.SelectedBackend()
	require.NoError(t, err)
	assert.Equal(t, ApiTypeGroq, b.Type)
	assert.Equal(t, "mixtral", b.Model)
	assert.Equal(t, 2, b.RateLimits.RequestsPerMinute)
	assert.Equal(t, 10*time.Millisecond, s.Retry.InitialDelay)
	assert.Equal(t, 2, s.Conversation.MaxTurns)
	// Untouched sections keep their defaults.
	assert.Equal(t, "Joseph", s.Conversation.Personas.User)
	assert.Equal(t, "*.md", s.Paths.Pattern)
	assert.Equal(t, ApiTypeLocal, s.Backends["mine"].Type)
	assert.Contains(t, s.BackendNames(), "claude")
}

func TestResolvedCredentials(t *testing.T) {
	t.Setenv("SYNTHGEN_TEST_KEYS", " k2, k3 ,,k1")
	b := &BackendSettings{
		Credentials:    []string{"k1", ""},
		CredentialsEnv: "SYNTHGEN_TEST_KEYS",
	}
	assert.Equal(t, []string{"k1", "k2", "k3"}, b.ResolvedCredentials())
}

func TestResolvedModelPrefersEnv(t *testing.T) {
	b := &BackendSettings{Model: "a", ModelEnv: "SYNTHGEN_TEST_MODEL"}
	assert.Equal(t, "a", b.ResolvedModel())
	t.Setenv("SYNTHGEN_TEST_MODEL", "b")
	assert.Equal(t, "b", b.ResolvedModel())
}

func TestMaxTokensFallsBackToDefault(t *testing.T) {
	m := MaxTokens{Default: 100, ChainOfReason: 20}
	assert.Equal(t, 20, m.For("chain-of-reason"))
	assert.Equal(t, 100, m.For("assistant"))
	assert.Equal(t, 100, m.For("whatever"))
}

func TestCloneIsDeep(t *testing.T) {
	s := NewSettings()
	c := s.Clone()
	c.Backends["openai"].Model = "changed"
	c.Conversation.Personas.User = "Ada"
	assert.Equal(t, "gpt-4o", s.Backends["openai"].Model)
	assert.Equal(t, "Joseph", s.Conversation.Personas.User)
}

func TestLoadDotEnvSkipsMissingAndKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("SYNTHGEN_DOTENV_A=file\nSYNTHGEN_DOTENV_B=file\n"), 0o644))
	t.Setenv("SYNTHGEN_DOTENV_A", "env")
	t.Cleanup(func() { _ = os.Unsetenv("SYNTHGEN_DOTENV_B") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), p))
	assert.Equal(t, "env", os.Getenv("SYNTHGEN_DOTENV_A"))
	assert.Equal(t, "file", os.Getenv("SYNTHGEN_DOTENV_B"))
}
