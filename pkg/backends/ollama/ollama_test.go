package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-go-golems/synthgen/pkg/backends"
	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAgainstLocalServer(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Options map[string]interface{} `json:"options"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"hi Joseph"},"done":true}` + "\n"))
	}))
	defer srv.Close()
	t.Setenv("OLLAMA_HOST", srv.URL)

	b, err := New("ollama", &settings.BackendSettings{Type: settings.ApiTypeOllama, Model: "llama3"}, nil)
	require.NoError(t, err)

	out, err := b.Generate(context.Background(), backends.Request{
		Role:      turns.RoleUser,
		Prompt:    "say hi",
		MaxTokens: 7,
	})
	require.NoError(t, err)
	assert.Equal(t, "hi Joseph", out)
	assert.Equal(t, "llama3", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.EqualValues(t, 7, got.Options["num_predict"])
}
