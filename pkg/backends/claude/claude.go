package claude

import (
	"context"
	"net/http"

	"github.com/go-go-golems/synthgen/pkg/backends"
	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/pkg/errors"
)

const defaultBaseURL = "https://api.anthropic.com"

// Backend calls the Anthropic Messages API. The API rejects consecutive
// messages with the same role, so it is registered with strict alternation.
type Backend struct {
	model        string
	baseURL      string
	systemPrompt string
	temperature  *float32
	httpClient   *http.Client
}

var _ backends.Backend = (*Backend)(nil)

func New(_ string, bs *settings.BackendSettings, gen *settings.GenerationSettings) (backends.Backend, error) {
	baseURL := bs.ResolvedBaseURL()
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	ret := &Backend{
		model:        bs.ResolvedModel(),
		baseURL:      baseURL,
		systemPrompt: bs.SystemPrompt,
		httpClient:   &http.Client{Timeout: bs.Timeout},
	}
	if gen != nil {
		ret.temperature = gen.Temperature
	}
	return ret, nil
}

func (b *Backend) Generate(ctx context.Context, req backends.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	messages := make([]Message, 0, len(req.History)+1)
	for _, t := range req.History {
		messages = append(messages, Message{Role: messageRole(t.Role), Content: t.Content})
	}
	messages = append(messages, Message{Role: messageRole(req.Role), Content: req.Prompt})

	client := NewClient(b.httpClient, req.Credential, b.baseURL)
	resp, err := client.SendMessage(ctx, &MessageRequest{
		Model:       b.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		System:      b.systemPrompt,
		Temperature: b.temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Content) == 0 {
		return "", backends.NewError(backends.KindMalformedResponse, http.StatusOK, resp.ID,
			errors.New("claude returned no content blocks"))
	}
	return resp.Text(), nil
}

// Claude only knows user and assistant. System turns are sent as user messages.
func messageRole(r turns.Role) string {
	if r == turns.RoleAssistant {
		return "assistant"
	}
	return "user"
}
