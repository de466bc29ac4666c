package openai

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-go-golems/synthgen/pkg/backends"
	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
)

var defaultBaseURLs = map[settings.ApiType]string{
	settings.ApiTypeOpenAI:     "https://api.openai.com/v1",
	settings.ApiTypeGroq:       "https://api.groq.com/openai/v1",
	settings.ApiTypeOpenRouter: "https://openrouter.ai/api/v1",
}

// Backend talks to any server implementing the OpenAI chat completions API.
type Backend struct {
	apiType      settings.ApiType
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
		baseURL = defaultBaseURLs[bs.Type]
	}
	if baseURL == "" {
		return nil, errors.Wrapf(settings.ErrInvalidConfig, "no base url for %s backend", bs.Type)
	}
	// go-openai appends the endpoint itself, users often paste the full URL.
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/chat/completions")

	ret := &Backend{
		apiType:      bs.Type,
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

func (b *Backend) client(credential string, recorder *payloadRecorder) *go_openai.Client {
	config := go_openai.DefaultConfig(credential)
	config.BaseURL = b.baseURL
	recorder.next = b.httpClient.Transport
	config.HTTPClient = &http.Client{Timeout: b.httpClient.Timeout, Transport: recorder}
	return go_openai.NewClientWithConfig(config)
}

func (b *Backend) Generate(ctx context.Context, req backends.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	chatReq := go_openai.ChatCompletionRequest{
		Model:     b.model,
		Messages:  b.messages(req),
		MaxTokens: req.MaxTokens,
	}
	if b.temperature != nil {
		chatReq.Temperature = *b.temperature
	}

	recorder := &payloadRecorder{}
	resp, err := b.client(req.Credential, recorder).CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classifyError(err, string(recorder.body))
	}
	if len(resp.Choices) == 0 {
		return "", backends.NewError(backends.KindMalformedResponse, http.StatusOK, resp.ID,
			errors.Errorf("%s returned no choices", b.apiType))
	}

	return resp.Choices[0].Message.Content, nil
}

func (b *Backend) messages(req backends.Request) []go_openai.ChatCompletionMessage {
	ret := []go_openai.ChatCompletionMessage{}
	if b.systemPrompt != "" {
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: b.systemPrompt,
		})
	}
	for _, t := range req.History {
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    messageRole(t.Role),
			Content: t.Content,
		})
	}
	ret = append(ret, go_openai.ChatCompletionMessage{
		Role:    messageRole(req.Role),
		Content: req.Prompt,
	})
	return ret
}

func messageRole(r turns.Role) string {
	switch r {
	case turns.RoleAssistant:
		return go_openai.ChatMessageRoleAssistant
	case turns.RoleSystem:
		return go_openai.ChatMessageRoleSystem
	default:
		return go_openai.ChatMessageRoleUser
	}
}

func classifyError(err error, payload string) error {
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		return backends.FromStatus(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		return backends.FromStatus(reqErr.HTTPStatusCode, "", err)
	}
	if isDecodeError(err) {
		return backends.NewError(backends.KindMalformedResponse, http.StatusOK, payload,
			errors.Wrap(err, "could not decode chat completion"))
	}
	return backends.NewError(backends.KindServerFault, 0, "", err)
}
