package ollama

import (
	"context"

	"github.com/go-go-golems/synthgen/pkg/backends"
	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
)

// Backend talks to a local ollama server. The host is taken from OLLAMA_HOST.
type Backend struct {
	model        string
	systemPrompt string
	temperature  *float32
}

var _ backends.Backend = (*Backend)(nil)

func New(_ string, bs *settings.BackendSettings, gen *settings.GenerationSettings) (backends.Backend, error) {
	ret := &Backend{
		model:        bs.ResolvedModel(),
		systemPrompt: bs.SystemPrompt,
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

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return "", backends.NewError(backends.KindClientFault, 0, "", errors.Wrap(err, "invalid OLLAMA_HOST"))
	}

	messages := []api.Message{}
	if b.systemPrompt != "" {
		messages = append(messages, api.Message{Role: "system", Content: b.systemPrompt})
	}
	for _, t := range req.History {
		messages = append(messages, api.Message{Role: messageRole(t.Role), Content: t.Content})
	}
	messages = append(messages, api.Message{Role: messageRole(req.Role), Content: req.Prompt})

	options := map[string]interface{}{
		"num_predict": req.MaxTokens,
	}
	if b.temperature != nil {
		options["temperature"] = *b.temperature
	}

	stream := false
	chatReq := &api.ChatRequest{
		Model:    b.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}

	message := ""
	done := false
	err = client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		message += resp.Message.Content
		if resp.Done {
			done = true
		}
		return nil
	})
	if err != nil {
		return "", classifyError(err)
	}
	if !done {
		return "", backends.NewError(backends.KindMalformedResponse, 0, message,
			errors.New("ollama stream ended before done"))
	}
	return message, nil
}

func messageRole(r turns.Role) string {
	switch r {
	case turns.RoleAssistant:
		return "assistant"
	case turns.RoleSystem:
		return "system"
	default:
		return "user"
	}
}

func classifyError(err error) error {
	var se api.StatusError
	if errors.As(err, &se) {
		return backends.FromStatus(se.StatusCode, se.ErrorMessage, err)
	}
	return backends.NewError(backends.KindServerFault, 0, "", err)
}
