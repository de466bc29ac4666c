package gemini

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-go-golems/synthgen/pkg/backends"
	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Backend runs every call as a fresh chat session seeded with the history.
type Backend struct {
	model       string
	baseURL     string
	temperature *float32
}

var _ backends.Backend = (*Backend)(nil)

func New(_ string, bs *settings.BackendSettings, gen *settings.GenerationSettings) (backends.Backend, error) {
	ret := &Backend{
		model:   bs.ResolvedModel(),
		baseURL: bs.ResolvedBaseURL(),
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

	opts := []option.ClientOption{option.WithAPIKey(req.Credential)}
	if b.baseURL != "" {
		opts = append(opts, option.WithEndpoint(b.baseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", backends.NewError(backends.KindClientFault, 0, "", errors.Wrap(err, "failed to create gemini client"))
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close gemini client")
		}
	}()

	model := client.GenerativeModel(b.model)
	model.SetMaxOutputTokens(int32(req.MaxTokens))
	if b.temperature != nil {
		model.SetTemperature(*b.temperature)
	}

	contents := buildContents(req)
	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", classifyError(err)
	}

	text, ok := responseText(resp)
	if !ok {
		return "", backends.NewError(backends.KindMalformedResponse, http.StatusOK, "",
			errors.New("gemini returned no candidates"))
	}
	return text, nil
}

// buildContents maps history plus the prompt to alternating user/model
// contents. Consecutive messages of the same role are merged, and the prompt
// is always sent as the final user message.
func buildContents(req backends.Request) []*genai.Content {
	ret := []*genai.Content{}
	texts := []string{}
	role := ""

	flush := func() {
		if role == "" {
			return
		}
		ret = append(ret, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(strings.Join(texts, "\n\n"))},
		})
	}
	add := func(r string, text string) {
		if r != role {
			flush()
			role = r
			texts = nil
		}
		texts = append(texts, text)
	}

	for _, t := range req.History {
		add(contentRole(t.Role), t.Content)
	}
	add("user", req.Prompt)
	flush()

	return ret
}

func contentRole(r turns.Role) string {
	if r == turns.RoleAssistant {
		return "model"
	}
	return "user"
}

func responseText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", false
	}
	ret := ""
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				ret += string(t)
			}
		}
	}
	return ret, true
}

func classifyError(err error) error {
	// A safety block is an answer, not a fault of the credential.
	var berr *genai.BlockedError
	if errors.As(err, &berr) {
		return backends.NewError(backends.KindMalformedResponse, 0, berr.Error(), err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return backends.FromStatus(gerr.Code, gerr.Body, err)
	}
	if s, ok := status.FromError(err); ok {
		return backends.FromStatus(grpcToHTTP(s.Code()), s.Message(), err)
	}
	return backends.NewError(backends.KindServerFault, 0, "", err)
}

func grpcToHTTP(c codes.Code) int {
	switch c {
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
