package echo

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/go-go-golems/synthgen/pkg/backends"
	"github.com/go-go-golems/synthgen/pkg/settings"
)

// Backend never leaves the process. Its replies are derived from the role,
// the history length and the prompt, so dry runs are reproducible.
type Backend struct {
	model string
}

var _ backends.Backend = (*Backend)(nil)

func New(_ string, bs *settings.BackendSettings, _ *settings.GenerationSettings) (backends.Backend, error) {
	return &Backend{model: bs.ResolvedModel()}, nil
}

func (b *Backend) Generate(ctx context.Context, req backends.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(req.Prompt))

	lines := strings.Split(strings.TrimSpace(req.Prompt), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])

	ret := fmt.Sprintf("[%s %s #%d %08x] %s", b.model, req.Role, len(req.History), h.Sum32(), last)
	runes := []rune(ret)
	if len(runes) > req.MaxTokens*4 {
		ret = string(runes[:req.MaxTokens*4])
	}
	return ret, nil
}
