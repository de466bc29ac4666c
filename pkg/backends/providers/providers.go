package providers

import (
	"github.com/go-go-golems/synthgen/pkg/backends"
	"github.com/go-go-golems/synthgen/pkg/backends/claude"
	"github.com/go-go-golems/synthgen/pkg/backends/echo"
	"github.com/go-go-golems/synthgen/pkg/backends/gemini"
	"github.com/go-go-golems/synthgen/pkg/backends/ollama"
	"github.com/go-go-golems/synthgen/pkg/backends/openai"
	"github.com/go-go-golems/synthgen/pkg/settings"
)

// NewDefaultRegistry registers every built-in adapter.
func NewDefaultRegistry() *backends.Registry {
	r := backends.NewRegistry()

	hosted := backends.Capabilities{NeedsCredential: true}
	r.Register(settings.ApiTypeOpenAI, openai.New, hosted)
	r.Register(settings.ApiTypeGroq, openai.New, hosted)
	r.Register(settings.ApiTypeOpenRouter, openai.New, hosted)
	r.Register(settings.ApiTypeLocal, openai.New, backends.Capabilities{})

	strict := backends.Capabilities{NeedsCredential: true, StrictAlternation: true}
	r.Register(settings.ApiTypeClaude, claude.New, strict)
	r.Register(settings.ApiTypeGemini, gemini.New, strict)

	r.Register(settings.ApiTypeOllama, ollama.New, backends.Capabilities{})
	r.Register(settings.ApiTypeEcho, echo.New, backends.Capabilities{})

	return r
}
