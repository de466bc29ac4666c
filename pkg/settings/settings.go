package settings

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type MaxTokens struct {
	Default       int `yaml:"default"`
	User          int `yaml:"user,omitempty"`
	ChainOfReason int `yaml:"chain-of-reason,omitempty"`
	Assistant     int `yaml:"assistant,omitempty"`
	ToolCall      int `yaml:"tool-call,omitempty"`
}

// For returns the token bound of a response type, falling back to Default.
func (m MaxTokens) For(responseType string) int {
	v := 0
	switch responseType {
	case "user":
		v = m.User
	case "chain-of-reason":
		v = m.ChainOfReason
	case "assistant":
		v = m.Assistant
	case "tool-call":
		v = m.ToolCall
	}
	if v <= 0 {
		return m.Default
	}
	return v
}

type GenerationSettings struct {
	Temperature *float32  `yaml:"temperature,omitempty"`
	MaxTokens   MaxTokens `yaml:"max-tokens"`
}

type PersonaSettings struct {
	User            string `yaml:"user"`
	Reasoning       string `yaml:"reasoning"`
	Assistant       string `yaml:"assistant"`
	Tool            string `yaml:"tool"`
	Interstitial    string `yaml:"interstitial"`
	AssistantMarker string `yaml:"assistant-marker"`
}

type ConversationSettings struct {
	MinTurns                 int             `yaml:"min-turns"`
	MaxTurns                 int             `yaml:"max-turns"`
	ConversationsPerDocument int             `yaml:"conversations-per-document"`
	ToolMarker               string          `yaml:"tool-marker"`
	Personas                 PersonaSettings `yaml:"personas"`
}

// PromptSettings holds the text/template sources used to build every prompt.
// The *System fields are rendered first and handed to the other templates.
type PromptSettings struct {
	UserSystem      string `yaml:"user-system"`
	ReasoningSystem string `yaml:"reasoning-system"`
	AssistantSystem string `yaml:"assistant-system"`

	Opening      string `yaml:"opening"`
	Reasoning    string `yaml:"reasoning"`
	Assistant    string `yaml:"assistant"`
	Followup     string `yaml:"followup"`
	Interstitial string `yaml:"interstitial"`
	ToolCall     string `yaml:"tool-call"`
}

type RetrySettings struct {
	InitialDelay time.Duration `yaml:"initial-delay"`
	MaxDelay     time.Duration `yaml:"max-delay"`
	MaxRetries   int           `yaml:"max-retries"`
}

type PathSettings struct {
	Documents string `yaml:"documents"`
	Pattern   string `yaml:"pattern"`
	OutputDir string `yaml:"output-dir"`
	Ledger    string `yaml:"ledger"`
}

type Settings struct {
	Backend      string                      `yaml:"backend"`
	Backends     map[string]*BackendSettings `yaml:"backends"`
	Generation   *GenerationSettings         `yaml:"generation"`
	Conversation *ConversationSettings       `yaml:"conversation"`
	Prompts      *PromptSettings             `yaml:"prompts"`
	Retry        *RetrySettings              `yaml:"retry"`
	Paths        *PathSettings               `yaml:"paths"`
	Workers      int                         `yaml:"workers"`
	Thoughts     []string                    `yaml:"thoughts,omitempty"`
}

func NewSettings() *Settings {
	temperature := float32(0.7)
	return &Settings{
		Backends: defaultBackends(),
		Generation: &GenerationSettings{
			Temperature: &temperature,
			MaxTokens: MaxTokens{
				Default:       1024,
				ChainOfReason: 512,
				ToolCall:      256,
			},
		},
		Conversation: &ConversationSettings{
			MinTurns:                 6,
			MaxTurns:                 10,
			ConversationsPerDocument: 1,
			ToolMarker:               "<requires_tool>",
			Personas: PersonaSettings{
				User:            "Joseph",
				Reasoning:       "CoR",
				Assistant:       "Professor",
				Tool:            "Tool",
				Interstitial:    "System",
				AssistantMarker: "🧙🏿‍♂️: ",
			},
		},
		Prompts: defaultPrompts(),
		Retry: &RetrySettings{
			InitialDelay: 2 * time.Second,
			MaxDelay:     time.Minute,
			MaxRetries:   5,
		},
		Paths: &PathSettings{
			Documents: ".",
			Pattern:   "*.md",
			OutputDir: ".",
			Ledger:    "processed_notes.txt",
		},
		Workers: 1,
		Thoughts: []string{
			"Connecting the dots...",
			"Consulting the archives...",
			"Weighing the next question...",
			"Sharpening the quill...",
		},
	}
}

// Load reads a YAML settings file on top of the defaults. An empty path returns the defaults.
func Load(path string) (*Settings, error) {
	s := NewSettings()
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read settings file %s", path)
	}
	if err := s.UpdateFromYAML(b); err != nil {
		return nil, errors.Wrapf(err, "could not parse settings file %s", path)
	}
	return s, nil
}

func (s *Settings) UpdateFromYAML(b []byte) error {
	if err := yaml.Unmarshal(b, s); err != nil {
		return err
	}
	s.applyDefaults()
	return nil
}

func (s *Settings) applyDefaults() {
	for name, b := range s.Backends {
		if b == nil {
			b = &BackendSettings{}
			s.Backends[name] = b
		}
		if b.Type == "" {
			b.Type = ApiType(name)
		}
	}
	d := NewSettings()
	if s.Generation == nil {
		s.Generation = d.Generation
	}
	if s.Conversation == nil {
		s.Conversation = d.Conversation
	}
	if s.Prompts == nil {
		s.Prompts = d.Prompts
	}
	if s.Retry == nil {
		s.Retry = d.Retry
	}
	if s.Paths == nil {
		s.Paths = d.Paths
	}
}

// SelectedBackend returns the settings of the active backend.
func (s *Settings) SelectedBackend() (*BackendSettings, error) {
	if s.Backend == "" {
		return nil, errors.Wrap(ErrInvalidConfig, "no backend selected")
	}
	b, ok := s.Backends[s.Backend]
	if !ok || b == nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown backend %q", s.Backend)
	}
	return b, nil
}

// BackendNames returns the configured backend names, sorted.
func (s *Settings) BackendNames() []string {
	ret := make([]string, 0, len(s.Backends))
	for k := range s.Backends {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

// Validate reports every invalid or missing key at once.
func (s *Settings) Validate() error {
	problems := []string{}
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if b, err := s.SelectedBackend(); err != nil {
		add("backend: %s", strings.TrimSuffix(err.Error(), ": "+ErrInvalidConfig.Error()))
	} else {
		if b.Type != ApiTypeEcho && b.ResolvedModel() == "" {
			add("backends.%s.model is required", s.Backend)
		}
		if b.RateLimits.RequestsPerMinute < 0 || b.RateLimits.TokensPerMinute < 0 || b.RateLimits.RequestsPerDay < 0 {
			add("backends.%s.rate-limits must not be negative", s.Backend)
		}
	}

	if s.Generation == nil {
		add("generation is required")
	} else if s.Generation.MaxTokens.Default <= 0 {
		add("generation.max-tokens.default must be positive")
	}

	if s.Conversation == nil {
		add("conversation is required")
	} else {
		c := s.Conversation
		if c.MinTurns < 1 {
			add("conversation.min-turns must be at least 1")
		}
		if c.MaxTurns < c.MinTurns {
			add("conversation.max-turns must not be less than min-turns")
		}
		if c.ConversationsPerDocument < 1 {
			add("conversation.conversations-per-document must be at least 1")
		}
	}

	if s.Prompts == nil {
		add("prompts is required")
	} else {
		for k, v := range map[string]string{
			"opening":      s.Prompts.Opening,
			"reasoning":    s.Prompts.Reasoning,
			"assistant":    s.Prompts.Assistant,
			"followup":     s.Prompts.Followup,
			"interstitial": s.Prompts.Interstitial,
			"tool-call":    s.Prompts.ToolCall,
		} {
			if strings.TrimSpace(v) == "" {
				add("prompts.%s is required", k)
			}
		}
	}

	if s.Retry == nil {
		add("retry is required")
	} else {
		if s.Retry.InitialDelay <= 0 {
			add("retry.initial-delay must be positive")
		}
		if s.Retry.MaxDelay < s.Retry.InitialDelay {
			add("retry.max-delay must not be less than initial-delay")
		}
		if s.Retry.MaxRetries < 0 {
			add("retry.max-retries must not be negative")
		}
	}

	if s.Paths == nil {
		add("paths is required")
	} else {
		if s.Paths.Documents == "" {
			add("paths.documents is required")
		}
		if s.Paths.Ledger == "" {
			add("paths.ledger is required")
		}
	}

	if s.Workers < 1 {
		add("workers must be at least 1")
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return errors.Wrap(ErrInvalidConfig, strings.Join(problems, "; "))
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}
