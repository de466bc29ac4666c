package settings

import (
	"os"
	"strings"
	"time"

	"github.com/huandu/go-clone"
)

// RateLimits is the quota of one credential. Zero means unlimited.
type RateLimits struct {
	RequestsPerMinute int `yaml:"requests-per-minute,omitempty"`
	TokensPerMinute   int `yaml:"tokens-per-minute,omitempty"`
	RequestsPerDay    int `yaml:"requests-per-day,omitempty"`
}

func (r RateLimits) IsZero() bool {
	return r.RequestsPerMinute == 0 && r.TokensPerMinute == 0 && r.RequestsPerDay == 0
}

type BackendSettings struct {
	// Type selects the adapter. When empty, the key under `backends:` is used.
	Type  ApiType `yaml:"type,omitempty"`
	Model string  `yaml:"model,omitempty"`
	// ModelEnv names an environment variable that overrides Model when set.
	ModelEnv string `yaml:"model-env,omitempty"`

	// Credentials is the ordered credential pool. Entries from CredentialsEnv
	// (comma separated) are appended after them.
	Credentials    []string `yaml:"credentials,omitempty"`
	CredentialsEnv string   `yaml:"credentials-env,omitempty"`

	BaseURL    string `yaml:"base-url,omitempty"`
	BaseURLEnv string `yaml:"base-url-env,omitempty"`
	// SystemPrompt is sent as a leading system message by backends that support it.
	SystemPrompt string `yaml:"system-prompt,omitempty"`

	RateLimits RateLimits    `yaml:"rate-limits,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
}

// ResolvedModel returns the model, preferring ModelEnv when it is set in the environment.
func (b *BackendSettings) ResolvedModel() string {
	if b.ModelEnv != "" {
		if v := strings.TrimSpace(os.Getenv(b.ModelEnv)); v != "" {
			return v
		}
	}
	return b.Model
}

func (b *BackendSettings) ResolvedBaseURL() string {
	if b.BaseURLEnv != "" {
		if v := strings.TrimSpace(os.Getenv(b.BaseURLEnv)); v != "" {
			return v
		}
	}
	return b.BaseURL
}

// ResolvedCredentials returns the credential pool in order, without blanks or duplicates.
func (b *BackendSettings) ResolvedCredentials() []string {
	candidates := append([]string{}, b.Credentials...)
	if b.CredentialsEnv != "" {
		candidates = append(candidates, strings.Split(os.Getenv(b.CredentialsEnv), ",")...)
	}

	seen := map[string]bool{}
	ret := []string{}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		ret = append(ret, c)
	}
	return ret
}

func (b *BackendSettings) Clone() *BackendSettings {
	return clone.Clone(b).(*BackendSettings)
}

func defaultBackends() map[string]*BackendSettings {
	return map[string]*BackendSettings{
		string(ApiTypeOpenAI): {
			Type:           ApiTypeOpenAI,
			Model:          "gpt-4o",
			CredentialsEnv: "OPENAI_API_KEY",
		},
		string(ApiTypeClaude): {
			Type:           ApiTypeClaude,
			Model:          "claude-3-5-sonnet-20240620",
			CredentialsEnv: "CLAUDE_API_KEY",
			BaseURL:        "https://api.anthropic.com",
		},
		string(ApiTypeGroq): {
			Type:           ApiTypeGroq,
			Model:          "llama3-70b-8192",
			CredentialsEnv: "GROQ_API_KEY",
			RateLimits: RateLimits{
				RequestsPerMinute: 30,
				TokensPerMinute:   6000,
				RequestsPerDay:    14400,
			},
		},
		string(ApiTypeGemini): {
			Type:           ApiTypeGemini,
			Model:          "gemini-1.5-flash",
			CredentialsEnv: "GEMINI_API_KEY",
			RateLimits: RateLimits{
				RequestsPerMinute: 15,
				TokensPerMinute:   1000000,
				RequestsPerDay:    1500,
			},
		},
		string(ApiTypeOpenRouter): {
			Type:           ApiTypeOpenRouter,
			Model:          "meta-llama/llama-3-70b-instruct",
			CredentialsEnv: "OPENROUTER_API_KEY",
		},
		string(ApiTypeLocal): {
			Type:       ApiTypeLocal,
			Model:      "local-model",
			ModelEnv:   "LOCAL_API_MODEL",
			BaseURL:    "http://localhost:1234/v1",
			BaseURLEnv: "LOCAL_API_URL",
			Timeout:    5 * time.Minute,
		},
		string(ApiTypeOllama): {
			Type:  ApiTypeOllama,
			Model: "llama3",
		},
		string(ApiTypeEcho): {
			Type:  ApiTypeEcho,
			Model: "echo",
		},
	}
}
