package settings

type ApiType string

const (
	ApiTypeOpenAI     ApiType = "openai"
	ApiTypeClaude     ApiType = "claude"
	ApiTypeGroq       ApiType = "groq"
	ApiTypeGemini     ApiType = "gemini"
	ApiTypeOpenRouter ApiType = "openrouter"
	// ApiTypeLocal is any OpenAI-compatible server reachable at a configured URL (LM Studio, llama.cpp, vLLM).
	ApiTypeLocal  ApiType = "local"
	ApiTypeOllama ApiType = "ollama"
	// ApiTypeEcho never leaves the process, it is used for dry runs.
	ApiTypeEcho ApiType = "echo"
)
