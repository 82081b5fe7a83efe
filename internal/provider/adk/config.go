package adk

// Config contains ADK provider configuration.
// All fields map to OpenAI-compatible SDK options:
//   - APIKey: Maps to option.WithAPIKey()
//   - BaseURL: Maps to option.WithBaseURL() (defaults to the Together AI endpoint)
//   - Timeout: Maps to option.WithRequestTimeout() (in seconds)
//   - MaxRetries: Maps to option.WithMaxRetries()
type Config struct {
	APIKey     string `env:"ADK_API_KEY"`
	BaseURL    string `env:"ADK_BASE_URL"    envDefault:"https://api.together.xyz/v1"`
	Model      string `env:"ADK_MODEL"       envDefault:"deepseek-ai/DeepSeek-V3"`
	Timeout    int    `env:"ADK_TIMEOUT"     envDefault:"120"`
	MaxRetries int    `env:"ADK_MAX_RETRIES" envDefault:"3"`
}
