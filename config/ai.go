package config

// AIConfig contains the analysis provider configuration.
type AIConfig struct {
	// AnthropicAPIKey authenticates against the Anthropic API. Required
	// outside development mode.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`

	// Model is the model identifier used for every analysis call.
	Model string `env:"CLAUDE_MODEL" envDefault:"claude-3-5-haiku-20241022"`

	// MaxTokens caps the model's output length per call.
	MaxTokens int `env:"AI_MAX_TOKENS" envDefault:"1200"`

	// Temperature controls sampling randomness (0.0-1.0).
	Temperature float64 `env:"AI_TEMPERATURE" envDefault:"0.3"`

	// RequestsPerMinute is the provider call budget within any trailing
	// 60 second window, shared by all analysis paths.
	RequestsPerMinute int `env:"CLAUDE_REQUESTS_PER_MINUTE" envDefault:"50"`
}

// Sanitize applies guardrails to AI configuration values.
func (a *AIConfig) Sanitize() {
	if a.MaxTokens < 1 {
		a.MaxTokens = 1200
	}
	if a.Temperature < 0 {
		a.Temperature = 0
	}
	if a.Temperature > 1 {
		a.Temperature = 1
	}
	if a.RequestsPerMinute < 1 {
		a.RequestsPerMinute = 1
	}
}
