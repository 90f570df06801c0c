package adapter

import (
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// NewDeepSeekAdapter creates an adapter for DeepSeek models.
// DeepSeek exposes an OpenAI-compatible API, so the OpenAI client is reused
// with a different base URL.
func NewDeepSeekAdapter(apiKey string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(deepseekBaseURL),
	)
	return &OpenAIAdapter{
		client: client,
		name:   "deepseek",
		models: []string{
			"deepseek-chat",
			"deepseek-coder",
			"deepseek-reasoner",
		},
	}, nil
}
