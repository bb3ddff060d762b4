package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Run("openai provider", func(t *testing.T) {
		client, err := NewClient(FactoryConfig{
			Provider:    "openai",
			Temperature: 0.3,
			Timeout:     30 * time.Second,
			OpenAI:      OpenAIConfig{APIKey: "key", Model: "gpt-4-turbo"},
		})

		require.NoError(t, err)
		require.IsType(t, &OpenAIClient{}, client)
		assert.Equal(t, "openai", client.Provider())
		assert.Equal(t, "gpt-4-turbo", client.Model())
	})

	t.Run("anthropic provider", func(t *testing.T) {
		client, err := NewClient(FactoryConfig{
			Provider:  "anthropic",
			Timeout:   30 * time.Second,
			Anthropic: AnthropicConfig{APIKey: "key", Model: "claude-3-sonnet-20240229"},
		})

		require.NoError(t, err)
		require.IsType(t, &AnthropicClient{}, client)
		assert.Equal(t, "anthropic", client.Provider())
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := NewClient(FactoryConfig{Provider: "cohere"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported LLM provider")
	})

	t.Run("empty provider", func(t *testing.T) {
		_, err := NewClient(FactoryConfig{})
		require.Error(t, err)
	})
}
