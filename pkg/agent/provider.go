package agent

import (
	"context"
	"fmt"

	"github.com/probelab/scout/pkg/tools"
)

// LLMProvider is the model boundary: an opaque collaborator the loop queries
// with the full conversation buffer plus the declared tool schemas.
type LLMProvider interface {
	// Call makes one model API call.
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name.
	Provider() string
}

// LLMRequest contains the request parameters for a model call.
type LLMRequest struct {
	Model        string
	Messages     []ChatMessage
	Tools        []tools.Definition
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// LLMResponse contains the parsed model response.
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     TokenUsage
}

// Credential identifies a model provider and its API key.
type Credential struct {
	Provider string // openai or anthropic
	APIKey   string
}

// NewProvider creates a provider for the given credential.
func NewProvider(cred Credential) (LLMProvider, error) {
	switch cred.Provider {
	case "openai":
		return NewOpenAIProvider(cred.APIKey), nil
	case "anthropic":
		return NewAnthropicProvider(cred.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cred.Provider)
	}
}
