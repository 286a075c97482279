// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"unicode/utf8"
)

// ErrCompletionUnavailable marks a provider that could not be reached or is
// misconfigured. Callers route such requests to the fallback responder.
var ErrCompletionUnavailable = errors.New("completion unavailable")

// markUnavailable wraps err in ErrCompletionUnavailable when the provider
// could not be reached or rejected the credentials. status is the HTTP status
// the provider answered with, 0 when there was no response.
func markUnavailable(err error, status int) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
	case 0:
		var netErr net.Error
		if !errors.As(err, &netErr) {
			return err
		}
	default:
		return err
	}
	return fmt.Errorf("%w: %w", ErrCompletionUnavailable, err)
}

// GenerationFailedError is returned when an image could not be produced.
type GenerationFailedError struct {
	Reason string
}

func (e *GenerationFailedError) Error() string {
	return "image generation failed: " + e.Reason
}

// StreamCallback is called for each token during streaming.
type StreamCallback func(token string, index int) error

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
	Stream      bool
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
	// Fallback is set when the reply came from the fallback responder.
	Fallback bool
}

// ImageRequest represents an image generation request.
type ImageRequest struct {
	Prompt string
	Size   string
	Model  string
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// CompleteStream sends a streaming completion request.
	CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []string
}

// ImageGenerator produces decoded image bytes from a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req *ImageRequest) ([]byte, error)
}

// Gateway is the full capability the chat core calls through.
type Gateway interface {
	Client
	ImageGenerator
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderEcho      Provider = "echo"
)

// NewClient creates a new LLM client based on provider.
func NewClient(provider Provider, apiKey string) (Gateway, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	case ProviderEcho:
		return NewEchoClient(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// EstimateTokens is the chars/4 heuristic used wherever a provider does not
// report usage.
func EstimateTokens(s string) int {
	return utf8.RuneCountInString(s) / 4
}

func estimateMessages(msgs []ChatMessage) int {
	n := 0
	for _, m := range msgs {
		n += EstimateTokens(m.Content)
	}
	return n
}
