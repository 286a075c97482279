package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	openAIDefaultModel      = "gpt-4o"
	openAIDefaultImageModel = "gpt-image-1"
	openAIDefaultImageSize  = "1024x1024"
)

// DefaultChatModels are the chat models offered to users.
var DefaultChatModels = []string{"gpt-4o", "gpt-4o-mini"}

// OpenAIClient is the OpenAI LLM client.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	client := openai.NewClient(apiKey)

	return &OpenAIClient{
		client: client,
	}, nil
}

// NewOpenAIClientWithConfig creates a client against a custom endpoint.
func NewOpenAIClientWithConfig(cfg openai.ClientConfig) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Models returns available models.
func (c *OpenAIClient) Models() []string {
	return DefaultChatModels
}

// Complete sends a completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (_ *CompletionResponse, err error) {
	start := time.Now()
	model := modelOrDefault(req.Model, openAIDefaultModel)

	ctx, span := startSpan(ctx, c.Name(), "complete", model)
	defer func() { endSpan(span, err) }()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages),
		MaxTokens:   maxTokensOrDefault(req.MaxTokens),
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, markUnavailable(err, openAIStatus(err))
	}

	var content, stopReason string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		stopReason = string(resp.Choices[0].FinishReason)
	}

	return &CompletionResponse{
		Content:    content,
		Model:      resp.Model,
		TokensIn:   resp.Usage.PromptTokens,
		TokensOut:  resp.Usage.CompletionTokens,
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// CompleteStream sends a streaming completion request.
func (c *OpenAIClient) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (_ *CompletionResponse, err error) {
	start := time.Now()
	model := modelOrDefault(req.Model, openAIDefaultModel)

	ctx, span := startSpan(ctx, c.Name(), "complete_stream", model)
	defer func() { endSpan(span, err) }()

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages),
		MaxTokens:   maxTokensOrDefault(req.MaxTokens),
		Temperature: float32(req.Temperature),
		Stream:      true,
	})
	if err != nil {
		return nil, markUnavailable(err, openAIStatus(err))
	}
	defer stream.Close()

	var content strings.Builder
	var stopReason string
	index := 0

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if content.Len() == 0 {
				err = markUnavailable(err, openAIStatus(err))
			}
			return partial(content.String(), model, start), err
		}

		if len(response.Choices) > 0 {
			delta := response.Choices[0].Delta.Content
			if delta != "" {
				content.WriteString(delta)
				if err := callback(delta, index); err != nil {
					return partial(content.String(), model, start), err
				}
				index++
			}

			if response.Choices[0].FinishReason != "" {
				stopReason = string(response.Choices[0].FinishReason)
			}
		}
	}

	// Streaming responses carry no usage; fall back to the chars/4 estimate.
	return &CompletionResponse{
		Content:    content.String(),
		Model:      model,
		TokensIn:   estimateMessages(req.Messages),
		TokensOut:  EstimateTokens(content.String()),
		StopReason: stopReason,
		LatencyMs:  time.Since(start).Milliseconds(),
	}, nil
}

// GenerateImage requests a single image and returns the decoded bytes.
func (c *OpenAIClient) GenerateImage(ctx context.Context, req *ImageRequest) (_ []byte, err error) {
	model := modelOrDefault(req.Model, openAIDefaultImageModel)
	size := req.Size
	if size == "" {
		size = openAIDefaultImageSize
	}

	ctx, span := startSpan(ctx, c.Name(), "generate_image", model)
	defer func() { endSpan(span, err) }()

	imageReq := openai.ImageRequest{
		Prompt: req.Prompt,
		Model:  model,
		N:      1,
		Size:   size,
	}
	// gpt-image models always answer with base64 and reject the parameter.
	if strings.HasPrefix(model, "dall-e") {
		imageReq.ResponseFormat = openai.CreateImageResponseFormatB64JSON
	}

	resp, err := c.client.CreateImage(ctx, imageReq)
	if err != nil {
		return nil, &GenerationFailedError{Reason: err.Error()}
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, &GenerationFailedError{Reason: "provider returned no image data"}
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, &GenerationFailedError{Reason: "decode image: " + err.Error()}
	}
	return data, nil
}

func toOpenAIMessages(msgs []ChatMessage) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, len(msgs))
	for i, msg := range msgs {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return messages
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func partial(content, model string, start time.Time) *CompletionResponse {
	return &CompletionResponse{
		Content:   content,
		Model:     model,
		TokensOut: EstimateTokens(content),
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func modelOrDefault(model, def string) string {
	if model == "" {
		return def
	}
	return model
}

func maxTokensOrDefault(n int) int {
	if n == 0 {
		return 4096
	}
	return n
}
