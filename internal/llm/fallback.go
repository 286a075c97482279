package llm

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/pkg/logger"
	"github.com/capitalize-ai/chat-console/pkg/metrics"
)

// FallbackClient serves requests from primary and re-serves them from
// fallback when primary is unavailable before producing any output. Other
// primary failures are returned as they are.
type FallbackClient struct {
	primary  Gateway
	fallback Gateway
	logger   *logger.Logger
}

// NewFallbackClient wraps primary with a fallback responder.
func NewFallbackClient(primary, fallback Gateway, log *logger.Logger) *FallbackClient {
	return &FallbackClient{
		primary:  primary,
		fallback: fallback,
		logger:   log,
	}
}

// Name returns the primary provider name.
func (c *FallbackClient) Name() string {
	return c.primary.Name()
}

// Models returns the primary provider's models.
func (c *FallbackClient) Models() []string {
	return c.primary.Models()
}

// Complete sends a completion request.
func (c *FallbackClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if !c.shouldFallBack(ctx, err) {
		return resp, err
	}

	c.noteUnavailable("complete", err)
	resp, ferr := c.fallback.Complete(ctx, req)
	if ferr != nil {
		return nil, errors.Join(err, ferr)
	}
	resp.Model = c.fallback.Name()
	return resp, nil
}

// CompleteStream sends a streaming completion request.
func (c *FallbackClient) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	produced := false
	resp, err := c.primary.CompleteStream(ctx, req, func(token string, index int) error {
		produced = true
		return callback(token, index)
	})
	if produced || !c.shouldFallBack(ctx, err) {
		return resp, err
	}

	c.noteUnavailable("complete_stream", err)
	resp, ferr := c.fallback.CompleteStream(ctx, req, callback)
	if ferr != nil {
		return resp, errors.Join(err, ferr)
	}
	resp.Model = c.fallback.Name()
	return resp, nil
}

// GenerateImage does not fall back: a failed image is reported to the caller.
func (c *FallbackClient) GenerateImage(ctx context.Context, req *ImageRequest) ([]byte, error) {
	return c.primary.GenerateImage(ctx, req)
}

func (c *FallbackClient) shouldFallBack(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() == nil && errors.Is(err, ErrCompletionUnavailable)
}

func (c *FallbackClient) noteUnavailable(op string, err error) {
	metrics.FallbackCompletionsTotal.WithLabelValues(c.primary.Name()).Inc()
	if c.logger != nil {
		c.logger.Warn("completion provider unavailable, using fallback responder",
			zap.String("provider", c.primary.Name()),
			zap.String("op", op),
			zap.Error(err),
		)
	}
}
