package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/llm"
	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/pkg/logger"
	"github.com/capitalize-ai/chat-console/pkg/metrics"
)

const imageDirective = "/image"

// ParseImageDirective reports whether content asks for an image and returns
// the prompt that follows the directive.
func ParseImageDirective(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < len(imageDirective) || !strings.EqualFold(trimmed[:len(imageDirective)], imageDirective) {
		return "", false
	}
	rest := trimmed[len(imageDirective):]
	if rest != "" {
		r := []rune(rest)[0]
		if !unicode.IsSpace(r) {
			return "", false
		}
	}
	return strings.TrimSpace(rest), true
}

// ImageArchive stores generated images outside the conversation log.
type ImageArchive interface {
	PutImage(ctx context.Context, userID, conversationID, messageID string, data []byte) (string, error)
}

// TokenCallback is called for each token during streaming.
type TokenCallback func(token string, index int) error

// MessageConfig holds the generation settings of a MessageService.
type MessageConfig struct {
	CompletionTimeout time.Duration
	ImageModel        string
	ImageSize         string
	MaxTokens         int
}

// MessageService turns a prompt into a user message and exactly one
// assistant message.
type MessageService struct {
	conversations *ConversationService
	users         *UserService
	gateway       llm.Gateway
	journal       Journal
	archive       ImageArchive
	config        MessageConfig
	logger        *logger.Logger
	now           func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// MessageOption configures a MessageService.
type MessageOption func(*MessageService)

// WithImageArchive uploads generated images to archive.
func WithImageArchive(archive ImageArchive) MessageOption {
	return func(s *MessageService) {
		s.archive = archive
	}
}

// WithMessageClock overrides the timestamp source.
func WithMessageClock(now func() time.Time) MessageOption {
	return func(s *MessageService) {
		s.now = now
	}
}

// NewMessageService creates a new message service.
func NewMessageService(
	conversations *ConversationService,
	users *UserService,
	gateway llm.Gateway,
	journal Journal,
	cfg MessageConfig,
	log *logger.Logger,
	opts ...MessageOption,
) *MessageService {
	if journal == nil {
		journal = NopJournal{}
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "gpt-image-1"
	}
	if cfg.ImageSize == "" {
		cfg.ImageSize = "1024x1024"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	s := &MessageService{
		conversations: conversations,
		users:         users,
		gateway:       gateway,
		journal:       journal,
		config:        cfg,
		logger:        log,
		now:           time.Now,
		inflight:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Models returns the chat models prompts may target.
func (s *MessageService) Models() []string {
	return s.gateway.Models()
}

// Send appends the prompt and the complete reply in one call.
func (s *MessageService) Send(ctx context.Context, userID, conversationID string, req *model.SendMessageRequest) (*model.SendMessageResponse, error) {
	return s.send(ctx, userID, conversationID, req, nil, streamHooks{})
}

// StreamOption configures a single SendWithStream call.
type StreamOption func(*streamHooks)

type streamHooks struct {
	onUserMessage func(*model.Message)
}

// WithUserMessage calls fn with the stored prompt before generation starts.
func WithUserMessage(fn func(*model.Message)) StreamOption {
	return func(h *streamHooks) {
		h.onUserMessage = fn
	}
}

// SendWithStream is Send with each reply token passed to onToken as it
// arrives. If onToken fails the stream stops and the partial reply is kept.
func (s *MessageService) SendWithStream(
	ctx context.Context,
	userID, conversationID string,
	req *model.SendMessageRequest,
	onToken TokenCallback,
	opts ...StreamOption,
) (*model.SendMessageResponse, error) {
	if onToken == nil {
		onToken = func(string, int) error { return nil }
	}
	var hooks streamHooks
	for _, opt := range opts {
		opt(&hooks)
	}
	return s.send(ctx, userID, conversationID, req, onToken, hooks)
}

func (s *MessageService) send(
	ctx context.Context,
	userID, conversationID string,
	req *model.SendMessageRequest,
	onToken TokenCallback,
	hooks streamHooks,
) (*model.SendMessageResponse, error) {
	if err := ValidateMessageContent(req.Content); err != nil {
		return nil, err
	}

	imagePrompt, isImage := ParseImageDirective(req.Content)
	if isImage && imagePrompt == "" {
		return nil, invalidInput("add a prompt after /image")
	}

	var modelName string
	if !isImage {
		var err error
		if modelName, err = s.resolveModel(req.Model); err != nil {
			return nil, err
		}
	}

	release, err := s.acquire(userID, conversationID)
	if err != nil {
		return nil, err
	}
	defer release()

	userMsg, err := s.conversations.Append(ctx, userID, conversationID, model.Message{
		Role:    model.RoleUser,
		Content: req.Content,
	})
	if err != nil {
		return nil, err
	}
	if hooks.onUserMessage != nil {
		hooks.onUserMessage(userMsg)
	}

	genCtx := ctx
	if s.config.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.config.CompletionTimeout)
		defer cancel()
	}

	resp := &model.SendMessageResponse{UserMessage: userMsg}
	if isImage {
		err = s.generateImage(genCtx, userID, conversationID, imagePrompt, resp)
	} else {
		err = s.complete(genCtx, userID, conversationID, modelName, onToken, resp)
	}

	count := s.conversations.CountMessages(userID)
	if rerr := s.users.RecordActivity(ctx, userID, count, s.now()); rerr != nil {
		s.logger.Debug("activity not recorded", zap.String("user_id", userID), zap.Error(rerr))
	}

	return resp, err
}

func (s *MessageService) complete(
	ctx context.Context,
	userID, conversationID, modelName string,
	onToken TokenCallback,
	resp *model.SendMessageResponse,
) error {
	history, err := s.conversations.History(ctx, userID, conversationID)
	if err != nil {
		return err
	}

	req := &llm.CompletionRequest{
		Model:     modelName,
		Messages:  history,
		MaxTokens: s.config.MaxTokens,
		Stream:    onToken != nil,
	}

	streamStart := s.now()
	var (
		reply    *llm.CompletionResponse
		partial  strings.Builder
		produced bool
	)
	if onToken != nil {
		reply, err = s.gateway.CompleteStream(ctx, req, func(token string, index int) error {
			produced = true
			partial.WriteString(token)
			return onToken(token, index)
		})
	} else {
		reply, err = s.gateway.Complete(ctx, req)
	}
	streamEnd := s.now()

	if err != nil {
		content := partial.String()
		if reply != nil && reply.Content != "" {
			content = reply.Content
		}
		if !produced && content == "" {
			content = model.CompletionFailedPlaceholder
		}

		draft := model.Message{
			Role:          model.RoleAssistant,
			Content:       content,
			Incomplete:    true,
			Model:         &modelName,
			StreamStarted: &streamStart,
			StreamEnded:   &streamEnd,
		}
		assistant, aerr := s.conversations.Append(ctx, userID, conversationID, draft)
		if aerr != nil {
			return errors.Join(fmt.Errorf("%w: %w", ErrReplyFailed, err), aerr)
		}
		resp.AssistantMessage = assistant

		eventType := model.EventTypeError
		status := "error"
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			eventType, status = model.EventTypeTimeout, "timeout"
		case errors.Is(err, context.Canceled):
			eventType, status = model.EventTypeCancel, "cancelled"
		}
		metrics.RecordLLMStream(modelName, status, streamEnd.Sub(streamStart).Seconds(), 0, llm.EstimateTokens(partial.String()))
		s.publishEvent(ctx, userID, conversationID, eventType, err.Error(), assistant.Sequence)

		s.logger.Warn("assistant reply incomplete",
			zap.String("conversation_id", conversationID),
			zap.String("model", modelName),
			zap.Bool("partial", produced),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrReplyFailed, err)
	}

	latency := reply.LatencyMs
	if latency == 0 {
		latency = streamEnd.Sub(streamStart).Milliseconds()
	}
	assistant, err := s.conversations.Append(ctx, userID, conversationID, model.Message{
		Role:          model.RoleAssistant,
		Content:       reply.Content,
		Model:         &reply.Model,
		TokensIn:      &reply.TokensIn,
		TokensOut:     &reply.TokensOut,
		LatencyMs:     &latency,
		StopReason:    &reply.StopReason,
		StreamStarted: &streamStart,
		StreamEnded:   &streamEnd,
	})
	if err != nil {
		return err
	}
	resp.AssistantMessage = assistant

	if reply.Fallback {
		s.publishEvent(ctx, userID, conversationID, model.EventTypeFallback, "served by fallback responder", assistant.Sequence)
	}
	metrics.RecordLLMStream(reply.Model, "success", float64(latency)/1000.0, reply.TokensIn, reply.TokensOut)

	return nil
}

func (s *MessageService) generateImage(
	ctx context.Context,
	userID, conversationID, prompt string,
	resp *model.SendMessageResponse,
) error {
	start := s.now()
	data, err := s.gateway.GenerateImage(ctx, &llm.ImageRequest{
		Prompt: prompt,
		Size:   s.config.ImageSize,
		Model:  s.config.ImageModel,
	})
	end := s.now()

	content := model.ImagePlaceholder
	if err != nil {
		content = model.ImageFailedPlaceholder
	}
	latency := end.Sub(start).Milliseconds()
	imageModel := s.config.ImageModel
	assistant, aerr := s.conversations.Append(ctx, userID, conversationID, model.Message{
		Role:          model.RoleAssistant,
		Content:       content,
		Kind:          model.KindImage,
		Incomplete:    err != nil,
		Model:         &imageModel,
		LatencyMs:     &latency,
		StreamStarted: &start,
		StreamEnded:   &end,
	})
	if aerr != nil {
		return aerr
	}
	resp.AssistantMessage = assistant

	if err != nil {
		metrics.ImageGenerationsTotal.WithLabelValues("failure").Inc()
		s.publishEvent(ctx, userID, conversationID, model.EventTypeImageFailed, err.Error(), assistant.Sequence)
		s.logger.Warn("image generation failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrReplyFailed, err)
	}

	metrics.ImageGenerationsTotal.WithLabelValues("success").Inc()
	resp.Image = data

	if s.archive != nil {
		key, err := s.archive.PutImage(ctx, userID, conversationID, assistant.ID, data)
		if err != nil {
			s.logger.Warn("failed to archive image",
				zap.String("message_id", assistant.ID),
				zap.Error(err),
			)
		} else {
			s.logger.Debug("image archived", zap.String("key", key))
		}
	}
	return nil
}

func (s *MessageService) resolveModel(requested string) (string, error) {
	models := s.gateway.Models()
	if requested == "" {
		if len(models) == 0 {
			return "", invalidInput("no chat models available")
		}
		return models[0], nil
	}
	if !slices.Contains(models, requested) {
		return "", invalidInput("unsupported model " + requested)
	}
	return requested, nil
}

// acquire claims the conversation for one generation at a time.
func (s *MessageService) acquire(userID, conversationID string) (func(), error) {
	key := userID + "/" + conversationID

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[key]; busy {
		return nil, ErrConversationBusy
	}
	s.inflight[key] = struct{}{}

	return func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}, nil
}

// Generating reports whether a reply is being produced for the conversation.
func (s *MessageService) Generating(userID, conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, busy := s.inflight[userID+"/"+conversationID]
	return busy
}

func (s *MessageService) publishEvent(ctx context.Context, userID, conversationID string, typ model.EventType, reason string, seq uint64) {
	journalEvent(ctx, s.journal, s.logger, &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		UserID:         userID,
		Type:           typ,
		Reason:         reason,
		CreatedAt:      s.now(),
		Sequence:       seq,
	})
}
