package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/service"
	"github.com/capitalize-ai/chat-console/pkg/logger"
	"github.com/capitalize-ai/chat-console/pkg/metrics"
)

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	messageService *service.MessageService
	logger         *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(msgSvc *service.MessageService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		messageService: msgSvc,
		logger:         log,
	}
}

// eventStream writes server-sent events. Headers are sent with the first
// event so that failures before any output still get a plain JSON status.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *eventStream) send(event string, data interface{}) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	return sendSSEEvent(s.w, s.flusher, event, data)
}

// StreamWithMessage handles POST /api/v1/conversations/:id/stream
// This endpoint accepts a message and streams the response
func (h *StreamHandler) StreamWithMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := requireOwnView(w, r)
	if !ok {
		return
	}
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Generation is bounded by the completion timeout, not the server's
	// write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Debug("could not clear write deadline", zap.Error(err))
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	stream := &eventStream{w: w, flusher: flusher}
	resp, err := h.messageService.SendWithStream(ctx, sess.LoggedInUserID, id, &req,
		func(token string, index int) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			return stream.send("token", &model.TokenEvent{
				Token: token,
				Index: index,
			})
		},
		service.WithUserMessage(func(msg *model.Message) {
			stream.send("user_message", msg)
		}),
	)

	if resp == nil {
		if !stream.started {
			writeServiceError(w, r, h.logger, err)
			return
		}
		_, msg := statusFor(err)
		stream.send("error", &model.ErrorEvent{Code: "send_failed", Message: msg})
		return
	}

	if resp.Image != nil {
		prompt, _ := service.ParseImageDirective(resp.UserMessage.Content)
		stream.send("image", &model.ImageEvent{Prompt: prompt, Data: resp.Image})
	}

	if resp.AssistantMessage != nil {
		stream.send("message_complete", &model.MessageCompleteEvent{
			Message:  *resp.AssistantMessage,
			Sequence: resp.AssistantMessage.Sequence,
		})
	}

	if err != nil {
		if !errors.Is(err, service.ErrReplyFailed) {
			h.logger.Error("stream failed", zap.String("conversation_id", id), zap.Error(err))
		}
		stream.send("error", &model.ErrorEvent{
			Code:    "reply_failed",
			Message: "reply generation failed",
		})
	}

	stream.send("done", map[string]bool{"success": err == nil})
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
