package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/service"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	messageService      *service.MessageService
	conversationService *service.ConversationService
	logger              *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(
	msgSvc *service.MessageService,
	convSvc *service.ConversationService,
	log *logger.Logger,
) *MessageHandler {
	return &MessageHandler{
		messageService:      msgSvc,
		conversationService: convSvc,
		logger:              log,
	}
}

// failedReply is the body of a send whose reply could not be produced. The
// flagged assistant message is already part of the conversation. A failed
// image is an ordinary outcome and answers 201; a failed completion answers
// 502.
type failedReply struct {
	Error string `json:"error"`
	*model.SendMessageResponse
}

// Send handles POST /api/v1/conversations/:id/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
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

	resp, err := h.messageService.Send(r.Context(), sess.LoggedInUserID, id, &req)
	if err != nil {
		if resp != nil && errors.Is(err, service.ErrReplyFailed) {
			if resp.AssistantMessage != nil && resp.AssistantMessage.Kind == model.KindImage {
				writeJSON(w, http.StatusCreated, &failedReply{
					Error:               "image generation failed",
					SendMessageResponse: resp,
				})
				return
			}
			writeJSON(w, http.StatusBadGateway, &failedReply{
				Error:               "reply generation failed",
				SendMessageResponse: resp,
			})
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /api/v1/conversations/:id/messages
// Supports ?after_sequence=N&limit=M for paging.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var afterSequence uint64
	if s := r.URL.Query().Get("after_sequence"); s != "" {
		seq, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after_sequence")
			return
		}
		afterSequence = seq
	}

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	resp, err := h.conversationService.Messages(r.Context(), sess.ActiveUserID, id, afterSequence, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	resp.StreamActive = h.messageService.Generating(sess.ActiveUserID, id)

	writeJSON(w, http.StatusOK, resp)
}
