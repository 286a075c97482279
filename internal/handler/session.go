package handler

import (
	"net/http"

	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/service"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

// SessionHandler exposes the interaction state of the calling session.
type SessionHandler struct {
	sessions *service.SessionService
	users    *service.UserService
	messages *service.MessageService
	logger   *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(
	sessions *service.SessionService,
	users *service.UserService,
	messages *service.MessageService,
	log *logger.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		users:    users,
		messages: messages,
		logger:   log,
	}
}

type sessionResponse struct {
	Session    *model.Session `json:"session"`
	User       *model.User    `json:"user"`
	ViewedUser *model.User    `json:"viewed_user"`
	Models     []string       `json:"models"`
}

// Get handles GET /api/v1/session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	h.writeSession(w, r, sess)
}

// SetViewMode handles PUT /api/v1/session/view-mode
func (h *SessionHandler) SetViewMode(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req model.SetViewModeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.sessions.SetViewMode(r.Context(), sess.ID, req.Mode)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.writeSession(w, r, updated)
}

// ViewUser handles PUT /api/v1/session/view-user
func (h *SessionHandler) ViewUser(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	var req model.ViewUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.sessions.ViewUser(r.Context(), sess.ID, service.NormalizeUserID(req.UserID))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.writeSession(w, r, updated)
}

func (h *SessionHandler) writeSession(w http.ResponseWriter, r *http.Request, sess *model.Session) {
	ctx := r.Context()
	user, err := h.users.Get(ctx, sess.LoggedInUserID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	viewed := user
	if !sess.ViewingSelf() {
		if viewed, err = h.users.Get(ctx, sess.ActiveUserID); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, &sessionResponse{
		Session:    sess,
		User:       user,
		ViewedUser: viewed,
		Models:     h.messages.Models(),
	})
}
