package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/middleware"
	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/service"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

// maxBodyBytes bounds request bodies. Message content is capped lower by
// the service.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is empty")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps service errors onto HTTP statuses and client-facing text.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusUnauthorized, "invalid or expired session"
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrDuplicateIdentity):
		return http.StatusConflict, "user already exists"
	case errors.Is(err, service.ErrConversationBusy):
		return http.StatusConflict, "a reply is still being generated"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "insufficient permissions"
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, service.ErrConversationNotFound):
		return http.StatusNotFound, "conversation not found"
	case errors.Is(err, service.ErrReplyFailed):
		return http.StatusBadGateway, "reply generation failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeServiceError maps err and logs anything unexpected.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, status, msg)
}

// requireSession returns the authorized session or writes 401.
func requireSession(w http.ResponseWriter, r *http.Request) (*model.Session, bool) {
	sess := middleware.GetSession(r.Context())
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return sess, true
}

// requireOwnView returns the session only when it is looking at its own
// conversations. Another user's conversations are read-only.
func requireOwnView(w http.ResponseWriter, r *http.Request) (*model.Session, bool) {
	sess, ok := requireSession(w, r)
	if !ok {
		return nil, false
	}
	if !sess.ViewingSelf() {
		writeError(w, http.StatusForbidden, "conversations of other users are read-only")
		return nil, false
	}
	return sess, true
}

// conversationID reads and validates the {id} path parameter.
func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}
