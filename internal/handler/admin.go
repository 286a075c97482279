package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/chat-console/internal/middleware"
	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/service"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

// maxListLimit caps ?limit on the admin feeds.
const maxListLimit = 100

// AdminHandler serves user management and the usage dashboard.
type AdminHandler struct {
	users  *service.UserService
	usage  *service.UsageService
	logger *logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(users *service.UserService, usage *service.UsageService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		users:  users,
		usage:  usage,
		logger: log,
	}
}

// ListUsers handles GET /api/v1/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	rows := h.usage.UserRows(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": rows,
		"total": len(rows),
	})
}

// CreateUser handles POST /api/v1/admin/users
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.users.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// UserUsage handles GET /api/v1/admin/users/:id/usage
func (h *AdminHandler) UserUsage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateUserID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	usage, err := h.usage.UserUsage(r.Context(), service.NormalizeUserID(id))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, usage)
}

// Dashboard handles GET /api/v1/admin/dashboard
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.usage.Dashboard(r.Context()))
}

// Tokens handles GET /api/v1/admin/tokens
func (h *AdminHandler) Tokens(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.usage.TokensAndCosts())
}

// Activity handles GET /api/v1/admin/activity
func (h *AdminHandler) Activity(w http.ResponseWriter, r *http.Request) {
	n := queryLimit(r, service.DashboardActivityLimit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"activity": h.usage.RecentActivity(r.Context(), n),
	})
}

// Logs handles GET /api/v1/admin/logs
func (h *AdminHandler) Logs(w http.ResponseWriter, r *http.Request) {
	n := queryLimit(r, service.APILogLimit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs": h.usage.APILogs(n),
	})
}

func queryLimit(r *http.Request, def int) int {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return def
	}
	n, err := strconv.Atoi(l)
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxListLimit)
}
