package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/capitalize-ai/chat-console/internal/handler"
	"github.com/capitalize-ai/chat-console/internal/llm"
	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/security"
	"github.com/capitalize-ai/chat-console/internal/service"
	"github.com/capitalize-ai/chat-console/internal/session"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

const adminPassword = "admin-pass"

// brokenGateway accepts the usual models but never produces a reply.
type brokenGateway struct {
	*llm.EchoClient
}

func (brokenGateway) Complete(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, errors.New("provider down")
}

func (brokenGateway) CompleteStream(context.Context, *llm.CompletionRequest, llm.StreamCallback) (*llm.CompletionResponse, error) {
	return nil, errors.New("provider down")
}

func (brokenGateway) GenerateImage(context.Context, *llm.ImageRequest) ([]byte, error) {
	return nil, &llm.GenerationFailedError{Reason: "provider down"}
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	users   *service.UserService
}

func newTestServer(t *testing.T, gateway llm.Gateway) *testServer {
	t.Helper()

	log := logger.NewNop()
	hasher := security.NewArgon2Hasher(security.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8})
	conversations := service.NewConversationService(nil, log)
	users := service.NewUserService(hasher, conversations, nil, log)
	sessions := service.NewSessionService(session.NewMemoryStore(), security.NewTokenIssuer("test-secret", time.Hour),
		users, conversations, time.Hour, log)
	messages := service.NewMessageService(conversations, users, gateway, nil, service.MessageConfig{}, log)
	usage := service.NewUsageService(users, conversations, 0)

	if _, err := users.SeedAdmin(context.Background(), service.DefaultAdminID, service.DefaultAdminName, adminPassword); err != nil {
		t.Fatalf("SeedAdmin failed: %v", err)
	}

	h := handler.NewRouter(handler.Services{
		Users:         users,
		Sessions:      sessions,
		Conversations: conversations,
		Messages:      messages,
		Usage:         usage,
	}, handler.RouterConfig{
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
		SignInRateLimit:   1000,
	}, log)

	return &testServer{t: t, handler: h, users: users}
}

func (s *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) signIn(id, password string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/auth/sign-in", "", model.SignInRequest{ID: id, Password: password})
	if rec.Code != http.StatusOK {
		s.t.Fatalf("sign-in %s: status %d, body %s", id, rec.Code, rec.Body.String())
	}
	var resp model.SignInResponse
	decode(s.t, rec, &resp)
	return resp.Token
}

func (s *testServer) createMember(adminToken, name, email, password string) {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/v1/admin/users", adminToken, model.CreateUserRequest{
		Name: name, Email: email, Password: password,
	})
	if rec.Code != http.StatusCreated {
		s.t.Fatalf("create user: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func (s *testServer) activeConversation(token string) *model.Conversation {
	s.t.Helper()
	rec := s.do(http.MethodGet, "/api/v1/conversations/active", token, nil)
	if rec.Code != http.StatusOK {
		s.t.Fatalf("active conversation: status %d", rec.Code)
	}
	var conv model.Conversation
	decode(s.t, rec, &conv)
	return &conv
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	decode(t, rec, &body)
	msg, _ := body["error"].(string)
	return msg
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, llm.NewEchoClient())

	if rec := s.do(http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("health: status %d", rec.Code)
	}
	// Journal disabled: ready without NATS.
	if rec := s.do(http.MethodGet, "/ready", "", nil); rec.Code != http.StatusOK {
		t.Errorf("ready: status %d", rec.Code)
	}
}

func TestSignInFailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t, llm.NewEchoClient())

	wrongPassword := s.do(http.MethodPost, "/api/v1/auth/sign-in", "", model.SignInRequest{
		ID: service.DefaultAdminID, Password: "nope",
	})
	unknownUser := s.do(http.MethodPost, "/api/v1/auth/sign-in", "", model.SignInRequest{
		ID: "ghost@company.local", Password: "nope",
	})

	for name, rec := range map[string]*httptest.ResponseRecorder{"wrong password": wrongPassword, "unknown user": unknownUser} {
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status %d, want 401", name, rec.Code)
		}
		if msg := errorBody(t, rec); msg != "invalid credentials" {
			t.Errorf("%s: error %q, want %q", name, msg, "invalid credentials")
		}
	}
}

func TestSessionRequiresToken(t *testing.T) {
	s := newTestServer(t, llm.NewEchoClient())

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodGet, "/api/v1/session", tt.token, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status %d, want 401", rec.Code)
			}
		})
	}
}

func TestSignInSessionAndSignOut(t *testing.T) {
	s := newTestServer(t, llm.NewEchoClient())
	token := s.signIn("  ADMIN@company.local ", adminPassword)

	rec := s.do(http.MethodGet, "/api/v1/session", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("session: status %d", rec.Code)
	}
	var body struct {
		Session model.Session `json:"session"`
		User    model.User    `json:"user"`
		Models  []string      `json:"models"`
	}
	decode(t, rec, &body)
	if body.User.ID != service.DefaultAdminID || body.Session.ViewMode != model.ViewModeChat {
		t.Errorf("session = %+v, user = %+v", body.Session, body.User)
	}
	if len(body.Models) == 0 {
		t.Error("expected models in session response")
	}

	if rec := s.do(http.MethodPost, "/api/v1/auth/sign-out", token, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("sign-out: status %d", rec.Code)
	}
	if rec := s.do(http.MethodGet, "/api/v1/session", token, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("session after sign-out: status %d, want 401", rec.Code)
	}
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t, llm.NewEchoClient())
	token := s.signIn(service.DefaultAdminID, adminPassword)

	rec := s.do(http.MethodPut, "/api/v1/me/password", token, model.ChangePasswordRequest{
		CurrentPassword: "wrong", NewPassword: "next-pass",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong current password: status %d, want 401", rec.Code)
	}

	rec = s.do(http.MethodPut, "/api/v1/me/password", token, model.ChangePasswordRequest{
		CurrentPassword: adminPassword, NewPassword: "next-pass",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("change password: status %d, body %s", rec.Code, rec.Body.String())
	}

	old := s.do(http.MethodPost, "/api/v1/auth/sign-in", "", model.SignInRequest{ID: service.DefaultAdminID, Password: adminPassword})
	if old.Code != http.StatusUnauthorized {
		t.Errorf("old password still accepted: status %d", old.Code)
	}
	s.signIn(service.DefaultAdminID, "next-pass")
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestServer(t, llm.NewEchoClient())
	token := s.signIn(service.DefaultAdminID, adminPassword)

	welcome := s.activeConversation(token)
	if welcome.Title != model.WelcomeTitle {
		t.Errorf("admin starts on %q, want %q", welcome.Title, model.WelcomeTitle)
	}

	rec := s.do(http.MethodPost, "/api/v1/conversations", token, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rec.Code)
	}
	var created model.Conversation
	decode(t, rec, &created)
	if created.Title != model.DefaultTitle {
		t.Errorf("new title = %q", created.Title)
	}

	rec = s.do(http.MethodGet, "/api/v1/conversations", token, nil)
	var list model.ListConversationsResponse
	decode(t, rec, &list)
	if list.Total != 2 || list.ActiveID != created.ID || list.Conversations[0].ID != created.ID {
		t.Errorf("list = %+v", list)
	}

	rec = s.do(http.MethodPut, "/api/v1/conversations/"+created.ID, token, model.UpdateConversationRequest{Title: "  Plans  "})
	var renamed model.Conversation
	decode(t, rec, &renamed)
	if rec.Code != http.StatusOK || renamed.Title != "Plans" {
		t.Errorf("rename: status %d, title %q", rec.Code, renamed.Title)
	}

	rec = s.do(http.MethodPut, "/api/v1/conversations/"+created.ID, token, model.UpdateConversationRequest{Title: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank rename: status %d, want 400", rec.Code)
	}

	rec = s.do(http.MethodPost, "/api/v1/conversations/"+welcome.ID+"/select", token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("select: status %d", rec.Code)
	}
	if got := s.activeConversation(token); got.ID != welcome.ID {
		t.Errorf("active after select = %s, want %s", got.ID, welcome.ID)
	}

	rec = s.do(http.MethodDelete, "/api/v1/conversations/"+welcome.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	var deleted struct {
		DeletedID string             `json:"deleted_id"`
		Active    model.Conversation `json:"active"`
	}
	decode(t, rec, &deleted)
	if deleted.Active.ID != created.ID {
		t.Errorf("active after delete = %s, want %s", deleted.Active.ID, created.ID)
	}

	// Deleting the last one leaves a fresh conversation behind.
	rec = s.do(http.MethodDelete, "/api/v1/conversations/"+created.ID, token, nil)
	decode(t, rec, &deleted)
	if deleted.Active.ID == "" || deleted.Active.ID == created.ID || deleted.Active.Title != model.DefaultTitle {
		t.Errorf("active after deleting last = %+v", deleted.Active)
	}
}

func TestConversationIDValidation(t *testing.T) {
	s := newTestServer(t, llm.NewEchoClient())
	token := s.signIn(service.DefaultAdminID, adminPassword)

	if rec := s.do(http.MethodGet, "/api/v1/conversations/not-a-uuid", token, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: status %d, want 400", rec.Code)
	}
	unknown := "/api/v1/conversations/0190b8a4-3c1e-7a55-9a8e-4f2d6b1c0e11"
	if rec := s.do(http.MethodGet, unknown, token, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status %d, want 404", rec.Code)
	}
}

func TestSendMessage(t *testing.T) {
	s := newTestServer(t, llm.NewEchoClient())
	token := s.signIn(service.DefaultAdminID, adminPassword)
	conv := s.activeConversation(token)
	path := "/api/v1/conversations/" + conv.ID + "/messages"

	rec := s.do(http.MethodPost, path, token, model.SendMessageRequest{Content: "hello there"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp model.SendMessageResponse
	decode(t, rec, &resp)
	if resp.UserMessage.Content != "hello there" || resp.UserMessage.Sequence != 1 {
		t.Errorf("user message = %+v", resp.UserMessage)
	}
	if resp.AssistantMessage == nil || !strings.Contains(resp.AssistantMessage.Content, "hello there") {
		t.Errorf("assistant message = %+v", resp.AssistantMessage)
	}

	rec = s.do(http.MethodGet, path+"?limit=1", token, nil)
	var page model.ListMessagesResponse
	decode(t, rec, &page)
	if len(page.Messages) != 1 || !page.HasMore || page.StreamActive {
		t.Errorf("page = %+v", page)
	}
	rec = s.do(http.MethodGet, path+"?after_sequence=1", token, nil)
	decode(t, rec, &page)
	if len(page.Messages) != 1 || page.Messages[0].Role != model.RoleAssistant {
		t.Errorf("second page = %+v", page)
	}
}

func TestSendRejectsBadInput(t *testing.T) {
	s := newTestServer(t, llm.NewEchoClient())
	token := s.signIn(service.DefaultAdminID, adminPassword)
	conv := s.activeConversation(token)
	path := "/api/v1/conversations/" + conv.ID + "/messages"

	for _, content := range []string{"", "   ", "/image", "/IMAGE   "} {
		rec := s.do(http.MethodPost, path, token, model.SendMessageRequest{Content: content})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("content %q: status %d, want 400", content, rec.Code)
		}
	}

	rec := s.do(http.MethodPost, path, token, model.SendMessageRequest{Content: "hi", Model: "no-such-model"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown model: status %d, want 400", rec.Code)
	}

	rec = s.do(http.MethodGet, path, token, nil)
	var page model.ListMessagesResponse
	decode(t, rec, &page)
	if len(page.Messages) != 0 {
		t.Errorf("rejected sends left %d messages", len(page.Messages))
	}
}

func TestSendFailedReplyKeepsPlaceholder(t *testing.T) {
	s := newTestServer(t, brokenGateway{llm.NewEchoClient()})
	token := s.signIn(service.DefaultAdminID, adminPassword)
	conv := s.activeConversation(token)

	rec := s.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", token, model.SendMessageRequest{Content: "hello"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status %d, want 502", rec.Code)
	}
	var body struct {
		Error            string         `json:"error"`
		AssistantMessage *model.Message `json:"assistant_message"`
	}
	decode(t, rec, &body)
	if body.AssistantMessage == nil || body.AssistantMessage.Content != model.CompletionFailedPlaceholder || !body.AssistantMessage.Incomplete {
		t.Errorf("assistant message = %+v", body.AssistantMessage)
	}
}

func TestSendFailedImageIsRecorded(t *testing.T) {
	s := newTestServer(t, brokenGateway{llm.NewEchoClient()})
	token := s.signIn(service.DefaultAdminID, adminPassword)
	conv := s.activeConversation(token)

	rec := s.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", token, model.SendMessageRequest{Content: "/image a red fox"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d, want 201", rec.Code)
	}
	var body struct {
		Error            string         `json:"error"`
		AssistantMessage *model.Message `json:"assistant_message"`
	}
	decode(t, rec, &body)
	if body.Error == "" {
		t.Error("expected the failure to be reported")
	}
	if m := body.AssistantMessage; m == nil || m.Content != model.ImageFailedPlaceholder || !m.Incomplete || m.Kind != model.KindImage {
		t.Errorf("assistant message = %+v", body.AssistantMessage)
	}
}

// sseEvents returns the event names of an SSE body in order.
func sseEvents(body string) []string {
	var events []string
	for _, line := range strings.Split(body, "\n") {
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			events = append(events, name)
		}
	}
	return events
}

func TestStreamEmitsTokensThenCompletion(t *testing.T) {
	s := newTestServer(t, llm.NewEchoClient())
	token := s.signIn(service.DefaultAdminID, adminPassword)
	conv := s.activeConversation(token)

	rec := s.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/stream", token, model.SendMessageRequest{Content: "stream please"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	events := sseEvents(rec.Body.String())
	if len(events) < 4 || events[0] != "user_message" || events[1] != "token" {
		t.Fatalf("events = %v, want user_message then tokens", events)
	}
	tail := events[len(events)-2:]
	if tail[0] != "message_complete" || tail[1] != "done" {
		t.Fatalf("events = %v, want tail [message_complete done]", events)
	}
	if n := strings.Count(rec.Body.String(), "event: user_message"); n != 1 {
		t.Errorf("user_message sent %d times", n)
	}
}

func TestStreamImage(t *testing.T) {
	s := newTestServer(t, llm.NewEchoClient())
	token := s.signIn(service.DefaultAdminID, adminPassword)
	conv := s.activeConversation(token)

	rec := s.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/stream", token, model.SendMessageRequest{Content: "/image a red fox"})
	events := sseEvents(rec.Body.String())
	want := []string{"user_message", "image", "message_complete", "done"}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestStreamFailureBeforeOutputIsPlainError(t *testing.T) {
	s := newTestServer(t, llm.NewEchoClient())
	token := s.signIn(service.DefaultAdminID, adminPassword)
	conv := s.activeConversation(token)

	rec := s.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/stream", token, model.SendMessageRequest{Content: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
}

func TestStreamFailedReply(t *testing.T) {
	s := newTestServer(t, brokenGateway{llm.NewEchoClient()})
	token := s.signIn(service.DefaultAdminID, adminPassword)
	conv := s.activeConversation(token)

	rec := s.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/stream", token, model.SendMessageRequest{Content: "hello"})
	events := sseEvents(rec.Body.String())
	want := []string{"user_message", "message_complete", "error", "done"}
	if strings.Join(events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestMemberCannotReachAdmin(t *testing.T) {
	s := newTestServer(t, llm.NewEchoClient())
	adminToken := s.signIn(service.DefaultAdminID, adminPassword)
	s.createMember(adminToken, "Ana", "ana@x.com", "pw")
	token := s.signIn("ana@x.com", "pw")

	for _, path := range []string{
		"/api/v1/admin/users",
		"/api/v1/admin/dashboard",
		"/api/v1/admin/tokens",
		"/api/v1/admin/activity",
		"/api/v1/admin/logs",
	} {
		if rec := s.do(http.MethodGet, path, token, nil); rec.Code != http.StatusForbidden {
			t.Errorf("GET %s: status %d, want 403", path, rec.Code)
		}
	}

	rec := s.do(http.MethodPut, "/api/v1/session/view-mode", token, model.SetViewModeRequest{Mode: model.ViewModeDashboard})
	if rec.Code != http.StatusForbidden {
		t.Errorf("member dashboard mode: status %d, want 403", rec.Code)
	}
	rec = s.do(http.MethodPut, "/api/v1/session/view-user", token, model.ViewUserRequest{UserID: service.DefaultAdminID})
	if rec.Code != http.StatusForbidden {
		t.Errorf("member view-user: status %d, want 403", rec.Code)
	}
}

func TestAdminUsersAndUsage(t *testing.T) {
	s := newTestServer(t, llm.NewEchoClient())
	adminToken := s.signIn(service.DefaultAdminID, adminPassword)
	s.createMember(adminToken, "Ana", "ana@x.com", "pw")

	rec := s.do(http.MethodPost, "/api/v1/admin/users", adminToken, model.CreateUserRequest{Name: "Ana 2", Email: "ANA@x.com", Password: "pw"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate: status %d, want 409", rec.Code)
	}
	rec = s.do(http.MethodPost, "/api/v1/admin/users", adminToken, model.CreateUserRequest{Name: "", Email: "b@x.com", Password: "pw"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank name: status %d, want 400", rec.Code)
	}

	memberToken := s.signIn("ana@x.com", "pw")
	conv := s.activeConversation(memberToken)
	s.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", memberToken, model.SendMessageRequest{Content: "Plan my week"})

	rec = s.do(http.MethodGet, "/api/v1/admin/users", adminToken, nil)
	var users struct {
		Users []model.UserRow `json:"users"`
		Total int             `json:"total"`
	}
	decode(t, rec, &users)
	if users.Total != 1 || users.Users[0].ID != "ana@x.com" || users.Users[0].MessageCount != 2 {
		t.Errorf("users = %+v", users)
	}

	rec = s.do(http.MethodGet, "/api/v1/admin/users/ana@x.com/usage", adminToken, nil)
	var usage model.UserUsage
	decode(t, rec, &usage)
	if len(usage.RecentPrompts) != 1 || usage.RecentPrompts[0] != "Plan my week" {
		t.Errorf("usage = %+v", usage)
	}
	if rec := s.do(http.MethodGet, "/api/v1/admin/users/ghost@x.com/usage", adminToken, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown user usage: status %d, want 404", rec.Code)
	}

	rec = s.do(http.MethodGet, "/api/v1/admin/dashboard", adminToken, nil)
	var stats model.DashboardStats
	decode(t, rec, &stats)
	if stats.TotalUsers != 1 || stats.ActiveUsers != 1 || stats.TotalPrompts != 1 {
		t.Errorf("dashboard = %+v", stats)
	}

	rec = s.do(http.MethodGet, "/api/v1/admin/logs?limit=1", adminToken, nil)
	var logs struct {
		Logs []model.LogEntry `json:"logs"`
	}
	decode(t, rec, &logs)
	if len(logs.Logs) != 1 {
		t.Errorf("logs = %+v", logs)
	}
}

func TestAdminViewingAnotherUserIsReadOnly(t *testing.T) {
	s := newTestServer(t, llm.NewEchoClient())
	adminToken := s.signIn(service.DefaultAdminID, adminPassword)
	s.createMember(adminToken, "Ana", "ana@x.com", "pw")
	memberConv := s.activeConversation(s.signIn("ana@x.com", "pw"))

	rec := s.do(http.MethodPut, "/api/v1/session/view-user", adminToken, model.ViewUserRequest{UserID: "ana@x.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("view-user: status %d", rec.Code)
	}

	if got := s.activeConversation(adminToken); got.ID != memberConv.ID {
		t.Errorf("viewed conversation = %s, want %s", got.ID, memberConv.ID)
	}
	if rec := s.do(http.MethodGet, "/api/v1/conversations/"+memberConv.ID+"/messages", adminToken, nil); rec.Code != http.StatusOK {
		t.Errorf("read viewed messages: status %d", rec.Code)
	}

	writes := []struct {
		method, path string
		body         interface{}
	}{
		{http.MethodPost, "/api/v1/conversations", nil},
		{http.MethodPut, "/api/v1/conversations/" + memberConv.ID, model.UpdateConversationRequest{Title: "x"}},
		{http.MethodDelete, "/api/v1/conversations/" + memberConv.ID, nil},
		{http.MethodPost, "/api/v1/conversations/" + memberConv.ID + "/messages", model.SendMessageRequest{Content: "hi"}},
		{http.MethodPost, "/api/v1/conversations/" + memberConv.ID + "/stream", model.SendMessageRequest{Content: "hi"}},
	}
	for _, w := range writes {
		if rec := s.do(w.method, w.path, adminToken, w.body); rec.Code != http.StatusForbidden {
			t.Errorf("%s %s: status %d, want 403", w.method, w.path, rec.Code)
		}
	}

	rec = s.do(http.MethodPut, "/api/v1/session/view-user", adminToken, model.ViewUserRequest{UserID: service.DefaultAdminID})
	if rec.Code != http.StatusOK {
		t.Fatalf("return to self: status %d", rec.Code)
	}
	if rec := s.do(http.MethodPost, "/api/v1/conversations", adminToken, nil); rec.Code != http.StatusCreated {
		t.Errorf("create after returning: status %d", rec.Code)
	}
}
