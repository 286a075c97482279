package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/security"
	"github.com/capitalize-ai/chat-console/internal/session"
	"github.com/capitalize-ai/chat-console/pkg/logger"
	"github.com/capitalize-ai/chat-console/pkg/metrics"
)

// SessionService signs users in and out and tracks what each signed-in client
// is looking at.
type SessionService struct {
	store         session.Store
	tokens        *security.TokenIssuer
	users         *UserService
	conversations *ConversationService
	ttl           time.Duration
	logger        *logger.Logger
	now           func() time.Time
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

// WithSessionClock overrides the timestamp source.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionService) {
		s.now = now
	}
}

// NewSessionService creates a new session service. Sessions live for ttl.
func NewSessionService(
	store session.Store,
	tokens *security.TokenIssuer,
	users *UserService,
	conversations *ConversationService,
	ttl time.Duration,
	log *logger.Logger,
	opts ...SessionOption,
) *SessionService {
	s := &SessionService{
		store:         store,
		tokens:        tokens,
		users:         users,
		conversations: conversations,
		ttl:           ttl,
		logger:        log,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignIn verifies credentials and opens a session on the user's own chat view.
func (s *SessionService) SignIn(ctx context.Context, id, password string) (*model.SignInResponse, error) {
	id = NormalizeUserID(id)
	if !s.users.Authenticate(ctx, id, password) {
		metrics.SignInsTotal.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.Get(ctx, id)
	if err != nil {
		metrics.SignInsTotal.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}

	if err := s.conversations.EnsureConversations(ctx, user.ID); err != nil {
		return nil, err
	}

	now := s.now()
	sess := &model.Session{
		ID:             ksuid.New().String(),
		LoggedInUserID: user.ID,
		ActiveUserID:   user.ID,
		Role:           user.Role,
		ViewMode:       model.ViewModeChat,
		CreatedAt:      now,
		LastSeenAt:     now,
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	token, err := s.tokens.Issue(user.ID, sess.ID, string(user.Role), now)
	if err != nil {
		_ = s.store.Delete(ctx, sess.ID)
		return nil, err
	}

	metrics.SignInsTotal.WithLabelValues("success").Inc()
	s.logger.Info("user signed in",
		zap.String("user_id", user.ID),
		zap.String("session_id", sess.ID),
	)

	return &model.SignInResponse{
		Token:   token,
		Session: sess,
		User:    user,
	}, nil
}

// Authorize resolves a bearer token to its live session. Members are always
// pinned to their own chat view. Only the last-seen stamp is written back, and
// only while the session still exists.
func (s *SessionService) Authorize(ctx context.Context, token string) (*model.Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	sess, err := s.update(ctx, claims.SessionID, func(sess *model.Session) error {
		if sess.LoggedInUserID != claims.Subject {
			return ErrSessionNotFound
		}
		sess.LastSeenAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	user, err := s.users.Get(ctx, sess.LoggedInUserID)
	if err != nil {
		_ = s.store.Delete(ctx, sess.ID)
		return nil, ErrSessionNotFound
	}

	sess.Role = user.Role
	if !user.Role.CanViewOtherUsers() {
		sess.ActiveUserID = sess.LoggedInUserID
	}
	if !user.Role.CanViewDashboard() {
		sess.ViewMode = model.ViewModeChat
	}
	return sess, nil
}

// Get returns a session by id.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.load(ctx, sessionID)
}

// SignOut ends a session. Conversation data is untouched.
func (s *SessionService) SignOut(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.Info("user signed out", zap.String("session_id", sessionID))
	return nil
}

// SetViewMode switches between the chat and dashboard surfaces.
func (s *SessionService) SetViewMode(ctx context.Context, sessionID string, mode model.ViewMode) (*model.Session, error) {
	switch mode {
	case model.ViewModeChat, model.ViewModeDashboard:
	default:
		return nil, invalidInput("unknown view mode")
	}

	return s.update(ctx, sessionID, func(sess *model.Session) error {
		if mode == model.ViewModeDashboard && !sess.Role.CanViewDashboard() {
			return ErrForbidden
		}
		sess.ViewMode = mode
		return nil
	})
}

// ViewUser points an admin session at another user's conversations. Passing
// the admin's own id returns to normal mode.
func (s *SessionService) ViewUser(ctx context.Context, sessionID, userID string) (*model.Session, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Role.CanViewOtherUsers() {
		return nil, ErrForbidden
	}

	target, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.conversations.EnsureConversations(ctx, target.ID); err != nil {
		return nil, err
	}

	return s.update(ctx, sessionID, func(sess *model.Session) error {
		sess.ActiveUserID = target.ID
		return nil
	})
}

// ReapExpired drops expired sessions and refreshes the live-session gauge.
func (s *SessionService) ReapExpired(ctx context.Context) (int, error) {
	removed, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	if n, err := s.store.Count(ctx); err == nil {
		metrics.SessionsActive.Set(float64(n))
	}
	return removed, nil
}

// Count returns the number of live sessions.
func (s *SessionService) Count(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

func (s *SessionService) load(ctx context.Context, sessionID string) (*model.Session, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess.Expired(s.now()) {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// update is an atomic read-modify-write on a live session.
func (s *SessionService) update(ctx context.Context, sessionID string, fn func(*model.Session) error) (*model.Session, error) {
	var fnErr error
	sess, err := s.store.Update(ctx, sessionID, func(sess *model.Session) error {
		if sess.Expired(s.now()) {
			fnErr = ErrSessionNotFound
		} else {
			fnErr = fn(sess)
		}
		return fnErr
	})
	switch {
	case err == nil:
		return sess, nil
	case fnErr != nil:
		return nil, fnErr
	case errors.Is(err, session.ErrNotFound):
		return nil, ErrSessionNotFound
	default:
		return nil, fmt.Errorf("update session: %w", err)
	}
}
