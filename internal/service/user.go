package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/security"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

const (
	// DefaultAdminID is the login of the seeded administrator.
	DefaultAdminID = "admin@company.local"
	// DefaultAdminPassword must be changed after the first sign-in.
	DefaultAdminPassword = "admin123"
	// DefaultAdminName is the display name of the seeded administrator.
	DefaultAdminName = "Admin"
)

// NormalizeUserID turns an email into the login identifier.
func NormalizeUserID(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserService is the credential store. Passwords are only ever held as
// one-way hashes.
type UserService struct {
	hasher        security.Hasher
	conversations *ConversationService
	journal       Journal
	logger        *logger.Logger
	now           func() time.Time

	mu      sync.RWMutex
	users   map[string]*model.User
	adminID string
}

// UserOption configures a UserService.
type UserOption func(*UserService)

// WithUserClock overrides the timestamp source.
func WithUserClock(now func() time.Time) UserOption {
	return func(s *UserService) {
		s.now = now
	}
}

// NewUserService creates a new user service.
func NewUserService(hasher security.Hasher, conversations *ConversationService, journal Journal, log *logger.Logger, opts ...UserOption) *UserService {
	if journal == nil {
		journal = NopJournal{}
	}
	s := &UserService{
		hasher:        hasher,
		conversations: conversations,
		journal:       journal,
		logger:        log,
		now:           time.Now,
		users:         make(map[string]*model.User),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a member account and gives it a fresh conversation.
// Creating a user never creates an admin.
func (s *UserService) Create(ctx context.Context, req *model.CreateUserRequest) (*model.User, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	password := strings.TrimSpace(req.Password)
	if name == "" || email == "" || password == "" {
		return nil, invalidInput("name, email and password are required")
	}

	user, err := s.insert(NormalizeUserID(email), name, strings.ToLower(email), password, model.UserRoleMember)
	if err != nil {
		return nil, err
	}

	if err := s.conversations.EnsureConversations(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("seed conversation: %w", err)
	}
	if conv, err := s.conversations.ActiveConversation(ctx, user.ID); err == nil {
		journalEvent(ctx, s.journal, s.logger, &model.ConversationEvent{
			ID:             uuid.Must(uuid.NewV7()).String(),
			ConversationID: conv.ID,
			UserID:         user.ID,
			Type:           model.EventTypeUserCreated,
			CreatedAt:      user.CreatedAt,
		})
	}

	s.logger.Info("user created", zap.String("user_id", user.ID))

	return user, nil
}

// SeedAdmin creates the single administrator. Later calls are no-ops.
func (s *UserService) SeedAdmin(ctx context.Context, id, name, password string) (*model.User, error) {
	s.mu.RLock()
	existing := s.adminID
	s.mu.RUnlock()
	if existing != "" {
		return s.Get(ctx, existing)
	}

	id = NormalizeUserID(id)
	if id == "" || password == "" {
		return nil, invalidInput("admin id and password are required")
	}
	if name == "" {
		name = DefaultAdminName
	}
	if password == DefaultAdminPassword {
		s.logger.Warn("admin account uses the default password; change it after signing in",
			zap.String("user_id", id),
		)
	}

	user, err := s.insert(id, name, id, password, model.UserRoleAdmin)
	if err != nil {
		return nil, err
	}

	if err := s.conversations.EnsureConversationsTitled(ctx, user.ID, model.WelcomeTitle); err != nil {
		return nil, fmt.Errorf("seed conversation: %w", err)
	}
	return user, nil
}

func (s *UserService) insert(id, name, email, password string, role model.UserRole) (*model.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; ok {
		return nil, ErrDuplicateIdentity
	}
	if role == model.UserRoleAdmin && s.adminID != "" {
		return nil, ErrDuplicateIdentity
	}

	user := &model.User{
		ID:           id,
		Name:         name,
		Email:        email,
		Role:         role,
		Status:       model.UserStatusActive,
		CreatedAt:    s.now(),
		PasswordHash: hash,
	}
	s.users[id] = user
	if role == model.UserRoleAdmin {
		s.adminID = id
	}

	return copyUser(user), nil
}

// Authenticate reports whether password matches the stored hash for id.
// Unknown ids simply fail.
func (s *UserService) Authenticate(ctx context.Context, id, password string) bool {
	s.mu.RLock()
	user, ok := s.users[NormalizeUserID(id)]
	var hash []byte
	if ok {
		hash = user.PasswordHash
	}
	s.mu.RUnlock()

	if !ok {
		return false
	}
	match, err := s.hasher.Verify(password, hash)
	if err != nil {
		s.logger.Warn("password verification failed", zap.String("user_id", user.ID), zap.Error(err))
		return false
	}
	return match
}

// ChangePassword replaces the password of id after checking the current one.
// The old password stops working immediately.
func (s *UserService) ChangePassword(ctx context.Context, id, current, next string) error {
	id = NormalizeUserID(id)
	if !s.Authenticate(ctx, id, current) {
		return ErrInvalidCredentials
	}
	next = strings.TrimSpace(next)
	if next == "" {
		return invalidInput("new password cannot be empty")
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = hash

	s.logger.Info("password changed", zap.String("user_id", id))
	return nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[NormalizeUserID(id)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(user), nil
}

// List returns all users ordered by creation time, optionally without the admin.
func (s *UserService) List(ctx context.Context, includeAdmin bool) []model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.users))
	for _, u := range s.users {
		if !includeAdmin && u.Role == model.UserRoleAdmin {
			continue
		}
		c := copyUser(u)
		users = append(users, *c)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users
}

// Members returns every non-admin user.
func (s *UserService) Members(ctx context.Context) []model.User {
	return s.List(ctx, false)
}

// RecordActivity stamps the last send time and the recomputed message count.
func (s *UserService) RecordActivity(ctx context.Context, id string, messageCount int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	user.LastActiveAt = &at
	user.MessageCount = messageCount
	return nil
}

func copyUser(u *model.User) *model.User {
	out := *u
	out.PasswordHash = nil
	if u.LastActiveAt != nil {
		t := *u.LastActiveAt
		out.LastActiveAt = &t
	}
	return &out
}
