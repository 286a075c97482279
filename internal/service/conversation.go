// Package service provides business logic for the chat console.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/llm"
	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/pkg/logger"
	"github.com/capitalize-ai/chat-console/pkg/metrics"
)

// ConversationService owns every user's conversation threads and message logs.
// All reads hand out copies; the only way to change a conversation is through
// the methods below.
type ConversationService struct {
	journal Journal
	logger  *logger.Logger
	now     func() time.Time

	mu      sync.RWMutex
	threads map[string]*userThreads
	// order keeps users in first-seen order so scans are deterministic.
	order []string
	// pending holds journal entries queued under mu; unlock publishes them.
	pending []journalEntry
}

type journalEntry struct {
	msg   *model.Message
	event *model.ConversationEvent
}

// userThreads is one user's conversation list, newest first, and the id of
// the conversation their next message goes to.
type userThreads struct {
	conversations []*model.Conversation
	activeID      string
}

func (t *userThreads) find(id string) (int, *model.Conversation) {
	for i, c := range t.conversations {
		if c.ID == id {
			return i, c
		}
	}
	return -1, nil
}

// ConversationOption configures a ConversationService.
type ConversationOption func(*ConversationService)

// WithConversationClock overrides the timestamp source.
func WithConversationClock(now func() time.Time) ConversationOption {
	return func(s *ConversationService) {
		s.now = now
	}
}

// NewConversationService creates a new conversation service.
func NewConversationService(journal Journal, log *logger.Logger, opts ...ConversationOption) *ConversationService {
	if journal == nil {
		journal = NopJournal{}
	}
	s := &ConversationService{
		journal: journal,
		logger:  log,
		now:     time.Now,
		threads: make(map[string]*userThreads),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureConversations gives userID a default conversation if they have none
// and makes sure one of theirs is active.
func (s *ConversationService) EnsureConversations(ctx context.Context, userID string) error {
	return s.EnsureConversationsTitled(ctx, userID, model.DefaultTitle)
}

// EnsureConversationsTitled is EnsureConversations with a custom title for the
// seeded conversation.
func (s *ConversationService) EnsureConversationsTitled(ctx context.Context, userID, title string) error {
	s.mu.Lock()
	defer s.unlock(ctx)

	t := s.threadsLocked(userID)
	if len(t.conversations) == 0 {
		conv := s.newConversationLocked(userID, title)
		t.conversations = append(t.conversations, conv)
		t.activeID = conv.ID
		return nil
	}
	if t.activeID == "" {
		t.activeID = t.conversations[0].ID
	}
	return nil
}

// ActiveConversation returns the conversation userID's next message targets.
// It never returns nil.
func (s *ConversationService) ActiveConversation(ctx context.Context, userID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.unlock(ctx)

	return copyConversation(s.resolveActiveLocked(ctx, userID), true), nil
}

// Create prepends a fresh conversation and makes it active.
func (s *ConversationService) Create(ctx context.Context, userID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.unlock(ctx)

	t := s.threadsLocked(userID)
	conv := s.newConversationLocked(userID, model.DefaultTitle)
	t.conversations = append([]*model.Conversation{conv}, t.conversations...)
	t.activeID = conv.ID

	return copyConversation(conv, true), nil
}

// Select makes an existing conversation the active one.
func (s *ConversationService) Select(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.unlock(ctx)

	t, ok := s.threads[userID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	_, conv := t.find(conversationID)
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	t.activeID = conv.ID

	return copyConversation(conv, true), nil
}

// Rename overwrites a conversation title. Blank titles are rejected.
func (s *ConversationService) Rename(ctx context.Context, userID, conversationID, title string) (*model.Conversation, error) {
	title = strings.TrimSpace(title)
	if err := ValidateTitle(title); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.unlock(ctx)

	conv, err := s.findLocked(userID, conversationID)
	if err != nil {
		return nil, err
	}
	conv.Title = title
	conv.UpdatedAt = s.now()

	s.queueEvent(s.event(conv, model.EventTypeConvRenamed, title))

	return copyConversation(conv, false), nil
}

// Delete removes a conversation and returns the one that is active afterwards.
// A user is never left without a conversation.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.unlock(ctx)

	t, ok := s.threads[userID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	i, conv := t.find(conversationID)
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	t.conversations = append(t.conversations[:i:i], t.conversations[i+1:]...)
	s.queueEvent(s.event(conv, model.EventTypeConvDeleted, ""))

	s.logger.Info("conversation deleted",
		zap.String("conversation_id", conv.ID),
		zap.String("user_id", userID),
	)

	if t.activeID == conv.ID {
		t.activeID = ""
	}
	return copyConversation(s.resolveActiveLocked(ctx, userID), true), nil
}

// Append adds a message to the end of a conversation. The store assigns the
// id, sequence and timestamp. The first message of a conversation that still
// has the placeholder title renames it.
func (s *ConversationService) Append(ctx context.Context, userID, conversationID string, draft model.Message) (*model.Message, error) {
	if !draft.Role.Valid() {
		return nil, invalidInput("unknown message role")
	}

	s.mu.Lock()
	defer s.unlock(ctx)

	conv, err := s.findLocked(userID, conversationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if n := len(conv.Messages); n > 0 && now.Before(conv.Messages[n-1].CreatedAt) {
		now = conv.Messages[n-1].CreatedAt
	}

	msg := draft
	msg.ID = uuid.Must(uuid.NewV7()).String()
	msg.ConversationID = conv.ID
	msg.UserID = userID
	msg.CreatedAt = now
	msg.Sequence = uint64(len(conv.Messages) + 1)
	if msg.Kind == "" {
		msg.Kind = model.KindText
	}

	if len(conv.Messages) == 0 && conv.HasDefaultTitle() {
		if title := DeriveTitle(msg.Content); title != "" {
			conv.Title = title
		}
	}

	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = now

	metrics.MessagesTotal.WithLabelValues(string(msg.Role)).Inc()
	queued := msg
	s.pending = append(s.pending, journalEntry{msg: &queued})

	return &msg, nil
}

// Get returns a conversation with its messages.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, err := s.findLocked(userID, conversationID)
	if err != nil {
		return nil, err
	}
	return copyConversation(conv, true), nil
}

// List returns summaries of userID's conversations, newest first.
func (s *ConversationService) List(ctx context.Context, userID string) (*model.ListConversationsResponse, error) {
	s.mu.Lock()
	defer s.unlock(ctx)

	active := s.resolveActiveLocked(ctx, userID)
	t := s.threads[userID]

	convs := make([]model.ConversationSummary, 0, len(t.conversations))
	for _, c := range t.conversations {
		convs = append(convs, c.Summary(c.ID == active.ID))
	}

	return &model.ListConversationsResponse{
		Conversations: convs,
		Total:         len(convs),
		ActiveID:      active.ID,
	}, nil
}

// Messages pages through a conversation's log by sequence.
func (s *ConversationService) Messages(ctx context.Context, userID, conversationID string, afterSequence uint64, limit int) (*model.ListMessagesResponse, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, err := s.findLocked(userID, conversationID)
	if err != nil {
		return nil, err
	}

	start := int(min(afterSequence, uint64(len(conv.Messages))))
	end := min(start+limit, len(conv.Messages))

	page := make([]model.Message, end-start)
	copy(page, conv.Messages[start:end])

	resp := &model.ListMessagesResponse{
		Messages:     page,
		HasMore:      end < len(conv.Messages),
		LastSequence: afterSequence,
	}
	if len(page) > 0 {
		resp.LastSequence = page[len(page)-1].Sequence
	}
	return resp, nil
}

// History returns the role/content pairs of a conversation, oldest first.
func (s *ConversationService) History(ctx context.Context, userID, conversationID string) ([]llm.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, err := s.findLocked(userID, conversationID)
	if err != nil {
		return nil, err
	}

	history := make([]llm.ChatMessage, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		history = append(history, llm.ChatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return history, nil
}

// CountMessages sums the messages across all of userID's conversations.
func (s *ConversationService) CountMessages(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[userID]
	if !ok {
		return 0
	}
	n := 0
	for _, c := range t.conversations {
		n += len(c.Messages)
	}
	return n
}

// CountConversations returns how many conversations userID has.
func (s *ConversationService) CountConversations(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.threads[userID]; ok {
		return len(t.conversations)
	}
	return 0
}

// Scan calls fn for every conversation, users in first-seen order and each
// user's conversations newest first. fn runs under the read lock and must not
// call back into the service or retain conv.
func (s *ConversationService) Scan(fn func(userID string, conv *model.Conversation)) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, userID := range s.order {
		for _, c := range s.threads[userID].conversations {
			view := *c
			view.Messages = c.Messages[:len(c.Messages):len(c.Messages)]
			fn(userID, &view)
		}
	}
}

// resolveActiveLocked returns the active conversation, falling back to the
// first conversation and finally to a new one. Stale ids are repaired here.
func (s *ConversationService) resolveActiveLocked(ctx context.Context, userID string) *model.Conversation {
	t := s.threadsLocked(userID)

	if _, conv := t.find(t.activeID); conv != nil {
		return conv
	}

	if len(t.conversations) > 0 {
		if t.activeID != "" {
			s.logger.Debug("repaired stale active conversation",
				zap.String("user_id", userID),
				zap.String("stale_id", t.activeID),
			)
		}
		t.activeID = t.conversations[0].ID
		return t.conversations[0]
	}

	conv := s.newConversationLocked(userID, model.DefaultTitle)
	t.conversations = append(t.conversations, conv)
	t.activeID = conv.ID
	return conv
}

// unlock releases the write lock, then publishes what the locked section
// queued. Readers never wait on the journal.
func (s *ConversationService) unlock(ctx context.Context) {
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, e := range pending {
		if e.msg != nil {
			journalMessage(ctx, s.journal, s.logger, e.msg)
		} else {
			journalEvent(ctx, s.journal, s.logger, e.event)
		}
	}
}

func (s *ConversationService) queueEvent(event *model.ConversationEvent) {
	s.pending = append(s.pending, journalEntry{event: event})
}

func (s *ConversationService) threadsLocked(userID string) *userThreads {
	t, ok := s.threads[userID]
	if !ok {
		t = &userThreads{}
		s.threads[userID] = t
		s.order = append(s.order, userID)
	}
	return t
}

func (s *ConversationService) findLocked(userID, conversationID string) (*model.Conversation, error) {
	t, ok := s.threads[userID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	_, conv := t.find(conversationID)
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (s *ConversationService) newConversationLocked(userID, title string) *model.Conversation {
	now := s.now()
	conv := &model.Conversation{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	metrics.ConversationsTotal.Inc()
	s.queueEvent(s.event(conv, model.EventTypeConvCreated, title))

	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("user_id", userID),
	)

	return conv
}

func (s *ConversationService) event(conv *model.Conversation, typ model.EventType, reason string) *model.ConversationEvent {
	return &model.ConversationEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		Type:           typ,
		Reason:         reason,
		CreatedAt:      s.now(),
	}
}

func copyConversation(c *model.Conversation, withMessages bool) *model.Conversation {
	out := *c
	out.Messages = nil
	if withMessages && len(c.Messages) > 0 {
		out.Messages = make([]model.Message, len(c.Messages))
		copy(out.Messages, c.Messages)
	}
	return &out
}
