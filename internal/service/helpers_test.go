package service_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/capitalize-ai/chat-console/internal/llm"
	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/security"
	"github.com/capitalize-ai/chat-console/internal/service"
	"github.com/capitalize-ai/chat-console/internal/session"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

var fastArgon2 = security.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Now().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeGateway streams tokens and optionally fails after failAfter of them.
type fakeGateway struct {
	models    []string
	tokens    []string
	err       error
	failAfter int

	image    []byte
	imageErr error

	// When set, generation waits for release after signalling started.
	started chan struct{}
	release chan struct{}

	calls      atomic.Int32
	imageCalls atomic.Int32
}

func newFakeGateway(tokens ...string) *fakeGateway {
	return &fakeGateway{
		models: []string{"gpt-4o", "gpt-4o-mini"},
		tokens: tokens,
		image:  []byte("png"),
	}
}

func (g *fakeGateway) Name() string     { return "fake" }
func (g *fakeGateway) Models() []string { return g.models }

func (g *fakeGateway) wait(ctx context.Context) error {
	if g.started == nil {
		return nil
	}
	close(g.started)
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *fakeGateway) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	g.calls.Add(1)
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	if g.err != nil {
		return nil, g.err
	}
	return &llm.CompletionResponse{
		Content:   strings.Join(g.tokens, ""),
		Model:     req.Model,
		TokensIn:  1,
		TokensOut: len(g.tokens),
	}, nil
}

func (g *fakeGateway) CompleteStream(ctx context.Context, req *llm.CompletionRequest, callback llm.StreamCallback) (*llm.CompletionResponse, error) {
	g.calls.Add(1)
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	var b strings.Builder
	for i, tok := range g.tokens {
		if g.err != nil && i >= g.failAfter {
			break
		}
		b.WriteString(tok)
		if err := callback(tok, i); err != nil {
			return nil, err
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return &llm.CompletionResponse{
		Content:   b.String(),
		Model:     req.Model,
		TokensIn:  1,
		TokensOut: len(g.tokens),
	}, nil
}

func (g *fakeGateway) GenerateImage(ctx context.Context, req *llm.ImageRequest) ([]byte, error) {
	g.imageCalls.Add(1)
	if g.imageErr != nil {
		return nil, g.imageErr
	}
	return g.image, nil
}

type fakeArchive struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func (a *fakeArchive) PutImage(ctx context.Context, userID, conversationID, messageID string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.puts == nil {
		a.puts = make(map[string][]byte)
	}
	key := userID + "/" + conversationID + "/" + messageID + ".png"
	a.puts[key] = data
	return key, nil
}

type fixture struct {
	clock         *fakeClock
	conversations *service.ConversationService
	users         *service.UserService
	sessions      *service.SessionService
	usage         *service.UsageService
	gateway       *fakeGateway
	messages      *service.MessageService
	archive       *fakeArchive
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logger.NewNop()
	clock := newFakeClock()

	conversations := service.NewConversationService(nil, log, service.WithConversationClock(clock.Now))
	users := service.NewUserService(security.NewArgon2Hasher(fastArgon2), conversations, nil, log, service.WithUserClock(clock.Now))
	tokens := security.NewTokenIssuer("test-secret", time.Hour)
	sessions := service.NewSessionService(session.NewMemoryStore(), tokens, users, conversations, time.Hour, log, service.WithSessionClock(clock.Now))
	gateway := newFakeGateway("Hi", " there")
	archive := &fakeArchive{}
	messages := service.NewMessageService(conversations, users, gateway, nil, service.MessageConfig{}, log,
		service.WithMessageClock(clock.Now),
		service.WithImageArchive(archive),
	)

	return &fixture{
		clock:         clock,
		conversations: conversations,
		users:         users,
		sessions:      sessions,
		usage:         service.NewUsageService(users, conversations, 0),
		gateway:       gateway,
		messages:      messages,
		archive:       archive,
	}
}

func (f *fixture) seedAdmin(t *testing.T) *model.User {
	t.Helper()
	admin, err := f.users.SeedAdmin(context.Background(), service.DefaultAdminID, service.DefaultAdminName, "admin-pass")
	if err != nil {
		t.Fatalf("SeedAdmin failed: %v", err)
	}
	return admin
}

func (f *fixture) createUser(t *testing.T, name, email, password string) *model.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), &model.CreateUserRequest{Name: name, Email: email, Password: password})
	if err != nil {
		t.Fatalf("Create(%s) failed: %v", email, err)
	}
	return u
}

func (f *fixture) activeID(t *testing.T, userID string) string {
	t.Helper()
	conv, err := f.conversations.ActiveConversation(context.Background(), userID)
	if err != nil {
		t.Fatalf("ActiveConversation failed: %v", err)
	}
	return conv.ID
}

func (f *fixture) appendText(t *testing.T, userID, convID string, role model.Role, content string) *model.Message {
	t.Helper()
	msg, err := f.conversations.Append(context.Background(), userID, convID, model.Message{Role: role, Content: content})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	return msg
}
