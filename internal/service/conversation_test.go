package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/internal/service"
	"github.com/capitalize-ai/chat-console/pkg/logger"
)

func TestEnsureConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := f.conversations.EnsureConversations(ctx, "ana@x.com"); err != nil {
			t.Fatalf("EnsureConversations failed: %v", err)
		}
	}

	if n := f.conversations.CountConversations("ana@x.com"); n != 1 {
		t.Fatalf("expected 1 conversation, got %d", n)
	}

	conv, err := f.conversations.ActiveConversation(ctx, "ana@x.com")
	if err != nil {
		t.Fatalf("ActiveConversation failed: %v", err)
	}
	if conv == nil || conv.Title != model.DefaultTitle {
		t.Fatalf("unexpected active conversation: %+v", conv)
	}
}

func TestActiveConversationSynthesizesDefault(t *testing.T) {
	f := newFixture(t)

	conv, err := f.conversations.ActiveConversation(context.Background(), "nobody@x.com")
	if err != nil {
		t.Fatalf("ActiveConversation failed: %v", err)
	}
	if conv == nil || conv.Title != model.DefaultTitle || len(conv.Messages) != 0 {
		t.Fatalf("expected a fresh default conversation, got %+v", conv)
	}
	if again := f.activeID(t, "nobody@x.com"); again != conv.ID {
		t.Fatalf("active conversation changed from %s to %s", conv.ID, again)
	}
}

func TestCreatePrependsAndActivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.activeID(t, "ana@x.com")
	created, err := f.conversations.Create(ctx, "ana@x.com")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	list, err := f.conversations.List(ctx, "ana@x.com")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if list.Total != 2 || list.Conversations[0].ID != created.ID || list.Conversations[1].ID != first {
		t.Fatalf("unexpected order: %+v", list.Conversations)
	}
	if list.ActiveID != created.ID || !list.Conversations[0].Active {
		t.Fatalf("new conversation is not active: %+v", list)
	}
}

func TestDeleteOnlyConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	only := f.activeID(t, "ana@x.com")
	f.appendText(t, "ana@x.com", only, model.RoleUser, "Hello")

	active, err := f.conversations.Delete(ctx, "ana@x.com", only)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if active.ID == only {
		t.Fatal("deleted conversation is still active")
	}
	if active.Title != model.DefaultTitle || len(active.Messages) != 0 {
		t.Fatalf("expected a fresh default conversation, got %+v", active)
	}
	if n := f.conversations.CountConversations("ana@x.com"); n != 1 {
		t.Fatalf("expected exactly one conversation, got %d", n)
	}
	if _, err := f.conversations.Get(ctx, "ana@x.com", only); !errors.Is(err, service.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestDeleteEverythingNeverEmpties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.activeID(t, "ana@x.com")
	for i := 0; i < 4; i++ {
		if _, err := f.conversations.Create(ctx, "ana@x.com"); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	for i := 0; i < 10; i++ {
		list, err := f.conversations.List(ctx, "ana@x.com")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if list.Total == 0 {
			t.Fatal("user has no conversations")
		}
		active, err := f.conversations.Delete(ctx, "ana@x.com", list.Conversations[list.Total-1].ID)
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if active == nil {
			t.Fatal("Delete returned no active conversation")
		}
	}
}

func TestDeleteActiveSelectsFirstRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	oldest := f.activeID(t, "ana@x.com")
	middle, _ := f.conversations.Create(ctx, "ana@x.com")
	newest, _ := f.conversations.Create(ctx, "ana@x.com")

	if _, err := f.conversations.Select(ctx, "ana@x.com", middle.ID); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	active, err := f.conversations.Delete(ctx, "ana@x.com", middle.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if active.ID != newest.ID {
		t.Fatalf("expected first remaining %s, got %s", newest.ID, active.ID)
	}

	// Deleting an inactive conversation keeps the current one.
	active, err = f.conversations.Delete(ctx, "ana@x.com", oldest)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if active.ID != newest.ID {
		t.Fatalf("active conversation moved to %s", active.ID)
	}
}

func TestSelectAndDeleteUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bens := f.activeID(t, "ben@x.com")
	f.activeID(t, "ana@x.com")

	if _, err := f.conversations.Select(ctx, "ana@x.com", "missing"); !errors.Is(err, service.ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if _, err := f.conversations.Select(ctx, "ana@x.com", bens); !errors.Is(err, service.ErrConversationNotFound) {
		t.Fatalf("selecting another user's conversation: got %v", err)
	}
	if _, err := f.conversations.Delete(ctx, "ana@x.com", bens); !errors.Is(err, service.ErrConversationNotFound) {
		t.Fatalf("deleting another user's conversation: got %v", err)
	}
	if n := f.conversations.CountConversations("ben@x.com"); n != 1 {
		t.Fatalf("other user's conversations changed: %d", n)
	}
}

func TestAppendSequencesAndTimestamps(t *testing.T) {
	f := newFixture(t)
	id := f.activeID(t, "ana@x.com")

	var prev *model.Message
	for i := 0; i < 6; i++ {
		// Step the clock backwards every other message.
		if i%2 == 0 {
			f.clock.Advance(time.Minute)
		} else {
			f.clock.Advance(-2 * time.Minute)
		}
		msg := f.appendText(t, "ana@x.com", id, model.RoleUser, "hello")
		if msg.Sequence != uint64(i+1) {
			t.Fatalf("message %d: expected sequence %d, got %d", i, i+1, msg.Sequence)
		}
		if prev != nil && msg.CreatedAt.Before(prev.CreatedAt) {
			t.Fatalf("message %d: timestamp went backwards", i)
		}
		prev = msg
	}
}

func TestAppendRejectsUnknownRole(t *testing.T) {
	f := newFixture(t)
	id := f.activeID(t, "ana@x.com")

	_, err := f.conversations.Append(context.Background(), "ana@x.com", id, model.Message{Role: "system", Content: "x"})
	if !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if n := f.conversations.CountMessages("ana@x.com"); n != 0 {
		t.Fatalf("expected no messages, got %d", n)
	}
}

func TestDeriveTitle(t *testing.T) {
	exactly45 := strings.Repeat("a", 45)
	long := strings.Repeat("b", 46)

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"short", "Hello there", "Hello there"},
		{"whitespace collapsed", "  Plan\tthe\n\nweekly   sync ", "Plan the weekly sync"},
		{"exactly 45 runes", exactly45, exactly45},
		{"46 runes truncated", long, strings.Repeat("b", 42) + "..."},
		{"multibyte", strings.Repeat("é", 50), strings.Repeat("é", 42) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := service.DeriveTitle(tt.content); got != tt.want {
				t.Errorf("DeriveTitle(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestFirstMessageRetitlesDefaultConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.activeID(t, "ana@x.com")

	f.appendText(t, "ana@x.com", id, model.RoleUser, "Summarize the quarterly report for the leadership team please")
	f.appendText(t, "ana@x.com", id, model.RoleUser, "Something else entirely")

	conv, err := f.conversations.Get(ctx, "ana@x.com", id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want := "Summarize the quarterly report for the lea..."
	if conv.Title != want {
		t.Fatalf("expected title %q, got %q", want, conv.Title)
	}
}

func TestFirstMessageKeepsCustomTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.activeID(t, "ana@x.com")

	if _, err := f.conversations.Rename(ctx, "ana@x.com", id, "  Project notes "); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	f.appendText(t, "ana@x.com", id, model.RoleUser, "Hello")

	conv, _ := f.conversations.Get(ctx, "ana@x.com", id)
	if conv.Title != "Project notes" {
		t.Fatalf("expected custom title to survive, got %q", conv.Title)
	}
}

func TestRenameRejectsBlankTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.activeID(t, "ana@x.com")

	for _, title := range []string{"", "   ", "\t\n", strings.Repeat("x", 257)} {
		if _, err := f.conversations.Rename(ctx, "ana@x.com", id, title); !errors.Is(err, service.ErrInvalidInput) {
			t.Fatalf("Rename(%q): expected ErrInvalidInput, got %v", title, err)
		}
	}

	conv, _ := f.conversations.Get(ctx, "ana@x.com", id)
	if conv.Title != model.DefaultTitle {
		t.Fatalf("title changed to %q", conv.Title)
	}
}

func TestGetReturnsCopies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.activeID(t, "ana@x.com")
	f.appendText(t, "ana@x.com", id, model.RoleUser, "original")

	conv, _ := f.conversations.Get(ctx, "ana@x.com", id)
	conv.Messages[0].Content = "tampered"
	conv.Title = "tampered"

	again, _ := f.conversations.Get(ctx, "ana@x.com", id)
	if again.Messages[0].Content != "original" || again.Title == "tampered" {
		t.Fatalf("store was mutated through a returned copy: %+v", again)
	}
}

func TestMessagesPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.activeID(t, "ana@x.com")
	for i := 0; i < 5; i++ {
		f.appendText(t, "ana@x.com", id, model.RoleUser, "m")
	}

	page, err := f.conversations.Messages(ctx, "ana@x.com", id, 0, 2)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(page.Messages) != 2 || !page.HasMore || page.LastSequence != 2 {
		t.Fatalf("unexpected first page: %+v", page)
	}

	page, _ = f.conversations.Messages(ctx, "ana@x.com", id, page.LastSequence, 10)
	if len(page.Messages) != 3 || page.HasMore || page.LastSequence != 5 {
		t.Fatalf("unexpected second page: %+v", page)
	}

	page, _ = f.conversations.Messages(ctx, "ana@x.com", id, 99, 10)
	if len(page.Messages) != 0 || page.HasMore {
		t.Fatalf("expected empty page past the end: %+v", page)
	}
}

func TestConcurrentAppend(t *testing.T) {
	f := newFixture(t)
	id := f.activeID(t, "ana@x.com")

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.conversations.Append(context.Background(), "ana@x.com", id, model.Message{Role: model.RoleUser, Content: "x"})
		}()
	}
	wg.Wait()

	conv, _ := f.conversations.Get(context.Background(), "ana@x.com", id)
	if len(conv.Messages) != n {
		t.Fatalf("expected %d messages, got %d", n, len(conv.Messages))
	}
	for i, m := range conv.Messages {
		if m.Sequence != uint64(i+1) {
			t.Fatalf("message %d has sequence %d", i, m.Sequence)
		}
	}
}

// stalledJournal blocks message publishes until released.
type stalledJournal struct {
	service.NopJournal
	publishing chan struct{}
	release    chan struct{}
}

func (j *stalledJournal) PublishMessage(ctx context.Context, msg *model.Message) (uint64, error) {
	j.publishing <- struct{}{}
	<-j.release
	return msg.Sequence, nil
}

func TestSlowJournalDoesNotBlockStore(t *testing.T) {
	ctx := context.Background()
	journal := &stalledJournal{publishing: make(chan struct{}), release: make(chan struct{})}
	conversations := service.NewConversationService(journal, logger.NewNop())

	alice, err := conversations.ActiveConversation(ctx, "alice@x.com")
	if err != nil {
		t.Fatalf("ActiveConversation failed: %v", err)
	}
	conversations.EnsureConversations(ctx, "bob@x.com")

	appended := make(chan error, 1)
	go func() {
		_, err := conversations.Append(ctx, "alice@x.com", alice.ID, model.Message{Role: model.RoleUser, Content: "hi"})
		appended <- err
	}()
	<-journal.publishing

	done := make(chan struct{})
	go func() {
		conversations.CountMessages("bob@x.com")
		conversations.Create(ctx, "bob@x.com")
		if got, _ := conversations.Get(ctx, "alice@x.com", alice.ID); len(got.Messages) != 1 {
			t.Errorf("expected alice's message to be visible, got %d", len(got.Messages))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("store calls waited on an in-flight journal publish")
	}

	close(journal.release)
	if err := <-appended; err != nil {
		t.Fatalf("Append failed: %v", err)
	}
}
