// Package session provides storage for signed-in client sessions.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/capitalize-ai/chat-console/internal/model"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Store persists sessions. Implementations return copies; callers must Save
// or Update to publish changes.
type Store interface {
	Save(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	// Update applies fn to the stored session and writes the result back as
	// one step. It returns ErrNotFound, and writes nothing, when the session
	// is gone; an error from fn aborts the write.
	Update(ctx context.Context, id string, fn func(*model.Session) error) (*model.Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes sessions expired at now and returns how many went.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}
