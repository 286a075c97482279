package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-console/internal/model"
	"github.com/capitalize-ai/chat-console/pkg/logger"
	"github.com/capitalize-ai/chat-console/pkg/metrics"
)

// Journal receives a copy of every appended message and conversation event.
// It is an audit trail, not the system of record: publish failures are
// logged and never undo a state change.
type Journal interface {
	PublishMessage(ctx context.Context, msg *model.Message) (uint64, error)
	PublishEvent(ctx context.Context, event *model.ConversationEvent) (uint64, error)
}

// NopJournal discards everything.
type NopJournal struct{}

func (NopJournal) PublishMessage(context.Context, *model.Message) (uint64, error) {
	return 0, nil
}

func (NopJournal) PublishEvent(context.Context, *model.ConversationEvent) (uint64, error) {
	return 0, nil
}

func journalMessage(ctx context.Context, j Journal, log *logger.Logger, msg *model.Message) {
	// A cancelled request still has its state change journaled.
	ctx = context.WithoutCancel(ctx)
	if _, err := j.PublishMessage(ctx, msg); err != nil {
		metrics.JournalPublishFailures.WithLabelValues("message").Inc()
		log.Warn("failed to journal message",
			zap.String("conversation_id", msg.ConversationID),
			zap.Uint64("sequence", msg.Sequence),
			zap.Error(err),
		)
	}
}

func journalEvent(ctx context.Context, j Journal, log *logger.Logger, event *model.ConversationEvent) {
	ctx = context.WithoutCancel(ctx)
	if _, err := j.PublishEvent(ctx, event); err != nil {
		metrics.JournalPublishFailures.WithLabelValues("event").Inc()
		log.Warn("failed to journal event",
			zap.String("conversation_id", event.ConversationID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}
