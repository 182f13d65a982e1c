package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mahaj/careerchat/pkg/metrics"
	"github.com/mahaj/careerchat/pkg/model"
	"github.com/mahaj/careerchat/pkg/presence"
	"github.com/mahaj/careerchat/pkg/store"
	"go.uber.org/zap"
)

const DefaultMaxMessageLength = 2000

// Notifier is the fan-out seam the pipeline triggers for the recipient of
// every message.
type Notifier interface {
	MessageReceived(ctx context.Context, recipient string, msg *model.Message) (*model.Notification, error)
}

// Pipeline persists and delivers messages. Sends into the same
// conversation are serialized from id assignment through broadcast so that
// live subscribers observe them in storage order.
type Pipeline struct {
	messages store.Messages
	guard    *Guard
	registry *presence.Registry
	notifier Notifier
	ids      IDSource
	locks    *stripedLock
	maxLen   int
	now      func() time.Time
	log      *zap.Logger
}

func NewPipeline(messages store.Messages, guard *Guard, registry *presence.Registry, notifier Notifier, ids IDSource, maxLen int, log *zap.Logger) *Pipeline {
	if maxLen <= 0 {
		maxLen = DefaultMaxMessageLength
	}
	return &Pipeline{
		messages: messages,
		guard:    guard,
		registry: registry,
		notifier: notifier,
		ids:      ids,
		locks:    newStripedLock(64),
		maxLen:   maxLen,
		now:      time.Now,
		log:      log,
	}
}

// Send runs a message through authorize, validate, persist, broadcast and
// notify. It returns only after the message is durable; a failure before
// that point leaves nothing behind and nothing broadcast.
func (p *Pipeline) Send(ctx context.Context, senderID string, conversationID int64, content string) (*model.Message, error) {
	conv, err := p.guard.Authorize(ctx, senderID, conversationID)
	if err != nil {
		return nil, err
	}
	if err := p.validate(content); err != nil {
		return nil, err
	}

	msg, err := p.persistAndBroadcast(ctx, conv, senderID, content)
	if err != nil {
		return nil, err
	}
	metrics.MessagesSent.Inc()

	// The message is durable at this point; a failed notification is
	// recoverable from history and must not turn the send into an error.
	recipient := conv.Peer(senderID)
	if _, err := p.notifier.MessageReceived(ctx, recipient, msg); err != nil {
		p.log.Error("message notification failed",
			zap.Int64("message_id", msg.ID),
			zap.String("user_id", recipient),
			zap.Error(err),
		)
	}
	return msg, nil
}

func (p *Pipeline) persistAndBroadcast(ctx context.Context, conv *model.Conversation, senderID, content string) (*model.Message, error) {
	unlock := p.locks.lock(conv.ID)
	defer unlock()

	msg := &model.Message{
		ID:             p.ids.Generate(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      p.now().UTC(),
	}
	if err := p.messages.AppendMessage(ctx, conv, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	payload, err := model.Encode(model.EventMessageNew, msg)
	if err != nil {
		p.log.Error("encode message", zap.Int64("message_id", msg.ID), zap.Error(err))
		return msg, nil
	}
	delivered := p.registry.Broadcast(conv.ID, payload, conv.ParticipantA, conv.ParticipantB)
	metrics.Push(string(model.EventMessageNew), delivered > 0)
	p.log.Debug("message sent",
		zap.Int64("message_id", msg.ID),
		zap.Int64("conversation_id", conv.ID),
		zap.Int("delivered", delivered),
	)
	return msg, nil
}

func (p *Pipeline) validate(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: message content is empty", model.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(content); n > p.maxLen {
		return fmt.Errorf("%w: message is %d characters, limit is %d", model.ErrInvalidInput, n, p.maxLen)
	}
	return nil
}

// stripedLock maps a key onto one of a fixed set of mutexes. Distinct
// conversations may share a stripe.
type stripedLock struct {
	stripes []sync.Mutex
}

func newStripedLock(n int) *stripedLock {
	return &stripedLock{stripes: make([]sync.Mutex, n)}
}

func (l *stripedLock) lock(key int64) (unlock func()) {
	idx := uint64(key) % uint64(len(l.stripes))
	mu := &l.stripes[idx]
	mu.Lock()
	return mu.Unlock
}
