package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/mahaj/careerchat/pkg/metrics"
	"github.com/mahaj/careerchat/pkg/model"
	"github.com/mahaj/careerchat/pkg/presence"
	"github.com/mahaj/careerchat/pkg/store"
	"go.uber.org/zap"
)

// Relay carries the ephemeral and follow-up signals of a conversation:
// typing indicators, read receipts and deletions.
type Relay struct {
	messages store.Messages
	guard    *Guard
	registry *presence.Registry
	now      func() time.Time
	log      *zap.Logger
}

func NewRelay(messages store.Messages, guard *Guard, registry *presence.Registry, log *zap.Logger) *Relay {
	return &Relay{messages: messages, guard: guard, registry: registry, now: time.Now, log: log}
}

// Typing forwards a typing indicator to the other participant's live
// connection. Nothing is stored and an absent peer drops the signal.
func (r *Relay) Typing(ctx context.Context, userID string, conversationID int64, typing bool) error {
	conv, err := r.guard.Authorize(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	payload, err := model.Encode(model.EventTypingUpdate, model.TypingEvent{
		UserID:         userID,
		ConversationID: conversationID,
		IsTyping:       typing,
	})
	if err != nil {
		return err
	}
	metrics.Push(string(model.EventTypingUpdate), r.registry.SendToUser(conv.Peer(userID), payload))
	return nil
}

// MarkRead records that userID read messageID and sends a receipt to the
// author if connected. Marking an already read message again is a no-op
// that still succeeds.
func (r *Relay) MarkRead(ctx context.Context, userID string, messageID int64) (*model.Message, error) {
	msg, conv, err := r.load(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID == userID {
		return nil, fmt.Errorf("%w: cannot mark your own message as read", model.ErrInvalidOperation)
	}
	if msg.IsRead {
		return msg, nil
	}

	at := r.now().UTC()
	applied, err := r.messages.MarkMessageRead(ctx, msg, userID, at)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	msg.IsRead = true
	if !applied {
		// Another request got there first and already sent the receipt.
		return msg, nil
	}
	msg.ReadAt = &at

	payload, err := model.Encode(model.EventMessageReadReceipt, model.ReadReceiptEvent{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		ReaderID:       userID,
	})
	if err != nil {
		r.log.Error("encode read receipt", zap.Int64("message_id", msg.ID), zap.Error(err))
		return msg, nil
	}
	metrics.Push(string(model.EventMessageReadReceipt), r.registry.SendToUser(msg.SenderID, payload))
	return msg, nil
}

// Delete soft-deletes a message. Only its author may delete it.
func (r *Relay) Delete(ctx context.Context, userID string, messageID int64) (*model.MessageDeletedEvent, error) {
	msg, conv, err := r.load(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, fmt.Errorf("%w: only the author can delete message %d", model.ErrForbidden, messageID)
	}
	if err := r.messages.SoftDeleteMessage(ctx, msg, r.now().UTC()); err != nil {
		return nil, fmt.Errorf("delete message: %w", err)
	}

	ev := &model.MessageDeletedEvent{MessageID: msg.ID, ConversationID: conv.ID}
	payload, err := model.Encode(model.EventMessageDeleted, ev)
	if err != nil {
		r.log.Error("encode deletion", zap.Int64("message_id", msg.ID), zap.Error(err))
		return ev, nil
	}
	delivered := r.registry.Broadcast(conv.ID, payload, conv.ParticipantA, conv.ParticipantB)
	metrics.Push(string(model.EventMessageDeleted), delivered > 0)
	return ev, nil
}

// load fetches a live message and authorizes userID against its
// conversation. A deleted message is reported as not found.
func (r *Relay) load(ctx context.Context, userID string, messageID int64) (*model.Message, *model.Conversation, error) {
	msg, err := r.messages.GetMessage(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	conv, err := r.guard.Authorize(ctx, userID, msg.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	if msg.Deleted() {
		return nil, nil, fmt.Errorf("%w: message %d was deleted", model.ErrNotFound, messageID)
	}
	return msg, conv, nil
}
