// Package store is the durable side of the messaging core. Every
// implementation reports missing rows as model.ErrNotFound and driver
// failures as model.ErrStorageFailure.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/mahaj/careerchat/pkg/model"
)

type Conversations interface {
	// FindOrCreateConversation returns the conversation for the unordered
	// pair {a, b}, creating it with id if none exists. Concurrent calls for
	// the same pair return the same conversation.
	FindOrCreateConversation(ctx context.Context, id int64, a, b string, now time.Time) (*model.Conversation, error)
	GetConversation(ctx context.Context, id int64) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error)
}

type Messages interface {
	// AppendMessage persists m and moves the conversation's last-message
	// pointer to it as one unit.
	AppendMessage(ctx context.Context, conv *model.Conversation, m *model.Message) error
	GetMessage(ctx context.Context, id int64) (*model.Message, error)
	// MarkMessageRead flips is_read/read_at. reader is the participant whose
	// unread counter is decremented. It reports false when the stored
	// message was already read, in which case nothing changes.
	MarkMessageRead(ctx context.Context, m *model.Message, reader string, at time.Time) (bool, error)
	SoftDeleteMessage(ctx context.Context, m *model.Message, at time.Time) error
	// ListMessages returns live messages with id > after in creation order.
	ListMessages(ctx context.Context, conversationID int64, after int64, limit int) ([]model.Message, error)
}

type Notifications interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID string, id int64, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error)
}

type Users interface {
	LookupUser(ctx context.Context, userID string) (*model.Identity, error)
	// SaveUser upserts a directory entry. Only development login uses it;
	// in production the identity system owns the users table.
	SaveUser(ctx context.Context, u model.Identity) error
}

type Store interface {
	Conversations
	Messages
	Notifications
	Users
	Close() error
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ClampLimit bounds a caller-supplied page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// SortRecent orders conversation summaries most recently updated first.
// Ties fall back to the newer conversation id so the order is stable
// across drivers.
func SortRecent(list []model.ConversationSummary) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].LastUpdated.Equal(list[j].LastUpdated) {
			return list[i].LastUpdated.After(list[j].LastUpdated)
		}
		return list[i].ConversationID > list[j].ConversationID
	})
}
