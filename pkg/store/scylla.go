package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/mahaj/careerchat/pkg/db"
	"github.com/mahaj/careerchat/pkg/model"
	"go.uber.org/zap"
)

// Scylla implements Store on the chat keyspace (see db.Tables).
type Scylla struct {
	db  *db.Session
	log *zap.Logger
}

var _ Store = (*Scylla)(nil)

func NewScylla(session *db.Session, log *zap.Logger) *Scylla {
	return &Scylla{db: session, log: log}
}

func (s *Scylla) Close() error {
	s.db.Close()
	return nil
}

func wrap(op string, err error) error {
	if errors.Is(err, gocql.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, model.ErrStorageFailure, err)
}

func (s *Scylla) LookupUser(ctx context.Context, userID string) (*model.Identity, error) {
	var (
		u    model.Identity
		role string
	)
	err := s.db.Query(`SELECT id, role, display_name FROM users WHERE id = ?`, userID).
		WithContext(ctx).Scan(&u.ID, &role, &u.DisplayName)
	if err != nil {
		return nil, wrap("lookup user", err)
	}
	u.Role = model.Role(role)
	return &u, nil
}

func (s *Scylla) SaveUser(ctx context.Context, u model.Identity) error {
	err := s.db.Query(`INSERT INTO users (id, role, display_name) VALUES (?, ?, ?)`, u.ID, string(u.Role), u.DisplayName).
		WithContext(ctx).Exec()
	if err != nil {
		return wrap("save user", err)
	}
	return nil
}

func (s *Scylla) FindOrCreateConversation(ctx context.Context, id int64, a, b string, now time.Time) (*model.Conversation, error) {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	key := model.PairKey(lo, hi)

	var existing int64
	err := s.db.Query(`SELECT conversation_id FROM conversation_pairs WHERE pair_key = ?`, key).
		WithContext(ctx).Scan(&existing)
	switch {
	case err == nil:
		return s.GetConversation(ctx, existing)
	case !errors.Is(err, gocql.ErrNotFound):
		return nil, wrap("find conversation pair", err)
	}

	// The row goes in before the pair claim so that a losing racer always
	// finds the winner's row once it reads the claimed id.
	err = s.db.Query(`INSERT INTO conversations (id, participant_a, participant_b, created_at) VALUES (?, ?, ?, ?)`,
		id, lo, hi, now).WithContext(ctx).Exec()
	if err != nil {
		return nil, wrap("create conversation", err)
	}

	previous := map[string]interface{}{}
	applied, err := s.db.Query(`INSERT INTO conversation_pairs (pair_key, conversation_id) VALUES (?, ?) IF NOT EXISTS`,
		key, id).WithContext(ctx).MapScanCAS(previous)
	if err != nil {
		return nil, wrap("claim conversation pair", err)
	}
	if applied {
		return &model.Conversation{ID: id, ParticipantA: lo, ParticipantB: hi, CreatedAt: now}, nil
	}

	if err := s.db.Query(`DELETE FROM conversations WHERE id = ?`, id).WithContext(ctx).Exec(); err != nil {
		s.log.Warn("failed to remove unclaimed conversation row", zap.Int64("conversation_id", id), zap.Error(err))
	}
	existing, ok := previous["conversation_id"].(int64)
	if !ok {
		return nil, fmt.Errorf("claim conversation pair: %w: unexpected lwt result", model.ErrStorageFailure)
	}
	return s.GetConversation(ctx, existing)
}

func (s *Scylla) GetConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	var (
		c      model.Conversation
		lastAt *time.Time
	)
	err := s.db.Query(`SELECT id, participant_a, participant_b, created_at, last_message_at, last_message_id FROM conversations WHERE id = ?`, id).
		WithContext(ctx).Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.CreatedAt, &lastAt, &c.LastMessageID)
	if err != nil {
		return nil, wrap("get conversation", err)
	}
	c.LastMessageAt = lastAt
	return &c, nil
}

func (s *Scylla) ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	iter := s.db.Query(`SELECT user_id, other_user_id, conversation_id, last_updated FROM user_conversations WHERE user_id = ?`, userID).
		WithContext(ctx).Iter()

	var (
		conversations []model.ConversationSummary
		c             model.ConversationSummary
	)
	for iter.Scan(&c.UserID, &c.OtherUserID, &c.ConversationID, &c.LastUpdated) {
		var count int64
		err := s.db.Query(`SELECT unread_count FROM conversation_counters WHERE user_id = ? AND other_user_id = ?`, c.UserID, c.OtherUserID).
			WithContext(ctx).Scan(&count)
		if err == nil && count > 0 {
			c.UnreadCount = count
		} else {
			c.UnreadCount = 0
		}
		conversations = append(conversations, c)
	}
	if err := iter.Close(); err != nil {
		return nil, wrap("list conversations", err)
	}
	// Rows come back clustered by other_user_id.
	SortRecent(conversations)
	return conversations, nil
}

func (s *Scylla) AppendMessage(ctx context.Context, conv *model.Conversation, m *model.Message) error {
	recipient := conv.Peer(m.SenderID)

	b := s.db.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(`INSERT INTO messages (conversation_id, id, sender_id, content, is_read, created_at) VALUES (?, ?, ?, ?, false, ?)`,
		conv.ID, m.ID, m.SenderID, m.Content, m.CreatedAt)
	b.Query(`INSERT INTO messages_by_id (id, conversation_id) VALUES (?, ?)`, m.ID, conv.ID)
	b.Query(`UPDATE conversations SET last_message_at = ?, last_message_id = ? WHERE id = ?`, m.CreatedAt, m.ID, conv.ID)
	b.Query(`INSERT INTO user_conversations (user_id, other_user_id, conversation_id, last_updated) VALUES (?, ?, ?, ?)`,
		m.SenderID, recipient, conv.ID, m.CreatedAt)
	b.Query(`INSERT INTO user_conversations (user_id, other_user_id, conversation_id, last_updated) VALUES (?, ?, ?, ?)`,
		recipient, m.SenderID, conv.ID, m.CreatedAt)
	if err := s.db.ExecuteBatch(b); err != nil {
		return wrap("append message", err)
	}

	// Counters cannot share a logged batch; the count is display-only.
	err := s.db.Query(`UPDATE conversation_counters SET unread_count = unread_count + 1 WHERE user_id = ? AND other_user_id = ?`,
		recipient, m.SenderID).WithContext(ctx).Exec()
	if err != nil {
		s.log.Warn("failed to increment unread count", zap.String("user_id", recipient), zap.Error(err))
	}
	return nil
}

func (s *Scylla) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	var conversationID int64
	err := s.db.Query(`SELECT conversation_id FROM messages_by_id WHERE id = ?`, id).
		WithContext(ctx).Scan(&conversationID)
	if err != nil {
		return nil, wrap("get message", err)
	}

	m := model.Message{ConversationID: conversationID}
	err = s.db.Query(`SELECT id, sender_id, content, is_read, read_at, created_at, deleted_at FROM messages WHERE conversation_id = ? AND id = ?`,
		conversationID, id).WithContext(ctx).Scan(&m.ID, &m.SenderID, &m.Content, &m.IsRead, &m.ReadAt, &m.CreatedAt, &m.DeletedAt)
	if err != nil {
		return nil, wrap("get message", err)
	}
	return &m, nil
}

func (s *Scylla) MarkMessageRead(ctx context.Context, m *model.Message, reader string, at time.Time) (bool, error) {
	// Conditional so that only one of two concurrent readers wins the
	// flip; the loser leaves the counter alone.
	var current bool
	applied, err := s.db.Query(`UPDATE messages SET is_read = true, read_at = ? WHERE conversation_id = ? AND id = ? IF is_read = false`,
		at, m.ConversationID, m.ID).WithContext(ctx).ScanCAS(&current)
	if err != nil {
		return false, wrap("mark message read", err)
	}
	if !applied {
		return false, nil
	}
	err = s.db.Query(`UPDATE conversation_counters SET unread_count = unread_count - 1 WHERE user_id = ? AND other_user_id = ?`,
		reader, m.SenderID).WithContext(ctx).Exec()
	if err != nil {
		s.log.Warn("failed to decrement unread count", zap.String("user_id", reader), zap.Error(err))
	}
	return true, nil
}

func (s *Scylla) SoftDeleteMessage(ctx context.Context, m *model.Message, at time.Time) error {
	err := s.db.Query(`UPDATE messages SET deleted_at = ? WHERE conversation_id = ? AND id = ?`,
		at, m.ConversationID, m.ID).WithContext(ctx).Exec()
	if err != nil {
		return wrap("delete message", err)
	}
	return nil
}

func (s *Scylla) ListMessages(ctx context.Context, conversationID int64, after int64, limit int) ([]model.Message, error) {
	limit = ClampLimit(limit)
	iter := s.db.Query(`SELECT id, sender_id, content, is_read, read_at, created_at, deleted_at FROM messages WHERE conversation_id = ? AND id > ?`,
		conversationID, after).WithContext(ctx).PageSize(limit).Iter()

	var messages []model.Message
	for {
		m := model.Message{ConversationID: conversationID}
		if !iter.Scan(&m.ID, &m.SenderID, &m.Content, &m.IsRead, &m.ReadAt, &m.CreatedAt, &m.DeletedAt) {
			break
		}
		if m.Deleted() {
			continue
		}
		messages = append(messages, m)
		if len(messages) == limit {
			break
		}
	}
	if err := iter.Close(); err != nil {
		return nil, wrap("list messages", err)
	}
	return messages, nil
}

func (s *Scylla) CreateNotification(ctx context.Context, n *model.Notification) error {
	err := s.db.Query(`INSERT INTO notifications (user_id, id, type, title, content, action_url, is_read, created_at) VALUES (?, ?, ?, ?, ?, ?, false, ?)`,
		n.UserID, n.ID, string(n.Type), n.Title, n.Content, n.ActionURL, n.CreatedAt).WithContext(ctx).Exec()
	if err != nil {
		return wrap("create notification", err)
	}
	return nil
}

func (s *Scylla) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	limit = ClampLimit(limit)
	iter := s.db.Query(`SELECT id, type, title, content, action_url, is_read, read_at, created_at FROM notifications WHERE user_id = ?`, userID).
		WithContext(ctx).PageSize(limit).Iter()

	var out []model.Notification
	for {
		var typ string
		n := model.Notification{UserID: userID}
		if !iter.Scan(&n.ID, &typ, &n.Title, &n.Content, &n.ActionURL, &n.IsRead, &n.ReadAt, &n.CreatedAt) {
			break
		}
		if unreadOnly && n.IsRead {
			continue
		}
		n.Type = model.NotificationType(typ)
		out = append(out, n)
		if len(out) == limit {
			break
		}
	}
	if err := iter.Close(); err != nil {
		return nil, wrap("list notifications", err)
	}
	return out, nil
}

func (s *Scylla) MarkNotificationRead(ctx context.Context, userID string, id int64, at time.Time) error {
	var isRead bool
	err := s.db.Query(`SELECT is_read FROM notifications WHERE user_id = ? AND id = ?`, userID, id).
		WithContext(ctx).Scan(&isRead)
	if err != nil {
		return wrap("mark notification read", err)
	}
	if isRead {
		return nil
	}
	err = s.db.Query(`UPDATE notifications SET is_read = true, read_at = ? WHERE user_id = ? AND id = ?`, at, userID, id).
		WithContext(ctx).Exec()
	if err != nil {
		return wrap("mark notification read", err)
	}
	return nil
}

func (s *Scylla) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error) {
	iter := s.db.Query(`SELECT id, is_read FROM notifications WHERE user_id = ?`, userID).WithContext(ctx).Iter()

	var (
		ids    []int64
		id     int64
		isRead bool
	)
	for iter.Scan(&id, &isRead) {
		if !isRead {
			ids = append(ids, id)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, wrap("mark all notifications read", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// Single partition, so an unlogged batch is atomic.
	b := s.db.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for _, id := range ids {
		b.Query(`UPDATE notifications SET is_read = true, read_at = ? WHERE user_id = ? AND id = ?`, at, userID, id)
	}
	if err := s.db.ExecuteBatch(b); err != nil {
		return 0, wrap("mark all notifications read", err)
	}
	return len(ids), nil
}
