package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mahaj/careerchat/pkg/model"
)

// Memory is a process-local Store. It backs STORE_DRIVER=memory for local
// runs and the package tests. One mutex gives every method the atomicity
// the Scylla implementation gets from LWTs and logged batches.
type Memory struct {
	mu            sync.Mutex
	users         map[string]model.Identity
	pairs         map[string]int64
	conversations map[int64]*model.Conversation
	messages      map[int64]*model.Message
	byConv        map[int64][]int64
	unread        map[string]int64 // user|other -> count
	notifications map[string][]*model.Notification

	// failWrites makes every write return ErrStorageFailure.
	failWrites bool
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users:         make(map[string]model.Identity),
		pairs:         make(map[string]int64),
		conversations: make(map[int64]*model.Conversation),
		messages:      make(map[int64]*model.Message),
		byConv:        make(map[int64][]int64),
		unread:        make(map[string]int64),
		notifications: make(map[string][]*model.Notification),
	}
}

// PutUser seeds the user directory.
func (m *Memory) PutUser(u model.Identity) {
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
}

func (m *Memory) SaveUser(_ context.Context, u model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return model.ErrStorageFailure
	}
	m.users[u.ID] = u
	return nil
}

// FailWrites toggles simulated storage outages.
func (m *Memory) FailWrites(fail bool) {
	m.mu.Lock()
	m.failWrites = fail
	m.mu.Unlock()
}

func (m *Memory) Close() error { return nil }

func (m *Memory) LookupUser(_ context.Context, userID string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, model.ErrNotFound)
	}
	return &u, nil
}

func (m *Memory) FindOrCreateConversation(_ context.Context, id int64, a, b string, now time.Time) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := model.PairKey(a, b)
	if existing, ok := m.pairs[key]; ok {
		c := *m.conversations[existing]
		return &c, nil
	}
	if m.failWrites {
		return nil, model.ErrStorageFailure
	}

	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	c := &model.Conversation{ID: id, ParticipantA: lo, ParticipantB: hi, CreatedAt: now}
	m.pairs[key] = id
	m.conversations[id] = c
	out := *c
	return &out, nil
}

func (m *Memory) GetConversation(_ context.Context, id int64) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %d: %w", id, model.ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (m *Memory) ListConversations(_ context.Context, userID string) ([]model.ConversationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.ConversationSummary
	for _, c := range m.conversations {
		if !c.HasParticipant(userID) || c.LastMessageAt == nil {
			continue
		}
		other := c.Peer(userID)
		out = append(out, model.ConversationSummary{
			ConversationID: c.ID,
			UserID:         userID,
			OtherUserID:    other,
			LastUpdated:    *c.LastMessageAt,
			UnreadCount:    m.unread[userID+"|"+other],
		})
	}
	SortRecent(out)
	return out, nil
}

func (m *Memory) AppendMessage(_ context.Context, conv *model.Conversation, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return model.ErrStorageFailure
	}
	c, ok := m.conversations[conv.ID]
	if !ok {
		return fmt.Errorf("conversation %d: %w", conv.ID, model.ErrNotFound)
	}

	stored := *msg
	m.messages[msg.ID] = &stored
	m.byConv[conv.ID] = append(m.byConv[conv.ID], msg.ID)

	at := msg.CreatedAt
	c.LastMessageAt = &at
	c.LastMessageID = msg.ID

	recipient := c.Peer(msg.SenderID)
	m.unread[recipient+"|"+msg.SenderID]++
	return nil
}

func (m *Memory) GetMessage(_ context.Context, id int64) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %d: %w", id, model.ErrNotFound)
	}
	out := *msg
	return &out, nil
}

func (m *Memory) MarkMessageRead(_ context.Context, msg *model.Message, reader string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return false, model.ErrStorageFailure
	}
	stored, ok := m.messages[msg.ID]
	if !ok {
		return false, fmt.Errorf("message %d: %w", msg.ID, model.ErrNotFound)
	}
	if stored.IsRead {
		return false, nil
	}
	stored.IsRead = true
	stored.ReadAt = &at

	key := reader + "|" + stored.SenderID
	if m.unread[key] > 0 {
		m.unread[key]--
	}
	return true, nil
}

func (m *Memory) SoftDeleteMessage(_ context.Context, msg *model.Message, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return model.ErrStorageFailure
	}
	stored, ok := m.messages[msg.ID]
	if !ok {
		return fmt.Errorf("message %d: %w", msg.ID, model.ErrNotFound)
	}
	stored.DeletedAt = &at
	return nil
}

func (m *Memory) ListMessages(_ context.Context, conversationID int64, after int64, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit = ClampLimit(limit)
	var out []model.Message
	for _, id := range m.byConv[conversationID] {
		msg := m.messages[id]
		if msg.ID <= after || msg.Deleted() {
			continue
		}
		out = append(out, *msg)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) CreateNotification(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return model.ErrStorageFailure
	}
	stored := *n
	m.notifications[n.UserID] = append(m.notifications[n.UserID], &stored)
	return nil
}

func (m *Memory) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit = ClampLimit(limit)
	all := m.notifications[userID]
	var out []model.Notification
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if unreadOnly && all[i].IsRead {
			continue
		}
		out = append(out, *all[i])
	}
	return out, nil
}

func (m *Memory) MarkNotificationRead(_ context.Context, userID string, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return model.ErrStorageFailure
	}
	for _, n := range m.notifications[userID] {
		if n.ID == id {
			if !n.IsRead {
				n.IsRead = true
				n.ReadAt = &at
			}
			return nil
		}
	}
	return fmt.Errorf("notification %d: %w", id, model.ErrNotFound)
}

func (m *Memory) MarkAllNotificationsRead(_ context.Context, userID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return 0, model.ErrStorageFailure
	}
	n := 0
	for _, notif := range m.notifications[userID] {
		if !notif.IsRead {
			notif.IsRead = true
			notif.ReadAt = &at
			n++
		}
	}
	return n, nil
}
