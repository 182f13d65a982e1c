package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mahaj/careerchat/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindOrCreateConversationIsUniquePerPair(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var (
		next atomic.Int64
		wg   sync.WaitGroup
		ids  = make([]int64, 16)
	)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			c, err := m.FindOrCreateConversation(ctx, next.Add(1), a, b, time.Now())
			if assert.NoError(t, err) {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, m.conversations, 1)
}

func TestAppendMessageMovesPointerAndCounts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	conv, err := m.FindOrCreateConversation(ctx, 1, "bob", "alice", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "alice", conv.ParticipantA)

	now := time.Now()
	for i := int64(10); i < 13; i++ {
		require.NoError(t, m.AppendMessage(ctx, conv, &model.Message{ID: i, ConversationID: 1, SenderID: "alice", Content: "hi", CreatedAt: now}))
	}

	got, err := m.GetConversation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(12), got.LastMessageID)
	require.NotNil(t, got.LastMessageAt)

	list, err := m.ListConversations(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0].OtherUserID)
	assert.Equal(t, int64(3), list[0].UnreadCount)

	msg, err := m.GetMessage(ctx, 11)
	require.NoError(t, err)
	applied, err := m.MarkMessageRead(ctx, msg, "bob", now)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = m.MarkMessageRead(ctx, msg, "bob", now)
	require.NoError(t, err)
	assert.False(t, applied, "second mark is not applied")

	list, err = m.ListConversations(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), list[0].UnreadCount)
}

func TestListMessagesOrderAndSoftDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	conv, _ := m.FindOrCreateConversation(ctx, 1, "a", "b", time.Now())
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, m.AppendMessage(ctx, conv, &model.Message{ID: 100 + i, ConversationID: 1, SenderID: "a", CreatedAt: time.Now()}))
	}
	msg, _ := m.GetMessage(ctx, 103)
	require.NoError(t, m.SoftDeleteMessage(ctx, msg, time.Now()))

	got, err := m.ListMessages(ctx, 1, 0, 0)
	require.NoError(t, err)
	var ids []int64
	for _, g := range got {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []int64{101, 102, 104, 105}, ids)

	got, err = m.ListMessages(ctx, 1, 102, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(104), got[0].ID)
}

func TestNotifications(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, m.CreateNotification(ctx, &model.Notification{ID: i, UserID: "bob", Type: model.NotificationSystem}))
	}

	require.NoError(t, m.MarkNotificationRead(ctx, "bob", 2, time.Now()))
	assert.ErrorIs(t, m.MarkNotificationRead(ctx, "bob", 99, time.Now()), model.ErrNotFound)
	assert.ErrorIs(t, m.MarkNotificationRead(ctx, "alice", 1, time.Now()), model.ErrNotFound)

	unread, err := m.ListNotifications(ctx, "bob", true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, int64(3), unread[0].ID, "newest first")

	n, err := m.MarkAllNotificationsRead(ctx, "bob", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	unread, err = m.ListNotifications(ctx, "bob", true, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestFailWrites(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.FailWrites(true)
	_, err := m.FindOrCreateConversation(ctx, 1, "a", "b", time.Now())
	assert.ErrorIs(t, err, model.ErrStorageFailure)
	assert.ErrorIs(t, m.CreateNotification(ctx, &model.Notification{ID: 1, UserID: "a"}), model.ErrStorageFailure)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, ClampLimit(0))
	assert.Equal(t, MaxPageSize, ClampLimit(10000))
	assert.Equal(t, 7, ClampLimit(7))
}

func TestListConversationsMostRecentFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// Peers are named so that id order and name order both disagree with
	// activity order.
	peers := []string{"zed", "amy", "kim"}
	for i, peer := range peers {
		conv, err := m.FindOrCreateConversation(ctx, int64(i+1), "bob", peer, base)
		require.NoError(t, err)
		require.NoError(t, m.AppendMessage(ctx, conv, &model.Message{
			ID: int64(100 + i), ConversationID: conv.ID, SenderID: peer, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	conv, err := m.FindOrCreateConversation(ctx, 9, "bob", "zed", base)
	require.NoError(t, err)
	require.NoError(t, m.AppendMessage(ctx, conv, &model.Message{
		ID: 200, ConversationID: conv.ID, SenderID: "zed", CreatedAt: base.Add(time.Hour),
	}))

	list, err := m.ListConversations(ctx, "bob")
	require.NoError(t, err)
	var order []string
	for _, c := range list {
		order = append(order, c.OtherUserID)
	}
	assert.Equal(t, []string{"zed", "kim", "amy"}, order)
}

func TestSortRecent(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	list := []model.ConversationSummary{
		{ConversationID: 1, OtherUserID: "a", LastUpdated: at},
		{ConversationID: 2, OtherUserID: "b", LastUpdated: at.Add(time.Minute)},
		{ConversationID: 3, OtherUserID: "c", LastUpdated: at},
	}
	SortRecent(list)
	assert.Equal(t, int64(2), list[0].ConversationID)
	assert.Equal(t, int64(3), list[1].ConversationID, "ties go to the newer conversation")
	assert.Equal(t, int64(1), list[2].ConversationID)
}
