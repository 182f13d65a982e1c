package store

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mahaj/careerchat/pkg/db"
	"github.com/mahaj/careerchat/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const scyllaTestKeyspace = "chat_store_test"

// newScyllaTest connects to the cluster named by SCYLLA_TEST_HOSTS and
// skips when it is unset.
func newScyllaTest(t *testing.T) *Scylla {
	t.Helper()
	hosts := os.Getenv("SCYLLA_TEST_HOSTS")
	if hosts == "" {
		t.Skip("SCYLLA_TEST_HOSTS not set")
	}
	log := zap.NewNop()
	list := strings.Split(hosts, ",")

	sys, err := db.NewSession(list, "system", log)
	require.NoError(t, err)
	require.NoError(t, db.EnsureKeyspace(sys, scyllaTestKeyspace))
	sys.Close()

	session, err := db.NewSession(list, scyllaTestKeyspace, log)
	require.NoError(t, err)
	require.NoError(t, db.EnsureSchema(session, log))
	s := NewScylla(session, log)
	t.Cleanup(func() { s.Close() })
	return s
}

// Keys are unique per run so repeated runs against one keyspace do not
// see each other's rows.
func runScoped(name string) string {
	return name + "-" + uuid.NewString()[:8]
}

var scyllaIDs atomic.Int64

func nextID() int64 {
	return time.Now().UnixNano()/1000 + scyllaIDs.Add(1)
}

func TestScyllaFindOrCreateReusesPair(t *testing.T) {
	s := newScyllaTest(t)
	ctx := context.Background()
	a, b := runScoped("alice"), runScoped("bob")

	first, err := s.FindOrCreateConversation(ctx, nextID(), a, b, time.Now())
	require.NoError(t, err)

	unused := nextID()
	again, err := s.FindOrCreateConversation(ctx, unused, b, a, time.Now())
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	_, err = s.GetConversation(ctx, unused)
	assert.ErrorIs(t, err, model.ErrNotFound, "a hit on the pair writes no row")
}

func TestScyllaListConversationsMostRecentFirst(t *testing.T) {
	s := newScyllaTest(t)
	ctx := context.Background()
	me := runScoped("bob")
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	peers := []string{runScoped("zed"), runScoped("amy"), runScoped("kim")}
	for i, peer := range peers {
		conv, err := s.FindOrCreateConversation(ctx, nextID(), me, peer, base)
		require.NoError(t, err)
		require.NoError(t, s.AppendMessage(ctx, conv, &model.Message{
			ID: nextID(), ConversationID: conv.ID, SenderID: peer, Content: "hi", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	list, err := s.ListConversations(ctx, me)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, peers[2], list[0].OtherUserID)
	assert.Equal(t, peers[1], list[1].OtherUserID)
	assert.Equal(t, peers[0], list[2].OtherUserID)
}

func TestScyllaMarkMessageReadAppliesOnce(t *testing.T) {
	s := newScyllaTest(t)
	ctx := context.Background()
	a, b := runScoped("alice"), runScoped("bob")

	conv, err := s.FindOrCreateConversation(ctx, nextID(), a, b, time.Now())
	require.NoError(t, err)
	msg := &model.Message{ID: nextID(), ConversationID: conv.ID, SenderID: a, Content: "hi", CreatedAt: time.Now()}
	require.NoError(t, s.AppendMessage(ctx, conv, msg))

	var (
		wg      sync.WaitGroup
		applied atomic.Int32
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Every caller holds the unread copy.
			stale := *msg
			ok, err := s.MarkMessageRead(ctx, &stale, b, time.Now())
			if assert.NoError(t, err) && ok {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), applied.Load())

	list, err := s.ListConversations(ctx, b)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Zero(t, list[0].UnreadCount)
}
