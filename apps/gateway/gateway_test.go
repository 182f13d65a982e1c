package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mahaj/careerchat/pkg/auth"
	"github.com/mahaj/careerchat/pkg/chat"
	"github.com/mahaj/careerchat/pkg/model"
	"github.com/mahaj/careerchat/pkg/notify"
	"github.com/mahaj/careerchat/pkg/presence"
	"github.com/mahaj/careerchat/pkg/snowflake"
	"github.com/mahaj/careerchat/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testGateway struct {
	srv      *httptest.Server
	tokens   *auth.Tokens
	store    *store.Memory
	registry *presence.Registry
	hub      *Hub
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	log := zap.NewNop()
	mem := store.NewMemory()
	for _, u := range []string{"alice", "bob"} {
		mem.PutUser(model.Identity{ID: u, Role: model.RoleCandidate})
	}
	ids, err := snowflake.NewNode(1)
	require.NoError(t, err)

	registry := presence.NewRegistry()
	notifier := notify.NewService(mem, notify.NewRegistryPusher(registry, log), ids, log)
	guard := chat.NewGuard(mem, mem, ids)
	pipeline := chat.NewPipeline(mem, guard, registry, notifier, ids, 0, log)
	relay := chat.NewRelay(mem, guard, registry, log)
	svc := chat.NewService(registry, nil, guard, pipeline, relay, log)

	tokens := auth.NewTokens("test-secret", time.Hour)
	hub := NewHub(context.Background(), svc, auth.NewGate(tokens, mem), log)
	srv := httptest.NewServer(newRouter(hub))
	t.Cleanup(func() {
		registry.Close()
		srv.Close()
	})
	return &testGateway{srv: srv, tokens: tokens, store: mem, registry: registry, hub: hub}
}

func (g *testGateway) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	token, err := g.tokens.GenerateToken(user, model.RoleCandidate)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(g.srv.URL, "http")+"/ws", header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	f := readFrame(t, conn)
	require.Equal(t, model.EventConnected, f.Type)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) model.Frame {
	t.Helper()
	var f model.Frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// readUntil skips frames until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want model.EventType) model.Frame {
	t.Helper()
	for i := 0; i < 10; i++ {
		if f := readFrame(t, conn); f.Type == want {
			return f
		}
	}
	t.Fatalf("no %s frame received", want)
	return model.Frame{}
}

func request(t *testing.T, conn *websocket.Conn, id string, typ model.EventType, payload interface{}) {
	t.Helper()
	raw, err := model.EncodeReply(id, typ, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func TestRejectsMissingOrBadToken(t *testing.T) {
	g := newTestGateway(t)
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=garbage", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, _ := g.tokens.GenerateToken("mallory", model.RoleCandidate)
	_, resp, err = websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "unknown users are refused")
	assert.Zero(t, g.registry.Count())
}

func TestConversationOverWebsocket(t *testing.T) {
	g := newTestGateway(t)
	bob := g.dial(t, "bob")
	alice := g.dial(t, "alice")

	online := readUntil(t, bob, model.EventPresenceOnline)
	assert.Contains(t, string(online.Payload), `"alice"`)

	request(t, alice, "1", model.EventConversationStart, model.StartConversationRequest{PeerID: "bob"})
	ack := readUntil(t, alice, model.EventAck)
	assert.Equal(t, "1", ack.ID)
	var conv model.Conversation
	require.NoError(t, json.Unmarshal(ack.Payload, &conv))

	request(t, alice, "2", model.EventMessageSend, model.SendMessageRequest{ConversationID: conv.ID, Content: "Hello"})
	pushed := readUntil(t, bob, model.EventMessageNew)
	var msg model.Message
	require.NoError(t, json.Unmarshal(pushed.Payload, &msg))
	assert.Equal(t, "Hello", msg.Content)
	assert.Equal(t, "alice", msg.SenderID)

	note := readUntil(t, bob, model.EventNotificationNew)
	assert.Contains(t, string(note.Payload), string(model.NotificationMessageReceived))

	request(t, alice, "3", model.EventMessageMarkRead, model.MessageRequest{MessageID: msg.ID})
	rejected := readUntil(t, alice, model.EventError)
	assert.Equal(t, "3", rejected.ID)
	require.NotNil(t, rejected.Error)
	assert.Equal(t, "invalid_operation", rejected.Error.Code)

	request(t, bob, "4", model.EventMessageMarkRead, model.MessageRequest{MessageID: msg.ID})
	receipt := readUntil(t, alice, model.EventMessageReadReceipt)
	assert.Contains(t, string(receipt.Payload), `"reader_id":"bob"`)
}

func TestDisconnectBroadcastsOffline(t *testing.T) {
	g := newTestGateway(t)
	bob := g.dial(t, "bob")
	alice := g.dial(t, "alice")
	readUntil(t, bob, model.EventPresenceOnline)

	require.NoError(t, alice.Close())

	offline := readUntil(t, bob, model.EventPresenceOffline)
	assert.Contains(t, string(offline.Payload), `"alice"`)
	assert.Eventually(t, func() bool { return !g.registry.Online("alice") }, time.Second, 10*time.Millisecond)
}

func TestNewSessionReplacesOld(t *testing.T) {
	g := newTestGateway(t)
	first := g.dial(t, "alice")
	g.dial(t, "alice")

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := first.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, presence.CloseSessionReplaced))
	assert.True(t, g.registry.Online("alice"))
}

func TestPushRecordsOnlyReachLocalUsers(t *testing.T) {
	g := newTestGateway(t)
	alice := g.dial(t, "alice")
	ctx := context.Background()

	assert.False(t, g.hub.deliverPush(ctx, &model.Notification{ID: 1, UserID: "bob", Title: "elsewhere"}))

	require.True(t, g.hub.deliverPush(ctx, &model.Notification{ID: 2, UserID: "alice", Title: "Interview scheduled"}))
	f := readUntil(t, alice, model.EventNotificationNew)
	var n model.Notification
	require.NoError(t, json.Unmarshal(f.Payload, &n))
	assert.Equal(t, int64(2), n.ID)
	assert.Equal(t, "Interview scheduled", n.Title)
}
