package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mahaj/careerchat/pkg/model"
	"github.com/mahaj/careerchat/pkg/store"
)

type IDSource interface {
	Generate() int64
}

// Guard owns conversation membership: every operation touching a
// conversation passes through Authorize first.
type Guard struct {
	conversations store.Conversations
	users         store.Users
	ids           IDSource
	now           func() time.Time
}

func NewGuard(conversations store.Conversations, users store.Users, ids IDSource) *Guard {
	return &Guard{conversations: conversations, users: users, ids: ids, now: time.Now}
}

// Authorize loads the conversation and checks that userID takes part in it.
func (g *Guard) Authorize(ctx context.Context, userID string, conversationID int64) (*model.Conversation, error) {
	conv, err := g.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("%w: %s is not a participant of conversation %d", model.ErrForbidden, userID, conversationID)
	}
	return conv, nil
}

// StartConversation returns the conversation between userID and peerID,
// creating it on first contact. Calls for the same pair from either side
// converge on one conversation.
func (g *Guard) StartConversation(ctx context.Context, userID, peerID string) (*model.Conversation, error) {
	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		return nil, fmt.Errorf("%w: peer_id is required", model.ErrInvalidInput)
	}
	if peerID == userID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", model.ErrInvalidInput)
	}
	if _, err := g.users.LookupUser(ctx, peerID); err != nil {
		return nil, err
	}

	conv, err := g.conversations.FindOrCreateConversation(ctx, g.ids.Generate(), userID, peerID, g.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}
	return conv, nil
}
