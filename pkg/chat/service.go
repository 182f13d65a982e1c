// Package chat is the messaging core: conversation membership, the message
// pipeline, typing and read-receipt relay, and the dispatch of client frames
// onto them. Transports hand it authenticated connections and raw frames.
package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mahaj/careerchat/pkg/metrics"
	"github.com/mahaj/careerchat/pkg/model"
	"github.com/mahaj/careerchat/pkg/presence"
	"go.uber.org/zap"
)

// PresenceMirror receives presence transitions for readers outside this
// process.
type PresenceMirror interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
}

type Service struct {
	registry *presence.Registry
	mirror   PresenceMirror
	guard    *Guard
	pipeline *Pipeline
	relay    *Relay
	log      *zap.Logger
}

func NewService(registry *presence.Registry, mirror PresenceMirror, guard *Guard, pipeline *Pipeline, relay *Relay, log *zap.Logger) *Service {
	return &Service{
		registry: registry,
		mirror:   mirror,
		guard:    guard,
		pipeline: pipeline,
		relay:    relay,
		log:      log,
	}
}

func (s *Service) Registry() *presence.Registry { return s.registry }

// Connect registers an authenticated connection. When the user was not
// connected before, every other user is told they came online.
func (s *Service) Connect(ctx context.Context, conn presence.Conn) {
	online := s.registry.Register(conn)
	metrics.ConnectionsActive.Set(float64(s.registry.Count()))
	s.log.Info("client connected",
		zap.String("user_id", conn.UserID()),
		zap.String("conn_id", conn.ID()),
		zap.Bool("first", online),
	)
	if !online {
		return
	}
	s.announce(ctx, model.EventPresenceOnline, conn.UserID())
}

// Disconnect drops a connection and all of its channel subscriptions.
// offline is broadcast only when conn was still the user's tracked
// connection, so a replaced session going away stays silent.
func (s *Service) Disconnect(ctx context.Context, conn presence.Conn) {
	offline := s.registry.Unregister(conn)
	metrics.ConnectionsActive.Set(float64(s.registry.Count()))
	s.log.Info("client disconnected",
		zap.String("user_id", conn.UserID()),
		zap.String("conn_id", conn.ID()),
		zap.Bool("last", offline),
	)
	if !offline {
		return
	}
	s.announce(ctx, model.EventPresenceOffline, conn.UserID())
}

func (s *Service) announce(ctx context.Context, t model.EventType, userID string) {
	if s.mirror != nil {
		var err error
		if t == model.EventPresenceOnline {
			err = s.mirror.Online(ctx, userID)
		} else {
			err = s.mirror.Offline(ctx, userID)
		}
		if err != nil {
			s.log.Warn("presence mirror update failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	payload, err := model.Encode(t, model.PresenceEvent{UserID: userID})
	if err != nil {
		s.log.Error("encode presence", zap.Error(err))
		return
	}
	s.registry.BroadcastAll(payload, userID)
}

// Dispatch handles one inbound frame from conn and returns the reply frame.
func (s *Service) Dispatch(ctx context.Context, conn presence.Conn, raw []byte) []byte {
	var f model.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return s.fail("", fmt.Errorf("%w: malformed frame", model.ErrInvalidInput))
	}

	result, err := s.handle(ctx, conn, f)
	if err != nil {
		s.log.Debug("request rejected",
			zap.String("user_id", conn.UserID()),
			zap.String("type", string(f.Type)),
			zap.Error(err),
		)
		return s.fail(f.ID, err)
	}

	reply, err := model.EncodeReply(f.ID, model.EventAck, result)
	if err != nil {
		return s.fail(f.ID, err)
	}
	return reply
}

func (s *Service) handle(ctx context.Context, conn presence.Conn, f model.Frame) (interface{}, error) {
	userID := conn.UserID()

	switch f.Type {
	case model.EventConversationStart:
		var req model.StartConversationRequest
		if err := decode(f.Payload, &req); err != nil {
			return nil, err
		}
		return s.guard.StartConversation(ctx, userID, req.PeerID)

	case model.EventConversationJoin:
		var req model.ConversationRequest
		if err := decode(f.Payload, &req); err != nil {
			return nil, err
		}
		if _, err := s.guard.Authorize(ctx, userID, req.ConversationID); err != nil {
			return nil, err
		}
		if !s.registry.Join(req.ConversationID, conn) {
			return nil, fmt.Errorf("%w: connection is no longer active", model.ErrInvalidOperation)
		}
		return req, nil

	case model.EventConversationLeave:
		var req model.ConversationRequest
		if err := decode(f.Payload, &req); err != nil {
			return nil, err
		}
		if !s.registry.Subscribed(req.ConversationID, conn) {
			return nil, fmt.Errorf("%w: not subscribed to conversation %d", model.ErrInvalidOperation, req.ConversationID)
		}
		s.registry.Leave(req.ConversationID, conn)
		return req, nil

	case model.EventMessageSend:
		var req model.SendMessageRequest
		if err := decode(f.Payload, &req); err != nil {
			return nil, err
		}
		return s.pipeline.Send(ctx, userID, req.ConversationID, req.Content)

	case model.EventMessageMarkRead:
		var req model.MessageRequest
		if err := decode(f.Payload, &req); err != nil {
			return nil, err
		}
		return s.relay.MarkRead(ctx, userID, req.MessageID)

	case model.EventMessageDelete:
		var req model.MessageRequest
		if err := decode(f.Payload, &req); err != nil {
			return nil, err
		}
		return s.relay.Delete(ctx, userID, req.MessageID)

	case model.EventTypingStart, model.EventTypingStop:
		var req model.ConversationRequest
		if err := decode(f.Payload, &req); err != nil {
			return nil, err
		}
		return req, s.relay.Typing(ctx, userID, req.ConversationID, f.Type == model.EventTypingStart)

	default:
		return nil, fmt.Errorf("%w: unknown event type %q", model.ErrInvalidInput, f.Type)
	}
}

func (s *Service) fail(id string, err error) []byte {
	metrics.Rejections.WithLabelValues(model.Code(err)).Inc()
	if model.Code(err) == "storage_failure" || model.Code(err) == "internal" {
		s.log.Error("request failed", zap.String("request_id", id), zap.Error(err))
	}
	return model.EncodeError(id, err)
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: payload is required", model.ErrInvalidInput)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	return nil
}
