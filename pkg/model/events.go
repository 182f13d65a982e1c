package model

import (
	"encoding/json"
)

type EventType string

// Inbound requests.
const (
	EventConversationStart EventType = "conversation.start"
	EventConversationJoin  EventType = "conversation.join"
	EventConversationLeave EventType = "conversation.leave"
	EventMessageSend       EventType = "message.send"
	EventMessageMarkRead   EventType = "message.markRead"
	EventMessageDelete     EventType = "message.delete"
	EventTypingStart       EventType = "typing.start"
	EventTypingStop        EventType = "typing.stop"
)

// Outbound pushes and responses.
const (
	EventPresenceOnline     EventType = "presence.online"
	EventPresenceOffline    EventType = "presence.offline"
	EventMessageNew         EventType = "message.new"
	EventMessageReadReceipt EventType = "message.readReceipt"
	EventMessageDeleted     EventType = "message.deleted"
	EventTypingUpdate       EventType = "typing.update"
	EventNotificationNew    EventType = "notification.new"
	EventAck                EventType = "ack"
	EventError              EventType = "error"
	EventConnected          EventType = "connected"
)

// Frame is the single envelope used in both directions on a connection.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorBody      `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Inbound payloads.

type StartConversationRequest struct {
	PeerID string `json:"peer_id"`
}

type ConversationRequest struct {
	ConversationID int64 `json:"conversation_id,string"`
}

type SendMessageRequest struct {
	ConversationID int64  `json:"conversation_id,string"`
	Content        string `json:"content"`
}

type MessageRequest struct {
	MessageID int64 `json:"message_id,string"`
}

// Outbound payloads.

type PresenceEvent struct {
	UserID string `json:"user_id"`
}

type ReadReceiptEvent struct {
	MessageID      int64  `json:"message_id,string"`
	ConversationID int64  `json:"conversation_id,string"`
	ReaderID       string `json:"reader_id"`
}

type MessageDeletedEvent struct {
	MessageID      int64 `json:"message_id,string"`
	ConversationID int64 `json:"conversation_id,string"`
}

type TypingEvent struct {
	UserID         string `json:"user_id"`
	ConversationID int64  `json:"conversation_id,string"`
	IsTyping       bool   `json:"is_typing"`
}

// Encode builds a push frame.
func Encode(t EventType, payload interface{}) ([]byte, error) {
	return EncodeReply("", t, payload)
}

// EncodeReply builds a frame answering request id.
func EncodeReply(id string, t EventType, payload interface{}) ([]byte, error) {
	f := Frame{ID: id, Type: t}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		f.Payload = raw
	}
	return json.Marshal(f)
}

// EncodeError builds an error frame answering request id.
func EncodeError(id string, err error) []byte {
	b, _ := json.Marshal(Frame{
		ID:    id,
		Type:  EventError,
		Error: &ErrorBody{Code: Code(err), Message: PublicMessage(err)},
	})
	return b
}
