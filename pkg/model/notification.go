package model

import "time"

type NotificationType string

const (
	NotificationMessageReceived          NotificationType = "message_received"
	NotificationApplicationReceived      NotificationType = "application_received"
	NotificationApplicationStatusChanged NotificationType = "application_status_changed"
	NotificationSystem                   NotificationType = "system"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationMessageReceived, NotificationApplicationReceived,
		NotificationApplicationStatusChanged, NotificationSystem:
		return true
	}
	return false
}

type Notification struct {
	ID        int64            `json:"id,string"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Content   string           `json:"content"`
	ActionURL string           `json:"action_url,omitempty"`
	IsRead    bool             `json:"is_read"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationPayload is what a domain event supplies to the fan-out.
type NotificationPayload struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	ActionURL string `json:"action_url,omitempty"`
}

// NotifyRequest is the collaborator-facing form of a notify call, as it
// travels over the bus from the API to the intake worker.
type NotifyRequest struct {
	TargetUserID string              `json:"target_user_id"`
	Type         NotificationType    `json:"type"`
	Payload      NotificationPayload `json:"payload"`
}

// PushEnvelope carries an already persisted notification to whichever
// gateway holds the target's connection.
type PushEnvelope struct {
	UserID       string        `json:"user_id"`
	Notification *Notification `json:"notification"`
}
