// Package notify derives durable notifications from domain events and
// pushes them to the target's live connection when there is one.
//
// A notification is always persisted before any push is attempted; a push
// that fails or finds nobody home loses nothing, the user picks the
// notification up on the next poll.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mahaj/careerchat/pkg/metrics"
	"github.com/mahaj/careerchat/pkg/model"
	"go.uber.org/zap"
)

const previewLength = 120

type Store interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
}

// Pusher delivers an already persisted notification. It reports whether a
// live connection accepted it.
type Pusher interface {
	PushNotification(ctx context.Context, n *model.Notification) bool
}

type IDSource interface {
	Generate() int64
}

type Service struct {
	store  Store
	pusher Pusher
	ids    IDSource
	now    func() time.Time
	log    *zap.Logger
}

func NewService(store Store, pusher Pusher, ids IDSource, log *zap.Logger) *Service {
	return &Service{store: store, pusher: pusher, ids: ids, now: time.Now, log: log}
}

// Notify persists a notification for target and then pushes it.
func (s *Service) Notify(ctx context.Context, target string, typ model.NotificationType, p model.NotificationPayload) (*model.Notification, error) {
	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("%w: target user is required", model.ErrInvalidInput)
	}
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown notification type %q", model.ErrInvalidInput, typ)
	}
	if strings.TrimSpace(p.Title) == "" {
		return nil, fmt.Errorf("%w: notification title is required", model.ErrInvalidInput)
	}

	n := &model.Notification{
		ID:        s.ids.Generate(),
		UserID:    target,
		Type:      typ,
		Title:     p.Title,
		Content:   p.Content,
		ActionURL: p.ActionURL,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(typ)).Inc()

	delivered := s.pusher.PushNotification(ctx, n)
	metrics.Push(string(model.EventNotificationNew), delivered)
	s.log.Debug("notification created",
		zap.Int64("notification_id", n.ID),
		zap.String("user_id", target),
		zap.String("type", string(typ)),
		zap.Bool("pushed", delivered),
	)
	return n, nil
}

// MessageReceived notifies recipient about msg.
func (s *Service) MessageReceived(ctx context.Context, recipient string, msg *model.Message) (*model.Notification, error) {
	return s.Notify(ctx, recipient, model.NotificationMessageReceived, model.NotificationPayload{
		Title:     "New message from " + msg.SenderID,
		Content:   Preview(msg.Content),
		ActionURL: fmt.Sprintf("/messages/%d", msg.ConversationID),
	})
}

// Preview shortens content for a notification body without splitting a
// rune.
func Preview(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLength-1]) + "…"
}
