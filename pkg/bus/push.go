package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mahaj/careerchat/pkg/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DefaultPushTimeout bounds a single push publish. Pushes run on the
// sender's connection task, so a slow broker must not hold it.
const DefaultPushTimeout = 250 * time.Millisecond

// PushPublisher hands persisted notifications to the gateways. It reports
// success once the record is on the push topic; whether a gateway holds
// the user's connection is not known here.
type PushPublisher struct {
	pub     *Publisher
	timeout time.Duration
	log     *zap.Logger
}

func NewPushPublisher(pub *Publisher, log *zap.Logger) *PushPublisher {
	return &PushPublisher{pub: pub, timeout: DefaultPushTimeout, log: log}
}

func (p *PushPublisher) PushNotification(ctx context.Context, n *model.Notification) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err := p.pub.Publish(ctx, n.UserID, model.PushEnvelope{UserID: n.UserID, Notification: n})
	if err != nil {
		p.log.Warn("publish push failed",
			zap.Int64("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// NotifyFunc is the fan-out entry point a notify consumer feeds.
type NotifyFunc func(ctx context.Context, target string, typ model.NotificationType, p model.NotificationPayload) (*model.Notification, error)

// NotifyHandler decodes notify requests and runs them through fn. Bad
// requests are dropped; storage failures are retried.
func NotifyHandler(fn NotifyFunc) Handler {
	return func(ctx context.Context, m kafka.Message) error {
		var req model.NotifyRequest
		if err := json.Unmarshal(m.Value, &req); err != nil {
			return fmt.Errorf("decode notify request: %w", err)
		}
		_, err := fn(ctx, req.TargetUserID, req.Type, req.Payload)
		if errors.Is(err, model.ErrStorageFailure) {
			return Retryable(err)
		}
		return err
	}
}

// PushFunc delivers a notification to a live connection in this process.
type PushFunc func(ctx context.Context, n *model.Notification) bool

// PushHandler decodes push envelopes and hands them to fn.
func PushHandler(fn PushFunc) Handler {
	return func(ctx context.Context, m kafka.Message) error {
		var env model.PushEnvelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			return fmt.Errorf("decode push envelope: %w", err)
		}
		if env.Notification == nil {
			return fmt.Errorf("push envelope for %s has no notification", env.UserID)
		}
		fn(ctx, env.Notification)
		return nil
	}
}
