package notify

import (
	"context"

	"github.com/mahaj/careerchat/pkg/model"
	"github.com/mahaj/careerchat/pkg/presence"
	"go.uber.org/zap"
)

// RegistryPusher pushes to connections held by this process.
type RegistryPusher struct {
	registry *presence.Registry
	log      *zap.Logger
}

func NewRegistryPusher(registry *presence.Registry, log *zap.Logger) *RegistryPusher {
	return &RegistryPusher{registry: registry, log: log}
}

func (p *RegistryPusher) PushNotification(_ context.Context, n *model.Notification) bool {
	payload, err := model.Encode(model.EventNotificationNew, n)
	if err != nil {
		p.log.Error("encode notification", zap.Int64("notification_id", n.ID), zap.Error(err))
		return false
	}
	return p.registry.SendToUser(n.UserID, payload)
}

// Chain tries each pusher in turn until one delivers.
type Chain []Pusher

func (c Chain) PushNotification(ctx context.Context, n *model.Notification) bool {
	for _, p := range c {
		if p.PushNotification(ctx, n) {
			return true
		}
	}
	return false
}
