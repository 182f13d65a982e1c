package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/mahaj/careerchat/pkg/auth"
	"github.com/mahaj/careerchat/pkg/bus"
	"github.com/mahaj/careerchat/pkg/chat"
	"github.com/mahaj/careerchat/pkg/metrics"
	"github.com/mahaj/careerchat/pkg/model"
	"github.com/mahaj/careerchat/pkg/notify"
	"go.uber.org/zap"
)

// Hub binds websocket clients to the chat service and delivers pushes
// published by other processes.
type Hub struct {
	chat   *chat.Service
	gate   *auth.Gate
	pusher *notify.RegistryPusher
	log    *zap.Logger

	// Lifetime of every connection's request handling.
	ctx context.Context
}

func NewHub(ctx context.Context, svc *chat.Service, gate *auth.Gate, log *zap.Logger) *Hub {
	return &Hub{
		chat:   svc,
		gate:   gate,
		pusher: notify.NewRegistryPusher(svc.Registry(), log),
		log:    log,
		ctx:    ctx,
	}
}

// ConsumePushes delivers notifications persisted elsewhere to the clients
// this gateway holds. It blocks until ctx is done.
func (h *Hub) ConsumePushes(ctx context.Context, consumer *bus.Consumer) error {
	defer consumer.Close()
	return consumer.Run(ctx, bus.PushHandler(h.deliverPush))
}

// deliverPush hands a push record to the local connection of its target.
// Every gateway sees every record, so records for users held elsewhere
// are skipped without counting as dropped.
func (h *Hub) deliverPush(ctx context.Context, n *model.Notification) bool {
	if !h.chat.Registry().Online(n.UserID) {
		return false
	}
	delivered := h.pusher.PushNotification(ctx, n)
	metrics.Push(string(model.EventNotificationNew), delivered)
	return delivered
}

// serveWs authenticates and upgrades a websocket request. Authentication
// completes before anything is registered.
func (h *Hub) serveWs(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token == "" {
		// Try query param as fallback (standard for some WS clients)
		token = r.URL.Query().Get("token")
	}
	token = auth.StripBearer(token)

	user, err := h.gate.Authenticate(r.Context(), token)
	if err != nil {
		status := model.HTTPStatus(err)
		if errors.Is(err, model.ErrUnauthenticated) {
			h.log.Info("websocket rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		} else {
			h.log.Error("websocket authentication failed", zap.Error(err))
		}
		metrics.Rejections.WithLabelValues(model.Code(err)).Inc()
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h, conn, user)
	if hello, err := model.Encode(model.EventConnected, user); err == nil {
		client.Send(hello)
	}
	h.chat.Connect(h.ctx, client)

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump(h.ctx)
}
