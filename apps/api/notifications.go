package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mahaj/careerchat/pkg/auth"
	"github.com/mahaj/careerchat/pkg/model"
	"github.com/mahaj/careerchat/pkg/store"
	"go.uber.org/zap"
)

// NotificationsHandler serves GET /notifications?unread=true&limit=, newest
// first. This is the poll path for users who were offline when a
// notification was created.
func NotificationsHandler(notifications store.Notifications, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, log, model.ErrUnauthenticated)
			return
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			writeError(w, log, err)
			return
		}
		unread := r.URL.Query().Get("unread") == "true"

		list, err := notifications.ListNotifications(r.Context(), user.ID, unread, int(limit))
		if err != nil {
			writeError(w, log, err)
			return
		}
		if list == nil {
			list = []model.Notification{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// Publisher enqueues a value on the notify topic.
type Publisher interface {
	Publish(ctx context.Context, key string, v interface{}) error
}

// NotifyHandler serves POST /notify, the seam the rest of the application
// uses to send users notifications. Requests are validated here and
// persisted by the messaging worker.
func NotifyHandler(pub Publisher, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.NotifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, log, fmt.Errorf("%w: invalid request body", model.ErrInvalidInput))
			return
		}
		if strings.TrimSpace(req.TargetUserID) == "" {
			writeError(w, log, fmt.Errorf("%w: target_user_id is required", model.ErrInvalidInput))
			return
		}
		if !req.Type.Valid() {
			writeError(w, log, fmt.Errorf("%w: unknown notification type %q", model.ErrInvalidInput, req.Type))
			return
		}
		if strings.TrimSpace(req.Payload.Title) == "" {
			writeError(w, log, fmt.Errorf("%w: payload.title is required", model.ErrInvalidInput))
			return
		}

		if err := pub.Publish(r.Context(), req.TargetUserID, req); err != nil {
			writeError(w, log, fmt.Errorf("enqueue notify request: %w: %v", model.ErrStorageFailure, err))
			return
		}
		log.Info("notify request enqueued",
			zap.String("user_id", req.TargetUserID),
			zap.String("type", string(req.Type)),
		)
		w.WriteHeader(http.StatusAccepted)
	}
}
