package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/mahaj/careerchat/pkg/auth"
	"github.com/mahaj/careerchat/pkg/model"
	"github.com/mahaj/careerchat/pkg/store"
	"go.uber.org/zap"
)

type ReadAllResponse struct {
	Updated int `json:"updated"`
}

// ReadHandler serves POST /notifications/{id}/read.
func ReadHandler(notifications store.Notifications, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, log, model.ErrUnauthenticated)
			return
		}

		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			writeError(w, log, fmt.Errorf("%w: bad notification id", model.ErrInvalidInput))
			return
		}
		if err := notifications.MarkNotificationRead(r.Context(), user.ID, id, time.Now().UTC()); err != nil {
			writeError(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ReadAllHandler serves POST /notifications/read-all.
func ReadAllHandler(notifications store.Notifications, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, log, model.ErrUnauthenticated)
			return
		}

		n, err := notifications.MarkAllNotificationsRead(r.Context(), user.ID, time.Now().UTC())
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, ReadAllResponse{Updated: n})
	}
}
