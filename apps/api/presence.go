package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mahaj/careerchat/pkg/model"
	"go.uber.org/zap"
)

// PresenceReader is the read side of the gateway's presence mirror.
type PresenceReader interface {
	Status(ctx context.Context, userIDs ...string) (map[string]bool, error)
	Members(ctx context.Context) ([]string, error)
}

type PresenceHandler struct {
	presence PresenceReader
	log      *zap.Logger
}

func NewPresenceHandler(presence PresenceReader, log *zap.Logger) *PresenceHandler {
	return &PresenceHandler{presence: presence, log: log}
}

// ServeHTTP answers GET /presence?user=a&user=b with a map of user to online
// flag, or with the list of online users when no user is named.
func (h *PresenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	users := r.URL.Query()["user"]
	if len(users) == 0 {
		members, err := h.presence.Members(r.Context())
		if err != nil {
			writeError(w, h.log, fmt.Errorf("presence members: %w: %v", model.ErrStorageFailure, err))
			return
		}
		if members == nil {
			members = []string{}
		}
		writeJSON(w, http.StatusOK, map[string][]string{"online": members})
		return
	}

	status, err := h.presence.Status(r.Context(), users...)
	if err != nil {
		writeError(w, h.log, fmt.Errorf("presence status: %w: %v", model.ErrStorageFailure, err))
		return
	}
	writeJSON(w, http.StatusOK, status)
}
