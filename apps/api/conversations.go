package main

import (
	"net/http"

	"github.com/mahaj/careerchat/pkg/auth"
	"github.com/mahaj/careerchat/pkg/model"
	"github.com/mahaj/careerchat/pkg/store"
	"go.uber.org/zap"
)

// ConversationsHandler lists the caller's conversations, most recent first,
// with the number of messages they have not read in each.
func ConversationsHandler(conversations store.Conversations, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, log, model.ErrUnauthenticated)
			return
		}

		summaries, err := conversations.ListConversations(r.Context(), user.ID)
		if err != nil {
			writeError(w, log, err)
			return
		}
		if summaries == nil {
			summaries = []model.ConversationSummary{}
		}
		writeJSON(w, http.StatusOK, summaries)
	}
}
