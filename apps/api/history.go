package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mahaj/careerchat/pkg/auth"
	"github.com/mahaj/careerchat/pkg/chat"
	"github.com/mahaj/careerchat/pkg/metrics"
	"github.com/mahaj/careerchat/pkg/model"
	"github.com/mahaj/careerchat/pkg/store"
	"go.uber.org/zap"
)

type HistoryHandler struct {
	messages store.Messages
	guard    *chat.Guard
	log      *zap.Logger
}

func NewHistoryHandler(messages store.Messages, guard *chat.Guard, log *zap.Logger) *HistoryHandler {
	return &HistoryHandler{messages: messages, guard: guard, log: log}
}

// ServeHTTP serves GET /conversations/{id}/messages?after=&limit=. Messages
// come back in creation order; pass the last id seen as after to page.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, h.log, model.ErrUnauthenticated)
		return
	}

	conversationID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, h.log, fmt.Errorf("%w: bad conversation id", model.ErrInvalidInput))
		return
	}
	after, err := queryInt(r, "after")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if _, err := h.guard.Authorize(r.Context(), user.ID, conversationID); err != nil {
		writeError(w, h.log, err)
		return
	}
	messages, err := h.messages.ListMessages(r.Context(), conversationID, after, int(limit))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

type LoginRequest struct {
	UserID      string     `json:"user_id"`
	Role        model.Role `json:"role"`
	DisplayName string     `json:"display_name"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

// LoginHandler issues development tokens. It is only mounted when dev
// login is enabled. Unknown users are provisioned in the directory so that
// the gateway accepts them; known users keep their directory role. Service
// and admin identities are never handed out here.
func LoginHandler(users store.Users, tokens *auth.Tokens, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, log, fmt.Errorf("%w: invalid request body", model.ErrInvalidInput))
			return
		}
		if req.UserID == "" {
			writeError(w, log, fmt.Errorf("%w: user_id is required", model.ErrInvalidInput))
			return
		}
		switch req.Role {
		case "":
			req.Role = model.RoleCandidate
		case model.RoleCandidate, model.RoleEmployer:
		case model.RoleAdmin, model.RoleService:
			writeError(w, log, fmt.Errorf("%w: role %q cannot use dev login", model.ErrForbidden, req.Role))
			return
		default:
			writeError(w, log, fmt.Errorf("%w: unknown role %q", model.ErrInvalidInput, req.Role))
			return
		}

		user, err := users.LookupUser(r.Context(), req.UserID)
		switch {
		case errors.Is(err, model.ErrNotFound):
			user = &model.Identity{ID: req.UserID, Role: req.Role, DisplayName: req.DisplayName}
			if err := users.SaveUser(r.Context(), *user); err != nil {
				writeError(w, log, err)
				return
			}
			log.Info("dev user provisioned", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
		case err != nil:
			writeError(w, log, err)
			return
		case privileged(user.Role):
			writeError(w, log, fmt.Errorf("%w: user %s cannot use dev login", model.ErrForbidden, user.ID))
			return
		}

		token, err := tokens.GenerateToken(user.ID, user.Role)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, LoginResponse{Token: token})
	}
}

func privileged(role model.Role) bool {
	return role == model.RoleAdmin || role == model.RoleService
}

// AuthMiddleware resolves the bearer token to an identity and stores it on
// the request context.
func AuthMiddleware(gate *auth.Gate, log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				writeError(w, log, fmt.Errorf("%w: authorization header required", model.ErrUnauthenticated))
				return
			}

			user, err := gate.Authenticate(r.Context(), auth.StripBearer(tokenString))
			if err != nil {
				writeError(w, log, err)
				return
			}
			log.Debug("authenticated user", zap.String("user_id", user.ID))

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), user)))
		})
	}
}

// RequireRole rejects identities whose role is not listed.
func RequireRole(log *zap.Logger, roles ...model.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := auth.FromContext(r.Context())
			if !ok {
				writeError(w, log, model.ErrUnauthenticated)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, log, fmt.Errorf("%w: role %s may not call this endpoint", model.ErrForbidden, user.Role))
		})
	}
}

type errorResponse struct {
	Error model.ErrorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := model.HTTPStatus(err)
	metrics.Rejections.WithLabelValues(model.Code(err)).Inc()
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: model.ErrorBody{Code: model.Code(err), Message: model.PublicMessage(err)}})
}

func queryInt(r *http.Request, key string) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", model.ErrInvalidInput, key)
	}
	return n, nil
}
