/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting, validating
the chatroom and user parameters against the authenticated identity, upgrading the HTTP connection
to WebSocket, and initiating the client lifecycle.
*/
package handler

import (
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"parley/internal/app/chat"
	"parley/internal/app/store"
	"parley/internal/pkg/auth/jwt"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/limiter"
	"parley/internal/pkg/logx"
	"parley/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		chatroomID, ok := chatroomIDParam(r)
		if !ok {
			logx.Warn("WebSocket request rejected: Invalid chatroom id")
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
		if err != nil || userID <= 0 {
			logx.Warn("WebSocket request rejected: Invalid user id", "chatroom_id", chatroomID)
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		// The user id claimed in the path must match the token identity.
		if identity.UserID != userID {
			logx.Warn("WebSocket request rejected: Identity mismatch",
				"claimed_user_id", userID, "token_user_id", identity.UserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrIdentityMismatch))
			return
		}

		isMember, err := deps.Store.Chatrooms.IsMember(r.Context(), chatroomID, userID)
		if err != nil {
			logx.Error(err, "WebSocket request rejected: Membership check failed", "chatroom_id", chatroomID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}
		if !isMember {
			logx.Info("WebSocket connection rejected: Not a chatroom member.",
				"chatroom_id", chatroomID, "user_id", userID)
			resp.RespondError(w, r, errs.NewError(errs.ErrNotChatroomMember))
			return
		}

		info, err := deps.Store.Users.LookupUser(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}

			logx.Error(err, "WebSocket request rejected: User lookup failed", "user_id", userID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		logx.Info("Attempting to upgrade connection", "chatroom_id", chatroomID, "user_id", userID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(deps.Hub, conn, chatroomID, info)

		// Presence registration must succeed before any pump starts; a failed
		// registry means the connection cannot participate in broadcasts.
		if err := deps.Hub.Connect(r.Context(), chatroomID, info, client); err != nil {
			logx.Error(err, "WebSocket connection aborted: Presence registration failed",
				"chatroom_id", chatroomID, "user_id", userID)
			client.ForceClose("Chat service is temporarily unavailable.")
			_ = conn.Close()
			return
		}

		go client.WritePump()

		logx.Info("WebSocket connection established and client registered",
			"chatroom_id", chatroomID, "user_id", userID)

		client.ReadPump(r.Context())
	}
}
