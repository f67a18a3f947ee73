/*
Package handler provides HTTP handler functions for chatroom management.

Mutations write to the database first and notify the hub afterwards, so a
broadcast is only ever sent for a change that actually committed.
*/
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"parley/internal/app/db"
	"parley/internal/app/store"
	"parley/internal/pkg/auth/jwt"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/logx"
	"parley/internal/pkg/req"
	"parley/internal/pkg/resp"
)

// messageHistoryLimit caps the number of rows returned by the history endpoint.
const messageHistoryLimit = 100

// chatroomIDParam parses the {chatroomId} URL parameter.
func chatroomIDParam(r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "chatroomId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

type CreateChatroomInput struct {
	Title string `json:"title"`
}

// HandleCreateChatroom creates a chatroom with the authenticated user as its
// creator and first member.
func HandleCreateChatroom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input CreateChatroomInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		titleLen := utf8.RuneCountInString(input.Title)
		if titleLen < 1 || titleLen > 100 {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		room, err := deps.Store.Chatrooms.CreateChatroom(r.Context(), input.Title, identity.UserID)
		if err != nil {
			if db.IsUniqueViolation(err) {
				resp.RespondError(w, r, errs.NewError(errs.ErrChatroomTitleExists))
				return
			}

			logx.Error(err, "failed to create chatroom", "title", input.Title)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"chatroom": room,
		})
	}
}

// HandleDeleteChatroom deletes a chatroom. Only the creator may delete it.
// After the delete commits, everyone online in the chatroom is notified and
// local connections are force-closed.
func HandleDeleteChatroom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		chatroomID, ok := chatroomIDParam(r)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		room, err := deps.Store.Chatrooms.GetChatroom(r.Context(), chatroomID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrChatroomNotFound))
				return
			}

			logx.Error(err, "failed to fetch chatroom", "chatroom_id", chatroomID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if room.CreatedBy != identity.UserID {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		if err := deps.Store.Chatrooms.DeleteChatroom(r.Context(), chatroomID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrChatroomNotFound))
				return
			}

			logx.Error(err, "failed to delete chatroom", "chatroom_id", chatroomID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		deps.Hub.RoomRemoved(r.Context(), chatroomID)

		resp.RespondSuccess(w, r, map[string]any{
			"deleted": chatroomID,
		})
	}
}

type AddMemberInput struct {
	UserID int64 `json:"userId"`
}

// HandleAddMember enrolls a user into a chatroom and notifies everyone online.
func HandleAddMember(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		chatroomID, ok := chatroomIDParam(r)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		var input AddMemberInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.UserID <= 0 {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if _, err := deps.Store.Chatrooms.GetChatroom(r.Context(), chatroomID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrChatroomNotFound))
				return
			}

			logx.Error(err, "failed to fetch chatroom", "chatroom_id", chatroomID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		member, err := deps.Store.Users.LookupUser(r.Context(), input.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}

			logx.Error(err, "failed to fetch user", "user_id", input.UserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if err := deps.Store.Chatrooms.AddMember(r.Context(), chatroomID, input.UserID); err != nil {
			logx.Error(err, "failed to add member", "chatroom_id", chatroomID, "user_id", input.UserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		deps.Hub.MemberAdded(r.Context(), chatroomID, member)

		resp.RespondSuccess(w, r, map[string]any{
			"member": member,
		})
	}
}

// HandleRemoveMember drops a user from a chatroom and notifies everyone
// online. A member may remove themselves; the creator may remove anyone.
func HandleRemoveMember(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		chatroomID, ok := chatroomIDParam(r)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
		if err != nil || userID <= 0 {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		room, err := deps.Store.Chatrooms.GetChatroom(r.Context(), chatroomID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrChatroomNotFound))
				return
			}

			logx.Error(err, "failed to fetch chatroom", "chatroom_id", chatroomID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if userID != identity.UserID && room.CreatedBy != identity.UserID {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		member, err := deps.Store.Users.LookupUser(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}

			logx.Error(err, "failed to fetch user", "user_id", userID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if err := deps.Store.Chatrooms.RemoveMember(r.Context(), chatroomID, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrNotChatroomMember))
				return
			}

			logx.Error(err, "failed to remove member", "chatroom_id", chatroomID, "user_id", userID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		deps.Hub.MemberRemoved(r.Context(), chatroomID, member)

		resp.RespondSuccess(w, r, map[string]any{
			"removed": userID,
		})
	}
}

// HandleListMessages returns the most recent message history of a chatroom.
// Only members may read history.
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		chatroomID, ok := chatroomIDParam(r)
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		isMember, err := deps.Store.Chatrooms.IsMember(r.Context(), chatroomID, identity.UserID)
		if err != nil {
			logx.Error(err, "failed to check membership", "chatroom_id", chatroomID, "user_id", identity.UserID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}
		if !isMember {
			resp.RespondError(w, r, errs.NewError(errs.ErrNotChatroomMember))
			return
		}

		messages, err := deps.Store.Messages.ListRecent(r.Context(), chatroomID, messageHistoryLimit)
		if err != nil {
			logx.Error(err, "failed to list messages", "chatroom_id", chatroomID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"messages": messages,
		})
	}
}
