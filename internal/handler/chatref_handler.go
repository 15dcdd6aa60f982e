/*
Package handler provides HTTP handler functions for the chat references kept per user.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatdir/internal/pkg/req"
	"chatdir/internal/pkg/resp"
)

type AddChatRefInput struct {
	// ChatID identifies a conversation hosted by the remote messaging API.
	ChatID string `json:"chat_id"`
}

// HandleListChatRefs returns the chat references of one user.
func HandleListChatRefs(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		refs, customErr := deps.Directory.ChatRefs(id)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"userId":   id,
			"chatRefs": refs,
		})
	}
}

// HandleAddChatRef associates a chat with a user. Adding a known chat is a no-op.
func HandleAddChatRef(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input AddChatRefInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		user, customErr := deps.Directory.AddChatRef(r.Context(), chi.URLParam(r, "id"), input.ChatID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user": user,
		})
	}
}

// HandleListLocalChats returns every chat referenced by any local user, sorted.
func HandleListLocalChats(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"chatRefs": deps.Directory.AllChatRefs(),
		})
	}
}
