/*
Package handler provides HTTP handler functions for managing directory users.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatdir/internal/pkg/errs"
	"chatdir/internal/pkg/logx"
	"chatdir/internal/pkg/req"
	"chatdir/internal/pkg/resp"
)

type CreateUserInput struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type UpdateUserInput struct {
	// Name replaces the display name when present. Omitting it leaves the user unchanged.
	Name *string `json:"name,omitempty"`
}

// HandleListUsers returns every user in insertion order, without passwords.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"users": deps.Directory.List(),
		})
	}
}

// HandleCreateUser creates a user. When the Proof-of-Work gate is enabled the request
// must carry a valid, unused Proof Token.
func HandleCreateUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Pow != nil && deps.Pow.Enabled() && !deps.Pow.ConsumeProofToken(r) {
			logx.Warn("create_user: missing or invalid proof token")
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeRequired))
			return
		}

		var input CreateUserInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		user, customErr := deps.Directory.Create(r.Context(), input.Name, input.Password)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user": user,
		})
	}
}

// HandleGetUser returns a single user.
func HandleGetUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, customErr := deps.Directory.Get(chi.URLParam(r, "id"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user": user,
		})
	}
}

// HandleUpdateUser renames a user.
func HandleUpdateUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input UpdateUserInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		user, customErr := deps.Directory.Update(r.Context(), chi.URLParam(r, "id"), input.Name)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user": user,
		})
	}
}

// HandleDeleteUser removes a user for good.
func HandleDeleteUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if customErr := deps.Directory.Delete(r.Context(), id); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"id": id,
		})
	}
}
