/*
Package handler provides HTTP handler functions for logging in and resolving bearer tokens.
*/
package handler

import (
	"net/http"

	"chatdir/internal/pkg/auth/token"
	"chatdir/internal/pkg/errs"
	"chatdir/internal/pkg/logx"
	"chatdir/internal/pkg/req"
	"chatdir/internal/pkg/resp"
)

type LoginInput struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// HandleLogin verifies a name and password pair and issues a bearer token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		session, customErr := deps.Directory.Authenticate(input.Name, input.Password)
		if customErr != nil {
			logx.Warn("login: credentials rejected", "code", customErr.Code)
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, session)
	}
}

// HandleMe returns the user designated by the request's bearer token.
func HandleMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := token.IdentityFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		user, customErr := deps.Directory.ResolveToken(identity.Token)
		if customErr != nil {
			logx.Warn("me: token designates no user", "user_id", identity.UserID)
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user": user,
		})
	}
}
