/*
Package handler provides the HTTP handlers and routing setup for the chat directory server.

This file defines the main Router, applying the global middleware (CORS, request ids,
request logging, panic recovery and bearer identity extraction) and the per-route
rate limits before delegating requests to the directory handlers.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"chatdir/internal/pkg/auth/token"
	"chatdir/internal/pkg/limiter"
	"chatdir/internal/pkg/logx"
	"chatdir/internal/pkg/resp"
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
func Router(deps *AppDeps) http.Handler {
	r := chi.NewRouter()

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-PoW-Token"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	if deps.Config.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)
	r.Use(token.IdentityExtractorMiddleware(deps.Tokens))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"status":  "ok",
			"service": "chatdir",
			"users":   deps.Directory.Len(),
		})
	})

	r.Route("/users", func(users chi.Router) {
		users.Get("/", HandleListUsers(deps))
		users.With(throttle(deps.SignupLimiter)).Post("/", HandleCreateUser(deps))

		users.Route("/{id}", func(u chi.Router) {
			u.Get("/", HandleGetUser(deps))
			u.Patch("/", HandleUpdateUser(deps))
			u.Delete("/", HandleDeleteUser(deps))

			u.Get("/chatRefs", HandleListChatRefs(deps))
			u.Post("/chatRefs", HandleAddChatRef(deps))
		})
	})

	r.With(throttle(deps.LoginLimiter)).Post("/login", HandleLogin(deps))
	r.Get("/me", HandleMe(deps))

	r.Get("/local/chats", HandleListLocalChats(deps))

	r.Route("/pow", func(p chi.Router) {
		p.Get("/challenge", HandlePowChallenge(deps))
		p.Post("/verify", HandlePowVerify(deps))
	})

	return r
}

// throttle returns l's middleware, or a pass-through one when l is nil.
func throttle(l *limiter.IPRateLimiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return l.Middleware
}
