package handler

import (
	"chatdir/internal/app/directory"
	"chatdir/internal/configs"
	"chatdir/internal/pkg/auth/token"
	"chatdir/internal/pkg/limiter"
	"chatdir/internal/pkg/pow"
)

// AppDeps carries everything the HTTP handlers need.
type AppDeps struct {
	Config    *configs.AppConfig
	Directory *directory.Directory

	// Tokens must be the issuer the Directory was opened with.
	Tokens token.Issuer

	// Pow gates user creation when enabled. Nil disables the gate.
	Pow *pow.Manager

	// LoginLimiter and SignupLimiter throttle POST /login and POST /users per client IP.
	// A nil limiter leaves the route unthrottled.
	LoginLimiter  *limiter.IPRateLimiter
	SignupLimiter *limiter.IPRateLimiter
}
