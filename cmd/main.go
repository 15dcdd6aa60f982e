/*
Package main is the entry point for the chat directory server.

It is responsible for loading configuration, initializing the global logging system,
opening the directory storage backend and loading the user directory, setting up the
HTTP server, and gracefully handling operating system interrupt signals (SIGINT, SIGTERM)
so the server drains in-flight requests before the store is closed.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatdir/internal/app/directory"
	"chatdir/internal/app/storage"
	"chatdir/internal/configs"
	"chatdir/internal/handler"
	"chatdir/internal/pkg/auth/token"
	"chatdir/internal/pkg/limiter"
	"chatdir/internal/pkg/logx"
	"chatdir/internal/pkg/pow"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logx.InitGlobalLogger(logx.Options{Development: cfg.IsDevelopment(), Level: cfg.LogLevel}); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("storage_driver", cfg.StorageDriver).
		Bool("signed_tokens", cfg.TokenSecret != "").
		Bool("trust_proxy", cfg.TrustProxy).
		Float64("login_rate", cfg.LoginRate).
		Float64("signup_rate", cfg.SignupRate).
		Int("pow_difficulty", cfg.PowDifficulty).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(ctx, storage.ServiceConfig{
		Driver:            cfg.StorageDriver,
		FilePath:          cfg.UsersFile,
		DocumentName:      cfg.DocumentName,
		DatabaseDSN:       cfg.DatabaseDSN,
		S3BucketName:      cfg.S3BucketName,
		S3Endpoint:        cfg.S3Endpoint,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		logx.Fatal(err, "Failed to open directory storage")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logx.Error(err, "Failed to close directory storage")
		}
	}()

	var issuer token.Issuer = token.IDIssuer{}
	if cfg.TokenSecret != "" {
		signed, err := token.NewSignedIssuer(cfg.TokenSecret)
		if err != nil {
			logx.Fatal(err, "Failed to initialize token issuer")
		}
		issuer = signed
	}

	dir, err := directory.Open(ctx, store, directory.WithTokenIssuer(issuer))
	if err != nil {
		logx.Fatal(err, "Failed to load user directory")
	}

	powManager := pow.NewManager(cfg.PowDifficulty)
	defer powManager.Stop()

	// Both are nil, and the routes unthrottled, unless LOGIN_RATE / SIGNUP_RATE are set.
	loginLimiter := limiter.NewOptional(cfg.LoginRate, cfg.LoginBurst)
	defer loginLimiter.Stop()
	signupLimiter := limiter.NewOptional(cfg.SignupRate, cfg.SignupBurst)
	defer signupLimiter.Stop()

	// Setup HTTP server and routes
	router := handler.Router(&handler.AppDeps{
		Config:        cfg,
		Directory:     dir,
		Tokens:        issuer,
		Pow:           powManager,
		LoginLimiter:  loginLimiter,
		SignupLimiter: signupLimiter,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info("Chat directory server starting", "addr", serverAddr, "store", store.Describe(), "users", dir.Len())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
		return
	}

	logx.Info("Server gracefully stopped.")
}
