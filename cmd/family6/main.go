package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	adapthttp "family6/internal/adapter/http"
	"family6/internal/adapter/memory"
	"family6/internal/adapter/postgres"
	"family6/internal/app"
	"family6/internal/domain"
	"family6/internal/mail"
)

func main() {
	addr := env("ADDR", ":8080")
	webDir := env("WEB_DIR", "web")
	baseURL := env("BASE_URL", "http://localhost:8080")
	confirmPage := env("CONFIRM_PAGE_URL", baseURL+"/confirm")
	webhookURL := os.Getenv("CHAT_WEBHOOK_URL")

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var (
		users    domain.UserRepository
		sessions domain.SessionRepository
		chats    domain.ChatRepository
	)
	if connStr := os.Getenv("DATABASE_URL"); connStr != "" {
		db, err := postgres.Open(connStr)
		if err != nil {
			logger.Error("db open", "err", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		users = db
		sessions = postgres.NewSessionRepo(db)
		chats = postgres.NewChatRepo(db)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		mem := memory.New()
		users = mem
		sessions = mem.NewSessionRepo()
		chats = mem.NewChatRepo()
	}

	var mailer mail.Mailer
	if smtpAddr := os.Getenv("SMTP_ADDR"); smtpAddr != "" {
		mailer = mail.NewSMTP(smtpAddr, env("SMTP_FROM", "noreply@localhost"),
			os.Getenv("SMTP_USERNAME"), os.Getenv("SMTP_PASSWORD"))
	} else {
		mailer = mail.NewLog(logger)
	}

	sessionMgr := app.NewSessionManager(sessions, nil)
	sessionMgr.Events().Subscribe(func(ev app.AuthEvent) {
		logger.Info("auth event", "type", ev.Type, "email", ev.Email)
	})

	authSvc := app.NewAuthService(users, sessionMgr, mailer, baseURL, logger, nil)
	chatSvc := app.NewChatHistoryService(chats, sessionMgr, nil)
	relaySvc := app.NewRelayService(webhookURL, logger, nil)
	if webhookURL == "" {
		logger.Warn("CHAT_WEBHOOK_URL not set, chat relay disabled")
	}

	oidcCfg, err := adapthttp.NewOIDCConfig(context.Background(),
		os.Getenv("OIDC_ISSUER"), os.Getenv("OIDC_CLIENT_ID"),
		os.Getenv("OIDC_CLIENT_SECRET"), baseURL+"/api/auth/sso/callback")
	if err != nil {
		logger.Error("oidc setup", "err", err)
		os.Exit(1)
	}

	h := adapthttp.New(authSvc, chatSvc, relaySvc, oidcCfg, confirmPage, webDir, logger).Handler()
	logger.Info("listening", "addr", addr)
	if err := http.ListenAndServe(addr, h); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server", "err", err)
		os.Exit(1)
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
