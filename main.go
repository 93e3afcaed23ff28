// Command dropwing-notify is a terminal client for the Dropwing notification
// API: it connects the realtime channel, tails live notifications, and keeps
// the local list reconciled with the server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dropwing/dropwing-go/config"
	"github.com/dropwing/dropwing-go/internal/auth"
	"github.com/dropwing/dropwing-go/internal/bridge"
	"github.com/dropwing/dropwing-go/internal/connection"
	"github.com/dropwing/dropwing-go/internal/events"
	"github.com/dropwing/dropwing-go/internal/i18n"
	"github.com/dropwing/dropwing-go/internal/notification"
	"github.com/dropwing/dropwing-go/logger"
	"github.com/dropwing/dropwing-go/types"
	"github.com/google/uuid"
)

// consoleAlerter prints new notifications to the terminal, standing in for
// the platform local-notification hook.
type consoleAlerter struct {
	lang *i18n.Store
}

func (a consoleAlerter) Alert(n types.Notification) {
	fmt.Printf("\n[%s] %s: %s\n", n.Type, a.lang.Translate("notifications.new"), n.TranslatedMessage)
}

func main() {
	// Initialize logger
	logger.InitLogger()
	log := logger.GetLogger()
	defer logger.Close()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Session: restore the persisted one, or bootstrap from the environment
	// on first run.
	store := auth.NewFileStore(cfg.Store.SessionPath(), cfg.Store.KeyPath())
	session, err := store.Load()
	if err == auth.ErrNoSession {
		token := os.Getenv("DROPWING_AUTH_TOKEN")
		if token == "" {
			log.Fatal("No saved session and DROPWING_AUTH_TOKEN is not set")
		}
		userID, err := auth.UserIDFromToken(token)
		if err != nil {
			log.Fatalf("Failed to read auth token: %v", err)
		}
		session = &types.Session{UserID: userID, Token: token}
		if err := store.Save(*session); err != nil {
			log.Fatalf("Failed to save session: %v", err)
		}
	} else if err != nil {
		log.Fatalf("Failed to load session: %v", err)
	}

	if auth.TokenExpired(session.Token) {
		log.Warn("Stored auth token is expired; the server will reject requests")
	}

	// Language preference
	lang, err := i18n.NewStore(cfg.Language.BundleDir, cfg.Language.Default, cfg.Store.LanguagePath())
	if err != nil {
		log.Fatalf("Failed to load translations: %v", err)
	}

	// REST client and the notification list it feeds
	client := notification.NewClient(cfg.API.BaseURL, lang,
		notification.WithTokenSource(func() string { return session.Token }))
	list := notification.NewList(client, session.UserID, cfg.API.PageSize)

	// Realtime pipeline: connection -> dispatcher -> bridge -> list
	dispatcher := events.NewDispatcher()
	defer dispatcher.Close()

	manager := connection.NewManager(cfg.Realtime, connection.DefaultEndpoints(cfg.Realtime), dispatcher)
	manager.SetPushToken(types.PushTokenRegistration{
		Token:    "cli-" + uuid.NewString(),
		Platform: "cli",
		IsDevice: false,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	br := bridge.New(dispatcher, list, session.UserID,
		bridge.WithAlerter(consoleAlerter{lang: lang}))
	br.Start(ctx)
	defer br.Stop()

	if err := manager.Connect(ctx, *session, lang.Language()); err != nil {
		// Non-fatal: keep running in pull-only mode.
		log.Warnw("Realtime connection unavailable, continuing with REST polling", "error", err)
	}
	defer manager.Disconnect()

	// Initial page
	if _, err := list.FetchPage(ctx, 1); err != nil {
		log.Warnw("Initial fetch failed", "error", err)
	}
	printList(list)

	// Periodic reconciliation bounds drift from optimistic mutations and
	// from missed events while the connection was down.
	ticker := time.NewTicker(cfg.Sync.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down")
			return
		case <-ticker.C:
			if err := list.Reconcile(ctx); err != nil {
				log.Warnw("Reconcile failed", "error", err)
			}
			if manager.State() == connection.StateFailed {
				if err := manager.Connect(ctx, *session, lang.Language()); err != nil {
					log.Debugw("Realtime still unavailable", "error", err)
				}
			}
		}
	}
}

func printList(list *notification.List) {
	records := list.Records()
	fmt.Printf("%d notifications (%d unread)\n", len(records), list.UnreadCount())
	for _, n := range records {
		marker := " "
		if !n.IsRead {
			marker = "*"
		}
		fmt.Printf("%s [%s] %s\n", marker, n.Type, n.TranslatedMessage)
	}
}
