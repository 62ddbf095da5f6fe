package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/oauth-mail-sync/internal/accounts"
	"github.com/pysugar/oauth-mail-sync/internal/auth/google"
	"github.com/pysugar/oauth-mail-sync/internal/auth/state"
	"github.com/pysugar/oauth-mail-sync/internal/auth/token"
	"github.com/pysugar/oauth-mail-sync/internal/config"
	"github.com/pysugar/oauth-mail-sync/internal/db"
	"github.com/pysugar/oauth-mail-sync/internal/mailfetch"
	"github.com/pysugar/oauth-mail-sync/internal/poller"
	"github.com/pysugar/oauth-mail-sync/internal/quota"
	"github.com/pysugar/oauth-mail-sync/internal/vault"
	"github.com/pysugar/oauth-mail-sync/internal/version"
	"github.com/pysugar/oauth-mail-sync/internal/web/handlers"
	"github.com/pysugar/oauth-mail-sync/internal/web/middleware"
)

func main() {
	configPath := flag.String("config", "mailsync.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		log.Printf("mailsync %s", version.String())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	tokenVault, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize vault: %v", err)
	}

	googleClient := google.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	states := state.NewStore(database, cfg.StateMaxAge)
	registry := accounts.NewRegistry(database, tokenVault)
	tokens := token.NewManager(database, tokenVault, googleClient, cfg.RefreshSkew)
	gate := quota.NewGate(database)
	fetcher := mailfetch.NewClient()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.PollEnabled {
		p := poller.New(registry, gate, tokens, states, fetcher, cfg.PollInterval)
		go p.Run(ctx)
	} else {
		log.Printf("⏸️ Background polling disabled")
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)

	// OAuth redirect target, reached by the user's browser
	r.Get("/oauth2callback", handlers.CallbackHandler(states, googleClient, registry))

	r.Route("/api/users/{userID}", func(r chi.Router) {
		r.Get("/", handlers.GetUserHandler(registry))

		// Link flow
		r.Post("/links", handlers.StartLinkHandler(states, googleClient, registry))
		r.Get("/links/{state}", handlers.LinkStatusHandler(states, registry))

		// Linked account management
		r.Get("/accounts", handlers.ListAccountsHandler(registry))
		r.Post("/accounts/{accountID}/active", handlers.SetAccountActiveHandler(registry))
		r.Delete("/accounts/{accountID}", handlers.DeleteAccountHandler(registry))

		// Admin only
		r.With(middleware.APIKeyAuth(database)).Put("/subscription", handlers.SetSubscriptionHandler(registry))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(database))
		r.Post("/apikey/regenerate", handlers.RegenerateAPIKeyHandler(database))
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️ Server shutdown: %v", err)
		}
	}()

	log.Printf("🚀 mailsync %s starting on http://%s", version.String(), cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
	log.Printf("👋 Shut down")
}
