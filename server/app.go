package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gobeaver/beaver-signin/account"
	"github.com/gobeaver/beaver-signin/cache"
	"github.com/gobeaver/beaver-signin/database"
	"github.com/gobeaver/beaver-signin/flow"
	"github.com/gobeaver/beaver-signin/krypto"
	"github.com/gobeaver/beaver-signin/notify"
	"github.com/gobeaver/beaver-signin/session"
	"github.com/gobeaver/beaver-signin/signedcookie"
)

// Key derivation purposes. Changing one invalidates everything sealed or
// signed with the old key.
const (
	purposeTokens  = "beaver-signin/provider-tokens"
	purposeSession = "beaver-signin/session"
	purposeCookies = "beaver-signin/transient-cookies"
)

// Build opens the database and cache and wires every component from cfg.
// The returned Server owns them and releases them on Close.
func Build(ctx context.Context, cfg Config, logger *slog.Logger) (srv *Server, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func() error
	defer func() {
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
		}
	}()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	closers = append(closers, func() error { return database.Close(db) })

	store := account.NewGormStore(db)
	if cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	replay, err := cache.New(cfg.Cache)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		logger.Warn("cache disabled, callback replay protection relies on cookies only")
		replay = nil
	case err != nil:
		return nil, fmt.Errorf("cache: %w", err)
	default:
		closers = append(closers, replay.Close)
	}

	tokenKey, err := krypto.KeyFor(cfg.TokenEncryptionKey, cfg.AppSecret, purposeTokens, 32)
	if err != nil {
		return nil, fmt.Errorf("token encryption key: %w", err)
	}
	sessionKey, err := krypto.KeyFor(cfg.SessionSigningKey, cfg.AppSecret, purposeSession, 32)
	if err != nil {
		return nil, fmt.Errorf("session signing key: %w", err)
	}
	cookieKey, err := krypto.KeyFor(cfg.CookieSigningKey, cfg.AppSecret, purposeCookies, 32)
	if err != nil {
		return nil, fmt.Errorf("cookie signing key: %w", err)
	}

	cipher, err := krypto.NewTokenCipher(tokenKey)
	if err != nil {
		return nil, err
	}
	sessions, err := session.NewIssuer(sessionKey, session.Config{TTL: cfg.SessionTTL, Secure: cfg.Production()})
	if err != nil {
		return nil, err
	}
	cookies, err := signedcookie.New(cookieKey, signedcookie.WithDefaultExpiry(cfg.StateTTL))
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	providers, err := buildProviders(cfg, httpClient, logger)
	if err != nil {
		return nil, err
	}

	welcomer, err := notify.New(cfg.Notify, httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	resolver := account.NewResolver(store,
		account.WithWelcomer(welcomer),
		account.WithLogger(logger),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler, err := flow.NewHandler(flow.Config{
		BaseURL:  cfg.BaseURL,
		Secure:   cfg.Production(),
		StateTTL: cfg.StateTTL,
	}, flow.Deps{
		Providers: providers,
		Cookies:   cookies,
		Tokens:    cipher,
		Resolver:  resolver,
		Sessions:  sessions,
		Replay:    replay,
		Metrics:   flow.NewMetrics(registry),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return New(cfg, Deps{
		DB:         db,
		Cache:      replay,
		Flow:       handler,
		Sessions:   sessions,
		Registry:   registry,
		Logger:     logger,
		Background: resolver,
		Closers:    closers,
	})
}
