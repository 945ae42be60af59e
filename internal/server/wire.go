package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cryptoboost/portal/internal/auth"
	"github.com/cryptoboost/portal/internal/config"
	"github.com/cryptoboost/portal/internal/gotrue"
	"github.com/cryptoboost/portal/internal/identity"
	"github.com/cryptoboost/portal/internal/notification"
	"github.com/cryptoboost/portal/internal/portfolio"
	"github.com/cryptoboost/portal/internal/pricefeed"
	"github.com/cryptoboost/portal/internal/routes"
	"github.com/cryptoboost/portal/internal/session"
)

func buildDeps(ctx context.Context, cfg config.Config, infra Infra, logger *slog.Logger) (routes.Deps, error) {
	backend := cfg.BackendConfigured()
	if !backend && !cfg.IsDev() && infra.DB == nil {
		return routes.Deps{}, fmt.Errorf("database is required in standalone mode when APP_ENV=%s", cfg.AppEnv)
	}

	store, pruner, err := buildStore(ctx, cfg, infra)
	if err != nil {
		return routes.Deps{}, err
	}

	var directory *identity.Directory
	if !backend {
		var repo identity.Repository
		if infra.DB != nil {
			repo = identity.NewPostgresRepository(infra.DB)
		} else {
			repo = identity.NewMemoryRepository()
		}
		directory = identity.NewDirectory(repo)
		if cfg.ShouldSeedDemo() {
			if err := directory.SeedDemo(ctx, cfg.DemoPassword); err != nil {
				return routes.Deps{}, fmt.Errorf("seed demo accounts: %w", err)
			}
			logger.Info("demo accounts ready", slog.String("client", identity.DemoClientEmail), slog.String("admin", identity.DemoAdminEmail))
		}
	}

	notifier := notification.NewLoggerNotifier(logger)
	factory := func(sid string) session.Options {
		scoped := session.Namespace(store, sid)
		opts := session.Options{
			Notifier:       notifier,
			Logger:         logger.With(slog.String("session_id", sid)),
			ResolveTimeout: cfg.SessionResolveTimeout,
		}
		if backend {
			opts.Backend = gotrue.New(gotrue.Config{
				URL:     cfg.IdentityBackendURL,
				Key:     cfg.IdentityBackendKey,
				Timeout: cfg.SessionResolveTimeout,
			}, scoped, opts.Logger)
			return opts
		}
		opts.Directory = directory
		opts.Store = scoped
		return opts
	}
	registry := session.NewRegistry(factory, cfg.SessionTTL, logger)
	if pruner != nil {
		registry.WithPruner(pruner)
	}

	source := pricefeed.NewCoinAPI(cfg.QuoteBaseURL, cfg.QuoteAPIKey, &http.Client{})
	prices := pricefeed.New(source, pricefeed.DefaultAssets,
		pricefeed.WithCurrency(cfg.QuoteCurrency),
		pricefeed.WithTimeout(cfg.QuoteTimeout),
		pricefeed.WithInterval(cfg.QuoteRefreshInterval),
		pricefeed.WithLogger(logger.With(slog.String("component", "pricefeed"))),
	)

	var holdings portfolio.Repository
	if infra.DB != nil {
		holdings = portfolio.NewPostgresRepository(infra.DB)
	} else {
		holdings = portfolio.NewMemoryRepository()
	}

	mode := "standalone"
	if backend {
		mode = "backend"
	}
	logger.Info("identity mode", slog.String("mode", mode), slog.String("session_store", cfg.SessionStore))

	return routes.Deps{
		Cfg:       cfg,
		DB:        infra.DB,
		Cache:     infra.Cache,
		SQLite:    infra.SQLite,
		Logger:    logger,
		Tokens:    auth.NewTokens(cfg.SessionSecret, cfg.SessionTTL),
		Sessions:  registry,
		Prices:    prices,
		Portfolio: portfolio.NewService(holdings, pricefeed.DefaultAssets),
	}, nil
}

func buildStore(ctx context.Context, cfg config.Config, infra Infra) (session.Store, session.Pruner, error) {
	switch cfg.SessionStore {
	case config.StoreRedis:
		if infra.Cache == nil {
			return nil, nil, fmt.Errorf("session store %q needs redis", cfg.SessionStore)
		}
		return session.NewRedisStore(infra.Cache, cfg.SessionTTL), nil, nil
	case config.StoreSQLite:
		if infra.SQLite == nil {
			return nil, nil, fmt.Errorf("session store %q needs sqlite", cfg.SessionStore)
		}
		store, err := session.NewSQLiteStore(ctx, infra.SQLite)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return session.NewMemoryStore(), nil, nil
	}
}
