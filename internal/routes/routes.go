package routes

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cryptoboost/portal/internal/auth"
	"github.com/cryptoboost/portal/internal/config"
	"github.com/cryptoboost/portal/internal/middleware"
	"github.com/cryptoboost/portal/internal/portfolio"
	"github.com/cryptoboost/portal/internal/pricefeed"
	"github.com/cryptoboost/portal/internal/session"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg       config.Config
	DB        *pgxpool.Pool
	Cache     *redis.Client
	SQLite    *sql.DB
	Logger    *slog.Logger
	Tokens    *auth.Tokens
	Sessions  *session.Registry
	Prices    *pricefeed.Aggregator
	Portfolio *portfolio.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Tokens == nil || d.Sessions == nil || d.Prices == nil || d.Portfolio == nil {
		return fmt.Errorf("routes: tokens, sessions, prices and portfolio are required")
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.AccessLog {
		// Plain text access log: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}

	// Health stays outside browser sessions so probes do not mint cookies.
	RegisterHealthRoutes(app, d)

	app.Use(middleware.Session(d.Tokens, d.Sessions, !d.Cfg.IsDev(), d.Logger))
	app.Use(middleware.Audit(d.Logger))
	app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDOf(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	authHandler := auth.NewHandler(middleware.Manager)
	RegisterAuthRoutes(api, authHandler, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit, d.Logger))
	RegisterPriceRoutes(api, d.Prices)
	api.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(http.StatusNotFound, "no such endpoint")
	})

	portfolioHandler := portfolio.NewHandler(d.Portfolio, d.Prices, middleware.Identity)
	RegisterViewRoutes(app, viewDeps{prices: d.Prices, sessions: d.Sessions, portfolio: portfolioHandler})

	return nil
}

func isAPI(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}
