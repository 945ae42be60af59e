package server

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cryptoboost/portal/internal/config"
	"github.com/cryptoboost/portal/internal/routes"
)

// sweepInterval is how often idle browser sessions are evicted.
const sweepInterval = time.Minute

// Infra holds the optional infrastructure clients. Any of them may be nil.
type Infra struct {
	DB     *pgxpool.Pool
	Cache  *redis.Client
	SQLite *sql.DB
}

// Server wraps the Fiber application and its background loops.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	deps   routes.Deps
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New builds the portal components and wires the routes.
func New(ctx context.Context, cfg config.Config, infra Infra, logger *slog.Logger) (*Server, error) {
	deps, err := buildDeps(ctx, cfg, infra, logger)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	if err := routes.Setup(app, deps); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, deps: deps, logger: logger}, nil
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Start launches the price feed and the session sweeper. They stop when ctx
// is done; Shutdown waits for them.
func (s *Server) Start(ctx context.Context) {
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.deps.Prices.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.deps.Sessions.Run(ctx, sweepInterval)
	}()
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server and waits for background loops
// whose context has been cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("background loops still running at shutdown deadline")
	}
	return err
}
