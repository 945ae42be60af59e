package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cryptoboost/portal/internal/logging"
)

func setupIdempotentApp(t *testing.T) (*fiber.App, *atomic.Int32) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	var calls atomic.Int32
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/api/v1/prices/refresh", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"cycle": n})
	})
	return app, &calls
}

func post(t *testing.T, app *fiber.App, key string) (int, string, bool) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/prices/refresh", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), resp.Header.Get(idempotencyReplayed) == "true"
}

func TestIdempotencyPassesThroughWithoutKey(t *testing.T) {
	app, calls := setupIdempotentApp(t)

	post(t, app, "")
	post(t, app, "")
	if calls.Load() != 2 {
		t.Fatalf("expected both requests to reach the handler, got %d", calls.Load())
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	app, calls := setupIdempotentApp(t)

	status, first, replayed := post(t, app, "abc123")
	if status != fiber.StatusAccepted || replayed {
		t.Fatalf("expected fresh %d got %d (replayed=%v)", fiber.StatusAccepted, status, replayed)
	}
	status, second, replayed := post(t, app, "abc123")
	if status != fiber.StatusAccepted || !replayed {
		t.Fatalf("expected replayed %d got %d (replayed=%v)", fiber.StatusAccepted, status, replayed)
	}
	if first != second {
		t.Fatalf("expected cached payload %s got %s", first, second)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls.Load())
	}

	post(t, app, "other-key")
	if calls.Load() != 2 {
		t.Fatalf("expected a new key to reach the handler")
	}
}

func TestIdempotencyDoesNotRecordServerErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	var calls atomic.Int32
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/api/v1/prices/refresh", func(c *fiber.Ctx) error {
		if calls.Add(1) == 1 {
			return c.SendStatus(fiber.StatusBadGateway)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	if status, _, _ := post(t, app, "retry"); status != fiber.StatusBadGateway {
		t.Fatalf("expected 502 got %d", status)
	}
	if status, _, replayed := post(t, app, "retry"); status != fiber.StatusOK || replayed {
		t.Fatalf("expected retry to reach handler, got %d (replayed=%v)", status, replayed)
	}
}

func TestIdempotencyWithoutRedisIsNoop(t *testing.T) {
	app := fiber.New()
	app.Use(Idempotency(nil, time.Minute, logging.Discard()))
	app.Post("/x", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	req := httptest.NewRequest(fiber.MethodPost, "/x", nil)
	req.Header.Set(idempotencyKeyHeader, "k")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204 got %d", resp.StatusCode)
	}
}
