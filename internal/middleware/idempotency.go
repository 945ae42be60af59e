package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader  = "Idempotency-Key"
	idempotencyReplayed   = "Idempotent-Replayed"
	idempotencyPrefix     = "portal:idempotency:v1:"
	idempotencyPending    = "pending"
	idempotencyOpDeadline = 2 * time.Second
)

// replayable is the part of a response kept for replay. Session cookies are
// never part of it.
type replayable struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

type idempotencyStore struct {
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Idempotency replays the recorded response of an unsafe request repeating
// an Idempotency-Key already used by the same browser session. Server errors
// are not recorded, so a retry after one reaches the handler again. Requests
// without the header, and every request when Redis is absent, pass through.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	store := idempotencyStore{cache: cache, ttl: ttl, logger: logger}
	return func(c *fiber.Ctx) error {
		if cache == nil || safeMethod(c.Method()) {
			return c.Next()
		}
		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return c.Next()
		}
		slot := idempotencyPrefix + SessionID(c) + ":" + c.Method() + ":" + c.Path() + ":" + key
		log := logger.With(slog.String("idempotency_key", key))

		ctx, cancel := context.WithTimeout(c.UserContext(), idempotencyOpDeadline)
		defer cancel()

		prior, found, err := store.lookup(ctx, slot)
		if err != nil {
			log.Error("idempotency lookup failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}
		if found {
			if prior == nil {
				return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
			}
			c.Set(idempotencyReplayed, "true")
			if prior.ContentType != "" {
				c.Set(fiber.HeaderContentType, prior.ContentType)
			}
			return c.Status(prior.Status).Send(prior.Body)
		}

		reserved, err := store.cache.SetNX(ctx, slot, idempotencyPending, ttl).Result()
		if err != nil {
			log.Error("idempotency reservation failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}
		if !reserved {
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		}

		if err := c.Next(); err != nil {
			store.release(slot)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			store.release(slot)
			return nil
		}
		if err := store.record(slot, replayable{
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		}); err != nil {
			log.Error("idempotent response not recorded", slog.Any("error", err))
			store.release(slot)
		}
		return nil
	}
}

func safeMethod(method string) bool {
	switch method {
	case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
		return true
	}
	return false
}

// lookup returns found with a nil response while the first request is still
// being served.
func (s idempotencyStore) lookup(ctx context.Context, slot string) (*replayable, bool, error) {
	raw, err := s.cache.Get(ctx, slot).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if string(raw) == idempotencyPending {
		return nil, true, nil
	}
	var r replayable
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

func (s idempotencyStore) record(slot string, r replayable) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyOpDeadline)
	defer cancel()
	return s.cache.Set(ctx, slot, payload, s.ttl).Err()
}

func (s idempotencyStore) release(slot string) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyOpDeadline)
	defer cancel()
	if err := s.cache.Del(ctx, slot).Err(); err != nil {
		s.logger.Warn("idempotency slot not released", slog.String("slot", slot), slog.Any("error", err))
	}
}
