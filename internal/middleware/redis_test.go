package middleware

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/storefront-api/internal/config"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisCacheHitMissAndPurge(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{http.MethodGet: true},
		TTL:          time.Minute,
		KeyStrategy:  "route_query",
		Prefix:       "catalog",
		MaxBodyBytes: 1 << 20,
	}

	calls := 0
	e := newEcho()
	e.GET("/api/products", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"success": true, "calls": calls})
	}, NewRedisCache(cfg, rdb))

	first := do(e, http.MethodGet, "/api/products?sort=price_asc", "")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := do(e, http.MethodGet, "/api/products?sort=price_asc", "")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, echo.MIMEApplicationJSON, second.Header().Get(echo.HeaderContentType))
	assert.Equal(t, 1, calls)

	other := do(e, http.MethodGet, "/api/products?sort=name_asc", "")
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)

	require.NoError(t, NewRedisCachePurger(cfg, rdb).Purge(context.Background()))

	third := do(e, http.MethodGet, "/api/products?sort=price_asc", "")
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Equal(t, 3, calls)
}

func TestRedisCacheSkipsErrors(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute, Prefix: "catalog"}

	calls := 0
	e := newEcho()
	e.GET("/api/products/:id", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusNotFound, echo.Map{"success": false, "message": "product not found"})
	}, NewRedisCache(cfg, rdb))

	do(e, http.MethodGet, "/api/products/9", "")
	do(e, http.MethodGet, "/api/products/9", "")
	assert.Equal(t, 2, calls)
}

func TestRedisCacheDoesNotReplayRequestID(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{Enabled: true, Methods: map[string]bool{http.MethodGet: true}, TTL: time.Minute, Prefix: "catalog"}

	n := 0
	requestID := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			n++
			c.Response().Header().Set(echo.HeaderXRequestID, fmt.Sprintf("req-%d", n))
			return next(c)
		}
	}
	e := newEcho()
	e.GET("/api/products/:id", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"success": true})
	}, requestID, NewRedisCache(cfg, rdb))

	do(e, http.MethodGet, "/api/products/1", "")
	hit := do(e, http.MethodGet, "/api/products/1", "")
	assert.Equal(t, "HIT", hit.Header().Get("X-Cache"))
	assert.Equal(t, []string{"req-2"}, hit.Header().Values(echo.HeaderXRequestID))
}

func TestNilPurgerIsNoop(t *testing.T) {
	var p *RedisCachePurger
	assert.NoError(t, p.Purge(context.Background()))
	assert.NoError(t, NewRedisCachePurger(config.CacheConfig{Prefix: "catalog"}, nil).Purge(context.Background()))
}

func TestTokenBucket(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            2 * time.Minute,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}

	e := newEcho()
	e.GET("/api/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") }, NewTokenBucket(cfg, rdb))

	first := do(e, http.MethodGet, "/api/ping", "")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/api/ping", "").Code)

	blocked := do(e, http.MethodGet, "/api/ping", "")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
	body := decode(t, blocked)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestTokenBucketFailsOpen(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()

	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}
	e := newEcho()
	e.GET("/api/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") }, NewTokenBucket(cfg, rdb))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/api/ping", "").Code)
	}
}
