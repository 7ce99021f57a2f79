// Package testutil provides shared helpers for sessioncore tests.
package testutil

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TestingTB is the subset of testing.TB used by the helpers, kept narrow so
// the package works from both tests and benchmarks.
type TestingTB interface {
	Helper()
	Logf(format string, args ...any)
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Cleanup(func())
}

// GetTestRedisAddr returns the Redis address for tests, honoring
// TEST_REDIS_ADDR with a localhost fallback.
func GetTestRedisAddr() string {
	if addr := strings.TrimSpace(os.Getenv("TEST_REDIS_ADDR")); addr != "" {
		return addr
	}
	return "localhost:6379"
}

func requireRedis() bool {
	return strings.EqualFold(os.Getenv("TEST_REQUIRE_REDIS"), "true")
}

// SetupTestRedis creates a Redis client for testing.
// Tests are skipped if Redis is not available, unless TEST_REQUIRE_REDIS=true.
func SetupTestRedis(t TestingTB) *redis.Client {
	t.Helper()

	addr := GetTestRedisAddr()
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   15, // keep test data away from any local working set
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if cerr := client.Close(); cerr != nil {
			t.Logf("warning: failed to close redis client after ping error: %v", cerr)
		}
		if requireRedis() {
			t.Fatalf("Redis not available for testing at %s: %v", addr, err)
		}
		t.Skipf("Redis not available for testing at %s: %v", addr, err)
	}

	client.FlushDB(ctx)
	t.Cleanup(func() {
		cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancelCleanup()
		client.FlushDB(cleanupCtx)
		if cerr := client.Close(); cerr != nil {
			t.Logf("warning: failed to close redis client: %v", cerr)
		}
	})

	return client
}
