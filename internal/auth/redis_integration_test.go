package auth

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/redis/go-redis/v9"
)

func TestRedisVerifier(t *testing.T) {
	addr := os.Getenv("VOICE_TEST_REDIS_ADDR")
	if strings.TrimSpace(addr) == "" {
		t.Skip("VOICE_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ctx := context.Background()

	if err := rdb.Set(ctx, sessionKey("tok-1"), `{"userId":"u9","username":"zeynep"}`, time.Minute).Err(); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	defer rdb.Del(ctx, sessionKey("tok-1"))

	v := NewRedisVerifier(rdb)
	u, err := v.Verify(ctx, "tok-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if u.ID != "u9" || u.Username != "zeynep" {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := v.Verify(ctx, "missing"); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}
