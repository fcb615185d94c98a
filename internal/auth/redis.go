package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/redis/go-redis/v9"
)

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

type sessionRecord struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// RedisVerifier looks tokens up in a session table written by the login service.
type RedisVerifier struct {
	rdb *redis.Client
}

func NewRedisVerifier(rdb *redis.Client) *RedisVerifier {
	return &RedisVerifier{rdb: rdb}
}

func (v *RedisVerifier) Verify(ctx context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, domain.ErrNotAuthenticated
	}
	raw, err := v.rdb.Get(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.User{}, domain.ErrNotAuthenticated
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("session lookup: %w", err)
	}
	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.User{}, fmt.Errorf("session record: %w", domain.ErrNotAuthenticated)
	}
	u, err := domain.NewUser(rec.UserID, rec.Username)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", domain.ErrNotAuthenticated, err)
	}
	return u, nil
}
