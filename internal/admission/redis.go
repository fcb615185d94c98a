package admission

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
	"github.com/redis/go-redis/v9"
)

func membersKey(room domain.RoomID) string {
	return fmt.Sprintf("rooms:%s:members", room)
}

func capacityKey(room domain.RoomID) string {
	return fmt.Sprintf("rooms:%s:capacity", room)
}

// admitScript returns 1 when the user holds a slot after the call, 0 when full.
var admitScript = redis.NewScript(`
local members_key = KEYS[1]
local capacity_key = KEYS[2]
local user_id = ARGV[1]

if redis.call('SISMEMBER', members_key, user_id) == 1 then
	return 1
end

local capacity = tonumber(redis.call('GET', capacity_key) or ARGV[2])
if redis.call('SCARD', members_key) >= capacity then
	return 0
end

redis.call('SADD', members_key, user_id)
return 1
`)

// RedisStore shares slots between server replicas.
type RedisStore struct {
	rdb        *redis.Client
	defaultCap int
}

func NewRedisStore(rdb *redis.Client, defaultCap int) *RedisStore {
	if defaultCap <= 0 {
		defaultCap = DefaultCapacity
	}
	return &RedisStore{rdb: rdb, defaultCap: defaultCap}
}

func (s *RedisStore) SetCapacity(ctx context.Context, room domain.RoomID, n int) error {
	return s.rdb.Set(ctx, capacityKey(room), n, 0).Err()
}

func (s *RedisStore) Admit(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	keys := []string{membersKey(room), capacityKey(room)}
	ok, err := admitScript.Run(ctx, s.rdb, keys, string(user), s.defaultCap).Int()
	if err != nil {
		return fmt.Errorf("admit %s: %w", room, err)
	}
	if ok == 0 {
		return domain.ErrRoomFull
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	if err := s.rdb.SRem(ctx, membersKey(room), string(user)).Err(); err != nil {
		return fmt.Errorf("release %s: %w", room, err)
	}
	return nil
}

func (s *RedisStore) Capacity(ctx context.Context, room domain.RoomID) (int, error) {
	v, err := s.rdb.Get(ctx, capacityKey(room)).Result()
	if errors.Is(err, redis.Nil) {
		return s.defaultCap, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("capacity of %s: %w", room, err)
	}
	return n, nil
}
