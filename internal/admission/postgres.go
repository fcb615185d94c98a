package admission

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id TEXT PRIMARY KEY,
	max_participants INTEGER NOT NULL DEFAULT 10
);
CREATE TABLE IF NOT EXISTS room_participants (
	id BIGSERIAL PRIMARY KEY,
	room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	left_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS room_participants_active
	ON room_participants (room_id, user_id) WHERE left_at IS NULL;
`

// PostgresStore checks capacity against the rooms table. The room row is
// locked for the whole admission so concurrent joiners are serialized.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres admission dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres admission config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres admission pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) Admit(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin admission transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var capacity int
	err = tx.QueryRow(ctx, `SELECT max_participants FROM rooms WHERE id = $1 FOR UPDATE`, string(room)).Scan(&capacity)
	if isNoRows(err) {
		return domain.ErrRoomNotFound
	}
	if err != nil {
		return fmt.Errorf("lock room %s: %w", room, err)
	}

	var joined bool
	if err := tx.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM room_participants
	WHERE room_id = $1 AND user_id = $2 AND left_at IS NULL
)`, string(room), string(user)).Scan(&joined); err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if joined {
		return tx.Commit(ctx)
	}

	var count int
	if err := tx.QueryRow(ctx, `
SELECT COUNT(*) FROM room_participants
WHERE room_id = $1 AND left_at IS NULL`, string(room)).Scan(&count); err != nil {
		return fmt.Errorf("count participants: %w", err)
	}
	if count >= capacity {
		return domain.ErrRoomFull
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2)`, string(room), string(user)); err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Release(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	_, err := s.pool.Exec(ctx, `
UPDATE room_participants SET left_at = NOW()
WHERE room_id = $1 AND user_id = $2 AND left_at IS NULL`, string(room), string(user))
	return err
}

func (s *PostgresStore) Capacity(ctx context.Context, room domain.RoomID) (int, error) {
	var capacity int
	err := s.pool.QueryRow(ctx, `SELECT max_participants FROM rooms WHERE id = $1`, string(room)).Scan(&capacity)
	if isNoRows(err) {
		return 0, domain.ErrRoomNotFound
	}
	return capacity, err
}

// EnsureRoom creates the room row if missing.
func (s *PostgresStore) EnsureRoom(ctx context.Context, room domain.RoomID, capacity int) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO rooms (id, max_participants) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET max_participants = EXCLUDED.max_participants`, string(room), capacity)
	return err
}

func isNoRows(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, pgx.ErrNoRows)
}
