package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS room_messages (
	id TEXT PRIMARY KEY,
	room_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	username TEXT NOT NULL,
	content TEXT NOT NULL,
	message_type TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS room_messages_room ON room_messages (room_id, id);
`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres history dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres history config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres history pool: %w", err)
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

func (s *PostgresStore) Append(ctx context.Context, msg domain.Message) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO room_messages (id, room_id, user_id, username, content, message_type, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, string(msg.RoomID), string(msg.UserID), msg.Username, msg.Content, string(msg.Type), msg.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *PostgresStore) Recent(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, room_id, user_id, username, content, message_type, created_at FROM (
	SELECT * FROM room_messages WHERE room_id = $1 ORDER BY id DESC LIMIT $2
) recent ORDER BY id ASC`, string(room), limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			m           domain.Message
			roomID, uid string
			messageType string
		)
		if err := rows.Scan(&m.ID, &roomID, &uid, &m.Username, &m.Content, &messageType, &m.Timestamp); err != nil {
			return nil, err
		}
		m.RoomID, m.UserID, m.Type = domain.RoomID(roomID), domain.UserID(uid), domain.MessageType(messageType)
		out = append(out, m)
	}
	return out, rows.Err()
}
