package admission

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
)

func openPostgresStoreForTest(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("VOICE_TEST_POSTGRES_DSN")
	if strings.TrimSpace(dsn) == "" {
		t.Skip("VOICE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres admission store: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		t.Fatalf("migrate: %v", err)
	}
	if _, err := s.pool.Exec(ctx, `TRUNCATE TABLE room_participants, rooms`); err != nil {
		s.Close()
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestPostgresStoreScenario(t *testing.T) {
	s := openPostgresStoreForTest(t)
	ctx := context.Background()

	if err := s.Admit(ctx, "missing", "a"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if err := s.EnsureRoom(ctx, "r", 2); err != nil {
		t.Fatalf("ensure room: %v", err)
	}
	if err := s.Admit(ctx, "r", "a"); err != nil {
		t.Fatalf("admit a: %v", err)
	}
	if err := s.Admit(ctx, "r", "b"); err != nil {
		t.Fatalf("admit b: %v", err)
	}
	if err := s.Admit(ctx, "r", "a"); err != nil {
		t.Fatalf("re-admit a: %v", err)
	}
	if err := s.Admit(ctx, "r", "c"); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
	if err := s.Release(ctx, "r", "b"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := s.Release(ctx, "r", "b"); err != nil {
		t.Fatalf("release twice: %v", err)
	}
	if err := s.Admit(ctx, "r", "c"); err != nil {
		t.Fatalf("admit c: %v", err)
	}
}

func TestPostgresStoreConcurrentJoiners(t *testing.T) {
	s := openPostgresStoreForTest(t)
	ctx := context.Background()
	if err := s.EnsureRoom(ctx, "race", 1); err != nil {
		t.Fatalf("ensure room: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		oks  int
		full int
	)
	for _, u := range []domain.UserID{"x", "y", "z", "w"} {
		wg.Add(1)
		go func(u domain.UserID) {
			defer wg.Done()
			err := s.Admit(ctx, "race", u)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				oks++
			case errors.Is(err, domain.ErrRoomFull):
				full++
			default:
				t.Errorf("admit %s: %v", u, err)
			}
		}(u)
	}
	wg.Wait()
	if oks != 1 || full != 3 {
		t.Fatalf("expected 1 admitted and 3 full, got %d and %d", oks, full)
	}
}
