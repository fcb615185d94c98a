package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/mustafaciftc/sesli-sohbet/internal/domain"
)

func TestMemoryStoreCapacity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10)
	s.SetCapacity("r1", 2)

	if err := s.Admit(ctx, "r1", "a"); err != nil {
		t.Fatalf("admit a: %v", err)
	}
	if err := s.Admit(ctx, "r1", "b"); err != nil {
		t.Fatalf("admit b: %v", err)
	}
	if err := s.Admit(ctx, "r1", "c"); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("admit c: expected ErrRoomFull, got %v", err)
	}
	if err := s.Admit(ctx, "r1", "a"); err != nil {
		t.Fatalf("re-admit of a held slot should succeed, got %v", err)
	}

	if err := s.Release(ctx, "r1", "b"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := s.Release(ctx, "r1", "b"); err != nil {
		t.Fatalf("second release should be a no-op, got %v", err)
	}
	if err := s.Admit(ctx, "r1", "c"); err != nil {
		t.Fatalf("admit c after release: %v", err)
	}
}

func TestMemoryStoreDefaultCapacity(t *testing.T) {
	s := NewMemoryStore(0)
	n, err := s.Capacity(context.Background(), "any")
	if err != nil || n != DefaultCapacity {
		t.Fatalf("expected default capacity %d, got %d (%v)", DefaultCapacity, n, err)
	}
}

func TestMemoryStoreConcurrentAdmit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := domain.UserID(fmt.Sprintf("u%d", i))
			if err := s.Admit(ctx, "busy", user); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if admitted != 3 {
		t.Fatalf("expected exactly 3 admissions, got %d", admitted)
	}
}
