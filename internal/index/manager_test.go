package index

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/veritext/veritext-backend/internal/platform/logger"
)

func testManager(t *testing.T, dim int) *Manager {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	path := filepath.Join(t.TempDir(), "ns.idx")
	m, err := NewManager(log, "course", path, dim, NewSequentialAllocator(1))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestManagerAllocateIDsUniqueAndFresh(t *testing.T) {
	m := testManager(t, 2)
	if err := m.AddBatch([]int64{1, 2}, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatalf("add batch: %v", err)
	}

	ids, err := m.AllocateIDs(4)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if len(ids) != 4 {
		t.Fatalf("ids = %v, want 4", ids)
	}
	seen := map[int64]struct{}{}
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id in batch: %v", ids)
		}
		seen[id] = struct{}{}
		if m.Contains(id) {
			t.Fatalf("allocator issued live id %d", id)
		}
	}
}

func TestManagerAddBatchAllOrNothing(t *testing.T) {
	m := testManager(t, 2)
	if err := m.AddBatch([]int64{5}, [][]float32{{1, 0}}); err != nil {
		t.Fatalf("seed add: %v", err)
	}

	// Third vector collides with id 5, so the first two must be unwound.
	err := m.AddBatch([]int64{6, 7, 5}, [][]float32{{1, 0}, {0, 1}, {1, 1}})
	if !errors.Is(err, ErrIDExists) {
		t.Fatalf("err = %v, want ErrIDExists", err)
	}
	if m.Size() != 1 {
		t.Fatalf("size = %d after failed batch, want 1", m.Size())
	}
	if m.Contains(6) || m.Contains(7) {
		t.Fatal("partial batch left behind")
	}
}

func TestManagerRemoveAndReset(t *testing.T) {
	m := testManager(t, 2)
	if err := m.AddBatch([]int64{1, 2, 3}, [][]float32{{1, 0}, {0, 1}, {1, 1}}); err != nil {
		t.Fatalf("add batch: %v", err)
	}

	removed, err := m.RemoveIDs([]int64{2, 42})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if m.Size() != 2 {
		t.Fatalf("size = %d, want 2", m.Size())
	}

	if err := m.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if m.Size() != 0 {
		t.Fatalf("size after reset = %d, want 0", m.Size())
	}
}

func TestManagerReloadsPersistedState(t *testing.T) {
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	path := filepath.Join(t.TempDir(), "ns.idx")

	m, err := NewManager(log, "course", path, 2, NewSequentialAllocator(1))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.AddBatch([]int64{1, 2}, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatalf("add batch: %v", err)
	}
	if err := m.Persist(); err != nil {
		t.Fatalf("persist: %v", err)
	}

	reloaded, err := NewManager(log, "course", path, 2, NewSequentialAllocator(1))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Size() != 2 {
		t.Fatalf("reloaded size = %d, want 2", reloaded.Size())
	}
	matches, err := reloaded.Search([]float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != 1 {
		t.Fatalf("matches = %v, want id 1 first", matches)
	}
}

func TestRandomAllocatorAvoidsTakenIDs(t *testing.T) {
	a := NewRandomAllocator(42)
	first, err := a.Next(nil)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if first <= 0 {
		t.Fatalf("id = %d, want positive", first)
	}

	// A fresh allocator with the same seed would re-draw the same value;
	// the taken callback must force it past the collision.
	b := NewRandomAllocator(42)
	got, err := b.Next(func(id int64) bool { return id == first })
	if err != nil {
		t.Fatalf("next with taken: %v", err)
	}
	if got == first {
		t.Fatalf("allocator returned a taken id %d", got)
	}
}

func TestSequentialAllocatorSkipsTaken(t *testing.T) {
	a := NewSequentialAllocator(1)
	got, err := a.Next(func(id int64) bool { return id < 3 })
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got != 3 {
		t.Fatalf("id = %d, want 3", got)
	}
}
