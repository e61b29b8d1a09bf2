package index

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestFlatIndexAddAndSearchOrdering(t *testing.T) {
	idx := NewFlatIndex(3)
	vectors := map[int64][]float32{
		1: {1, 0, 0},
		2: {0.9, 0.1, 0},
		3: {0, 1, 0},
		4: {0, 0, 1},
	}
	for id, v := range vectors {
		if err := idx.Add(id, v); err != nil {
			t.Fatalf("add %d: %v", id, err)
		}
	}

	matches, err := idx.Search([]float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("matches = %d, want 3", len(matches))
	}
	if matches[0].ID != 1 {
		t.Fatalf("top match = %d, want 1", matches[0].ID)
	}
	if matches[1].ID != 2 {
		t.Fatalf("second match = %d, want 2", matches[1].ID)
	}
	if math.Abs(matches[0].Score-1.0) > 1e-6 {
		t.Fatalf("self similarity = %f, want 1.0", matches[0].Score)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Fatalf("matches not sorted by score: %v", matches)
		}
	}
}

func TestFlatIndexSearchTieBreaksByID(t *testing.T) {
	idx := NewFlatIndex(2)
	if err := idx.Add(9, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(3, []float32{2, 0}); err != nil {
		t.Fatal(err)
	}

	matches, err := idx.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if matches[0].ID != 3 || matches[1].ID != 9 {
		t.Fatalf("tied scores should order by id: %v", matches)
	}
}

func TestFlatIndexDuplicateIDRejected(t *testing.T) {
	idx := NewFlatIndex(2)
	if err := idx.Add(7, []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	err := idx.Add(7, []float32{0, 1})
	if !errors.Is(err, ErrIDExists) {
		t.Fatalf("err = %v, want ErrIDExists", err)
	}
	if idx.Size() != 1 {
		t.Fatalf("size = %d after rejected add, want 1", idx.Size())
	}
}

func TestFlatIndexDimMismatch(t *testing.T) {
	idx := NewFlatIndex(3)
	if err := idx.Add(1, []float32{1, 0}); !errors.Is(err, ErrDimMismatch) {
		t.Fatalf("add err = %v, want ErrDimMismatch", err)
	}
	if _, err := idx.Search([]float32{1, 0}, 1); !errors.Is(err, ErrDimMismatch) {
		t.Fatalf("search err = %v, want ErrDimMismatch", err)
	}
}

func TestFlatIndexRemoveIDs(t *testing.T) {
	idx := NewFlatIndex(2)
	for id := int64(1); id <= 4; id++ {
		if err := idx.Add(id, []float32{float32(id), 1}); err != nil {
			t.Fatal(err)
		}
	}

	removed := idx.RemoveIDs([]int64{2, 4, 99})
	if removed != 2 {
		t.Fatalf("removed = %d, want 2 (absent ids skipped)", removed)
	}
	if idx.Size() != 2 {
		t.Fatalf("size = %d, want 2", idx.Size())
	}
	if idx.Contains(2) || idx.Contains(4) {
		t.Fatal("removed ids still present")
	}
	if !idx.Contains(1) || !idx.Contains(3) {
		t.Fatal("surviving ids lost")
	}

	// Survivors still searchable after swap-removal reindexing.
	matches, err := idx.Search([]float32{1, 1}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
}

func TestFlatIndexPersistLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.idx")

	idx := NewFlatIndex(3)
	if err := idx.Add(10, []float32{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(20, []float32{0, 1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Persist(path); err != nil {
		t.Fatalf("persist: %v", err)
	}

	loaded := NewFlatIndex(3)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded size = %d, want 2", loaded.Size())
	}

	want, err := idx.Search([]float32{1, 2, 3}, 2)
	if err != nil {
		t.Fatal(err)
	}
	got, err := loaded.Search([]float32{1, 2, 3}, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i].ID != want[i].ID || math.Abs(got[i].Score-want[i].Score) > 1e-6 {
			t.Fatalf("search diverged after reload: got %v want %v", got, want)
		}
	}
}

func TestFlatIndexLoadMissingFileIsEmpty(t *testing.T) {
	idx := NewFlatIndex(4)
	if err := idx.Load(filepath.Join(t.TempDir(), "absent.idx")); err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if idx.Size() != 0 {
		t.Fatalf("size = %d, want 0", idx.Size())
	}
}

func TestFlatIndexLoadRejectsWrongDim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.idx")
	idx := NewFlatIndex(3)
	if err := idx.Add(1, []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Persist(path); err != nil {
		t.Fatalf("persist: %v", err)
	}

	other := NewFlatIndex(5)
	if err := other.Load(path); !errors.Is(err, ErrDimMismatch) {
		t.Fatalf("err = %v, want ErrDimMismatch", err)
	}
}
