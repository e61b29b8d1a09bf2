package index

import (
	"fmt"
	"sync"

	"github.com/veritext/veritext-backend/internal/platform/logger"
)

// Manager owns one namespace's flat index: its file on disk, its id
// allocator and the lock that keeps mutation single-writer while searches
// run concurrently. One Manager per namespace is constructed at process
// start and injected into everything that needs it.
type Manager struct {
	mu        sync.RWMutex
	log       *logger.Logger
	namespace string
	path      string
	idx       *FlatIndex
	alloc     VectorIDAllocator
}

func NewManager(baseLog *logger.Logger, namespace, path string, dim int, alloc VectorIDAllocator) (*Manager, error) {
	if alloc == nil {
		return nil, fmt.Errorf("index manager for %q needs an id allocator", namespace)
	}
	m := &Manager{
		log:       baseLog.With("service", "IndexManager", "namespace", namespace),
		namespace: namespace,
		path:      path,
		idx:       NewFlatIndex(dim),
		alloc:     alloc,
	}
	if err := m.idx.Load(path); err != nil {
		return nil, fmt.Errorf("load %s index: %w", namespace, err)
	}
	m.log.Info("Vector index loaded", "path", path, "vectors", m.idx.Size(), "dim", dim)
	return m, nil
}

func (m *Manager) Namespace() string { return m.namespace }

func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx.Size()
}

func (m *Manager) Contains(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx.Contains(id)
}

// AllocateIDs issues n fresh vector ids guaranteed absent from this index.
func (m *Manager) AllocateIDs(n int) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	issued := make(map[int64]struct{}, n)
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id, err := m.alloc.Next(func(candidate int64) bool {
			if _, dup := issued[candidate]; dup {
				return true
			}
			return m.idx.Contains(candidate)
		})
		if err != nil {
			return nil, err
		}
		issued[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// AddBatch inserts all vectors or none: a failure part-way removes the
// already-inserted prefix before returning. Persistence is the caller's
// decision so it can sit after the metadata commit.
func (m *Manager) AddBatch(ids []int64, vecs [][]float32) error {
	if len(ids) != len(vecs) {
		return fmt.Errorf("ids/vectors length mismatch: %d vs %d", len(ids), len(vecs))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range ids {
		if err := m.idx.Add(ids[i], vecs[i]); err != nil {
			m.idx.RemoveIDs(ids[:i])
			return err
		}
	}
	return nil
}

// RemoveIDs drops the given ids (absent ids are no-ops) and persists.
func (m *Manager) RemoveIDs(ids []int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := m.idx.RemoveIDs(ids)
	if err := m.idx.Persist(m.path); err != nil {
		return removed, err
	}
	return removed, nil
}

// Reset clears the whole namespace and persists the empty index.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idx.Reset()
	return m.idx.Persist(m.path)
}

func (m *Manager) Persist() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idx.Persist(m.path)
}

func (m *Manager) Search(vec []float32, k int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idx.Search(vec, k)
}
