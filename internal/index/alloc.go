package index

import (
	"fmt"
	"math/rand"
	"sync"
)

// VectorIDAllocator issues vector ids for new chunks. taken reports whether
// an id is already live in the target index.
type VectorIDAllocator interface {
	Next(taken func(int64) bool) (int64, error)
}

const (
	maxVectorID  = int64(1) << 60
	allocRetries = 32
	recentWindow = 4096
)

// RandomAllocator draws uniform ids from [1, 2^60). The id space is
// independent of the metadata store's primary keys, so reusing a previously
// removed id cannot collide with anything a deleted chunk left behind. An
// explicit check against live and recently issued ids turns the negligible
// collision probability into an impossibility within one process.
type RandomAllocator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	recent map[int64]struct{}
	order  []int64
}

func NewRandomAllocator(seed int64) *RandomAllocator {
	return &RandomAllocator{
		rng:    rand.New(rand.NewSource(seed)),
		recent: make(map[int64]struct{}),
	}
}

func (a *RandomAllocator) Next(taken func(int64) bool) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < allocRetries; i++ {
		id := a.rng.Int63n(maxVectorID-1) + 1
		if _, seen := a.recent[id]; seen {
			continue
		}
		if taken != nil && taken(id) {
			continue
		}
		a.remember(id)
		return id, nil
	}
	return 0, fmt.Errorf("could not allocate a fresh vector id after %d attempts", allocRetries)
}

func (a *RandomAllocator) remember(id int64) {
	a.recent[id] = struct{}{}
	a.order = append(a.order, id)
	if len(a.order) > recentWindow {
		oldest := a.order[0]
		a.order = a.order[1:]
		delete(a.recent, oldest)
	}
}

// SequentialAllocator hands out 1, 2, 3, ... for deterministic tests.
type SequentialAllocator struct {
	mu   sync.Mutex
	next int64
}

func NewSequentialAllocator(start int64) *SequentialAllocator {
	if start <= 0 {
		start = 1
	}
	return &SequentialAllocator{next: start}
}

func (a *SequentialAllocator) Next(taken func(int64) bool) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for {
		id := a.next
		a.next++
		if taken != nil && taken(id) {
			continue
		}
		return id, nil
	}
}
