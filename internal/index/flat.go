package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/veritext/veritext-backend/internal/pkg/vecmath"
)

// ErrIDExists is returned by Add when a vector id is already present. Silent
// overwrite would detach existing chunk rows from their vectors, so a
// collision has to fail loudly.
var ErrIDExists = errors.New("vector id already present in index")

var ErrDimMismatch = errors.New("vector dimension mismatch")

// Match is one nearest-neighbor hit. Score is cosine similarity (vectors are
// L2-normalized on the way in), higher is better.
type Match struct {
	ID    int64
	Score float64
}

// FlatIndex is an exact, brute-force nearest-neighbor index over
// L2-normalized vectors keyed by int64 ids. It is not safe for concurrent
// use; the Manager serializes access.
type FlatIndex struct {
	dim  int
	ids  []int64
	vecs [][]float32
	pos  map[int64]int
}

func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{
		dim: dim,
		pos: make(map[int64]int),
	}
}

func (x *FlatIndex) Dim() int  { return x.dim }
func (x *FlatIndex) Size() int { return len(x.ids) }

func (x *FlatIndex) Contains(id int64) bool {
	_, ok := x.pos[id]
	return ok
}

// Add inserts a vector under id. The vector is normalized before insertion so
// that inner-product search is monotonic with cosine similarity.
func (x *FlatIndex) Add(id int64, vec []float32) error {
	if id < 0 {
		return fmt.Errorf("vector id must be non-negative, got %d", id)
	}
	if len(vec) != x.dim {
		return fmt.Errorf("%w: index dim=%d vector dim=%d", ErrDimMismatch, x.dim, len(vec))
	}
	if _, ok := x.pos[id]; ok {
		return fmt.Errorf("%w: id=%d", ErrIDExists, id)
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	vecmath.Normalize(cp)

	x.pos[id] = len(x.ids)
	x.ids = append(x.ids, id)
	x.vecs = append(x.vecs, cp)
	return nil
}

// RemoveIDs deletes the given ids and reports how many were actually present.
// Absent ids are skipped so deletes stay idempotent after partial failures.
func (x *FlatIndex) RemoveIDs(ids []int64) int {
	removed := 0
	for _, id := range ids {
		i, ok := x.pos[id]
		if !ok {
			continue
		}
		last := len(x.ids) - 1
		if i != last {
			x.ids[i] = x.ids[last]
			x.vecs[i] = x.vecs[last]
			x.pos[x.ids[i]] = i
		}
		x.ids = x.ids[:last]
		x.vecs = x.vecs[:last]
		delete(x.pos, id)
		removed++
	}
	return removed
}

// Search returns up to k matches ordered by descending similarity. The query
// is normalized before scoring.
func (x *FlatIndex) Search(vec []float32, k int) ([]Match, error) {
	if len(vec) != x.dim {
		return nil, fmt.Errorf("%w: index dim=%d query dim=%d", ErrDimMismatch, x.dim, len(vec))
	}
	if k <= 0 || len(x.ids) == 0 {
		return nil, nil
	}
	q := make([]float32, len(vec))
	copy(q, vec)
	vecmath.Normalize(q)

	matches := make([]Match, len(x.ids))
	for i, v := range x.vecs {
		matches[i] = Match{ID: x.ids[i], Score: vecmath.Dot(v, q)}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

func (x *FlatIndex) Reset() {
	x.ids = nil
	x.vecs = nil
	x.pos = make(map[int64]int)
}

const (
	fileMagic   = "VTXI"
	fileVersion = uint16(1)
)

// Persist writes the whole index to path atomically (temp file + rename).
func (x *FlatIndex) Persist(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if _, err := w.WriteString(fileMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, fileVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(x.dim)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(x.ids))); err != nil {
		return err
	}
	for i, id := range x.ids {
		if err := binary.Write(w, binary.LittleEndian, id); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, x.vecs[i]); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load replaces the index contents with the file at path. A missing file is
// treated as an empty index, not an error.
func (x *FlatIndex) Load(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		x.Reset()
		return nil
	}
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return fmt.Errorf("read index header: %w", err)
	}
	if string(magic) != fileMagic {
		return fmt.Errorf("not a vector index file: %s", path)
	}
	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return err
	}
	if version != fileVersion {
		return fmt.Errorf("unsupported index file version %d", version)
	}
	var dim uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return err
	}
	if int(dim) != x.dim {
		return fmt.Errorf("%w: index dim=%d file dim=%d", ErrDimMismatch, x.dim, dim)
	}
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return err
	}

	x.Reset()
	for i := uint64(0); i < count; i++ {
		var id int64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return fmt.Errorf("read vector %d: %w", i, err)
		}
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return fmt.Errorf("read vector %d: %w", i, err)
		}
		x.pos[id] = len(x.ids)
		x.ids = append(x.ids, id)
		x.vecs = append(x.vecs, vec)
	}
	return nil
}
