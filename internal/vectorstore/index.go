package vectorstore

import (
	"container/heap"
	"fmt"
	"sort"
)

// Hit is one nearest-neighbour result. Distance is squared L2, so lower
// means closer.
type Hit struct {
	ID       int64
	Distance float32
}

// Flat is an exact nearest-neighbour index over fixed-dimension vectors
// keyed by int64 ids. A Flat is not safe for concurrent mutation; owners
// publish a finished index through an atomic pointer and build a fresh one
// on rebuild, so readers always see a consistent snapshot.
type Flat struct {
	dim  int
	ids  []int64
	vecs []float32 // row-major, len(ids)*dim
}

// NewFlat creates an empty index for vectors of the given dimension.
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

// Add inserts one vector. The vector is copied.
func (f *Flat) Add(id int64, vec []float32) error {
	if len(vec) != f.dim {
		return fmt.Errorf("vector dimension %d does not match index dimension %d", len(vec), f.dim)
	}
	f.ids = append(f.ids, id)
	f.vecs = append(f.vecs, vec...)
	return nil
}

// AddBatch inserts vectors pairwise with ids.
func (f *Flat) AddBatch(ids []int64, vecs [][]float32) error {
	if len(ids) != len(vecs) {
		return fmt.Errorf("got %d ids for %d vectors", len(ids), len(vecs))
	}
	for i, id := range ids {
		if err := f.Add(id, vecs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Search returns up to k nearest neighbours sorted by ascending distance,
// ties broken by ascending id. An empty index yields an empty result, not
// an error.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), f.dim)
	}
	if k <= 0 || len(f.ids) == 0 {
		return []Hit{}, nil
	}

	// Max-heap holding the k best hits; the root is the current worst.
	h := &hitHeap{}
	heap.Init(h)

	for row, id := range f.ids {
		offset := row * f.dim
		var dist float32
		for i, q := range query {
			d := q - f.vecs[offset+i]
			dist += d * d
		}

		hit := Hit{ID: id, Distance: dist}
		if h.Len() < k {
			heap.Push(h, hit)
		} else if closer(hit, (*h)[0]) {
			(*h)[0] = hit
			heap.Fix(h, 0)
		}
	}

	hits := make([]Hit, h.Len())
	copy(hits, *h)
	sort.Slice(hits, func(i, j int) bool { return closer(hits[i], hits[j]) })

	return hits, nil
}

// Len returns the number of indexed vectors.
func (f *Flat) Len() int {
	return len(f.ids)
}

// Dimension returns the fixed vector dimension.
func (f *Flat) Dimension() int {
	return f.dim
}

// Clone returns an independent copy, used for incremental append on an
// otherwise immutable snapshot.
func (f *Flat) Clone() *Flat {
	out := &Flat{
		dim:  f.dim,
		ids:  make([]int64, len(f.ids)),
		vecs: make([]float32, len(f.vecs)),
	}
	copy(out.ids, f.ids)
	copy(out.vecs, f.vecs)
	return out
}

func closer(a, b Hit) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}

// hitHeap orders hits worst-first so the root is the eviction candidate.
type hitHeap []Hit

func (h hitHeap) Len() int           { return len(h) }
func (h hitHeap) Less(i, j int) bool { return closer(h[j], h[i]) }
func (h hitHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *hitHeap) Push(x any)        { *h = append(*h, x.(Hit)) }
func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
