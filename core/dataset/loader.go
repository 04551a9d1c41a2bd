package dataset

import (
	"fmt"
	"math/rand/v2"
)

// Loader groups store indices into batches of a fixed size. The last batch
// may be smaller. With Shuffle set, the index order is redrawn at every call
// to Batches from a seeded generator so runs are reproducible.
type Loader struct {
	store     *Store
	batchSize int
	shuffle   bool
	rng       *rand.Rand
}

// NewLoader creates a loader over store.
func NewLoader(store *Store, batchSize int, shuffle bool, seed uint64) (*Loader, error) {
	if store == nil {
		return nil, ErrEmpty
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("dataset: batch size must be positive, got %d", batchSize)
	}
	return &Loader{
		store:     store,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Store returns the underlying store.
func (l *Loader) Store() *Store { return l.store }

// Len returns the number of batches per pass.
func (l *Loader) Len() int { return (l.store.Len() + l.batchSize - 1) / l.batchSize }

// Order returns the index order of the next pass.
func (l *Loader) Order() []int {
	idx := make([]int, l.store.Len())
	for i := range idx {
		idx[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}
	return idx
}

// Batches collates one full pass over the store.
func (l *Loader) Batches() ([]*Batch, error) {
	order := l.Order()
	out := make([]*Batch, 0, l.Len())
	for start := 0; start < len(order); start += l.batchSize {
		end := min(start+l.batchSize, len(order))
		items := make([]Item, 0, end-start)
		for _, i := range order[start:end] {
			items = append(items, l.store.Get(i))
		}
		b, err := Collate(items)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
