package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/okian/stationqc/internal/domain/flag"
	"github.com/okian/stationqc/internal/domain/model"
	"github.com/okian/stationqc/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: flag DESC, score DESC, then key ASC (deterministic).
// "less" means ranks earlier, so in-order traversal yields the most severe
// assessments first. Priorities are a hash of the key, which keeps the tree
// shape independent of insertion order.

type rankKey struct {
	flag  flag.Flag
	score float64
	key   string
}

func rankKeyOf(a model.Assessment) rankKey {
	return rankKey{flag: a.Flag, score: a.Score(), key: a.Key()}
}

// less reports whether a should appear before b.
func less(a, b rankKey) bool {
	if a.flag != b.flag {
		return a.flag > b.flag
	}
	if a.score != b.score {
		return a.score > b.score
	}
	return a.key < b.key
}

type node struct {
	rk    rankKey
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, rk rankKey) *node {
	if n == nil {
		return &node{rk: rk, prio: xxhash.Sum64String(rk.key), size: 1}
	}
	if less(rk, n.rk) {
		n.left = insert(n.left, rk)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, rk)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, rk rankKey) *node {
	if n == nil {
		return nil
	}
	if rk == n.rk {
		// Rotate the higher priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, rk)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, rk)
		}
	} else if less(rk, n.rk) {
		n.left = deleteNode(n.left, rk)
	} else {
		n.right = deleteNode(n.right, rk)
	}
	fix(n)
	return n
}

// position returns the zero-based in-order position of rk.
func position(n *node, rk rankKey) int {
	pos := 0
	for n != nil {
		switch {
		case rk == n.rk:
			return pos + nsize(n.left)
		case less(rk, n.rk):
			n = n.left
		default:
			pos += nsize(n.left) + 1
			n = n.right
		}
	}
	return -1
}

// collectTopN appends up to limit keys in rank order.
func collectTopN(n *node, limit int, out *[]string) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n.rk.key)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// TreapStore implements Store.
type TreapStore struct {
	mu    sync.RWMutex
	root  *node
	byKey map[string]model.Assessment
}

// NewTreapStore constructs an empty store.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{}
	for _, opt := range opts {
		opt(s)
	}
	if s.byKey == nil {
		s.byKey = make(map[string]model.Assessment)
	}
	metrics.UpdateStoreRecords(0)
	return s
}

// Put implements Store.Put in O(log n) expected time.
func (s *TreapStore) Put(_ context.Context, a model.Assessment) error {
	a.Results = slices.Clone(a.Results)
	rk := rankKeyOf(a)

	s.mu.Lock()
	if old, ok := s.byKey[rk.key]; ok {
		s.root = deleteNode(s.root, rankKeyOf(old))
	}
	s.byKey[rk.key] = a
	s.root = insert(s.root, rk)
	count := len(s.byKey)
	s.mu.Unlock()

	metrics.UpdateStoreRecords(count)
	return nil
}

// Get implements Store.Get.
func (s *TreapStore) Get(_ context.Context, key string) (model.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byKey[key]
	if !ok {
		return model.Assessment{}, ErrNotFound
	}
	a.Results = slices.Clone(a.Results)
	return a, nil
}

// Rank returns the severity rank of key in O(log n) expected time.
func (s *TreapStore) Rank(_ context.Context, key string) (Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQueryLatency(time.Since(start)) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byKey[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	pos := position(s.root, rankKeyOf(a))
	if pos < 0 {
		return Entry{}, ErrNotFound
	}
	a.Results = slices.Clone(a.Results)
	return Entry{Rank: pos + 1, Assessment: a}, nil
}

// TopN returns the n most severe assessments.
func (s *TreapStore) TopN(_ context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreQueryLatency(time.Since(start)) }()

	if n < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, min(n, len(s.byKey)))
	collectTopN(s.root, n, &keys)
	out := make([]Entry, len(keys))
	for i, k := range keys {
		a := s.byKey[k]
		a.Results = slices.Clone(a.Results)
		out[i] = Entry{Rank: i + 1, Assessment: a}
	}
	return out, nil
}

// All returns every assessment ordered by station id then time.
func (s *TreapStore) All(_ context.Context) []model.Assessment {
	s.mu.RLock()
	out := make([]model.Assessment, 0, len(s.byKey))
	for _, a := range s.byKey {
		a.Results = slices.Clone(a.Results)
		out = append(out, a)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.Assessment) int {
		if c := cmp.Compare(a.Observation.StationID, b.Observation.StationID); c != 0 {
			return c
		}
		return a.Observation.Time.Compare(b.Observation.Time)
	})
	return out
}

// Count returns the number of stored assessments.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byKey)
}

// CountByFlag returns the number of assessments per combined flag. Every
// flag is present, possibly with zero.
func (s *TreapStore) CountByFlag(_ context.Context) map[flag.Flag]int {
	out := make(map[flag.Flag]int, len(flag.All()))
	for _, f := range flag.All() {
		out[f] = 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.byKey {
		out[a.Flag]++
	}
	return out
}
