package store

import (
	"bytes"
	"sync"

	"github.com/google/btree"
	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
)

const (
	// DefaultFreeListSize is the size we hold for free node in btree
	DefaultFreeListSize = btree.DefaultFreeListSize
)

// MemStore is a btree based in-memory KVStore. It is safe for concurrent use.
// There is no persistence here, use it for tests and development setups.
type MemStore struct {
	mu sync.RWMutex
	bt *btree.BTree
}

var _ escrowd.KVStore = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	free := btree.NewFreeList(DefaultFreeListSize)
	return &MemStore{
		bt: btree.NewWithFreeList(2, free),
	}
}

// Get returns the value stored under given key or nil.
func (m *MemStore) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := m.bt.Get(bkey{key})
	if res == nil {
		return nil, nil
	}
	it, ok := res.(item)
	if !ok {
		return nil, errors.Wrapf(errors.ErrDatabase, "unknown item in btree: %#v", res)
	}
	return copyBytes(it.value), nil
}

// Has returns true if a value is stored under given key.
func (m *MemStore) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bt.Has(bkey{key}), nil
}

// Set writes given value under the key.
func (m *MemStore) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bt.ReplaceOrInsert(item{key: copyBytes(key), value: copyBytes(value)})
	return nil
}

// Delete removes the key. Deleting a missing key is not an error.
func (m *MemStore) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bt.Delete(bkey{key})
	return nil
}

// NewBatch returns a batch that applies all its operations under a single
// write lock.
func (m *MemStore) NewBatch() escrowd.Batch {
	return &memBatch{store: m}
}

// Iterator returns all items in the [start, end) range. Items are copied
// when the iterator is created, so that writes done while the iterator is
// used do not invalidate it.
func (m *MemStore) Iterator(start, end []byte) (escrowd.Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []item
	collect := func(i btree.Item) bool {
		it := i.(item)
		if end != nil && bytes.Compare(it.key, end) >= 0 {
			return false
		}
		items = append(items, item{key: copyBytes(it.key), value: copyBytes(it.value)})
		return true
	}
	if start == nil {
		m.bt.Ascend(collect)
	} else {
		m.bt.AscendGreaterOrEqual(bkey{start}, collect)
	}
	return &sliceIterator{items: items}, nil
}

type op struct {
	del   bool
	key   []byte
	value []byte
}

type memBatch struct {
	store *MemStore
	ops   []op
}

func (b *memBatch) Set(key, value []byte) error {
	b.ops = append(b.ops, op{key: copyBytes(key), value: copyBytes(value)})
	return nil
}

func (b *memBatch) Delete(key []byte) error {
	b.ops = append(b.ops, op{del: true, key: copyBytes(key)})
	return nil
}

func (b *memBatch) Write() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, o := range b.ops {
		if o.del {
			b.store.bt.Delete(bkey{o.key})
		} else {
			b.store.bt.ReplaceOrInsert(item{key: o.key, value: o.value})
		}
	}
	b.ops = nil
	return nil
}

func (b *memBatch) Close() {
	b.ops = nil
}

/////////////////////////////////////////////////////////
// Items to write to btree

// keyer is implemented by all data in our btree so we can compare nicely.
type keyer interface {
	Key() []byte
}

// bkey implements keyer and btree.Item and may be used for queries.
type bkey struct {
	key []byte
}

var _ btree.Item = bkey{}

func (k bkey) Key() []byte {
	return k.key
}

// Less returns true iff key is less than the other keyer.
func (k bkey) Less(other btree.Item) bool {
	return bytes.Compare(k.key, other.(keyer).Key()) < 0
}

// item is the value stored in the btree.
type item struct {
	key   []byte
	value []byte
}

var _ btree.Item = item{}

func (i item) Key() []byte {
	return i.key
}

func (i item) Less(other btree.Item) bool {
	return bytes.Compare(i.key, other.(keyer).Key()) < 0
}

type sliceIterator struct {
	items []item
}

func (s *sliceIterator) Next() ([]byte, []byte, error) {
	if len(s.items) == 0 {
		return nil, nil, errors.ErrIteratorDone
	}
	it := s.items[0]
	s.items = s.items[1:]
	return it.key, it.value, nil
}

func (s *sliceIterator) Release() {
	s.items = nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
