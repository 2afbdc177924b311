package store

import (
	"github.com/cockroachdb/pebble"
	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
)

// PebbleStore is a KVStore backed by a pebble database. All writes are
// synced to disk before returning.
type PebbleStore struct {
	db *pebble.DB
}

var _ escrowd.KVStore = (*PebbleStore)(nil)

// OpenPebble opens (or creates) a pebble database in the dir directory.
func OpenPebble(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return &PebbleStore{db: db}, nil
}

func (p *PebbleStore) Get(key []byte) ([]byte, error) {
	val, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	defer closer.Close()
	return copyBytes(val), nil
}

func (p *PebbleStore) Has(key []byte) (bool, error) {
	val, err := p.Get(key)
	return val != nil, err
}

func (p *PebbleStore) Set(key, value []byte) error {
	if err := p.db.Set(key, value, pebble.Sync); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

func (p *PebbleStore) Delete(key []byte) error {
	if err := p.db.Delete(key, pebble.Sync); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

func (p *PebbleStore) NewBatch() escrowd.Batch {
	return &pebbleBatch{batch: p.db.NewBatch()}
}

func (p *PebbleStore) Iterator(start, end []byte) (escrowd.Iterator, error) {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	it.First()
	return &pebbleIterator{it: it}, nil
}

// Close flushes and releases the database.
func (p *PebbleStore) Close() error {
	if err := p.db.Close(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

type pebbleBatch struct {
	batch  *pebble.Batch
	closed bool
}

func (b *pebbleBatch) Set(key, value []byte) error {
	if err := b.batch.Set(key, value, nil); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

func (b *pebbleBatch) Delete(key []byte) error {
	if err := b.batch.Delete(key, nil); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

func (b *pebbleBatch) Write() error {
	if b.closed {
		return errors.Wrap(errors.ErrState, "batch closed")
	}
	defer b.Close()
	if err := b.batch.Commit(pebble.Sync); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// Close returns the batch memory to pebble. A batch that was not committed
// is discarded.
func (b *pebbleBatch) Close() {
	if b.closed {
		return
	}
	b.closed = true
	_ = b.batch.Close()
}

type pebbleIterator struct {
	it *pebble.Iterator
}

func (i *pebbleIterator) Next() ([]byte, []byte, error) {
	if !i.it.Valid() {
		if err := i.it.Error(); err != nil {
			return nil, nil, errors.Wrap(errors.ErrDatabase, err.Error())
		}
		return nil, nil, errors.ErrIteratorDone
	}
	key := copyBytes(i.it.Key())
	value := copyBytes(i.it.Value())
	i.it.Next()
	return key, value, nil
}

func (i *pebbleIterator) Release() {
	i.it.Close()
}
