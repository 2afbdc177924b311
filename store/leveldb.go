package store

import (
	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
	dbm "github.com/tendermint/tendermint/libs/db"
)

// LevelDB is a KVStore backed by a goleveldb database, the storage engine
// used by tendermint nodes.
//
// The tendermint database API panics on I/O failures, all of them are
// recovered and returned as ErrDatabase.
type LevelDB struct {
	db dbm.DB
}

var _ escrowd.KVStore = (*LevelDB)(nil)

// OpenLevelDB opens (or creates) a goleveldb database called name in the dir
// directory.
func OpenLevelDB(name, dir string) (_ *LevelDB, err error) {
	defer recoverDB(&err)

	db, err := dbm.NewGoLevelDB(name, dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return &LevelDB{db: db}, nil
}

// NewLevelDB wraps an already open tendermint database. This is useful to
// use dbm.NewMemDB in tests.
func NewLevelDB(db dbm.DB) *LevelDB {
	return &LevelDB{db: db}
}

func (l *LevelDB) Get(key []byte) (val []byte, err error) {
	defer recoverDB(&err)
	return l.db.Get(key), nil
}

func (l *LevelDB) Has(key []byte) (ok bool, err error) {
	defer recoverDB(&err)
	return l.db.Has(key), nil
}

func (l *LevelDB) Set(key, value []byte) (err error) {
	defer recoverDB(&err)
	l.db.SetSync(key, value)
	return nil
}

func (l *LevelDB) Delete(key []byte) (err error) {
	defer recoverDB(&err)
	l.db.DeleteSync(key)
	return nil
}

func (l *LevelDB) NewBatch() escrowd.Batch {
	return &levelBatch{batch: l.db.NewBatch()}
}

func (l *LevelDB) Iterator(start, end []byte) (_ escrowd.Iterator, err error) {
	defer recoverDB(&err)
	return &levelIterator{it: l.db.Iterator(start, end)}, nil
}

// Close releases the database.
func (l *LevelDB) Close() (err error) {
	defer recoverDB(&err)
	l.db.Close()
	return nil
}

type levelBatch struct {
	batch dbm.Batch
}

func (b *levelBatch) Set(key, value []byte) (err error) {
	defer recoverDB(&err)
	b.batch.Set(key, value)
	return nil
}

func (b *levelBatch) Delete(key []byte) (err error) {
	defer recoverDB(&err)
	b.batch.Delete(key)
	return nil
}

func (b *levelBatch) Write() (err error) {
	defer recoverDB(&err)
	if b.batch == nil {
		return errors.Wrap(errors.ErrState, "batch closed")
	}
	b.batch.WriteSync()
	return nil
}

// Close releases the batch. Operations that were not written are dropped.
func (b *levelBatch) Close() {
	if b.batch == nil {
		return
	}
	batch := b.batch
	b.batch = nil
	defer func() { _ = recover() }()
	batch.Close()
}

type levelIterator struct {
	it dbm.Iterator
}

func (i *levelIterator) Next() (key, value []byte, err error) {
	defer recoverDB(&err)
	if !i.it.Valid() {
		return nil, nil, errors.ErrIteratorDone
	}
	key = copyBytes(i.it.Key())
	value = copyBytes(i.it.Value())
	i.it.Next()
	return key, value, nil
}

func (i *levelIterator) Release() {
	i.it.Close()
}

// recoverDB converts a panic raised by the database layer into an
// ErrDatabase instance.
func recoverDB(err *error) {
	if r := recover(); r != nil {
		*err = errors.Wrapf(errors.ErrDatabase, "%v", r)
	}
}
