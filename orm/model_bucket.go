package orm

import (
	"bytes"
	"encoding/binary"
	"reflect"
	"regexp"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
)

// Model is implemented by any entity that can be stored using ModelBucket.
type Model interface {
	Validate() error
}

// Indexer calculates the secondary index key for a given model. Returning a
// nil key means the model is not indexed.
type Indexer func(Model) ([]byte, error)

// ModelBucket is implemented by buckets that operates on Models.
type ModelBucket interface {
	// One query the database for a single model instance. Lookup is done
	// by the primary index key. Result is loaded into given destination
	// model.
	// This method returns ErrNotFound if the entity does not exist in the
	// database.
	One(db escrowd.ReadOnlyKVStore, key []byte, dest Model) error

	// Has returns nil if an entity with given primary key exists,
	// ErrNotFound otherwise.
	Has(db escrowd.ReadOnlyKVStore, key []byte) error

	// Create saves given model in the database. It fails with ErrDuplicate
	// if an entity with the same primary key exists.
	Create(db escrowd.KVStore, key []byte, m Model) error

	// Put saves given model in the database, replacing any previous
	// version. All indexes are updated in the same batch.
	Put(db escrowd.KVStore, key []byte, m Model) error

	// IndexKeys returns primary keys of all entities that are indexed
	// under given value, in ascending order.
	IndexKeys(db escrowd.ReadOnlyKVStore, indexName string, value []byte) ([][]byte, error)
}

// ModelBucketOption is implemented by any function that can configure
// ModelBucket during the instance creation.
type ModelBucketOption func(mb *modelBucket)

// WithIndex configures the bucket to build a secondary index with given
// name.
func WithIndex(name string, indexer Indexer) ModelBucketOption {
	if !isBucketName(name) {
		panic("illegal index name: " + name)
	}
	return func(mb *modelBucket) {
		mb.indexes[name] = indexer
	}
}

var isBucketName = regexp.MustCompile(`^[a-z_]{3,10}$`).MatchString

// NewModelBucket returns a ModelBucket instance storing entities of the
// same type as given model.
func NewModelBucket(name string, m Model, opts ...ModelBucketOption) ModelBucket {
	if !isBucketName(name) {
		panic("illegal bucket name: " + name)
	}
	tp := reflect.TypeOf(m)
	if tp.Kind() != reflect.Ptr {
		panic("model must be a pointer")
	}
	mb := &modelBucket{
		name:    name,
		prefix:  []byte(name + ":"),
		model:   tp.Elem(),
		indexes: make(map[string]Indexer),
	}
	for _, fn := range opts {
		fn(mb)
	}
	return mb
}

type modelBucket struct {
	name    string
	prefix  []byte
	model   reflect.Type
	indexes map[string]Indexer
}

var _ ModelBucket = (*modelBucket)(nil)

func (mb *modelBucket) dbKey(key []byte) []byte {
	return append(append([]byte{}, mb.prefix...), key...)
}

// indexKey returns the database key of a single index entry. Value length
// is encoded so that a value is never a prefix of another value.
func (mb *modelBucket) indexPrefix(indexName string, value []byte) []byte {
	res := []byte("_i." + mb.name + "_" + indexName + ":")
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(value)))
	res = append(res, n[:]...)
	return append(res, value...)
}

func (mb *modelBucket) One(db escrowd.ReadOnlyKVStore, key []byte, dest Model) error {
	if len(key) == 0 {
		return errors.Wrap(errors.ErrEmpty, "key")
	}
	if t := reflect.TypeOf(dest); t.Kind() != reflect.Ptr || t.Elem() != mb.model {
		return errors.Wrapf(errors.ErrType, "%T cannot be represented as %s", dest, mb.model)
	}
	raw, err := db.Get(mb.dbKey(key))
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if raw == nil {
		return errors.Wrapf(errors.ErrNotFound, "%s %q", mb.name, key)
	}
	return Unmarshal(raw, dest)
}

func (mb *modelBucket) Has(db escrowd.ReadOnlyKVStore, key []byte) error {
	if len(key) == 0 {
		return errors.Wrap(errors.ErrEmpty, "key")
	}
	ok, err := db.Has(mb.dbKey(key))
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "%s %q", mb.name, key)
	}
	return nil
}

func (mb *modelBucket) Create(db escrowd.KVStore, key []byte, m Model) error {
	switch err := mb.Has(db, key); {
	case err == nil:
		return errors.Wrapf(errors.ErrDuplicate, "%s %q", mb.name, key)
	case !errors.ErrNotFound.Is(err):
		return err
	}
	return mb.Put(db, key, m)
}

func (mb *modelBucket) Put(db escrowd.KVStore, key []byte, m Model) error {
	if len(key) == 0 {
		return errors.Wrap(errors.ErrEmpty, "key")
	}
	if t := reflect.TypeOf(m); t.Kind() != reflect.Ptr || t.Elem() != mb.model {
		return errors.Wrapf(errors.ErrType, "%T cannot be stored in %s bucket", m, mb.name)
	}
	if err := m.Validate(); err != nil {
		return errors.Wrap(err, "invalid model")
	}
	raw, err := Marshal(m)
	if err != nil {
		return err
	}

	var prev Model
	switch old, err := db.Get(mb.dbKey(key)); {
	case err != nil:
		return errors.Wrap(errors.ErrDatabase, err.Error())
	case old != nil:
		prev = reflect.New(mb.model).Interface().(Model)
		if err := Unmarshal(old, prev); err != nil {
			return err
		}
	}

	batch := db.NewBatch()
	defer batch.Close()
	for name, indexer := range mb.indexes {
		if err := mb.updateIndex(batch, name, indexer, key, prev, m); err != nil {
			return errors.Wrapf(err, "index %q", name)
		}
	}
	if err := batch.Set(mb.dbKey(key), raw); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if err := batch.Write(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

func (mb *modelBucket) updateIndex(batch escrowd.Batch, name string, indexer Indexer, key []byte, prev, next Model) error {
	var prevValue []byte
	if prev != nil {
		v, err := indexer(prev)
		if err != nil {
			return err
		}
		prevValue = v
	}
	nextValue, err := indexer(next)
	if err != nil {
		return err
	}
	if prev != nil && bytes.Equal(prevValue, nextValue) {
		return nil
	}
	if prevValue != nil {
		if err := batch.Delete(append(mb.indexPrefix(name, prevValue), key...)); err != nil {
			return errors.Wrap(errors.ErrDatabase, err.Error())
		}
	}
	if nextValue != nil {
		if err := batch.Set(append(mb.indexPrefix(name, nextValue), key...), key); err != nil {
			return errors.Wrap(errors.ErrDatabase, err.Error())
		}
	}
	return nil
}

func (mb *modelBucket) IndexKeys(db escrowd.ReadOnlyKVStore, indexName string, value []byte) ([][]byte, error) {
	if _, ok := mb.indexes[indexName]; !ok {
		return nil, errors.Wrapf(errors.ErrHuman, "no index %q in %s bucket", indexName, mb.name)
	}
	start := mb.indexPrefix(indexName, value)
	it, err := db.Iterator(start, PrefixEnd(start))
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	defer it.Release()

	var keys [][]byte
	for {
		switch _, key, err := it.Next(); {
		case err == nil:
			keys = append(keys, key)
		case errors.ErrIteratorDone.Is(err):
			return keys, nil
		default:
			return nil, errors.Wrap(errors.ErrDatabase, err.Error())
		}
	}
}

// PrefixEnd returns the smallest key that is greater than all keys starting
// with given prefix. It returns nil if no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
