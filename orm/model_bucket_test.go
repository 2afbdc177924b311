package orm

import (
	"testing"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/store"
	"github.com/iov-one/escrowd/weavetest/assert"
)

type counter struct {
	Name  string
	Owner string
	Count uint64
}

func (c *counter) Validate() error {
	if c.Name == "" {
		return errors.Wrap(errors.ErrEmpty, "name")
	}
	return nil
}

func ownerIndexer(m Model) ([]byte, error) {
	c, ok := m.(*counter)
	if !ok {
		return nil, errors.Wrapf(errors.ErrType, "%T", m)
	}
	if c.Owner == "" {
		return nil, nil
	}
	return []byte(c.Owner), nil
}

func TestModelBucketPutOne(t *testing.T) {
	db := store.NewMemStore()
	b := NewModelBucket("cnts", &counter{})

	assert.Nil(t, b.Put(db, []byte("a"), &counter{Name: "a", Count: 4}))

	var got counter
	assert.Nil(t, b.One(db, []byte("a"), &got))
	assert.Equal(t, counter{Name: "a", Count: 4}, got)

	if err := b.One(db, []byte("missing"), &got); !errors.ErrNotFound.Is(err) {
		t.Fatalf("want not found, got %+v", err)
	}
	if err := b.Has(db, []byte("missing")); !errors.ErrNotFound.Is(err) {
		t.Fatalf("want not found, got %+v", err)
	}
	assert.Nil(t, b.Has(db, []byte("a")))
}

func TestModelBucketRejects(t *testing.T) {
	db := store.NewMemStore()
	b := NewModelBucket("cnts", &counter{})

	cases := map[string]struct {
		key     []byte
		model   Model
		wantErr *errors.Error
	}{
		"empty key": {
			key:     nil,
			model:   &counter{Name: "x"},
			wantErr: errors.ErrEmpty,
		},
		"invalid model": {
			key:     []byte("x"),
			model:   &counter{},
			wantErr: errors.ErrEmpty,
		},
		"wrong type": {
			key:     []byte("x"),
			model:   &other{},
			wantErr: errors.ErrType,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			if err := b.Put(db, tc.key, tc.model); !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
		})
	}
}

type other struct{}

func (other) Validate() error { return nil }

func TestModelBucketCreate(t *testing.T) {
	db := store.NewMemStore()
	b := NewModelBucket("cnts", &counter{})

	assert.Nil(t, b.Create(db, []byte("a"), &counter{Name: "a"}))
	if err := b.Create(db, []byte("a"), &counter{Name: "b"}); !errors.ErrDuplicate.Is(err) {
		t.Fatalf("want duplicate, got %+v", err)
	}
	var got counter
	assert.Nil(t, b.One(db, []byte("a"), &got))
	assert.Equal(t, "a", got.Name)
}

func TestModelBucketIndex(t *testing.T) {
	db := store.NewMemStore()
	b := NewModelBucket("cnts", &counter{}, WithIndex("owner", ownerIndexer))

	assert.Nil(t, b.Put(db, []byte("1"), &counter{Name: "1", Owner: "alice"}))
	assert.Nil(t, b.Put(db, []byte("2"), &counter{Name: "2", Owner: "bob"}))
	assert.Nil(t, b.Put(db, []byte("3"), &counter{Name: "3", Owner: "alice"}))
	assert.Nil(t, b.Put(db, []byte("4"), &counter{Name: "4"}))

	keys, err := b.IndexKeys(db, "owner", []byte("alice"))
	assert.Nil(t, err)
	assert.Equal(t, [][]byte{[]byte("1"), []byte("3")}, keys)

	// Moving an entity to another owner must drop the old index entry.
	assert.Nil(t, b.Put(db, []byte("1"), &counter{Name: "1", Owner: "bob"}))

	keys, err = b.IndexKeys(db, "owner", []byte("alice"))
	assert.Nil(t, err)
	assert.Equal(t, [][]byte{[]byte("3")}, keys)

	keys, err = b.IndexKeys(db, "owner", []byte("bob"))
	assert.Nil(t, err)
	assert.Equal(t, [][]byte{[]byte("1"), []byte("2")}, keys)

	// Owner value that is a prefix of another must not match it.
	keys, err = b.IndexKeys(db, "owner", []byte("ali"))
	assert.Nil(t, err)
	assert.Equal(t, 0, len(keys))

	if _, err := b.IndexKeys(db, "nope", nil); !errors.ErrHuman.Is(err) {
		t.Fatalf("want human error, got %+v", err)
	}
}

func TestPrefixEnd(t *testing.T) {
	cases := map[string]struct {
		prefix []byte
		want   []byte
	}{
		"simple":   {prefix: []byte{1, 2}, want: []byte{1, 3}},
		"overflow": {prefix: []byte{1, 0xff}, want: []byte{2}},
		"all max":  {prefix: []byte{0xff, 0xff}, want: nil},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			assert.Equal(t, tc.want, PrefixEnd(tc.prefix))
		})
	}
}

// closeCounter counts closed batches of the wrapped store.
type closeCounter struct {
	escrowd.KVStore
	closed int
}

func (c *closeCounter) NewBatch() escrowd.Batch {
	return &countedBatch{Batch: c.KVStore.NewBatch(), owner: c}
}

type countedBatch struct {
	escrowd.Batch
	owner *closeCounter
}

func (b *countedBatch) Close() {
	b.owner.closed++
	b.Batch.Close()
}

func TestModelBucketReleasesBatch(t *testing.T) {
	db := &closeCounter{KVStore: store.NewMemStore()}
	failing := func(Model) ([]byte, error) {
		return nil, errors.Wrap(errors.ErrHuman, "broken indexer")
	}
	b := NewModelBucket("cnts", &counter{}, WithIndex("broken", failing))

	if err := b.Put(db, []byte("a"), &counter{Name: "a"}); !errors.ErrHuman.Is(err) {
		t.Fatalf("want indexer error, got %+v", err)
	}
	assert.Equal(t, 1, db.closed)
	if err := b.Has(db, []byte("a")); !errors.ErrNotFound.Is(err) {
		t.Fatalf("failed put must not be stored, got %+v", err)
	}

	ok := NewModelBucket("cnts", &counter{}, WithIndex("owner", ownerIndexer))
	assert.Nil(t, ok.Put(db, []byte("b"), &counter{Name: "b", Owner: "bob"}))
	assert.Equal(t, 2, db.closed)
}
