package store

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/weavetest/assert"
)

// TestSuite provides many methods that can be called in package-specific test
// code. We just customize the store being tested (pass in constructor), the
// rest of the logic is generic to the KVStore interface.
//
// This is intended in particular to remove duplication between the btree, the
// goleveldb and the pebble backend tests.
type TestSuite struct {
	makeBase TestStoreConstructor
}

type TestStoreConstructor func(t testing.TB) (base escrowd.KVStore, cleanup func())

func NewTestSuite(constructor TestStoreConstructor) *TestSuite {
	return &TestSuite{
		makeBase: constructor,
	}
}

// GetSet does basic sanity checks on the store.
func (s *TestSuite) GetSet(t *testing.T) {
	base, cleanup := s.makeBase(t)
	defer cleanup()

	k, v := []byte("french"), []byte("fry")
	s.AssertGetHas(t, base, k, nil, false)
	assert.Nil(t, base.Set(k, v))
	s.AssertGetHas(t, base, k, v, true)

	v2 := []byte("toast")
	assert.Nil(t, base.Set(k, v2))
	s.AssertGetHas(t, base, k, v2, true)

	assert.Nil(t, base.Delete(k))
	s.AssertGetHas(t, base, k, nil, false)

	// Deleting a missing key is not an error.
	assert.Nil(t, base.Delete([]byte("missing")))
}

// Batch ensures that batch operations are not visible before the write and
// all of them are visible after.
func (s *TestSuite) Batch(t *testing.T) {
	base, cleanup := s.makeBase(t)
	defer cleanup()

	assert.Nil(t, base.Set([]byte("gone"), []byte("soon")))

	b := base.NewBatch()
	assert.Nil(t, b.Set([]byte("a"), []byte("1")))
	assert.Nil(t, b.Set([]byte("b"), []byte("2")))
	assert.Nil(t, b.Delete([]byte("gone")))

	s.AssertGetHas(t, base, []byte("a"), nil, false)
	s.AssertGetHas(t, base, []byte("gone"), []byte("soon"), true)

	assert.Nil(t, b.Write())

	s.AssertGetHas(t, base, []byte("a"), []byte("1"), true)
	s.AssertGetHas(t, base, []byte("b"), []byte("2"), true)
	s.AssertGetHas(t, base, []byte("gone"), nil, false)
}

// BatchClose ensures that a closed batch is discarded and that closing a
// written batch is safe.
func (s *TestSuite) BatchClose(t *testing.T) {
	base, cleanup := s.makeBase(t)
	defer cleanup()

	discarded := base.NewBatch()
	assert.Nil(t, discarded.Set([]byte("a"), []byte("1")))
	discarded.Close()
	discarded.Close()
	s.AssertGetHas(t, base, []byte("a"), nil, false)

	written := base.NewBatch()
	assert.Nil(t, written.Set([]byte("b"), []byte("2")))
	assert.Nil(t, written.Write())
	written.Close()
	s.AssertGetHas(t, base, []byte("b"), []byte("2"), true)
}

// Iterator checks range boundaries and ordering.
func (s *TestSuite) Iterator(t *testing.T) {
	base, cleanup := s.makeBase(t)
	defer cleanup()

	for i := 0; i < 10; i++ {
		k := []byte(fmt.Sprintf("key-%02d", i))
		assert.Nil(t, base.Set(k, []byte{byte(i)}))
	}
	assert.Nil(t, base.Set([]byte("other"), []byte("x")))

	cases := map[string]struct {
		start, end []byte
		want       []string
	}{
		"bound range": {
			start: []byte("key-03"),
			end:   []byte("key-06"),
			want:  []string{"key-03", "key-04", "key-05"},
		},
		"prefix range": {
			start: []byte("key-08"),
			end:   []byte("key."),
			want:  []string{"key-08", "key-09"},
		},
		"open end": {
			start: []byte("key-09"),
			end:   nil,
			want:  []string{"key-09", "other"},
		},
		"empty range": {
			start: []byte("x"),
			end:   []byte("z"),
			want:  nil,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			it, err := base.Iterator(tc.start, tc.end)
			assert.Nil(t, err)
			defer it.Release()

			var got []string
			for {
				k, _, err := it.Next()
				if errors.ErrIteratorDone.Is(err) {
					break
				}
				assert.Nil(t, err)
				got = append(got, string(k))
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

// AssertGetHas makes sure that value returned from Get and Has are as
// expected.
func (s *TestSuite) AssertGetHas(t testing.TB, kv escrowd.ReadOnlyKVStore, key, val []byte, has bool) {
	t.Helper()

	got, err := kv.Get(key)
	assert.Nil(t, err)
	if !bytes.Equal(val, got) {
		t.Fatalf("want %q, got %q", val, got)
	}
	exists, err := kv.Has(key)
	assert.Nil(t, err)
	assert.Equal(t, has, exists)
}
