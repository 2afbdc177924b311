package store

import (
	"path/filepath"
	"testing"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
	dbm "github.com/tendermint/tendermint/libs/db"
)

func backends() map[string]TestStoreConstructor {
	return map[string]TestStoreConstructor{
		"btree": func(t testing.TB) (escrowd.KVStore, func()) {
			return NewMemStore(), func() {}
		},
		"goleveldb memdb": func(t testing.TB) (escrowd.KVStore, func()) {
			return NewLevelDB(dbm.NewMemDB()), func() {}
		},
		"goleveldb": func(t testing.TB) (escrowd.KVStore, func()) {
			db, err := OpenLevelDB("test", t.(*testing.T).TempDir())
			if err != nil {
				t.Fatalf("cannot open goleveldb: %+v", err)
			}
			return db, func() { db.Close() }
		},
		"pebble": func(t testing.TB) (escrowd.KVStore, func()) {
			db, err := OpenPebble(filepath.Join(t.(*testing.T).TempDir(), "pebble"))
			if err != nil {
				t.Fatalf("cannot open pebble: %+v", err)
			}
			return db, func() { db.Close() }
		},
	}
}

func TestStoreBackends(t *testing.T) {
	for name, constructor := range backends() {
		suite := NewTestSuite(constructor)
		t.Run(name+" get set", suite.GetSet)
		t.Run(name+" batch", suite.Batch)
		t.Run(name+" batch close", suite.BatchClose)
		t.Run(name+" iterator", suite.Iterator)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	for _, backend := range []string{BackendMemory, BackendGoLevelDB, BackendPebble} {
		db, err := Open(backend, filepath.Join(dir, backend))
		if err != nil {
			t.Fatalf("%s: cannot open: %+v", backend, err)
		}
		if err := db.Set([]byte("a"), []byte("b")); err != nil {
			t.Fatalf("%s: cannot write: %+v", backend, err)
		}
		if err := db.Close(); err != nil {
			t.Fatalf("%s: cannot close: %+v", backend, err)
		}
	}

	if _, err := Open("sqlite", dir); !errors.ErrInput.Is(err) {
		t.Fatalf("want input error, got %+v", err)
	}
}
