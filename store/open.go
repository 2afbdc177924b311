package store

import (
	"io"
	"os"
	"path/filepath"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
)

// Supported storage backends.
const (
	BackendMemory    = "memory"
	BackendGoLevelDB = "goleveldb"
	BackendPebble    = "pebble"
)

// CloseableKVStore is a KVStore that holds resources which must be released.
type CloseableKVStore interface {
	escrowd.KVStore
	io.Closer
}

// Open returns a store of the requested backend. The path is ignored by the
// memory backend. Directories are created when missing.
func Open(backend, path string) (CloseableKVStore, error) {
	switch backend {
	case BackendMemory:
		return nopCloser{NewMemStore()}, nil
	case BackendGoLevelDB:
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, err.Error())
		}
		return OpenLevelDB("orders", path)
	case BackendPebble:
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, err.Error())
		}
		return OpenPebble(path)
	default:
		return nil, errors.Wrapf(errors.ErrInput, "unknown storage backend %q", backend)
	}
}

type nopCloser struct {
	escrowd.KVStore
}

func (nopCloser) Close() error { return nil }
