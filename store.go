package escrowd

//////////////////////////////////////////////////////////
// Defines all public interfaces for interacting with stores
//
// KVStore/Iterator are the basic objects to use in all code. Unlike a
// consensus store, every backend here is backed by disk or shared between
// goroutines, so all operations report failures instead of panicking.

// ReadOnlyKVStore is a simple interface to query data.
type ReadOnlyKVStore interface {
	// Get returns nil iff key doesn't exist.
	Get(key []byte) ([]byte, error)

	// Has checks if a key exists.
	Has(key []byte) (bool, error)

	// Iterator over a domain of keys in ascending order. End is exclusive.
	// A nil start or end means the domain is unbounded on that side.
	Iterator(start, end []byte) (Iterator, error)
}

// SetDeleter is a minimal interface for writing data.
type SetDeleter interface {
	// Set sets the key, overwriting any previous value.
	Set(key, value []byte) error

	// Delete deletes the key. Deleting a missing key is not an error.
	Delete(key []byte) error
}

// KVStore is the interface all backing stores implement.
type KVStore interface {
	ReadOnlyKVStore
	SetDeleter

	// NewBatch returns a batch that can write multiple operations at once.
	NewBatch() Batch
}

// Batch can write multiple ops atomically to an underlying KVStore.
//
// Always Close a batch. Closing a batch that was not written discards all
// its operations.
type Batch interface {
	SetDeleter

	// Write applies all operations to the store.
	Write() error

	// Close releases the batch. It is safe to call after Write and more
	// than once.
	Close()
}

/*
Iterator allows us to access a set of items within a range of keys.

	Usage:

	it, err := db.Iterator(start, end)
	...
	defer it.Release()

	for {
		key, value, err := it.Next()
		if errors.ErrIteratorDone.Is(err) {
			break
		}
		...
	}
*/
type Iterator interface {
	// Next returns the current key and value and moves the cursor forward.
	// ErrIteratorDone is returned once there are no more items.
	Next() (key, value []byte, err error)

	// Release releases the Iterator.
	Release()
}
