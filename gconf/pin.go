package gconf

import (
	"bytes"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/orm"
)

func pinKey(pkg string) []byte {
	return []byte("_c:" + pkg)
}

// Save will Validate the object, before writing it to a special
// "configuration" singleton for that package name.
func Save(db escrowd.KVStore, pkg string, src orm.Model) error {
	key := pinKey(pkg)
	if err := src.Validate(); err != nil {
		return errors.Wrapf(err, "validation: key %q", key)
	}
	raw, err := orm.Marshal(src)
	if err != nil {
		return errors.Wrapf(err, "marshal: key %q", key)
	}
	if err := db.Set(key, raw); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// LoadStored reads the configuration singleton stored for that package name.
func LoadStored(db escrowd.ReadOnlyKVStore, pkg string, dst orm.Model) error {
	key := pinKey(pkg)
	raw, err := db.Get(key)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if raw == nil {
		return errors.Wrapf(errors.ErrNotFound, "key %q", key)
	}
	if err := orm.Unmarshal(raw, dst); err != nil {
		return errors.Wrapf(err, "unmarshal: key %q", key)
	}
	return nil
}

// Pin stores given configuration on the first call. Every following call
// must provide an identical configuration or ErrState is returned. Use it for
// values that cannot change once data was created with them.
func Pin(db escrowd.KVStore, pkg string, src orm.Model) error {
	want, err := orm.Marshal(src)
	if err != nil {
		return err
	}
	got, err := db.Get(pinKey(pkg))
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	if got == nil {
		return Save(db, pkg, src)
	}
	if !bytes.Equal(got, want) {
		return errors.Wrapf(errors.ErrState, "%s configuration differs from the one stored in the database", pkg)
	}
	return nil
}
