package orm

import (
	"github.com/iov-one/escrowd/errors"
	amino "github.com/tendermint/go-amino"
)

// cdc serializes all models. Amino binary encoding is deterministic, which
// makes stored values comparable byte by byte.
var cdc = amino.NewCodec()

// Marshal returns the binary representation of a model.
func Marshal(m Model) ([]byte, error) {
	raw, err := cdc.MarshalBinaryBare(m)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrModel, "marshal %T: %s", m, err)
	}
	return raw, nil
}

// Unmarshal loads the binary representation into given model.
func Unmarshal(raw []byte, dest Model) error {
	if err := cdc.UnmarshalBinaryBare(raw, dest); err != nil {
		return errors.Wrapf(errors.ErrDatabase, "unmarshal %T: %s", dest, err)
	}
	return nil
}
