// Package bech32 encodes and validates the bech32 addresses used by the
// chain for transfer and multisig outputs.
package bech32

import (
	"github.com/btcsuite/btcutil/bech32"
	"github.com/iov-one/escrowd/errors"
)

// AddressSize is the length of the payload carried by a transfer address.
const AddressSize = 32

// Decode converts given bech32 encoded representation into raw payload and a
// human readable part.
func Decode(raw string) (string, []byte, error) {
	hrp, payload, err := bech32.Decode(raw)
	if err != nil {
		return "", nil, errors.Wrapf(errors.ErrInput, "bech32 decode: %s", err)
	}
	payload, err = bech32.ConvertBits(payload, 5, 8, false)
	if err != nil {
		return "", nil, errors.Wrapf(errors.ErrInput, "convert bits: %s", err)
	}
	return hrp, payload, nil
}

// Encode converts given bytes into bech32 encoded representation.
func Encode(hrp string, payload []byte) (string, error) {
	payload, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", errors.Wrapf(errors.ErrInput, "convert bits: %s", err)
	}
	raw, err := bech32.Encode(hrp, payload)
	if err != nil {
		return "", errors.Wrapf(errors.ErrInput, "bech32 encode: %s", err)
	}
	return raw, nil
}

// ValidateAddress returns an error unless given address is a well formed
// bech32 transfer address for the network identified by hrp.
func ValidateAddress(hrp, address string) error {
	if address == "" {
		return errors.Wrap(errors.ErrEmpty, "address")
	}
	got, payload, err := Decode(address)
	if err != nil {
		return err
	}
	if got != hrp {
		return errors.Wrapf(errors.ErrInput, "address %q is for %q network, want %q", address, got, hrp)
	}
	if len(payload) != AddressSize {
		return errors.Wrapf(errors.ErrInput, "address payload is %d bytes, want %d", len(payload), AddressSize)
	}
	return nil
}
