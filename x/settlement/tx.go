package settlement

import (
	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/coin"
	"github.com/iov-one/escrowd/errors"
	amino "github.com/tendermint/go-amino"
	"golang.org/x/crypto/blake2s"
)

var cdc = amino.NewCodec()

// AccessAllData grants a view key read access to the whole transaction
// payload.
const AccessAllData uint32 = 0

// TxoPointer references a single output of a previous transaction.
type TxoPointer struct {
	ID    escrowd.HexBytes `json:"id"`
	Index uint32           `json:"index"`
}

// TxOut pays Value to Address.
type TxOut struct {
	Address string      `json:"address"`
	Value   coin.Amount `json:"value"`
}

// AccessPolicy grants a view key access to the transaction payload.
type AccessPolicy struct {
	ViewKey escrowd.HexBytes `json:"view_key"`
	Access  uint32           `json:"access"`
}

// Attributes are attached to every transaction.
type Attributes struct {
	ChainHexID  uint32         `json:"chain_hex_id"`
	AllowedView []AccessPolicy `json:"allowed_view"`
}

// Transaction spends the escrow multisig output.
type Transaction struct {
	Inputs     []TxoPointer `json:"inputs"`
	Outputs    []TxOut      `json:"outputs"`
	Attributes Attributes   `json:"attributes"`
}

// Marshal returns the canonical binary representation.
func (tx *Transaction) Marshal() ([]byte, error) {
	raw, err := cdc.MarshalBinaryBare(tx)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrHuman, "marshal transaction: %s", err)
	}
	return raw, nil
}

// ID returns the BLAKE2s-256 hash of the canonical binary representation.
func (tx *Transaction) ID() ([]byte, error) {
	raw, err := tx.Marshal()
	if err != nil {
		return nil, err
	}
	id := blake2s.Sum256(raw)
	return id[:], nil
}

// Total returns the sum of all output values.
func (tx *Transaction) Total() (coin.Amount, error) {
	var total coin.Amount
	for _, out := range tx.Outputs {
		var err error
		if total, err = total.Add(out.Value); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// SignedTransaction is the transaction together with the aggregated 2-of-3
// witness, as broadcast to the chain.
type SignedTransaction struct {
	Transaction Transaction      `json:"transaction"`
	Witness     escrowd.HexBytes `json:"witness"`
}

// Marshal returns the binary representation that is broadcast.
func (s *SignedTransaction) Marshal() ([]byte, error) {
	if len(s.Witness) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "witness")
	}
	raw, err := cdc.MarshalBinaryBare(s)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrHuman, "marshal signed transaction: %s", err)
	}
	return raw, nil
}

// UnmarshalSigned decodes a broadcast transaction.
func UnmarshalSigned(raw []byte) (*SignedTransaction, error) {
	var s SignedTransaction
	if err := cdc.UnmarshalBinaryBare(raw, &s); err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "unmarshal signed transaction: %s", err)
	}
	return &s, nil
}
