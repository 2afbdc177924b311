// Package coin implements the fixed point amount of the chain native coin.
package coin

import (
	"encoding/json"
	"math/big"

	"github.com/iov-one/escrowd/errors"
	"github.com/shopspring/decimal"
)

const (
	// Decimals is the number of fractional digits of the native coin.
	Decimals = 8

	// Unit is the number of minimal units in one whole coin.
	Unit Amount = 100000000

	// MaxAmount is the total supply expressed in minimal units. No valid
	// amount exceeds it.
	MaxAmount Amount = 10000000000000000000 // 10^11 coins
)

// Amount is a coin value expressed in minimal units. Amounts are never
// negative.
type Amount uint64

// ParseAmount reads the decimal representation of an amount, for example
// "20" or "0.00000001". More than Decimals fractional digits, negative values
// and values above MaxAmount are rejected.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return 0, errors.Wrap(errors.ErrEmpty, "amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrAmount, "cannot parse %q", s)
	}
	if d.IsNegative() {
		return 0, errors.Wrapf(errors.ErrAmount, "negative amount %q", s)
	}
	units := d.Shift(Decimals)
	if !units.IsInteger() {
		return 0, errors.Wrapf(errors.ErrAmount, "%q has more than %d decimal places", s, Decimals)
	}
	n := units.BigInt()
	if !n.IsUint64() || Amount(n.Uint64()) > MaxAmount {
		return 0, errors.Wrapf(errors.ErrOverflow, "amount %q", s)
	}
	return Amount(n.Uint64()), nil
}

// MustParseAmount is like ParseAmount but panics on error. Use it only for
// constants.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Decimal returns the amount as a decimal number of whole coins.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(a)), -Decimals)
}

// String returns the shortest decimal representation in whole coins.
func (a Amount) String() string {
	return a.Decimal().String()
}

// Validate returns an error if the amount is above the total supply.
func (a Amount) Validate() error {
	if a > MaxAmount {
		return errors.Wrapf(errors.ErrOverflow, "%d exceeds total supply", uint64(a))
	}
	return nil
}

// Add returns the sum of both amounts.
func (a Amount) Add(b Amount) (Amount, error) {
	sum := a + b
	if sum < a || sum > MaxAmount {
		return 0, errors.Wrapf(errors.ErrOverflow, "%s + %s", a, b)
	}
	return sum, nil
}

// Sub returns the difference of both amounts. It fails with
// ErrInsufficientAmount if b is greater than a.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b > a {
		return 0, errors.Wrapf(errors.ErrInsufficientAmount, "%s - %s", a, b)
	}
	return a - b, nil
}

// MarshalJSON encodes the amount as a decimal string, so that clients never
// lose precision.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts the decimal string representation.
func (a *Amount) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return errors.Wrap(errors.ErrAmount, "amount must be a decimal string")
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
