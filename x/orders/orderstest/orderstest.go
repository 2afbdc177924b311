// Package orderstest provides order fixtures for tests.
package orderstest

import (
	"bytes"
	"testing"

	"github.com/iov-one/escrowd/coin"
	"github.com/iov-one/escrowd/crypto/bech32"
	"github.com/iov-one/escrowd/x/orders"
)

// HRP is the network of all fixture addresses.
const HRP = "dcro"

// Address returns a valid transfer address derived from seed.
func Address(t testing.TB, seed byte) string {
	t.Helper()
	addr, err := bech32.Encode(HRP, bytes.Repeat([]byte{seed}, bech32.AddressSize))
	if err != nil {
		t.Fatalf("cannot encode address: %s", err)
	}
	return addr
}

// Key returns a public or view key filled with seed.
func Key(seed byte) []byte {
	k := bytes.Repeat([]byte{seed}, orders.PublicKeySize)
	k[0] = 0x02
	return k
}

// TxID returns a transaction identifier filled with seed.
func TxID(seed byte) []byte {
	return bytes.Repeat([]byte{seed}, orders.TxIDSize)
}

// NewOrder returns a valid order in PendingPayment status with an amount of
// 20 coins.
func NewOrder(t testing.TB, orderID string) *orders.Order {
	t.Helper()
	return &orders.Order{
		OrderID:           orderID,
		Status:            orders.PendingPayment,
		Amount:            20 * coin.Unit,
		BuyerPublicKey:    Key(0xb1),
		BuyerViewKey:      Key(0xb2),
		BuyerAddress:      Address(t, 0xb3),
		EscrowPublicKey:   Key(0xe1),
		EscrowViewKey:     Key(0xe2),
		MerchantPublicKey: Key(0xa1),
		MerchantViewKey:   Key(0xa2),
		MerchantAddress:   Address(t, 0xa3),
		MultisigAddress:   Address(t, 0xcc),
		CreatedAt:         1567332000,
	}
}
