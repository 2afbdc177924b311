package settlement

import (
	"bytes"
	"testing"

	"github.com/iov-one/escrowd/coin"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/weavetest/assert"
	"github.com/iov-one/escrowd/x/orders"
	"github.com/iov-one/escrowd/x/orders/orderstest"
)

func paidOrder(t *testing.T) *orders.Order {
	o := orderstest.NewOrder(t, "order-1")
	o.PaymentTransactionID = orderstest.TxID(0x77)
	return o
}

func TestBuildDelivery(t *testing.T) {
	o := paidOrder(t)
	o.Status = orders.Delivering

	tx, err := Build(o, orders.Delivering, DefaultParams(0xAB))
	assert.Nil(t, err)

	assert.Equal(t, []TxOut{
		{Address: o.MerchantAddress, Value: 10 * coin.Unit},
		{Address: o.BuyerAddress, Value: 10*coin.Unit - 1},
	}, tx.Outputs)

	assert.Equal(t, 1, len(tx.Inputs))
	assert.Equal(t, []byte(orderstest.TxID(0x77)), []byte(tx.Inputs[0].ID))
	assert.Equal(t, uint32(0), tx.Inputs[0].Index)

	assert.Equal(t, uint32(0xAB), tx.Attributes.ChainHexID)
	wantViews := [][]byte{o.MerchantViewKey, o.BuyerViewKey, o.EscrowViewKey}
	assert.Equal(t, 3, len(tx.Attributes.AllowedView))
	for i, want := range wantViews {
		if !bytes.Equal(want, tx.Attributes.AllowedView[i].ViewKey) {
			t.Errorf("view key %d: want %x, got %x", i, want, tx.Attributes.AllowedView[i].ViewKey)
		}
		assert.Equal(t, AccessAllData, tx.Attributes.AllowedView[i].Access)
	}

	total, err := tx.Total()
	assert.Nil(t, err)
	assert.Equal(t, o.Amount-1, total)
}

func TestBuildRefund(t *testing.T) {
	o := paidOrder(t)

	tx, err := Build(o, orders.Refunding, DefaultParams(0xAB))
	assert.Nil(t, err)
	assert.Equal(t, []TxOut{
		{Address: o.BuyerAddress, Value: 20*coin.Unit - 1},
	}, tx.Outputs)
}

func TestBuildIsDeterministic(t *testing.T) {
	o := paidOrder(t)
	p := DefaultParams(0xAB)

	for _, outcome := range []orders.Status{orders.Delivering, orders.Refunding} {
		a, idA, err := BuildID(o, outcome, p)
		assert.Nil(t, err)
		b, idB, err := BuildID(o.Copy(), outcome, p)
		assert.Nil(t, err)

		rawA, err := a.Marshal()
		assert.Nil(t, err)
		rawB, err := b.Marshal()
		assert.Nil(t, err)
		if !bytes.Equal(rawA, rawB) {
			t.Fatalf("%s: transactions differ", outcome)
		}
		if !bytes.Equal(idA, idB) || len(idA) != 32 {
			t.Fatalf("%s: ids differ: %x %x", outcome, idA, idB)
		}
	}

	// Requesting the terminal outcome rebuilds the same transaction.
	_, delivering, err := BuildID(o, orders.Delivering, p)
	assert.Nil(t, err)
	_, completed, err := BuildID(o, orders.Completed, p)
	assert.Nil(t, err)
	assert.Equal(t, delivering, completed)

	// Status and creation time are not part of the transaction.
	changed := o.Copy()
	changed.Status = orders.Delivering
	changed.CreatedAt++
	_, id, err := BuildID(changed, orders.Delivering, p)
	assert.Nil(t, err)
	assert.Equal(t, delivering, id)

	_, refund, err := BuildID(o, orders.Refunding, p)
	assert.Nil(t, err)
	if bytes.Equal(refund, delivering) {
		t.Fatal("refund and delivery must not share an id")
	}
}

func TestBuildErrors(t *testing.T) {
	cases := map[string]struct {
		mutate  func(*orders.Order, *Params)
		outcome orders.Status
		wantErr *errors.Error
	}{
		"pending payment": {
			mutate:  func(*orders.Order, *Params) {},
			outcome: orders.PendingPayment,
			wantErr: errors.ErrState,
		},
		"payment not recorded": {
			mutate:  func(o *orders.Order, _ *Params) { o.PaymentTransactionID = nil },
			outcome: orders.Delivering,
			wantErr: errors.ErrInput,
		},
		"amount equals deposit": {
			mutate:  func(o *orders.Order, _ *Params) { o.Amount = 10 * coin.Unit },
			outcome: orders.Delivering,
			wantErr: errors.ErrInsufficientAmount,
		},
		"refund of the fee only": {
			mutate:  func(o *orders.Order, _ *Params) { o.Amount = 1 },
			outcome: orders.Refunded,
			wantErr: errors.ErrInsufficientAmount,
		},
		"fee above deposit": {
			mutate:  func(_ *orders.Order, p *Params) { p.Fee = p.Deposit + 1 },
			outcome: orders.Delivering,
			wantErr: errors.ErrAmount,
		},
		"chain id above a byte": {
			mutate:  func(_ *orders.Order, p *Params) { p.ChainHexID = 0x100 },
			outcome: orders.Delivering,
			wantErr: errors.ErrInput,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			o := paidOrder(t)
			p := DefaultParams(0xAB)
			tc.mutate(o, &p)
			_, err := Build(o, tc.outcome, p)
			assert.IsErr(t, tc.wantErr, err)
		})
	}
}

func TestSignedTransaction(t *testing.T) {
	tx, err := Build(paidOrder(t), orders.Delivering, DefaultParams(0xAB))
	assert.Nil(t, err)

	_, err = (&SignedTransaction{Transaction: *tx}).Marshal()
	assert.IsErr(t, errors.ErrEmpty, err)

	raw, err := (&SignedTransaction{Transaction: *tx, Witness: []byte("witness")}).Marshal()
	assert.Nil(t, err)

	got, err := UnmarshalSigned(raw)
	assert.Nil(t, err)
	assert.Equal(t, "witness", string(got.Witness))

	wantID, err := tx.ID()
	assert.Nil(t, err)
	gotID, err := got.Transaction.ID()
	assert.Nil(t, err)
	assert.Equal(t, wantID, gotID)
}
