package settlement

import (
	"github.com/iov-one/escrowd/coin"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/x/orders"
)

// Params are the settlement constants. They must not change between the two
// rounds of a signing session, otherwise the rebuilt transaction differs.
type Params struct {
	ChainHexID uint32
	// Deposit is part of the order amount and is returned to the buyer on
	// delivery.
	Deposit coin.Amount
	// Fee is the network fee, always paid by the buyer.
	Fee coin.Amount
}

// DefaultParams are the values the chain was observed with: a deposit of 10
// coins and a fee of one minimal unit.
func DefaultParams(chainHexID byte) Params {
	return Params{
		ChainHexID: uint32(chainHexID),
		Deposit:    10 * coin.Unit,
		Fee:        1,
	}
}

// Validate implements orm.Model so that params can be pinned in the database.
func (p *Params) Validate() error {
	if p.ChainHexID > 0xff {
		return errors.Wrapf(errors.ErrInput, "chain hex id %d is not a byte", p.ChainHexID)
	}
	if p.Fee >= p.Deposit {
		return errors.Wrap(errors.ErrAmount, "fee must be lower than the deposit")
	}
	return nil
}

// Build returns the settlement transaction of the order for given outcome.
//
// Delivery (Delivering or Completed) pays the amount without the deposit to
// the merchant and returns the deposit, without the fee, to the buyer.
// Refund (Refunding or Refunded) returns the whole amount, without the fee,
// to the buyer. The deposit is part of the amount so it is not added again.
//
// The only input is the first output of the payment transaction. The merchant,
// buyer and escrow view keys, in that order, get read access.
func Build(o *orders.Order, outcome orders.Status, p Params) (*Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "params")
	}
	if len(o.PaymentTransactionID) != orders.TxIDSize {
		return nil, errors.Wrap(errors.ErrInput, "payment transaction is not recorded")
	}

	var outputs []TxOut
	switch outcome {
	case orders.Delivering, orders.Completed:
		if o.Amount <= p.Deposit {
			return nil, errors.Wrapf(errors.ErrInsufficientAmount, "amount %s does not exceed the deposit %s", o.Amount, p.Deposit)
		}
		merchant, err := o.Amount.Sub(p.Deposit)
		if err != nil {
			return nil, err
		}
		buyer, err := p.Deposit.Sub(p.Fee)
		if err != nil {
			return nil, err
		}
		outputs = []TxOut{
			{Address: o.MerchantAddress, Value: merchant},
			{Address: o.BuyerAddress, Value: buyer},
		}
	case orders.Refunding, orders.Refunded:
		if o.Amount <= p.Fee {
			return nil, errors.Wrapf(errors.ErrInsufficientAmount, "amount %s does not exceed the fee %s", o.Amount, p.Fee)
		}
		buyer, err := o.Amount.Sub(p.Fee)
		if err != nil {
			return nil, err
		}
		outputs = []TxOut{
			{Address: o.BuyerAddress, Value: buyer},
		}
	default:
		return nil, errors.Wrapf(errors.ErrState, "no settlement for %s order", outcome)
	}

	tx := &Transaction{
		Inputs: []TxoPointer{
			{ID: append([]byte(nil), o.PaymentTransactionID...), Index: 0},
		},
		Outputs: outputs,
		Attributes: Attributes{
			ChainHexID: p.ChainHexID,
			AllowedView: []AccessPolicy{
				{ViewKey: append([]byte(nil), o.MerchantViewKey...), Access: AccessAllData},
				{ViewKey: append([]byte(nil), o.BuyerViewKey...), Access: AccessAllData},
				{ViewKey: append([]byte(nil), o.EscrowViewKey...), Access: AccessAllData},
			},
		},
	}
	return tx, nil
}

// BuildID is like Build but returns the transaction ID as well.
func BuildID(o *orders.Order, outcome orders.Status, p Params) (*Transaction, []byte, error) {
	tx, err := Build(o, outcome, p)
	if err != nil {
		return nil, nil, err
	}
	id, err := tx.ID()
	if err != nil {
		return nil, nil, err
	}
	return tx, id, nil
}
