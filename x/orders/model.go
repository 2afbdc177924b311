package orders

import (
	"regexp"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/coin"
	"github.com/iov-one/escrowd/crypto/bech32"
	"github.com/iov-one/escrowd/errors"
)

// Status is the lifecycle state of an order.
type Status string

const (
	PendingPayment Status = "PendingPayment"
	Delivering     Status = "Delivering"
	Refunding      Status = "Refunding"
	Completed      Status = "Completed"
	Refunded       Status = "Refunded"
)

// Statuses lists all statuses in lifecycle order.
var Statuses = []Status{PendingPayment, Delivering, Refunding, Completed, Refunded}

// transitions lists all allowed status changes.
var transitions = map[Status][]Status{
	PendingPayment: {Delivering, Refunding},
	Delivering:     {Completed},
	Refunding:      {Refunded},
}

// Validate returns an error if the status is not known.
func (s Status) Validate() error {
	switch s {
	case PendingPayment, Delivering, Refunding, Completed, Refunded:
		return nil
	}
	return errors.Wrapf(errors.ErrInput, "unknown status %q", string(s))
}

// IsTerminal returns true if no transition is possible from this status.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Refunded
}

// CanTransition returns true if an order in status from can move to
// status to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParseStatus returns the status for given name.
func ParseStatus(name string) (Status, error) {
	s := Status(name)
	return s, s.Validate()
}

const (
	// PublicKeySize is the length of a compressed secp256k1 public key.
	// Both public and view keys use it.
	PublicKeySize = 33

	// TxIDSize is the length of a transaction identifier.
	TxIDSize = 32

	maxOrderIDSize = 128
)

var isOrderID = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`).MatchString

// Order is a three party escrow agreement between a buyer, the merchant and
// the escrow.
type Order struct {
	OrderID string `json:"order_id"`
	Status  Status `json:"status"`
	// Amount paid by the buyer, deposit included.
	Amount          coin.Amount      `json:"amount"`
	BuyerPublicKey  escrowd.HexBytes `json:"buyer_public_key"`
	BuyerViewKey    escrowd.HexBytes `json:"buyer_view_key"`
	BuyerAddress    string           `json:"buyer_address"`
	EscrowPublicKey escrowd.HexBytes `json:"escrow_public_key"`
	EscrowViewKey   escrowd.HexBytes `json:"escrow_view_key"`

	// Merchant keys belong to the wallet created for this order.
	MerchantPublicKey escrowd.HexBytes `json:"merchant_public_key"`
	MerchantViewKey   escrowd.HexBytes `json:"merchant_view_key"`
	MerchantAddress   string           `json:"merchant_address"`
	// MultisigAddress is the 2-of-3 address the buyer pays into.
	MultisigAddress string `json:"multisig_address"`

	SessionID               escrowd.HexBytes `json:"session_id"`
	PaymentTransactionID    escrowd.HexBytes `json:"payment_transaction_id"`
	SettlementTransactionID escrowd.HexBytes `json:"settlement_transaction_id"`

	// CreatedAt is a unix timestamp in seconds.
	CreatedAt int64 `json:"created_at"`
}

// Validate returns all problems of the order as field errors.
func (o *Order) Validate() error {
	var errs error
	switch {
	case o.OrderID == "":
		errs = errors.AppendField(errs, "OrderID", errors.ErrEmpty)
	case len(o.OrderID) > maxOrderIDSize:
		errs = errors.AppendField(errs, "OrderID", errors.Wrapf(errors.ErrInput, "longer than %d characters", maxOrderIDSize))
	case !isOrderID(o.OrderID):
		errs = errors.AppendField(errs, "OrderID", errors.Wrap(errors.ErrInput, "invalid characters"))
	}
	errs = errors.AppendField(errs, "Status", o.Status.Validate())
	if o.Amount == 0 {
		errs = errors.AppendField(errs, "Amount", errors.Wrap(errors.ErrAmount, "must be greater than zero"))
	} else {
		errs = errors.AppendField(errs, "Amount", o.Amount.Validate())
	}
	errs = errors.AppendField(errs, "BuyerPublicKey", validateKey(o.BuyerPublicKey))
	errs = errors.AppendField(errs, "BuyerViewKey", validateKey(o.BuyerViewKey))
	errs = errors.AppendField(errs, "EscrowPublicKey", validateKey(o.EscrowPublicKey))
	errs = errors.AppendField(errs, "EscrowViewKey", validateKey(o.EscrowViewKey))
	errs = errors.AppendField(errs, "MerchantPublicKey", validateKey(o.MerchantPublicKey))
	errs = errors.AppendField(errs, "MerchantViewKey", validateKey(o.MerchantViewKey))
	errs = errors.AppendField(errs, "BuyerAddress", validateAddress(o.BuyerAddress))
	errs = errors.AppendField(errs, "MerchantAddress", validateAddress(o.MerchantAddress))
	errs = errors.AppendField(errs, "MultisigAddress", validateAddress(o.MultisigAddress))
	errs = errors.AppendField(errs, "SessionID", validateOptionalID(o.SessionID))
	errs = errors.AppendField(errs, "PaymentTransactionID", validateOptionalID(o.PaymentTransactionID))
	errs = errors.AppendField(errs, "SettlementTransactionID", validateOptionalID(o.SettlementTransactionID))
	if (len(o.SessionID) == 0) != (len(o.SettlementTransactionID) == 0) {
		errs = errors.AppendField(errs, "SessionID", errors.Wrap(errors.ErrState, "session and settlement transaction are set together"))
	}
	if len(o.SessionID) != 0 && len(o.PaymentTransactionID) == 0 {
		errs = errors.AppendField(errs, "PaymentTransactionID", errors.Wrap(errors.ErrState, "required once a session exists"))
	}
	if o.CreatedAt < 0 {
		errs = errors.AppendField(errs, "CreatedAt", errors.Wrap(errors.ErrInput, "negative"))
	}
	return errs
}

func validateKey(key []byte) error {
	switch n := len(key); {
	case n == 0:
		return errors.ErrEmpty
	case n != PublicKeySize:
		return errors.Wrapf(errors.ErrInput, "want %d bytes, got %d", PublicKeySize, n)
	}
	return nil
}

func validateAddress(addr string) error {
	if addr == "" {
		return errors.ErrEmpty
	}
	_, _, err := bech32.Decode(addr)
	return err
}

func validateOptionalID(id []byte) error {
	if len(id) != 0 && len(id) != TxIDSize {
		return errors.Wrapf(errors.ErrInput, "want %d bytes, got %d", TxIDSize, len(id))
	}
	return nil
}

// Copy returns a deep copy of the order.
func (o *Order) Copy() *Order {
	c := *o
	c.BuyerPublicKey = copyBytes(o.BuyerPublicKey)
	c.BuyerViewKey = copyBytes(o.BuyerViewKey)
	c.EscrowPublicKey = copyBytes(o.EscrowPublicKey)
	c.EscrowViewKey = copyBytes(o.EscrowViewKey)
	c.MerchantPublicKey = copyBytes(o.MerchantPublicKey)
	c.MerchantViewKey = copyBytes(o.MerchantViewKey)
	c.SessionID = copyBytes(o.SessionID)
	c.PaymentTransactionID = copyBytes(o.PaymentTransactionID)
	c.SettlementTransactionID = copyBytes(o.SettlementTransactionID)
	return &c
}

func copyBytes(b []byte) escrowd.HexBytes {
	if b == nil {
		return nil
	}
	return append(escrowd.HexBytes{}, b...)
}
