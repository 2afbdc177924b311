package escrow

import (
	"context"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/chain"
	"github.com/iov-one/escrowd/coin"
	"github.com/iov-one/escrowd/crypto/bech32"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/wallet"
	"github.com/iov-one/escrowd/worker"
	"github.com/iov-one/escrowd/x/orders"
	"github.com/iov-one/escrowd/x/session"
)

// CreateOrderRequest holds the buyer and escrow data of a new order.
type CreateOrderRequest struct {
	OrderID         string           `json:"order_id"`
	Amount          coin.Amount      `json:"amount"`
	BuyerPublicKey  escrowd.HexBytes `json:"buyer_public_key"`
	BuyerViewKey    escrowd.HexBytes `json:"buyer_view_key"`
	BuyerAddress    string           `json:"buyer_address"`
	EscrowPublicKey escrowd.HexBytes `json:"escrow_public_key"`
	EscrowViewKey   escrowd.HexBytes `json:"escrow_view_key"`
}

// Validate checks the request. Addresses must belong to the network
// identified by hrp.
func (r *CreateOrderRequest) Validate(hrp string) error {
	var errs error
	if r.OrderID == "" {
		errs = errors.AppendField(errs, "OrderID", errors.ErrEmpty)
	}
	if r.Amount == 0 {
		errs = errors.AppendField(errs, "Amount", errors.Wrap(errors.ErrAmount, "must be greater than zero"))
	}
	errs = errors.AppendField(errs, "BuyerAddress", bech32.ValidateAddress(hrp, r.BuyerAddress))
	errs = errors.AppendField(errs, "BuyerPublicKey", validateKey(r.BuyerPublicKey))
	errs = errors.AppendField(errs, "BuyerViewKey", validateKey(r.BuyerViewKey))
	errs = errors.AppendField(errs, "EscrowPublicKey", validateKey(r.EscrowPublicKey))
	errs = errors.AppendField(errs, "EscrowViewKey", validateKey(r.EscrowViewKey))
	return errs
}

func validateKey(key []byte) error {
	switch n := len(key); {
	case n == 0:
		return errors.ErrEmpty
	case n != orders.PublicKeySize:
		return errors.Wrapf(errors.ErrInput, "want %d bytes, got %d", orders.PublicKeySize, n)
	}
	return nil
}

// Service runs the escrow operations on top of the order lifecycle.
type Service struct {
	orders *orders.Manager
	coord  *session.Coordinator
	wallet wallet.Service
	chain  chain.Client
	pool   *worker.Pool
	hrp    string
}

// NewService returns a service. hrp is the bech32 prefix of the network
// addresses.
func NewService(
	om *orders.Manager,
	coord *session.Coordinator,
	w wallet.Service,
	c chain.Client,
	pool *worker.Pool,
	hrp string,
) *Service {
	return &Service{
		orders: om,
		coord:  coord,
		wallet: w,
		chain:  c,
		pool:   pool,
		hrp:    hrp,
	}
}

// CreateOrder creates the wallet of the order, derives the merchant keys,
// payout address and the 2-of-3 multisig address the buyer pays into, and
// stores the order.
func (s *Service) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*orders.Order, error) {
	if err := req.Validate(s.hrp); err != nil {
		return nil, errors.Wrap(err, "invalid order")
	}
	switch _, err := s.orders.GetOrder(ctx, req.OrderID); {
	case err == nil:
		return nil, errors.Wrapf(errors.ErrDuplicate, "order %q", req.OrderID)
	case !errors.ErrNotFound.Is(err):
		return nil, err
	}

	o := &orders.Order{
		OrderID:         req.OrderID,
		Amount:          req.Amount,
		BuyerPublicKey:  req.BuyerPublicKey,
		BuyerViewKey:    req.BuyerViewKey,
		BuyerAddress:    req.BuyerAddress,
		EscrowPublicKey: req.EscrowPublicKey,
		EscrowViewKey:   req.EscrowViewKey,
	}
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		// A wallet left by a failed attempt is reused.
		if err := s.wallet.CreateWalletForOrder(ctx, o.OrderID); err != nil && !errors.ErrDuplicate.Is(err) {
			return errors.Wrap(err, "create wallet")
		}
		var err error
		if o.MerchantPublicKey, err = s.wallet.DerivePublicKey(ctx, o.OrderID); err != nil {
			return errors.Wrap(err, "public key")
		}
		if o.MerchantViewKey, err = s.wallet.DeriveViewKey(ctx, o.OrderID); err != nil {
			return errors.Wrap(err, "view key")
		}
		if o.MerchantAddress, err = s.wallet.DeriveTransferAddress(ctx, o.OrderID); err != nil {
			return errors.Wrap(err, "transfer address")
		}
		participants := [][]byte{o.MerchantPublicKey, o.BuyerPublicKey, o.EscrowPublicKey}
		o.MultisigAddress, err = s.wallet.DeriveMultisigAddress(ctx, o.OrderID, participants, o.MerchantPublicKey, wallet.Threshold)
		return errors.Wrap(err, "multisig address")
	})
	if err != nil {
		return nil, errors.Wrapf(err, "order %q", req.OrderID)
	}
	return s.orders.CreateOrder(ctx, o)
}

// GetOrder returns the order or ErrNotFound.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

// ListOrders returns orders in any of given statuses.
func (s *Service) ListOrders(ctx context.Context, statuses ...orders.Status) ([]*orders.Order, error) {
	return s.orders.ListOrdersByStatus(ctx, statuses...)
}

// SubmitPayment records the transaction that paid the order, once the chain
// confirms it exists.
func (s *Service) SubmitPayment(ctx context.Context, orderID string, txID []byte) (*orders.Order, error) {
	if len(txID) != orders.TxIDSize {
		return nil, errors.Wrapf(errors.ErrInput, "transaction id must be %d bytes", orders.TxIDSize)
	}
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != orders.PendingPayment {
		return nil, errors.Wrapf(errors.ErrState, "order %q is %s", orderID, o.Status)
	}
	if len(o.PaymentTransactionID) != 0 {
		return nil, errors.Wrapf(errors.ErrDuplicate, "order %q is already paid", orderID)
	}
	err = s.pool.Do(ctx, func(ctx context.Context) error {
		_, err := s.chain.FetchTransaction(ctx, txID)
		return errors.Wrap(err, "payment transaction")
	})
	if err != nil {
		return nil, err
	}
	return s.orders.RecordPaymentTransaction(ctx, orderID, txID)
}

// MarkDelivering is the merchant decision to deliver a paid order.
func (s *Service) MarkDelivering(ctx context.Context, orderID string) (*orders.Order, error) {
	return s.decide(ctx, orderID, orders.Delivering)
}

// MarkRefunding is the merchant decision to refund a paid order.
func (s *Service) MarkRefunding(ctx context.Context, orderID string) (*orders.Order, error) {
	return s.decide(ctx, orderID, orders.Refunding)
}

func (s *Service) decide(ctx context.Context, orderID string, to orders.Status) (*orders.Order, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(o.PaymentTransactionID) == 0 {
		return nil, errors.Wrapf(errors.ErrState, "order %q is not paid", orderID)
	}
	return s.orders.TransitionStatus(ctx, orderID, to)
}

// ExchangeCommitment runs the first signing round.
func (s *Service) ExchangeCommitment(ctx context.Context, orderID string, commitment []byte) (*session.Commitment, error) {
	return s.coord.ExchangeCommitment(ctx, orderID, commitment)
}

// ConfirmDelivery runs the second signing round and completes the order.
func (s *Service) ConfirmDelivery(ctx context.Context, orderID string, nonce, partialSig []byte) (*session.Settlement, error) {
	return s.coord.Confirm(ctx, orderID, orders.Completed, nonce, partialSig)
}

// ConfirmRefund runs the second signing round and refunds the order.
func (s *Service) ConfirmRefund(ctx context.Context, orderID string, nonce, partialSig []byte) (*session.Settlement, error) {
	return s.coord.Confirm(ctx, orderID, orders.Refunded, nonce, partialSig)
}
