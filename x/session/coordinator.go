package session

import (
	"bytes"
	"context"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/chain"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/events"
	"github.com/iov-one/escrowd/wallet"
	"github.com/iov-one/escrowd/worker"
	"github.com/iov-one/escrowd/x/orders"
	"github.com/iov-one/escrowd/x/settlement"
	"github.com/iov-one/escrowd/x/utils"
)

// OrderManager is the part of the order lifecycle the coordinator depends
// on. orders.Manager implements it.
type OrderManager interface {
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	RecordSessionAndSettlement(ctx context.Context, orderID string, sessionID, settlementTxID []byte) (*orders.Order, error)
	TransitionStatus(ctx context.Context, orderID string, to orders.Status) (*orders.Order, error)
	Publish(ctx context.Context, e events.Event)
}

var _ OrderManager = (*orders.Manager)(nil)

// Coordinator runs the signing rounds. Rounds of the same order are
// serialized.
type Coordinator struct {
	orders   OrderManager
	sessions *Bucket
	wallet   wallet.Service
	chain    chain.Client
	pool     *worker.Pool
	params   settlement.Params
	locks    utils.KeyLock
}

// NewCoordinator returns a coordinator. The chain client is expected to
// enforce the broadcast timeout, see chain.WithTimeouts.
func NewCoordinator(
	om OrderManager,
	sessions *Bucket,
	w wallet.Service,
	c chain.Client,
	pool *worker.Pool,
	params settlement.Params,
) *Coordinator {
	return &Coordinator{
		orders:   om,
		sessions: sessions,
		wallet:   w,
		chain:    c,
		pool:     pool,
		params:   params,
	}
}

// Commitment is the merchant answer to the first round.
type Commitment struct {
	SessionID          escrowd.HexBytes `json:"session_id"`
	TransactionID      escrowd.HexBytes `json:"transaction_id"`
	MerchantCommitment escrowd.HexBytes `json:"commitment"`
	MerchantNonce      escrowd.HexBytes `json:"nonce"`
}

// Settlement is the result of the second round.
type Settlement struct {
	Order         *orders.Order    `json:"order"`
	TransactionID escrowd.HexBytes `json:"transaction_id"`
	BroadcastHash escrowd.HexBytes `json:"broadcast_hash"`
}

// ExchangeCommitment runs the first round. The order must be Delivering or
// Refunding and must not have a session yet, otherwise ErrState or
// ErrDuplicate is returned and nothing changes.
func (c *Coordinator) ExchangeCommitment(ctx context.Context, orderID string, buyerCommitment []byte) (*Commitment, error) {
	if len(buyerCommitment) != CommitmentSize {
		return nil, errors.Wrapf(errors.ErrInput, "commitment must be %d bytes", CommitmentSize)
	}

	unlock := c.locks.Lock(orderID)
	defer unlock()

	o, err := c.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != orders.Delivering && o.Status != orders.Refunding {
		return nil, errors.Wrapf(errors.ErrState, "order %q is %s", orderID, o.Status)
	}
	if len(o.SessionID) != 0 {
		return nil, errors.Wrapf(errors.ErrDuplicate, "order %q session already exists", orderID)
	}

	_, txID, err := settlement.BuildID(o, o.Status, c.params)
	if err != nil {
		return nil, errors.Wrapf(err, "settlement of %q", orderID)
	}

	s, err := c.load(ctx, orderID)
	switch {
	case errors.ErrNotFound.Is(err):
		s = nil
	case err != nil:
		return nil, err
	case !bytes.Equal(s.TransactionID, txID):
		escrowd.GetLogger(ctx).Info("discarding session of another transaction",
			"order", orderID, "session", s.SessionID)
		s = nil
	case len(s.BuyerCommitment) != 0 && !bytes.Equal(s.BuyerCommitment, buyerCommitment):
		escrowd.GetLogger(ctx).Info("discarding session of another commitment",
			"order", orderID, "session", s.SessionID)
		s = nil
	}

	if s == nil {
		if s, err = c.open(ctx, o, txID); err != nil {
			return nil, err
		}
	}

	if !s.State.Reached(CommitmentsExchanged) {
		err := c.register(ctx, s, &s.BuyerCommitment, buyerCommitment, "commitment", func(ctx context.Context) error {
			return c.wallet.RegisterCommitment(ctx, s.SessionID, o.BuyerPublicKey, buyerCommitment)
		})
		if err != nil {
			return nil, err
		}
		s.State = CommitmentsExchanged
		if err := c.save(ctx, s); err != nil {
			return nil, err
		}
	}

	if len(s.MerchantCommitment) == 0 || len(s.MerchantNonce) == 0 {
		err := c.do(ctx, func(ctx context.Context) error {
			var err error
			if s.MerchantCommitment, err = c.wallet.DeriveOwnCommitment(ctx, s.SessionID); err != nil {
				return errors.Wrap(err, "derive commitment")
			}
			if s.MerchantNonce, err = c.wallet.DeriveOwnNonce(ctx, s.SessionID); err != nil {
				return errors.Wrap(err, "derive nonce")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if err := c.save(ctx, s); err != nil {
			return nil, err
		}
	}

	if _, err := c.orders.RecordSessionAndSettlement(ctx, orderID, s.SessionID, s.TransactionID); err != nil {
		return nil, err
	}

	return &Commitment{
		SessionID:          s.SessionID,
		TransactionID:      s.TransactionID,
		MerchantCommitment: s.MerchantCommitment,
		MerchantNonce:      s.MerchantNonce,
	}, nil
}

// open starts a new wallet session over the settlement transaction. The
// merchant leads the session and the buyer is the only other participant.
func (c *Coordinator) open(ctx context.Context, o *orders.Order, txID []byte) (*Session, error) {
	var sid []byte
	err := c.do(ctx, func(ctx context.Context) error {
		participants := [][]byte{o.MerchantPublicKey, o.BuyerPublicKey}
		var err error
		sid, err = c.wallet.OpenSession(ctx, o.OrderID, txID, participants, o.MerchantPublicKey)
		return errors.Wrap(err, "open session")
	})
	if err != nil {
		return nil, err
	}
	s := &Session{
		OrderID:       o.OrderID,
		SessionID:     sid,
		TransactionID: txID,
		Outcome:       o.Status,
		State:         Opened,
	}
	if err := c.save(ctx, s); err != nil {
		return nil, err
	}
	escrowd.GetLogger(ctx).Debug("session opened", "order", o.OrderID, "session", s.SessionID)
	return s, nil
}

// Confirm runs the second round and settles the order with given outcome,
// Completed or Refunded. The outcome must follow the order status, otherwise
// ErrState is returned and nothing changes.
func (c *Coordinator) Confirm(ctx context.Context, orderID string, outcome orders.Status, buyerNonce, buyerPartialSig []byte) (*Settlement, error) {
	if len(buyerNonce) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "nonce")
	}
	if len(buyerPartialSig) != PartialSignatureSize {
		return nil, errors.Wrapf(errors.ErrInput, "partial signature must be %d bytes", PartialSignatureSize)
	}
	var from orders.Status
	switch outcome {
	case orders.Completed:
		from = orders.Delivering
	case orders.Refunded:
		from = orders.Refunding
	default:
		return nil, errors.Wrapf(errors.ErrInput, "cannot settle as %q", outcome)
	}

	unlock := c.locks.Lock(orderID)
	defer unlock()

	o, err := c.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != from {
		return nil, errors.Wrapf(errors.ErrState, "order %q is %s, cannot become %s", orderID, o.Status, outcome)
	}
	if len(o.SessionID) == 0 {
		return nil, errors.Wrapf(errors.ErrState, "order %q has no session", orderID)
	}

	s, err := c.load(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "session record")
	}
	if !bytes.Equal(s.SessionID, o.SessionID) {
		return nil, errors.Wrapf(errors.ErrHuman, "order %q session %s is not recorded", orderID, o.SessionID)
	}

	if !s.State.Reached(Finalized) {
		if err := c.sign(ctx, s, o, buyerNonce, buyerPartialSig); err != nil {
			return nil, err
		}
		if err := c.broadcast(ctx, s, o); err != nil {
			return nil, err
		}
	}

	settled, err := c.orders.TransitionStatus(ctx, orderID, outcome)
	if err != nil {
		return nil, err
	}
	c.orders.Publish(ctx, events.Event{
		Type:          events.OrderSettled,
		OrderID:       orderID,
		Status:        string(outcome),
		TransactionID: s.TransactionID,
	})
	return &Settlement{
		Order:         settled,
		TransactionID: s.TransactionID,
		BroadcastHash: s.BroadcastHash,
	}, nil
}

// sign registers the buyer material and aggregates the signature.
func (c *Coordinator) sign(ctx context.Context, s *Session, o *orders.Order, nonce, partialSig []byte) error {
	if s.State.Reached(NoncesExchanged) {
		if !bytes.Equal(s.BuyerNonce, nonce) {
			return errors.Wrap(errors.ErrDuplicate, "a different nonce is already registered")
		}
	} else {
		err := c.register(ctx, s, &s.BuyerNonce, nonce, "nonce", func(ctx context.Context) error {
			return c.wallet.RegisterNonce(ctx, s.SessionID, o.BuyerPublicKey, nonce)
		})
		if err != nil {
			return err
		}
		s.State = NoncesExchanged
		if err := c.save(ctx, s); err != nil {
			return err
		}
	}

	if s.State.Reached(SignaturesExchanged) {
		if !bytes.Equal(s.BuyerPartialSignature, partialSig) {
			return errors.Wrap(errors.ErrDuplicate, "a different partial signature is already registered")
		}
		return nil
	}

	if len(s.MerchantPartialSignature) == 0 {
		err := c.do(ctx, func(ctx context.Context) error {
			var err error
			s.MerchantPartialSignature, err = c.wallet.DerivePartialSignature(ctx, s.SessionID)
			return errors.Wrap(err, "derive partial signature")
		})
		if err != nil {
			return err
		}
		if err := c.save(ctx, s); err != nil {
			return err
		}
	}

	err := c.register(ctx, s, &s.BuyerPartialSignature, partialSig, "partial signature", func(ctx context.Context) error {
		return c.wallet.RegisterPartialSignature(ctx, s.SessionID, o.BuyerPublicKey, partialSig)
	})
	if err != nil {
		return err
	}

	err = c.do(ctx, func(ctx context.Context) error {
		var err error
		s.Signature, err = c.wallet.AggregateSignature(ctx, s.SessionID)
		return errors.Wrap(err, "aggregate signature")
	})
	if err != nil {
		return err
	}
	s.State = SignaturesExchanged
	return c.save(ctx, s)
}

// broadcast rebuilds the settlement transaction, attaches the witness and
// sends it to the chain. A rebuilt transaction that differs from the signed
// one is never broadcast.
func (c *Coordinator) broadcast(ctx context.Context, s *Session, o *orders.Order) error {
	tx, txID, err := settlement.BuildID(o, s.Outcome, c.params)
	if err != nil {
		return errors.Wrap(err, "rebuild settlement")
	}
	if !bytes.Equal(txID, o.SettlementTransactionID) || !bytes.Equal(txID, s.TransactionID) {
		return errors.Wrapf(errors.ErrHuman, "rebuilt settlement %X does not match %s", txID, o.SettlementTransactionID)
	}

	signed := settlement.SignedTransaction{Transaction: *tx}
	err = c.do(ctx, func(ctx context.Context) error {
		var err error
		signed.Witness, err = c.wallet.BuildWitness(ctx, s.SessionID)
		return errors.Wrap(err, "build witness")
	})
	if err != nil {
		return err
	}
	raw, err := signed.Marshal()
	if err != nil {
		return err
	}

	err = c.do(ctx, func(ctx context.Context) error {
		var err error
		s.BroadcastHash, err = c.chain.BroadcastTransaction(ctx, raw)
		return errors.Wrap(err, "broadcast settlement")
	})
	if err != nil {
		return err
	}
	s.State = Finalized
	if err := c.save(ctx, s); err != nil {
		return err
	}
	escrowd.GetLogger(ctx).Info("settlement broadcast",
		"order", o.OrderID, "transaction", s.TransactionID, "hash", s.BroadcastHash)
	return nil
}

// register records value in field and sends it to the wallet with call. A
// value recorded before must be equal. The wallet answering ErrDuplicate
// means the recorded value was already sent.
//
// The field is cleared only when the wallet definitely rejected the value,
// so that a corrected value can be sent. After a timeout or any other
// upstream failure the wallet may hold the value, so it stays recorded and a
// retry must repeat it.
func (c *Coordinator) register(
	ctx context.Context,
	s *Session,
	field *escrowd.HexBytes,
	value []byte,
	name string,
	call func(context.Context) error,
) error {
	if len(*field) != 0 {
		if !bytes.Equal(*field, value) {
			return errors.Wrapf(errors.ErrDuplicate, "a different %s is already registered", name)
		}
	} else {
		*field = append(escrowd.HexBytes{}, value...)
		if err := c.save(ctx, s); err != nil {
			return err
		}
	}

	err := c.do(ctx, call)
	switch {
	case err == nil:
		return nil
	case errors.ErrDuplicate.Is(err):
		escrowd.GetLogger(ctx).Debug("already registered", "what", name, "session", s.SessionID)
		return nil
	case rejected(err):
		*field = nil
		if serr := c.save(ctx, s); serr != nil {
			escrowd.GetLogger(ctx).Error("cannot clear session material",
				"what", name, "session", s.SessionID, "err", serr)
		}
		return errors.Wrapf(err, "register %s", name)
	default:
		return errors.Wrapf(err, "register %s", name)
	}
}

// rejected returns true if the wallet refused a registration without
// storing anything.
func rejected(err error) bool {
	return errors.ErrInput.Is(err) || errors.ErrState.Is(err) || errors.ErrNotFound.Is(err)
}

func (c *Coordinator) do(ctx context.Context, fn func(context.Context) error) error {
	return c.pool.Do(ctx, fn)
}

func (c *Coordinator) load(ctx context.Context, orderID string) (*Session, error) {
	var s *Session
	err := c.do(ctx, func(context.Context) error {
		var err error
		s, err = c.sessions.Get(orderID)
		return err
	})
	return s, err
}

func (c *Coordinator) save(ctx context.Context, s *Session) error {
	return c.do(ctx, func(context.Context) error {
		return errors.Wrap(c.sessions.Save(s), "save session")
	})
}
