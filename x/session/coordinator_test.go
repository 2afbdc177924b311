package session_test

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/iov-one/escrowd/chain"
	"github.com/iov-one/escrowd/coin"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/events"
	"github.com/iov-one/escrowd/store"
	"github.com/iov-one/escrowd/wallet/wallettest"
	"github.com/iov-one/escrowd/worker"
	"github.com/iov-one/escrowd/x/orders"
	"github.com/iov-one/escrowd/x/orders/orderstest"
	"github.com/iov-one/escrowd/x/session"
	"github.com/iov-one/escrowd/x/settlement"
	. "github.com/smartystreets/goconvey/convey"
)

// node is an in-memory chain accepting every transaction.
var _ chain.Client = (*node)(nil)

type node struct {
	mu   sync.Mutex
	txs  [][]byte
	fail error
}

func (n *node) FetchTransaction(ctx context.Context, txID []byte) (*chain.Transaction, error) {
	return nil, errors.ErrNotFound
}

func (n *node) BroadcastTransaction(ctx context.Context, raw []byte) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		err := n.fail
		n.fail = nil
		return nil, err
	}
	n.txs = append(n.txs, raw)
	return []byte("hash"), nil
}

func (n *node) SyncAddressBalances(ctx context.Context, addresses []string) (map[string]coin.Amount, error) {
	return nil, nil
}

func (n *node) broadcasts() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([][]byte(nil), n.txs...)
}

// flakyOrders fails the next status transition when failTransition is set.
type flakyOrders struct {
	*orders.Manager
	failTransition bool
}

func (f *flakyOrders) TransitionStatus(ctx context.Context, orderID string, to orders.Status) (*orders.Order, error) {
	if f.failTransition {
		f.failTransition = false
		return nil, errors.Wrap(errors.ErrDatabase, "disk full")
	}
	return f.Manager.TransitionStatus(ctx, orderID, to)
}

// lostReply stores the next partial signature in the wallet and then reports
// a timeout, as a daemon whose answer never arrived.
type lostReply struct {
	*wallettest.Wallet
	lose bool
}

func (l *lostReply) RegisterPartialSignature(ctx context.Context, sessionID, participant, signature []byte) error {
	err := l.Wallet.RegisterPartialSignature(ctx, sessionID, participant, signature)
	if err == nil && l.lose {
		l.lose = false
		return errors.Wrap(errors.ErrTimeout, "register partial signature")
	}
	return err
}

type fixture struct {
	orders   *flakyOrders
	pub      *events.Memory
	sessions *session.Bucket
	wallet   *wallettest.Wallet
	chain    *node
	params   settlement.Params
	coord    *session.Coordinator
}

const orderID = "order-1"

var (
	buyerNonce      = []byte("buyer nonce")
	buyerCommitment = wallettest.Commitment(buyerNonce)
	buyerPartial    = bytes.Repeat([]byte{0x5a}, session.PartialSignatureSize)
)

// newFixture returns a coordinator with a paid order in given status.
func newFixture(t *testing.T, status orders.Status) *fixture {
	ctx := context.Background()
	db := store.NewMemStore()
	pool := worker.NewPool(4)
	pub := &events.Memory{}
	f := &fixture{
		orders:   &flakyOrders{Manager: orders.NewManager(orders.NewBucket(db), pool, pub)},
		pub:      pub,
		sessions: session.NewBucket(db),
		wallet:   wallettest.New(orderstest.HRP),
		chain:    &node{},
		params:   settlement.DefaultParams(0xab),
	}
	f.coord = session.NewCoordinator(f.orders, f.sessions, f.wallet, f.chain, pool, f.params)

	if _, err := f.orders.CreateOrder(ctx, orderstest.NewOrder(t, orderID)); err != nil {
		t.Fatalf("cannot create order: %s", err)
	}
	if err := f.wallet.CreateWalletForOrder(ctx, orderID); err != nil {
		t.Fatalf("cannot create wallet: %s", err)
	}
	if status == orders.PendingPayment {
		return f
	}
	if _, err := f.orders.RecordPaymentTransaction(ctx, orderID, orderstest.TxID(0x77)); err != nil {
		t.Fatalf("cannot record payment: %s", err)
	}
	if _, err := f.orders.TransitionStatus(ctx, orderID, status); err != nil {
		t.Fatalf("cannot change status: %s", err)
	}
	return f
}

func (f *fixture) order(t *testing.T) *orders.Order {
	o, err := f.orders.GetOrder(context.Background(), orderID)
	if err != nil {
		t.Fatalf("cannot get order: %s", err)
	}
	return o
}

func TestCoordinatorDelivery(t *testing.T) {
	ctx := context.Background()

	Convey("Given an order awaiting payment", t, func() {
		f := newFixture(t, orders.PendingPayment)

		Convey("The first round is refused and nothing is recorded", func() {
			_, err := f.coord.ExchangeCommitment(ctx, orderID, buyerCommitment)
			So(errors.ErrState.Is(err), ShouldBeTrue)
			So(f.order(t).SessionID, ShouldBeEmpty)
			So(f.wallet.Sessions(), ShouldEqual, 0)
		})
	})

	Convey("Given an order being delivered", t, func() {
		f := newFixture(t, orders.Delivering)

		Convey("A commitment of a wrong size is refused", func() {
			_, err := f.coord.ExchangeCommitment(ctx, orderID, []byte("short"))
			So(errors.ErrInput.Is(err), ShouldBeTrue)
		})

		Convey("The second round cannot run before the first one", func() {
			_, err := f.coord.Confirm(ctx, orderID, orders.Completed, buyerNonce, buyerPartial)
			So(errors.ErrState.Is(err), ShouldBeTrue)
		})

		Convey("When the first round completes", func() {
			c, err := f.coord.ExchangeCommitment(ctx, orderID, buyerCommitment)
			So(err, ShouldBeNil)

			_, wantID, err := settlement.BuildID(f.order(t), orders.Delivering, f.params)
			So(err, ShouldBeNil)

			Convey("The session signs the delivery settlement", func() {
				So([]byte(c.TransactionID), ShouldResemble, wantID)
				So(c.MerchantCommitment, ShouldHaveLength, session.CommitmentSize)
				So(c.MerchantNonce, ShouldNotBeEmpty)

				o := f.order(t)
				So([]byte(o.SessionID), ShouldResemble, []byte(c.SessionID))
				So([]byte(o.SettlementTransactionID), ShouldResemble, wantID)
			})

			Convey("Repeating it is a conflict", func() {
				_, err := f.coord.ExchangeCommitment(ctx, orderID, buyerCommitment)
				So(errors.ErrDuplicate.Is(err), ShouldBeTrue)
				So(f.wallet.Sessions(), ShouldEqual, 1)
			})

			Convey("A refund cannot be confirmed", func() {
				_, err := f.coord.Confirm(ctx, orderID, orders.Refunded, buyerNonce, buyerPartial)
				So(errors.ErrState.Is(err), ShouldBeTrue)
				So(f.order(t).Status, ShouldEqual, orders.Delivering)
				So(f.chain.broadcasts(), ShouldBeEmpty)
			})

			Convey("Confirming the delivery broadcasts the signed settlement", func() {
				res, err := f.coord.Confirm(ctx, orderID, orders.Completed, buyerNonce, buyerPartial)
				So(err, ShouldBeNil)
				So(res.Order.Status, ShouldEqual, orders.Completed)
				So([]byte(res.TransactionID), ShouldResemble, []byte(c.TransactionID))
				So([]byte(res.BroadcastHash), ShouldResemble, []byte("hash"))

				txs := f.chain.broadcasts()
				So(txs, ShouldHaveLength, 1)
				signed, err := settlement.UnmarshalSigned(txs[0])
				So(err, ShouldBeNil)
				gotID, err := signed.Transaction.ID()
				So(err, ShouldBeNil)
				So(gotID, ShouldResemble, []byte(c.TransactionID))
				So(bytes.HasPrefix(signed.Witness, []byte("witness:")), ShouldBeTrue)

				outs := signed.Transaction.Outputs
				So(outs, ShouldHaveLength, 2)
				So(outs[0].Value, ShouldEqual, 10*coin.Unit)
				So(outs[1].Value, ShouldEqual, 10*coin.Unit-1)

				all := f.pub.Events()
				So(all[len(all)-1].Type, ShouldEqual, events.OrderSettled)

				s, err := f.sessions.Get(orderID)
				So(err, ShouldBeNil)
				So(s.State, ShouldEqual, session.Finalized)
			})

			Convey("A nonce that does not match the commitment can be corrected", func() {
				_, err := f.coord.Confirm(ctx, orderID, orders.Completed, []byte("other nonce"), buyerPartial)
				So(errors.ErrInput.Is(err), ShouldBeTrue)

				s, err := f.sessions.Get(orderID)
				So(err, ShouldBeNil)
				So(s.BuyerNonce, ShouldBeEmpty)

				_, err = f.coord.Confirm(ctx, orderID, orders.Completed, buyerNonce, buyerPartial)
				So(err, ShouldBeNil)
			})

			Convey("Settlement parameters changed between rounds stop the broadcast", func() {
				params := f.params
				params.Fee = 2
				other := session.NewCoordinator(f.orders, f.sessions, f.wallet, f.chain, worker.NewPool(1), params)

				_, err := other.Confirm(ctx, orderID, orders.Completed, buyerNonce, buyerPartial)
				So(errors.ErrHuman.Is(err), ShouldBeTrue)
				So(f.chain.broadcasts(), ShouldBeEmpty)
				So(f.order(t).Status, ShouldEqual, orders.Delivering)
			})
		})
	})
}

func TestCoordinatorRefund(t *testing.T) {
	ctx := context.Background()

	Convey("Given an order being refunded", t, func() {
		f := newFixture(t, orders.Refunding)

		_, err := f.coord.ExchangeCommitment(ctx, orderID, buyerCommitment)
		So(err, ShouldBeNil)

		Convey("The delivery cannot be confirmed", func() {
			_, err := f.coord.Confirm(ctx, orderID, orders.Completed, buyerNonce, buyerPartial)
			So(errors.ErrState.Is(err), ShouldBeTrue)
			So(f.order(t).Status, ShouldEqual, orders.Refunding)
		})

		Convey("Confirming the refund returns the amount without the fee", func() {
			res, err := f.coord.Confirm(ctx, orderID, orders.Refunded, buyerNonce, buyerPartial)
			So(err, ShouldBeNil)
			So(res.Order.Status, ShouldEqual, orders.Refunded)

			signed, err := settlement.UnmarshalSigned(f.chain.broadcasts()[0])
			So(err, ShouldBeNil)
			So(signed.Transaction.Outputs, ShouldHaveLength, 1)
			So(signed.Transaction.Outputs[0].Address, ShouldEqual, f.order(t).BuyerAddress)
			So(signed.Transaction.Outputs[0].Value, ShouldEqual, 20*coin.Unit-1)
		})
	})
}

func TestCoordinatorConcurrentCommitments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, orders.Delivering)

	const n = 2
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.ExchangeCommitment(ctx, orderID, buyerCommitment)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.ErrDuplicate.Is(err):
			dup++
		default:
			t.Fatalf("unexpected error: %+v", err)
		}
	}
	if ok != 1 || dup != n-1 {
		t.Fatalf("want one success and %d conflicts, got %d and %d", n-1, ok, dup)
	}
	if got := f.wallet.Sessions(); got != 1 {
		t.Fatalf("want one wallet session, got %d", got)
	}
}

func TestCoordinatorResume(t *testing.T) {
	ctx := context.Background()

	Convey("Given an order being delivered", t, func() {
		f := newFixture(t, orders.Delivering)

		Convey("When the first round fails after the commitment was registered", func() {
			f.wallet.FailNext("DeriveOwnNonce", errors.Wrap(errors.ErrUpstream, "daemon restarted"))
			_, err := f.coord.ExchangeCommitment(ctx, orderID, buyerCommitment)
			So(errors.ErrUpstream.Is(err), ShouldBeTrue)
			So(f.order(t).SessionID, ShouldBeEmpty)

			Convey("A retry resumes the same session", func() {
				_, err := f.coord.ExchangeCommitment(ctx, orderID, buyerCommitment)
				So(err, ShouldBeNil)
				So(f.wallet.Sessions(), ShouldEqual, 1)
				So(f.wallet.Calls("RegisterCommitment"), ShouldEqual, 1)
			})

			Convey("A different commitment reopens the session", func() {
				other := wallettest.Commitment([]byte("another nonce"))
				c, err := f.coord.ExchangeCommitment(ctx, orderID, other)
				So(err, ShouldBeNil)
				So(f.wallet.Sessions(), ShouldEqual, 2)

				s, err := f.sessions.Get(orderID)
				So(err, ShouldBeNil)
				So([]byte(s.SessionID), ShouldResemble, []byte(c.SessionID))
				So([]byte(s.BuyerCommitment), ShouldResemble, other)
			})
		})

		Convey("When the second round fails after the nonce was registered", func() {
			_, err := f.coord.ExchangeCommitment(ctx, orderID, buyerCommitment)
			So(err, ShouldBeNil)

			f.wallet.FailNext("DerivePartialSignature", errors.Wrap(errors.ErrUpstream, "daemon restarted"))
			_, err = f.coord.Confirm(ctx, orderID, orders.Completed, buyerNonce, buyerPartial)
			So(errors.ErrUpstream.Is(err), ShouldBeTrue)

			Convey("A retry skips the nonce registration", func() {
				res, err := f.coord.Confirm(ctx, orderID, orders.Completed, buyerNonce, buyerPartial)
				So(err, ShouldBeNil)
				So(res.Order.Status, ShouldEqual, orders.Completed)
				So(f.wallet.Calls("RegisterNonce"), ShouldEqual, 1)
			})

			Convey("A retry with another nonce is a conflict", func() {
				_, err := f.coord.Confirm(ctx, orderID, orders.Completed, []byte("another nonce"), buyerPartial)
				So(errors.ErrDuplicate.Is(err), ShouldBeTrue)
				So(f.order(t).Status, ShouldEqual, orders.Delivering)
			})

			Convey("A nonce the wallet already knows counts as registered", func() {
				s, err := f.sessions.Get(orderID)
				So(err, ShouldBeNil)
				s.State = session.CommitmentsExchanged
				So(f.sessions.Save(s), ShouldBeNil)

				_, err = f.coord.Confirm(ctx, orderID, orders.Completed, buyerNonce, buyerPartial)
				So(err, ShouldBeNil)
				So(f.wallet.Calls("RegisterNonce"), ShouldEqual, 2)
			})
		})

		Convey("When the broadcast fails", func() {
			_, err := f.coord.ExchangeCommitment(ctx, orderID, buyerCommitment)
			So(err, ShouldBeNil)

			f.chain.fail = errors.Wrap(errors.ErrTimeout, "broadcast")
			_, err = f.coord.Confirm(ctx, orderID, orders.Completed, buyerNonce, buyerPartial)
			So(errors.ErrTimeout.Is(err), ShouldBeTrue)
			So(f.order(t).Status, ShouldEqual, orders.Delivering)

			Convey("A retry broadcasts the same signature", func() {
				_, err := f.coord.Confirm(ctx, orderID, orders.Completed, buyerNonce, buyerPartial)
				So(err, ShouldBeNil)
				So(f.chain.broadcasts(), ShouldHaveLength, 1)
				So(f.wallet.Calls("AggregateSignature"), ShouldEqual, 1)
			})
		})

		Convey("When the status cannot be stored after the broadcast", func() {
			_, err := f.coord.ExchangeCommitment(ctx, orderID, buyerCommitment)
			So(err, ShouldBeNil)

			f.orders.failTransition = true
			_, err = f.coord.Confirm(ctx, orderID, orders.Completed, buyerNonce, buyerPartial)
			So(errors.ErrDatabase.Is(err), ShouldBeTrue)

			Convey("A retry only changes the status", func() {
				res, err := f.coord.Confirm(ctx, orderID, orders.Completed, buyerNonce, buyerPartial)
				So(err, ShouldBeNil)
				So(res.Order.Status, ShouldEqual, orders.Completed)
				So(f.chain.broadcasts(), ShouldHaveLength, 1)
			})
		})

		Convey("When the wallet stored the partial signature but the reply was lost", func() {
			_, err := f.coord.ExchangeCommitment(ctx, orderID, buyerCommitment)
			So(err, ShouldBeNil)

			w := &lostReply{Wallet: f.wallet, lose: true}
			coord := session.NewCoordinator(f.orders, f.sessions, w, f.chain, worker.NewPool(2), f.params)
			_, err = coord.Confirm(ctx, orderID, orders.Completed, buyerNonce, buyerPartial)
			So(errors.ErrTimeout.Is(err), ShouldBeTrue)

			s, err := f.sessions.Get(orderID)
			So(err, ShouldBeNil)
			So([]byte(s.BuyerPartialSignature), ShouldResemble, buyerPartial)

			Convey("A retry with another partial signature is a conflict", func() {
				other := bytes.Repeat([]byte{0x6b}, session.PartialSignatureSize)
				_, err := coord.Confirm(ctx, orderID, orders.Completed, buyerNonce, other)
				So(errors.ErrDuplicate.Is(err), ShouldBeTrue)
				So(f.order(t).Status, ShouldEqual, orders.Delivering)
				So(f.chain.broadcasts(), ShouldBeEmpty)
			})

			Convey("A retry with the same partial signature settles the order", func() {
				res, err := coord.Confirm(ctx, orderID, orders.Completed, buyerNonce, buyerPartial)
				So(err, ShouldBeNil)
				So(res.Order.Status, ShouldEqual, orders.Completed)
				So(f.chain.broadcasts(), ShouldHaveLength, 1)
			})
		})
	})
}
