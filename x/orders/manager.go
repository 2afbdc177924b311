package orders

import (
	"context"
	"time"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/events"
	"github.com/iov-one/escrowd/worker"
	"github.com/iov-one/escrowd/x/utils"
)

// Manager enforces the order lifecycle on top of a Repository. All mutations
// of the same order are serialized. Repository calls run in the worker pool.
type Manager struct {
	repo   Repository
	pool   *worker.Pool
	events events.Publisher
	locks  utils.KeyLock
	now    func() time.Time
}

// NewManager returns a manager. Use events.Nop{} if lifecycle events are not
// needed.
func NewManager(repo Repository, pool *worker.Pool, pub events.Publisher) *Manager {
	return &Manager{
		repo:   repo,
		pool:   pool,
		events: pub,
		now:    time.Now,
	}
}

// CreateOrder validates and stores a new order. The status is always
// PendingPayment and all write-once fields are cleared.
func (m *Manager) CreateOrder(ctx context.Context, o *Order) (*Order, error) {
	o = o.Copy()
	o.Status = PendingPayment
	o.SessionID = nil
	o.PaymentTransactionID = nil
	o.SettlementTransactionID = nil
	if o.CreatedAt == 0 {
		o.CreatedAt = m.now().Unix()
	}
	if err := o.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid order")
	}

	unlock := m.locks.Lock(o.OrderID)
	defer unlock()

	err := m.pool.Do(ctx, func(context.Context) error {
		return m.repo.Insert(o)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "order %q", o.OrderID)
	}
	m.Publish(ctx, events.Event{Type: events.OrderCreated, OrderID: o.OrderID, Status: string(o.Status)})
	return o, nil
}

// GetOrder returns the order with given ID or ErrNotFound.
func (m *Manager) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	if orderID == "" {
		return nil, errors.Wrap(errors.ErrEmpty, "order id")
	}
	var o *Order
	err := m.pool.Do(ctx, func(context.Context) error {
		var err error
		o, err = m.repo.GetByOrderID(orderID)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "order %q", orderID)
	}
	return o, nil
}

// ListOrdersByStatus returns all orders in any of given statuses, ordered by
// order ID.
func (m *Manager) ListOrdersByStatus(ctx context.Context, statuses ...Status) ([]*Order, error) {
	if len(statuses) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "status set")
	}
	for _, s := range statuses {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	var res []*Order
	err := m.pool.Do(ctx, func(context.Context) error {
		var err error
		res, err = m.repo.ListByStatusSet(statuses...)
		return err
	})
	return res, err
}

// TransitionStatus moves the order to given status. A transition not allowed
// by the lifecycle fails with ErrState and leaves the order untouched.
func (m *Manager) TransitionStatus(ctx context.Context, orderID string, to Status) (*Order, error) {
	if err := to.Validate(); err != nil {
		return nil, err
	}

	unlock := m.locks.Lock(orderID)
	defer unlock()

	var updated *Order
	err := m.pool.Do(ctx, func(context.Context) error {
		o, err := m.repo.GetByOrderID(orderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, to) {
			return errors.Wrapf(errors.ErrState, "cannot change status from %s to %s", o.Status, to)
		}
		updated, err = m.repo.UpdateStatus(orderID, o.Status, to)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "order %q", orderID)
	}
	m.Publish(ctx, events.Event{Type: events.OrderStatus, OrderID: orderID, Status: string(to)})
	return updated, nil
}

// RecordPaymentTransaction sets the payment transaction ID. It fails with
// ErrDuplicate if one is already set.
func (m *Manager) RecordPaymentTransaction(ctx context.Context, orderID string, txID []byte) (*Order, error) {
	if len(txID) != TxIDSize {
		return nil, errors.Wrapf(errors.ErrInput, "payment transaction id must be %d bytes", TxIDSize)
	}

	unlock := m.locks.Lock(orderID)
	defer unlock()

	var updated *Order
	err := m.pool.Do(ctx, func(context.Context) error {
		var err error
		updated, err = m.repo.SetPaymentTransactionID(orderID, txID)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "order %q", orderID)
	}
	m.Publish(ctx, events.Event{Type: events.OrderPaid, OrderID: orderID, TransactionID: txID})
	return updated, nil
}

// RecordSessionAndSettlement sets the session and settlement transaction IDs
// at once. It fails with ErrDuplicate if the session is already set.
func (m *Manager) RecordSessionAndSettlement(ctx context.Context, orderID string, sessionID, settlementTxID []byte) (*Order, error) {
	if len(sessionID) != TxIDSize {
		return nil, errors.Wrapf(errors.ErrInput, "session id must be %d bytes", TxIDSize)
	}
	if len(settlementTxID) != TxIDSize {
		return nil, errors.Wrapf(errors.ErrInput, "settlement transaction id must be %d bytes", TxIDSize)
	}

	unlock := m.locks.Lock(orderID)
	defer unlock()

	var updated *Order
	err := m.pool.Do(ctx, func(context.Context) error {
		var err error
		updated, err = m.repo.SetSessionAndSettlement(orderID, sessionID, settlementTxID)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "order %q", orderID)
	}
	m.Publish(ctx, events.Event{Type: events.OrderSession, OrderID: orderID, TransactionID: settlementTxID})
	return updated, nil
}

// Publish sends a lifecycle event. Publishing never fails the operation
// because the change is already stored, so errors are only logged.
func (m *Manager) Publish(ctx context.Context, e events.Event) {
	if e.Time.IsZero() {
		e.Time = m.now().UTC()
	}
	if err := m.events.Publish(ctx, e); err != nil {
		escrowd.GetLogger(ctx).Error("cannot publish order event",
			"type", e.Type, "order", e.OrderID, "err", err)
	}
}
