package orders

import (
	"sort"
	"sync"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/orm"
)

// Repository is the durable store of orders. Implementations must check the
// write-once and status conditions atomically with the write.
type Repository interface {
	GetByOrderID(orderID string) (*Order, error)
	ExistsByOrderID(orderID string) (bool, error)
	// Insert fails with ErrDuplicate if an order with the same ID exists.
	Insert(o *Order) error
	// UpdateStatus changes the status only if the current status is from.
	// Otherwise ErrState is returned.
	UpdateStatus(orderID string, from, to Status) (*Order, error)
	// SetPaymentTransactionID fails with ErrDuplicate if the payment
	// transaction is already set.
	SetPaymentTransactionID(orderID string, txID []byte) (*Order, error)
	// SetSessionAndSettlement sets both values at once. It fails with
	// ErrDuplicate if the session is already set.
	SetSessionAndSettlement(orderID string, sessionID, settlementTxID []byte) (*Order, error)
	// ListByStatusSet returns orders in any of given statuses, ordered by
	// order ID.
	ListByStatusSet(statuses ...Status) ([]*Order, error)
}

const statusIndex = "status"

// Bucket is a Repository storing orders in a key value store.
type Bucket struct {
	db escrowd.KVStore
	b  orm.ModelBucket
	// mu serializes read-modify-write cycles.
	mu sync.Mutex
}

var _ Repository = (*Bucket)(nil)

// NewBucket returns a repository using given store.
func NewBucket(db escrowd.KVStore) *Bucket {
	return &Bucket{
		db: db,
		b:  orm.NewModelBucket("orders", &Order{}, orm.WithIndex(statusIndex, statusIndexer)),
	}
}

func statusIndexer(m orm.Model) ([]byte, error) {
	o, ok := m.(*Order)
	if !ok {
		return nil, errors.Wrapf(errors.ErrType, "cannot index %T", m)
	}
	return []byte(o.Status), nil
}

func (b *Bucket) GetByOrderID(orderID string) (*Order, error) {
	var o Order
	if err := b.b.One(b.db, []byte(orderID), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (b *Bucket) ExistsByOrderID(orderID string) (bool, error) {
	switch err := b.b.Has(b.db, []byte(orderID)); {
	case err == nil:
		return true, nil
	case errors.ErrNotFound.Is(err):
		return false, nil
	default:
		return false, err
	}
}

func (b *Bucket) Insert(o *Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Create(b.db, []byte(o.OrderID), o)
}

// update loads the order, applies fn and stores the result, all while
// holding the bucket lock.
func (b *Bucket) update(orderID string, fn func(*Order) error) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, err := b.GetByOrderID(orderID)
	if err != nil {
		return nil, err
	}
	if err := fn(o); err != nil {
		return nil, err
	}
	if err := b.b.Put(b.db, []byte(orderID), o); err != nil {
		return nil, err
	}
	return o, nil
}

func (b *Bucket) UpdateStatus(orderID string, from, to Status) (*Order, error) {
	return b.update(orderID, func(o *Order) error {
		if o.Status != from {
			return errors.Wrapf(errors.ErrState, "order is %s, not %s", o.Status, from)
		}
		o.Status = to
		return nil
	})
}

func (b *Bucket) SetPaymentTransactionID(orderID string, txID []byte) (*Order, error) {
	return b.update(orderID, func(o *Order) error {
		if len(o.PaymentTransactionID) != 0 {
			return errors.Wrapf(errors.ErrDuplicate, "payment transaction already set to %s", o.PaymentTransactionID)
		}
		o.PaymentTransactionID = txID
		return nil
	})
}

func (b *Bucket) SetSessionAndSettlement(orderID string, sessionID, settlementTxID []byte) (*Order, error) {
	return b.update(orderID, func(o *Order) error {
		if len(o.SessionID) != 0 || len(o.SettlementTransactionID) != 0 {
			return errors.Wrapf(errors.ErrDuplicate, "session already set to %s", o.SessionID)
		}
		o.SessionID = sessionID
		o.SettlementTransactionID = settlementTxID
		return nil
	})
}

func (b *Bucket) ListByStatusSet(statuses ...Status) ([]*Order, error) {
	var res []*Order
	seen := make(map[Status]bool)
	for _, s := range statuses {
		if seen[s] {
			continue
		}
		seen[s] = true

		keys, err := b.b.IndexKeys(b.db, statusIndex, []byte(s))
		if err != nil {
			return nil, errors.Wrapf(err, "status %s", s)
		}
		for _, key := range keys {
			o, err := b.GetByOrderID(string(key))
			if err != nil {
				return nil, errors.Wrapf(err, "indexed order %q", key)
			}
			res = append(res, o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].OrderID < res[j].OrderID })
	return res, nil
}
