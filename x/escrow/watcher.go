package escrow

import (
	"context"
	"time"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/chain"
	"github.com/iov-one/escrowd/coin"
	"github.com/iov-one/escrowd/events"
	"github.com/iov-one/escrowd/worker"
	"github.com/iov-one/escrowd/x/orders"
	"github.com/iov-one/escrowd/x/utils"
)

// Funded is an order whose multisig address holds at least the order
// amount.
type Funded struct {
	OrderID string      `json:"order_id"`
	Address string      `json:"address"`
	Balance coin.Amount `json:"balance"`
}

// Watcher polls the balances of multisig addresses of orders awaiting
// payment. It never records a payment because the balance does not tell
// which transaction paid, it only announces funded orders.
type Watcher struct {
	orders *orders.Manager
	chain  chain.Client
	pool   *worker.Pool
	// announced holds orders already reported as funded.
	announced map[string]bool
}

// NewWatcher returns a watcher. The chain client is expected to enforce the
// sync timeout, see chain.WithTimeouts.
func NewWatcher(om *orders.Manager, c chain.Client, pool *worker.Pool) *Watcher {
	return &Watcher{
		orders:    om,
		chain:     c,
		pool:      pool,
		announced: make(map[string]bool),
	}
}

// Run syncs every interval until the context is cancelled. Sync failures
// are logged and retried on the next tick.
func (w *Watcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			funded, err := w.Sync(ctx)
			utils.LogDuration(ctx, start, "address sync", err, true, "funded", len(funded))
		}
	}
}

// Sync reads the balances of all pending orders once and returns orders
// funded since the previous call. A lifecycle event is published for each
// of them. Sync must not be called concurrently.
func (w *Watcher) Sync(ctx context.Context) ([]Funded, error) {
	pending, err := w.orders.ListOrdersByStatus(ctx, orders.PendingPayment)
	if err != nil {
		return nil, err
	}
	byAddr := make(map[string][]*orders.Order)
	var addrs []string
	awaiting := make(map[string]bool, len(pending))
	for _, o := range pending {
		if len(o.PaymentTransactionID) != 0 {
			continue
		}
		awaiting[o.OrderID] = true
		if w.announced[o.OrderID] {
			continue
		}
		if _, ok := byAddr[o.MultisigAddress]; !ok {
			addrs = append(addrs, o.MultisigAddress)
		}
		byAddr[o.MultisigAddress] = append(byAddr[o.MultisigAddress], o)
	}
	// Orders paid or gone since they were announced are not reported again.
	for id := range w.announced {
		if !awaiting[id] {
			delete(w.announced, id)
		}
	}
	if len(addrs) == 0 {
		return nil, nil
	}

	var balances map[string]coin.Amount
	err = w.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		balances, err = w.chain.SyncAddressBalances(ctx, addrs)
		return err
	})
	if err != nil {
		return nil, err
	}

	var funded []Funded
	for _, addr := range addrs {
		balance := balances[addr]
		for _, o := range byAddr[addr] {
			if balance < o.Amount {
				continue
			}
			w.announced[o.OrderID] = true
			funded = append(funded, Funded{OrderID: o.OrderID, Address: addr, Balance: balance})
			escrowd.GetLogger(ctx).Info("order funded", "order", o.OrderID, "address", addr, "balance", balance)
			w.orders.Publish(ctx, events.Event{
				Type:    events.OrderFunded,
				OrderID: o.OrderID,
				Status:  string(o.Status),
			})
		}
	}
	return funded, nil
}
