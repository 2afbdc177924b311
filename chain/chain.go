/*
Package chain gives access to the blockchain node: transaction lookup,
broadcast and address balances.
*/
package chain

import (
	"context"
	"time"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/coin"
	"github.com/iov-one/escrowd/errors"
)

// Transaction is a transaction known to the chain.
type Transaction struct {
	ID     escrowd.HexBytes `json:"id"`
	Height int64            `json:"height"`
}

// Client is the blockchain API used by the escrow.
type Client interface {
	// FetchTransaction returns the transaction with given ID or
	// ErrNotFound.
	FetchTransaction(ctx context.Context, txID []byte) (*Transaction, error)
	// BroadcastTransaction submits a signed transaction and returns its
	// hash once it is accepted to the mempool.
	BroadcastTransaction(ctx context.Context, raw []byte) ([]byte, error)
	// SyncAddressBalances returns the current balance of each address.
	SyncAddressBalances(ctx context.Context, addresses []string) (map[string]coin.Amount, error)
}

// WithTimeouts returns a client that bounds the duration of each call.
// Broadcast calls use the broadcast timeout, all other calls use the sync
// timeout. An expired call fails with ErrTimeout.
func WithTimeouts(c Client, broadcast, sync time.Duration) Client {
	return &timeoutClient{next: c, broadcast: broadcast, sync: sync}
}

type timeoutClient struct {
	next      Client
	broadcast time.Duration
	sync      time.Duration
}

func (t *timeoutClient) FetchTransaction(ctx context.Context, txID []byte) (*Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, t.sync)
	defer cancel()
	var res *Transaction
	err := bounded(ctx, "fetch transaction", func() error {
		var err error
		res, err = t.next.FetchTransaction(ctx, txID)
		return err
	})
	return res, err
}

func (t *timeoutClient) BroadcastTransaction(ctx context.Context, raw []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.broadcast)
	defer cancel()
	var res []byte
	err := bounded(ctx, "broadcast", func() error {
		var err error
		res, err = t.next.BroadcastTransaction(ctx, raw)
		return err
	})
	return res, err
}

func (t *timeoutClient) SyncAddressBalances(ctx context.Context, addresses []string) (map[string]coin.Amount, error) {
	ctx, cancel := context.WithTimeout(ctx, t.sync)
	defer cancel()
	var res map[string]coin.Amount
	err := bounded(ctx, "sync addresses", func() error {
		var err error
		res, err = t.next.SyncAddressBalances(ctx, addresses)
		return err
	})
	return res, err
}

// bounded runs fn and returns early with ErrTimeout when the context is
// done. The node API does not accept a context, so fn keeps running in the
// background until the node answers. Results of such a call are dropped.
func bounded(ctx context.Context, op string, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		var err error
		defer func() { done <- err }()
		defer errors.Recover(&err)
		err = fn()
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() != nil && !errors.ErrTimeout.Is(err) {
			return errors.Wrapf(errors.ErrTimeout, "%s: %s", op, err)
		}
		return err
	case <-ctx.Done():
		return errors.Wrapf(errors.ErrTimeout, "%s: %s", op, ctx.Err())
	}
}
