package escrow_test

import (
	"context"
	"testing"
	"time"

	"github.com/iov-one/escrowd/coin"
	"github.com/iov-one/escrowd/events"
	"github.com/iov-one/escrowd/x/escrow"
	"github.com/iov-one/escrowd/x/orders/orderstest"
	"github.com/stretchr/testify/require"
)

func TestWatcherSync(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	funded, err := f.service.CreateOrder(ctx, newRequest(t, "order-1"))
	require.NoError(t, err)
	underfunded, err := f.service.CreateOrder(ctx, newRequest(t, "order-2"))
	require.NoError(t, err)

	w := escrow.NewWatcher(f.manager, f.chain, f.pool)

	got, err := w.Sync(ctx)
	require.NoError(t, err)
	require.Empty(t, got)

	f.chain.fund(funded.MultisigAddress, 20*coin.Unit)
	f.chain.fund(underfunded.MultisigAddress, 20*coin.Unit-1)

	got, err = w.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "order-1", got[0].OrderID)
	require.Equal(t, funded.MultisigAddress, got[0].Address)
	require.Equal(t, 20*coin.Unit, got[0].Balance)

	all := f.pub.Events()
	require.Equal(t, events.OrderFunded, all[len(all)-1].Type)

	// Funded orders are reported once.
	got, err = w.Sync(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWatcherSkipsPaidOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	o, err := f.service.CreateOrder(ctx, newRequest(t, "order-1"))
	require.NoError(t, err)
	f.chain.commit(orderstest.TxID(0x77))
	_, err = f.service.SubmitPayment(ctx, "order-1", orderstest.TxID(0x77))
	require.NoError(t, err)
	f.chain.fund(o.MultisigAddress, 20*coin.Unit)

	got, err := escrow.NewWatcher(f.manager, f.chain, f.pool).Sync(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWatcherForgetsPaidOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	o, err := f.service.CreateOrder(ctx, newRequest(t, "order-1"))
	require.NoError(t, err)
	f.chain.fund(o.MultisigAddress, 20*coin.Unit)

	w := escrow.NewWatcher(f.manager, f.chain, f.pool)
	got, err := w.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 1, w.Announced())

	f.chain.commit(orderstest.TxID(0x77))
	_, err = f.service.SubmitPayment(ctx, "order-1", orderstest.TxID(0x77))
	require.NoError(t, err)

	got, err = w.Sync(ctx)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Equal(t, 0, w.Announced())
}

func TestWatcherRunStops(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		escrow.NewWatcher(f.manager, f.chain, f.pool).Run(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
