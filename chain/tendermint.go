package chain

import (
	"context"
	"strings"

	"github.com/iov-one/escrowd/coin"
	"github.com/iov-one/escrowd/errors"
	cmn "github.com/tendermint/tendermint/libs/common"
	rpcclient "github.com/tendermint/tendermint/rpc/client"
	ctypes "github.com/tendermint/tendermint/rpc/core/types"
	tmtypes "github.com/tendermint/tendermint/types"
)

// BalancePath is the ABCI query path used to read an address balance. The
// query data is the bech32 address and the response value is the balance as
// a decimal string. An empty value stands for a zero balance.
const BalancePath = "/account/balance"

// node is the part of the tendermint RPC client used here.
// rpcclient.HTTP implements it.
type node interface {
	Tx(hash []byte, prove bool) (*ctypes.ResultTx, error)
	BroadcastTxSync(tx tmtypes.Tx) (*ctypes.ResultBroadcastTx, error)
	ABCIQuery(path string, data cmn.HexBytes) (*ctypes.ResultABCIQuery, error)
}

var _ node = (*rpcclient.HTTP)(nil)

// TendermintClient is a Client talking to a tendermint node over RPC.
// Calls are blocking and do not honour the context deadline. Use
// WithTimeouts to bound them.
type TendermintClient struct {
	conn node
}

var _ Client = (*TendermintClient)(nil)

// NewTendermintClient returns a client connected to given remote, for
// example tcp://localhost:26657.
func NewTendermintClient(remote string) *TendermintClient {
	return &TendermintClient{conn: rpcclient.NewHTTP(remote, "/websocket")}
}

// FetchTransaction returns the committed transaction or ErrNotFound.
func (c *TendermintClient) FetchTransaction(ctx context.Context, txID []byte) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrTimeout, err.Error())
	}
	if len(txID) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "transaction id")
	}
	res, err := c.conn.Tx(txID, false)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return nil, errors.Wrapf(errors.ErrNotFound, "transaction %X", txID)
		}
		return nil, errors.Wrapf(errors.ErrUpstream, "tx: %s", err)
	}
	if res.TxResult.Code != 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "transaction %X failed with code %d: %s",
			txID, res.TxResult.Code, res.TxResult.Log)
	}
	return &Transaction{
		ID:     txID,
		Height: res.Height,
	}, nil
}

// BroadcastTransaction submits the transaction to the mempool and returns
// its hash. A transaction rejected by CheckTx fails with ErrUpstream.
func (c *TendermintClient) BroadcastTransaction(ctx context.Context, raw []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrTimeout, err.Error())
	}
	if len(raw) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "transaction")
	}
	res, err := c.conn.BroadcastTxSync(raw)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrUpstream, "broadcast: %s", err)
	}
	if res.Code != 0 {
		return nil, errors.Wrapf(errors.ErrUpstream, "check tx failed with code %d: %s", res.Code, res.Log)
	}
	return res.Hash, nil
}

// SyncAddressBalances reads the balance of every address.
func (c *TendermintClient) SyncAddressBalances(ctx context.Context, addresses []string) (map[string]coin.Amount, error) {
	balances := make(map[string]coin.Amount, len(addresses))
	for _, addr := range addresses {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(errors.ErrTimeout, err.Error())
		}
		res, err := c.conn.ABCIQuery(BalancePath, cmn.HexBytes(addr))
		if err != nil {
			return nil, errors.Wrapf(errors.ErrUpstream, "query %s: %s", addr, err)
		}
		if res.Response.Code != 0 {
			return nil, errors.Wrapf(errors.ErrUpstream, "query %s failed with code %d: %s",
				addr, res.Response.Code, res.Response.Log)
		}
		if len(res.Response.Value) == 0 {
			balances[addr] = 0
			continue
		}
		amount, err := coin.ParseAmount(string(res.Response.Value))
		if err != nil {
			return nil, errors.Wrapf(errors.ErrUpstream, "balance of %s: %s", addr, err)
		}
		balances[addr] = amount
	}
	return balances, nil
}
