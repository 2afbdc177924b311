package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
)

// RPCClient implements Service using the JSON-RPC 2.0 API of the wallet
// daemon over HTTP.
type RPCClient struct {
	url        string
	name       string
	passphrase string
	cli        http.Client
	lastID     uint64
}

var _ Service = (*RPCClient)(nil)

// NewRPCClient returns a client of the daemon at url. Order wallets are
// named after the order, prefixed with name, and are protected with given
// passphrase.
func NewRPCClient(url, name, passphrase string, timeout time.Duration) *RPCClient {
	return &RPCClient{
		url:        url,
		name:       name,
		passphrase: passphrase,
		cli:        http.Client{Timeout: timeout},
	}
}

type walletRequest struct {
	Name       string `json:"name"`
	Passphrase string `json:"passphrase"`
}

func (c *RPCClient) request(orderID string) walletRequest {
	return walletRequest{
		Name:       c.name + "-" + orderID,
		Passphrase: c.passphrase,
	}
}

func (c *RPCClient) CreateWalletForOrder(ctx context.Context, orderID string) error {
	return c.call(ctx, "wallet_create", []interface{}{c.request(orderID)}, nil)
}

func (c *RPCClient) DerivePublicKey(ctx context.Context, orderID string) ([]byte, error) {
	return c.callHex(ctx, "multiSig_newAddressPublicKey", c.request(orderID))
}

func (c *RPCClient) DeriveViewKey(ctx context.Context, orderID string) ([]byte, error) {
	return c.callHex(ctx, "wallet_getViewKey", c.request(orderID))
}

func (c *RPCClient) DeriveTransferAddress(ctx context.Context, orderID string) (string, error) {
	var addr string
	err := c.call(ctx, "wallet_newTransferAddress", []interface{}{c.request(orderID)}, &addr)
	return addr, err
}

func (c *RPCClient) DeriveMultisigAddress(ctx context.Context, orderID string, participants [][]byte, self []byte, threshold uint32) (string, error) {
	var addr string
	params := []interface{}{c.request(orderID), hexList(participants), hex.EncodeToString(self), threshold}
	err := c.call(ctx, "multiSig_createAddress", params, &addr)
	return addr, err
}

func (c *RPCClient) OpenSession(ctx context.Context, orderID string, message []byte, participants [][]byte, self []byte) ([]byte, error) {
	return c.callHex(ctx, "multiSig_newSession",
		c.request(orderID), hex.EncodeToString(message), hexList(participants), hex.EncodeToString(self))
}

func (c *RPCClient) RegisterCommitment(ctx context.Context, sessionID, participant, commitment []byte) error {
	return c.call(ctx, "multiSig_addNonceCommitment", []interface{}{
		hex.EncodeToString(sessionID), c.passphrase, hex.EncodeToString(commitment), hex.EncodeToString(participant),
	}, nil)
}

func (c *RPCClient) DeriveOwnCommitment(ctx context.Context, sessionID []byte) ([]byte, error) {
	return c.callHex(ctx, "multiSig_nonceCommitment", hex.EncodeToString(sessionID), c.passphrase)
}

func (c *RPCClient) DeriveOwnNonce(ctx context.Context, sessionID []byte) ([]byte, error) {
	return c.callHex(ctx, "multiSig_nonce", hex.EncodeToString(sessionID), c.passphrase)
}

func (c *RPCClient) RegisterNonce(ctx context.Context, sessionID, participant, nonce []byte) error {
	return c.call(ctx, "multiSig_addNonce", []interface{}{
		hex.EncodeToString(sessionID), c.passphrase, hex.EncodeToString(nonce), hex.EncodeToString(participant),
	}, nil)
}

func (c *RPCClient) DerivePartialSignature(ctx context.Context, sessionID []byte) ([]byte, error) {
	return c.callHex(ctx, "multiSig_partialSign", hex.EncodeToString(sessionID), c.passphrase)
}

func (c *RPCClient) RegisterPartialSignature(ctx context.Context, sessionID, participant, signature []byte) error {
	return c.call(ctx, "multiSig_addPartialSignature", []interface{}{
		hex.EncodeToString(sessionID), c.passphrase, hex.EncodeToString(signature), hex.EncodeToString(participant),
	}, nil)
}

func (c *RPCClient) AggregateSignature(ctx context.Context, sessionID []byte) ([]byte, error) {
	return c.callHex(ctx, "multiSig_signature", hex.EncodeToString(sessionID), c.passphrase)
}

func (c *RPCClient) BuildWitness(ctx context.Context, sessionID []byte) ([]byte, error) {
	return c.callHex(ctx, "multiSig_witness", hex.EncodeToString(sessionID), c.passphrase)
}

func hexList(values [][]byte) []string {
	res := make([]string, len(values))
	for i, v := range values {
		res[i] = hex.EncodeToString(v)
	}
	return res
}

// callHex calls a method that returns a single hex encoded value.
func (c *RPCClient) callHex(ctx context.Context, method string, params ...interface{}) ([]byte, error) {
	var s string
	if err := c.call(ctx, method, params, &s); err != nil {
		return nil, err
	}
	raw, err := escrowd.DecodeHex(s)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrUpstream, "%s returned malformed hex: %s", method, err)
	}
	return raw, nil
}

type jsonrpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type jsonrpcResponse struct {
	ID     uint64          `json:"id"`
	Error  *jsonrpcError   `json:"error"`
	Result json.RawMessage `json:"result"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

func (e *jsonrpcError) Error() string {
	if len(e.Data) != 0 {
		return fmt.Sprintf("code %d, %s: %s", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("code %d, %s", e.Code, e.Message)
}

// JSON-RPC error codes returned by the daemon.
const (
	codeInvalidParams = -32602
	codeInvalidInput  = -32010
	codeNotFound      = -32011
)

// asError maps a daemon error to one of the registered errors.
func (e *jsonrpcError) asError(method string) error {
	text := strings.ToLower(e.Message + " " + e.Data)
	switch {
	case strings.Contains(text, "already"):
		return errors.Wrapf(errors.ErrDuplicate, "%s: %s", method, e)
	case e.Code == codeNotFound || strings.Contains(text, "not found"):
		return errors.Wrapf(errors.ErrNotFound, "%s: %s", method, e)
	case e.Code == codeInvalidParams || e.Code == codeInvalidInput:
		return errors.Wrapf(errors.ErrInput, "%s: %s", method, e)
	default:
		return errors.Wrapf(errors.ErrUpstream, "%s: %s", method, e)
	}
}

func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, dest interface{}) error {
	id := atomic.AddUint64(&c.lastID, 1)
	body, err := json.Marshal(jsonrpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return errors.Wrapf(errors.ErrHuman, "serialize %s request: %s", method, err)
	}

	req, err := http.NewRequest("POST", c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(errors.ErrHuman, "create http request: %s", err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.cli.Do(req)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return errors.Wrapf(errors.ErrTimeout, "%s: %s", method, err)
		}
		return errors.Wrapf(errors.ErrUpstream, "%s: %s", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 1e5))
		return errors.Wrapf(errors.ErrUpstream, "%s: bad response: %d %s", method, resp.StatusCode, string(b))
	}

	var payload jsonrpcResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1e6)).Decode(&payload); err != nil {
		return errors.Wrapf(errors.ErrUpstream, "%s: decode response: %s", method, err)
	}
	if payload.Error != nil {
		return payload.Error.asError(method)
	}
	if payload.ID != id {
		return errors.Wrapf(errors.ErrUpstream, "%s: response id %d, want %d", method, payload.ID, id)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(payload.Result, dest); err != nil {
		return errors.Wrapf(errors.ErrUpstream, "%s: decode result: %s", method, err)
	}
	return nil
}

func isTimeout(err error) bool {
	t, ok := err.(interface{ Timeout() bool })
	return ok && t.Timeout()
}
