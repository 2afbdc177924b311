// Package wallettest provides an in-memory wallet daemon for tests.
package wallettest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/iov-one/escrowd/crypto/bech32"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/wallet"
)

// Wallet is a deterministic wallet.Service. It enforces the same ordering and
// write-once rules as the daemon, so protocol misuse is reported. It is safe
// for concurrent use.
type Wallet struct {
	HRP string

	mu       sync.Mutex
	wallets  map[string]bool
	sessions map[string]*session
	opened   int
	fail     map[string]error
	calls    map[string]int
}

var _ wallet.Service = (*Wallet)(nil)

// New returns an empty wallet issuing addresses for given network.
func New(hrp string) *Wallet {
	return &Wallet{
		HRP:      hrp,
		wallets:  make(map[string]bool),
		sessions: make(map[string]*session),
		fail:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

type session struct {
	participants [][]byte
	self         []byte
	commitments  map[string][]byte
	nonces       map[string][]byte
	partials     map[string][]byte
	ownPartial   []byte
	signature    []byte
}

// FailNext makes the next call of the method fail with err.
func (w *Wallet) FailNext(method string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail[method] = err
}

// Calls returns how many times the method was called.
func (w *Wallet) Calls(method string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[method]
}

// Sessions returns the number of opened sessions.
func (w *Wallet) Sessions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opened
}

// enter must be called with the lock held.
func (w *Wallet) enter(method string) error {
	w.calls[method]++
	if err, ok := w.fail[method]; ok {
		delete(w.fail, method)
		return err
	}
	return nil
}

func hash(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// PublicKey returns the key DerivePublicKey returns for the order.
func PublicKey(orderID string) []byte {
	return append([]byte{0x02}, hash([]byte("pub:"+orderID))...)
}

// ViewKey returns the key DeriveViewKey returns for the order.
func ViewKey(orderID string) []byte {
	return append([]byte{0x03}, hash([]byte("view:"+orderID))...)
}

// Commitment returns the value a buyer would commit to for given nonce.
func Commitment(nonce []byte) []byte {
	return hash([]byte("commitment:"), nonce)
}

func (w *Wallet) session(id []byte) (*session, error) {
	s, ok := w.sessions[hex.EncodeToString(id)]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "session %x", id)
	}
	return s, nil
}

func (w *Wallet) requireWallet(orderID string) error {
	if !w.wallets[orderID] {
		return errors.Wrapf(errors.ErrNotFound, "wallet of %q", orderID)
	}
	return nil
}

func (w *Wallet) CreateWalletForOrder(ctx context.Context, orderID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("CreateWalletForOrder"); err != nil {
		return err
	}
	if w.wallets[orderID] {
		return errors.Wrapf(errors.ErrDuplicate, "wallet of %q already exists", orderID)
	}
	w.wallets[orderID] = true
	return nil
}

func (w *Wallet) DerivePublicKey(ctx context.Context, orderID string) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("DerivePublicKey"); err != nil {
		return nil, err
	}
	if err := w.requireWallet(orderID); err != nil {
		return nil, err
	}
	return PublicKey(orderID), nil
}

func (w *Wallet) DeriveViewKey(ctx context.Context, orderID string) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("DeriveViewKey"); err != nil {
		return nil, err
	}
	if err := w.requireWallet(orderID); err != nil {
		return nil, err
	}
	return ViewKey(orderID), nil
}

func (w *Wallet) DeriveTransferAddress(ctx context.Context, orderID string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("DeriveTransferAddress"); err != nil {
		return "", err
	}
	if err := w.requireWallet(orderID); err != nil {
		return "", err
	}
	return bech32.Encode(w.HRP, hash([]byte("transfer:"+orderID)))
}

func (w *Wallet) DeriveMultisigAddress(ctx context.Context, orderID string, participants [][]byte, self []byte, threshold uint32) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("DeriveMultisigAddress"); err != nil {
		return "", err
	}
	if err := w.requireWallet(orderID); err != nil {
		return "", err
	}
	if threshold == 0 || int(threshold) > len(participants) {
		return "", errors.Wrapf(errors.ErrInput, "threshold %d of %d", threshold, len(participants))
	}
	if !contains(participants, self) {
		return "", errors.Wrap(errors.ErrInput, "self is not a participant")
	}
	return bech32.Encode(w.HRP, hash(bytes.Join(participants, nil)))
}

func contains(keys [][]byte, key []byte) bool {
	for _, k := range keys {
		if bytes.Equal(k, key) {
			return true
		}
	}
	return false
}

func (w *Wallet) OpenSession(ctx context.Context, orderID string, message []byte, participants [][]byte, self []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("OpenSession"); err != nil {
		return nil, err
	}
	if err := w.requireWallet(orderID); err != nil {
		return nil, err
	}
	if len(message) == 0 {
		return nil, errors.Wrap(errors.ErrInput, "empty message")
	}
	if !contains(participants, self) {
		return nil, errors.Wrap(errors.ErrInput, "self is not a participant")
	}
	w.opened++
	id := hash(message, []byte{byte(w.opened)})
	w.sessions[hex.EncodeToString(id)] = &session{
		participants: participants,
		self:         self,
		commitments:  make(map[string][]byte),
		nonces:       make(map[string][]byte),
		partials:     make(map[string][]byte),
	}
	return id, nil
}

// others returns all participants but self.
func (s *session) others() [][]byte {
	var res [][]byte
	for _, p := range s.participants {
		if !bytes.Equal(p, s.self) {
			res = append(res, p)
		}
	}
	return res
}

func (s *session) requireOther(participant []byte) error {
	for _, p := range s.others() {
		if bytes.Equal(p, participant) {
			return nil
		}
	}
	return errors.Wrapf(errors.ErrInput, "%x is not a session participant", participant)
}

func registered(m map[string][]byte, keys [][]byte) bool {
	for _, k := range keys {
		if _, ok := m[hex.EncodeToString(k)]; !ok {
			return false
		}
	}
	return true
}

func (w *Wallet) RegisterCommitment(ctx context.Context, sessionID, participant, commitment []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("RegisterCommitment"); err != nil {
		return err
	}
	s, err := w.session(sessionID)
	if err != nil {
		return err
	}
	if err := s.requireOther(participant); err != nil {
		return err
	}
	key := hex.EncodeToString(participant)
	if _, ok := s.commitments[key]; ok {
		return errors.Wrap(errors.ErrDuplicate, "nonce commitment already added")
	}
	s.commitments[key] = commitment
	return nil
}

func (w *Wallet) DeriveOwnCommitment(ctx context.Context, sessionID []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("DeriveOwnCommitment"); err != nil {
		return nil, err
	}
	if _, err := w.session(sessionID); err != nil {
		return nil, err
	}
	return Commitment(hash([]byte("nonce:"), sessionID)), nil
}

func (w *Wallet) DeriveOwnNonce(ctx context.Context, sessionID []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("DeriveOwnNonce"); err != nil {
		return nil, err
	}
	s, err := w.session(sessionID)
	if err != nil {
		return nil, err
	}
	if !registered(s.commitments, s.others()) {
		return nil, errors.Wrap(errors.ErrState, "not all nonce commitments are added")
	}
	return hash([]byte("nonce:"), sessionID), nil
}

func (w *Wallet) RegisterNonce(ctx context.Context, sessionID, participant, nonce []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("RegisterNonce"); err != nil {
		return err
	}
	s, err := w.session(sessionID)
	if err != nil {
		return err
	}
	if err := s.requireOther(participant); err != nil {
		return err
	}
	key := hex.EncodeToString(participant)
	commitment, ok := s.commitments[key]
	if !ok {
		return errors.Wrap(errors.ErrState, "nonce commitment not added")
	}
	if _, ok := s.nonces[key]; ok {
		return errors.Wrap(errors.ErrDuplicate, "nonce already added")
	}
	if !bytes.Equal(Commitment(nonce), commitment) {
		return errors.Wrap(errors.ErrInput, "nonce does not match the commitment")
	}
	s.nonces[key] = nonce
	return nil
}

func (w *Wallet) DerivePartialSignature(ctx context.Context, sessionID []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("DerivePartialSignature"); err != nil {
		return nil, err
	}
	s, err := w.session(sessionID)
	if err != nil {
		return nil, err
	}
	if !registered(s.nonces, s.others()) {
		return nil, errors.Wrap(errors.ErrState, "not all nonces are added")
	}
	s.ownPartial = hash([]byte("partial:"), sessionID)
	return s.ownPartial, nil
}

func (w *Wallet) RegisterPartialSignature(ctx context.Context, sessionID, participant, signature []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("RegisterPartialSignature"); err != nil {
		return err
	}
	s, err := w.session(sessionID)
	if err != nil {
		return err
	}
	if err := s.requireOther(participant); err != nil {
		return err
	}
	key := hex.EncodeToString(participant)
	if _, ok := s.nonces[key]; !ok {
		return errors.Wrap(errors.ErrState, "nonce not added")
	}
	if _, ok := s.partials[key]; ok {
		return errors.Wrap(errors.ErrDuplicate, "partial signature already added")
	}
	s.partials[key] = signature
	return nil
}

func (w *Wallet) AggregateSignature(ctx context.Context, sessionID []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("AggregateSignature"); err != nil {
		return nil, err
	}
	s, err := w.session(sessionID)
	if err != nil {
		return nil, err
	}
	if s.ownPartial == nil || !registered(s.partials, s.others()) {
		return nil, errors.Wrap(errors.ErrState, "not all partial signatures are available")
	}
	parts := [][]byte{s.ownPartial}
	for _, p := range s.others() {
		parts = append(parts, s.partials[hex.EncodeToString(p)])
	}
	sig := hash(parts...)
	s.signature = append(sig, hash(sig)...)
	return s.signature, nil
}

func (w *Wallet) BuildWitness(ctx context.Context, sessionID []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enter("BuildWitness"); err != nil {
		return nil, err
	}
	s, err := w.session(sessionID)
	if err != nil {
		return nil, err
	}
	if s.signature == nil {
		return nil, errors.Wrap(errors.ErrState, "signature not aggregated")
	}
	return append([]byte("witness:"), s.signature...), nil
}
