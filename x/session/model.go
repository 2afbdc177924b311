package session

import (
	"github.com/iov-one/escrowd"
	"github.com/iov-one/escrowd/errors"
	"github.com/iov-one/escrowd/orm"
	"github.com/iov-one/escrowd/x/orders"
)

// State is the progress of a signing session.
type State string

const (
	// Opened sessions exist in the wallet. The buyer commitment may not be
	// registered yet.
	Opened State = "Opened"
	// CommitmentsExchanged sessions have the buyer commitment registered.
	CommitmentsExchanged State = "CommitmentsExchanged"
	// NoncesExchanged sessions have the buyer nonce registered.
	NoncesExchanged State = "NoncesExchanged"
	// SignaturesExchanged sessions have the aggregated signature.
	SignaturesExchanged State = "SignaturesExchanged"
	// Finalized sessions were broadcast.
	Finalized State = "Finalized"
)

var stateRank = map[State]int{
	Opened:               1,
	CommitmentsExchanged: 2,
	NoncesExchanged:      3,
	SignaturesExchanged:  4,
	Finalized:            5,
}

// Validate returns an error if this is not a known state.
func (s State) Validate() error {
	if _, ok := stateRank[s]; !ok {
		return errors.Wrapf(errors.ErrInput, "unknown session state %q", s)
	}
	return nil
}

// Reached returns true if the session progressed to at least given state.
func (s State) Reached(other State) bool {
	return stateRank[s] >= stateRank[other]
}

const (
	// CommitmentSize is the length of a nonce commitment.
	CommitmentSize = 32
	// PartialSignatureSize is the length of a partial signature.
	PartialSignatureSize = 32
)

// Session is the local record of the signing protocol of an order. Buyer
// material is recorded before it is sent to the wallet so that a repeated
// request can be compared with what was already sent.
type Session struct {
	OrderID   string           `json:"order_id"`
	SessionID escrowd.HexBytes `json:"session_id"`
	// TransactionID is the ID of the settlement transaction the session
	// signs.
	TransactionID escrowd.HexBytes `json:"transaction_id"`
	// Outcome is the order status the settlement transaction was built for.
	Outcome orders.Status `json:"outcome"`
	State   State         `json:"state"`

	BuyerCommitment          escrowd.HexBytes `json:"buyer_commitment,omitempty"`
	MerchantCommitment       escrowd.HexBytes `json:"merchant_commitment,omitempty"`
	MerchantNonce            escrowd.HexBytes `json:"merchant_nonce,omitempty"`
	BuyerNonce               escrowd.HexBytes `json:"buyer_nonce,omitempty"`
	BuyerPartialSignature    escrowd.HexBytes `json:"buyer_partial_signature,omitempty"`
	MerchantPartialSignature escrowd.HexBytes `json:"merchant_partial_signature,omitempty"`
	Signature                escrowd.HexBytes `json:"signature,omitempty"`
	BroadcastHash            escrowd.HexBytes `json:"broadcast_hash,omitempty"`
}

func (s *Session) Validate() error {
	var errs error
	if s.OrderID == "" {
		errs = errors.AppendField(errs, "OrderID", errors.ErrEmpty)
	}
	errs = errors.AppendField(errs, "SessionID", validateID(s.SessionID))
	errs = errors.AppendField(errs, "TransactionID", validateID(s.TransactionID))
	if s.Outcome != orders.Delivering && s.Outcome != orders.Refunding {
		errs = errors.AppendField(errs, "Outcome", errors.Wrapf(errors.ErrState, "cannot settle %q", s.Outcome))
	}
	errs = errors.AppendField(errs, "State", s.State.Validate())
	if len(s.BuyerCommitment) != 0 && len(s.BuyerCommitment) != CommitmentSize {
		errs = errors.AppendField(errs, "BuyerCommitment", errors.Wrapf(errors.ErrInput, "want %d bytes", CommitmentSize))
	}
	if len(s.BuyerPartialSignature) != 0 && len(s.BuyerPartialSignature) != PartialSignatureSize {
		errs = errors.AppendField(errs, "BuyerPartialSignature", errors.Wrapf(errors.ErrInput, "want %d bytes", PartialSignatureSize))
	}
	if s.State.Reached(CommitmentsExchanged) && len(s.BuyerCommitment) == 0 {
		errs = errors.AppendField(errs, "BuyerCommitment", errors.ErrEmpty)
	}
	if s.State.Reached(NoncesExchanged) && len(s.BuyerNonce) == 0 {
		errs = errors.AppendField(errs, "BuyerNonce", errors.ErrEmpty)
	}
	if s.State.Reached(SignaturesExchanged) && len(s.Signature) == 0 {
		errs = errors.AppendField(errs, "Signature", errors.ErrEmpty)
	}
	if s.State == Finalized && len(s.BroadcastHash) == 0 {
		errs = errors.AppendField(errs, "BroadcastHash", errors.ErrEmpty)
	}
	return errs
}

func validateID(id []byte) error {
	switch n := len(id); {
	case n == 0:
		return errors.ErrEmpty
	case n != orders.TxIDSize:
		return errors.Wrapf(errors.ErrInput, "want %d bytes, got %d", orders.TxIDSize, n)
	}
	return nil
}

// Bucket stores sessions by order ID. Each order has at most one session.
type Bucket struct {
	db escrowd.KVStore
	b  orm.ModelBucket
}

// NewBucket returns a session bucket using given store.
func NewBucket(db escrowd.KVStore) *Bucket {
	return &Bucket{
		db: db,
		b:  orm.NewModelBucket("sessions", &Session{}),
	}
}

// Get returns the session of the order or ErrNotFound.
func (b *Bucket) Get(orderID string) (*Session, error) {
	var s Session
	if err := b.b.One(b.db, []byte(orderID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save stores the session, replacing the previous record of the order.
func (b *Bucket) Save(s *Session) error {
	return b.b.Put(b.db, []byte(s.OrderID), s)
}
