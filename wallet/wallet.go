/*
Package wallet is the client of the wallet daemon that holds the merchant
keys.

Every order gets its own wallet. The daemon derives the merchant keys and
addresses and runs the 2-of-3 multi-signature sessions. Key material never
leaves the daemon, only public keys, commitments, nonces and signatures do.
*/
package wallet

import "context"

// Threshold is the number of signatures required to spend the escrow
// multisig output.
const Threshold = 2

// Service is the wallet daemon API used by the escrow.
//
// All binary values are exchanged hex encoded with the daemon. Registering
// the same material twice fails with ErrDuplicate.
type Service interface {
	// CreateWalletForOrder creates the wallet of an order. Creating an
	// existing wallet fails with ErrDuplicate.
	CreateWalletForOrder(ctx context.Context, orderID string) error
	DerivePublicKey(ctx context.Context, orderID string) ([]byte, error)
	DeriveViewKey(ctx context.Context, orderID string) ([]byte, error)
	// DeriveTransferAddress returns the address the merchant is paid to.
	DeriveTransferAddress(ctx context.Context, orderID string) (string, error)
	DeriveMultisigAddress(ctx context.Context, orderID string, participants [][]byte, self []byte, threshold uint32) (string, error)

	// OpenSession starts a signing session of the message, which is the
	// settlement transaction ID. Self is the leader.
	OpenSession(ctx context.Context, orderID string, message []byte, participants [][]byte, self []byte) (sessionID []byte, err error)
	RegisterCommitment(ctx context.Context, sessionID, participant, commitment []byte) error
	DeriveOwnCommitment(ctx context.Context, sessionID []byte) ([]byte, error)
	DeriveOwnNonce(ctx context.Context, sessionID []byte) ([]byte, error)
	RegisterNonce(ctx context.Context, sessionID, participant, nonce []byte) error
	DerivePartialSignature(ctx context.Context, sessionID []byte) ([]byte, error)
	RegisterPartialSignature(ctx context.Context, sessionID, participant, signature []byte) error
	AggregateSignature(ctx context.Context, sessionID []byte) ([]byte, error)
	// BuildWitness returns the spending witness of the multisig output,
	// for the aggregated signature of the session.
	BuildWitness(ctx context.Context, sessionID []byte) ([]byte, error)
}
