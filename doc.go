/*
Package escrowd defines the interfaces shared by the escrow coordinator
subpackages: storage, hex encoded binary values and the request context.

The escrow coordinator drives a three party (buyer, merchant, escrow) 2-of-3
multi signature escrow. An order is paid into a shared multisig address and
is settled with a transaction cooperatively signed by the merchant and the
buyer. The order state machine lives in x/orders, the signing protocol in
x/session and the payout transaction builder in x/settlement.

We pass context through context.Context between the HTTP layer and the
components. There should exist two functions for every XYZ of type T that we
want to support in Context:

	WithXYZ(Context, T) Context
	GetXYZ(Context) T
*/
package escrowd
