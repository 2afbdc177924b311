/*
Package session coordinates the two round signing session that settles an
order.

In the first round the buyer sends a nonce commitment. The coordinator opens
a wallet session over the settlement transaction, registers the buyer
commitment and answers with the merchant commitment and nonce. In the second
round the buyer sends its nonce and partial signature. The coordinator
registers both, aggregates the signature, broadcasts the signed settlement
transaction and moves the order to its final status.

Every completed step is recorded, so that a failed round can be retried and
resumes where it stopped:

	Opened -> CommitmentsExchanged -> NoncesExchanged -> SignaturesExchanged -> Finalized
*/
package session
