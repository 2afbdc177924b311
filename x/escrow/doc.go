/*
Package escrow is the entry point of the escrow operations.

It prepares orders together with the per-order wallet, verifies payments
with the chain and hands the signing rounds to the session coordinator. A
Watcher reports multisig addresses that received funds.
*/
package escrow
