/*
Package settlement builds the transaction that releases the escrowed funds.

Building is a pure function of the order snapshot and the configured
parameters. The same order always results in the same bytes and the same
transaction ID, which is what makes it possible to rebuild the transaction
after the signing session is completed.
*/
package settlement
