/*
Package orders implements the order lifecycle.

An order is created in PendingPayment status. The merchant moves it to
Delivering or Refunding and the settlement round moves it to one of the
terminal Completed or Refunded statuses:

	PendingPayment -> Delivering -> Completed
	PendingPayment -> Refunding  -> Refunded

Session, payment and settlement transaction identifiers are write-once. Orders
are never deleted.
*/
package orders
