// Package events publishes order lifecycle notifications.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/iov-one/escrowd"
)

// Type names a kind of lifecycle event.
type Type string

const (
	OrderCreated Type = "order.created"
	OrderPaid    Type = "order.paid"
	OrderStatus  Type = "order.status"
	OrderSession Type = "order.session"
	OrderSettled Type = "order.settled"
	OrderFunded  Type = "order.funded"
)

// Event describes a single successful change of an order.
type Event struct {
	Type    Type   `json:"type"`
	OrderID string `json:"order_id"`
	Status  string `json:"status,omitempty"`
	// TransactionID is set for payment, session and settlement events.
	TransactionID escrowd.HexBytes `json:"transaction_id,omitempty"`
	Time          time.Time        `json:"time"`
}

// Publisher is implemented by event sinks.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// Nop discards all events.
type Nop struct{}

var _ Publisher = Nop{}

func (Nop) Publish(context.Context, ...Event) error { return nil }
func (Nop) Close() error                            { return nil }

// Memory keeps all published events. It is safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

var _ Publisher = (*Memory)(nil)

func (m *Memory) Publish(_ context.Context, events ...Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *Memory) Close() error { return nil }

// Events returns a copy of all events published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
