package service

import (
	"sync"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/eventreg/internal/payment/domain"
)

// awaiter hands gateway callbacks to the transaction still waiting on them.
type awaiter struct {
	mu      sync.Mutex
	waiting map[snowflake.ID]chan *paymentdomain.PaymentEvent
}

func newAwaiter() *awaiter {
	return &awaiter{waiting: map[snowflake.ID]chan *paymentdomain.PaymentEvent{}}
}

func (a *awaiter) register(paymentID snowflake.ID) <-chan *paymentdomain.PaymentEvent {
	ch := make(chan *paymentdomain.PaymentEvent, 1)
	a.mu.Lock()
	a.waiting[paymentID] = ch
	a.mu.Unlock()
	return ch
}

// cancel stops waiting and returns an event that raced the timeout, if any.
func (a *awaiter) cancel(paymentID snowflake.ID) *paymentdomain.PaymentEvent {
	a.mu.Lock()
	ch, ok := a.waiting[paymentID]
	delete(a.waiting, paymentID)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case event := <-ch:
		return event
	default:
		return nil
	}
}

// deliver reports whether a waiter took the event.
func (a *awaiter) deliver(event *paymentdomain.PaymentEvent) bool {
	if event == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.waiting[event.PaymentID]
	if !ok {
		return false
	}
	select {
	case ch <- event:
		return true
	default:
		// a terminal event is already queued; later ones go through the store
		return false
	}
}
