// order-service/internal/domain/order.go
package domain

import (
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusInProcess OrderStatus = "in_process"
	StatusPaid      OrderStatus = "paid"
	StatusFailed    OrderStatus = "failed"
	StatusCancelled OrderStatus = "cancelled"
)

// PaymentEvent is what a provider notification resolves to after the
// reconciler maps the provider's payment status.
type PaymentEvent string

const (
	EventMarkPaid      PaymentEvent = "mark_paid"
	EventMarkFailed    PaymentEvent = "mark_failed"
	EventMarkInProcess PaymentEvent = "mark_in_process"
)

type Order struct {
	ID         string
	Reference  string // opaque external reference, generated once at creation
	PayerEmail string
	Total      float64
	Status     OrderStatus
	PaymentID  string // empty until a payment event arrives
	PrefID     string // provider-side preference id
	CreatedAt  time.Time
	Items      []OrderItem
}

// OrderItem is a price snapshot taken at order-creation time.
// Immutable after creation.
type OrderItem struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   float64
	Subtotal    float64
}

type OutcomeKind int

const (
	// OutcomeAdvance applies Next (and the stock decrement when
	// DecrementStock is set) as one atomic unit.
	OutcomeAdvance OutcomeKind = iota
	// OutcomeNoOp leaves the order untouched; Warn carries an optional
	// diagnostic the caller should log.
	OutcomeNoOp
	// OutcomeReject means the transition is invalid for the current
	// state and must surface as ErrInvalidStateTransition.
	OutcomeReject
)

type Outcome struct {
	Kind           OutcomeKind
	Next           OrderStatus
	DecrementStock bool
	// SetPaymentID records the notifying payment id on the order, even
	// when the status itself does not change (provider resent with a
	// new id).
	SetPaymentID bool
	Warn         string
}

func advance(next OrderStatus, decrement bool) Outcome {
	return Outcome{Kind: OutcomeAdvance, Next: next, DecrementStock: decrement, SetPaymentID: true}
}

func noop(warn string) Outcome {
	return Outcome{Kind: OutcomeNoOp, Warn: warn}
}

func reject() Outcome {
	return Outcome{Kind: OutcomeReject}
}

// Transition is the closed order state machine. It is a pure function of
// (current status, event, whether the notifying payment id matches the one
// already linked); the repository executes the returned outcome atomically.
//
// PAID wins over everything except a duplicate delivery; FAILED may still
// advance to PAID because a late approval can confirm a previously failed
// attempt. CANCELLED accepts nothing that moves the order forward.
func Transition(current OrderStatus, ev PaymentEvent, samePaymentID bool) Outcome {
	switch current {
	case StatusPending:
		switch ev {
		case EventMarkPaid:
			return advance(StatusPaid, true)
		case EventMarkFailed:
			return advance(StatusFailed, false)
		case EventMarkInProcess:
			return advance(StatusInProcess, false)
		}
	case StatusInProcess:
		switch ev {
		case EventMarkPaid:
			return advance(StatusPaid, true)
		case EventMarkFailed:
			return advance(StatusFailed, false)
		case EventMarkInProcess:
			if samePaymentID {
				return noop("")
			}
			return advance(StatusInProcess, false)
		}
	case StatusPaid:
		switch ev {
		case EventMarkPaid:
			if samePaymentID {
				return noop("")
			}
			return noop("order already paid under a different payment id")
		case EventMarkFailed:
			return reject()
		case EventMarkInProcess:
			return noop("ignoring in-process event for paid order")
		}
	case StatusFailed:
		switch ev {
		case EventMarkPaid:
			return advance(StatusPaid, true)
		case EventMarkFailed:
			if samePaymentID {
				return noop("")
			}
			return advance(StatusFailed, false)
		case EventMarkInProcess:
			return advance(StatusInProcess, false)
		}
	case StatusCancelled:
		switch ev {
		case EventMarkPaid:
			return reject()
		case EventMarkFailed:
			if samePaymentID {
				return noop("")
			}
			return advance(StatusCancelled, false)
		case EventMarkInProcess:
			return reject()
		}
	}
	return noop("unknown state or event")
}
