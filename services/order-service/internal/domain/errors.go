package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrOrderNotFound          = errors.New("order not found")
	ErrPaymentNotFound        = errors.New("payment not found at provider")
	ErrExternalRefMissing     = errors.New("payment detail carries no external reference")
	ErrSignatureInvalid       = errors.New("webhook signature invalid")
	ErrPayloadUnrecognized    = errors.New("no payment id found in webhook payload")
	ErrGatewayUnavailable     = errors.New("payment gateway unavailable")
	ErrNoRecipe               = errors.New("no recipe defined for product")
)

// ItemShortfall describes one line item the stock check could not satisfy.
type ItemShortfall struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
	Reason      string
}

func (s ItemShortfall) String() string {
	if s.Reason != "" {
		return fmt.Sprintf("product %q: %s", s.ProductName, s.Reason)
	}
	return fmt.Sprintf("product %q: only %d of %d requested can be fulfilled", s.ProductName, s.Available, s.Requested)
}

// InsufficientStockError is the checkout rejection of a failed
// reservation check. It names every failing item so the caller can tell
// the buyer exactly how much is fulfillable.
type InsufficientStockError struct {
	Shortfalls []ItemShortfall
}

func (e *InsufficientStockError) Error() string {
	if len(e.Shortfalls) == 0 {
		return "insufficient stock"
	}
	msg := "insufficient stock: "
	for i, s := range e.Shortfalls {
		if i > 0 {
			msg += "; "
		}
		msg += s.String()
	}
	return msg
}
