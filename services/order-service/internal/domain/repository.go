package domain

import (
	"context"
	"time"
)

// TransitionResult reports what ApplyTransition actually did.
type TransitionResult struct {
	Applied     bool // false on a no-op
	Status      OrderStatus
	Decremented bool
	Warn        string
}

type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	GetByReference(ctx context.Context, reference string) (*Order, error)
	SetPreferenceID(ctx context.Context, orderID, prefID string) error
	// ApplyTransition executes the state machine for one payment event
	// as a single atomic unit: read the order, evaluate Transition,
	// write the new status and, for a paid transition, decrement
	// ingredient stock per the order's recipes. Returns
	// ErrInvalidStateTransition on a rejected transition and
	// ErrOrderNotFound when the reference resolves to nothing.
	ApplyTransition(ctx context.Context, reference string, ev PaymentEvent, paymentID string) (TransitionResult, error)
	// CancelStalePending cancels orders still PENDING after olderThan
	// and returns their references. Each cancellation is conditional on
	// the order still being PENDING, so it cannot race a concurrent
	// paid transition.
	CancelStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]string, error)
}

type RecipeRepository interface {
	// RecipeFor returns every recipe line of the product; an empty
	// slice means no recipe is defined.
	RecipeFor(ctx context.Context, productID string) ([]RecipeLine, error)
	ProductsByID(ctx context.Context, ids []string) (map[string]Product, error)
}

type IngredientRepository interface {
	StockFor(ctx context.Context, ingredientIDs []string) (map[string]float64, error)
}

type WebhookLogRepository interface {
	// Get returns (nil, nil) when no record exists for the payment id.
	Get(ctx context.Context, paymentID string) (*WebhookEvent, error)
	// Save inserts or updates the record keyed by payment id. The write
	// must be durable before any order transition for the same payment
	// id commits.
	Save(ctx context.Context, event *WebhookEvent) error
}
