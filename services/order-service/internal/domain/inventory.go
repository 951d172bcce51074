package domain

import "time"

// Product is the catalog entry priced at checkout time. Prices always
// come from here, never from the client request.
type Product struct {
	ID    string
	Name  string
	Price float64
}

// RecipeLine declares the ingredient cost, per unit, of manufacturing
// one unit of a product. A product may carry several lines for the same
// ingredient.
type RecipeLine struct {
	ProductID    string
	IngredientID string
	QtyPerUnit   float64
}

type IngredientStock struct {
	IngredientID string
	Name         string
	Quantity     float64
}

// WebhookEvent is the durable idempotency record for one provider
// payment id. Created at first sight, updated in place on reprocessing,
// never deleted.
type WebhookEvent struct {
	PaymentID     string
	RequestID     string
	Topic         string
	PaymentStatus string
	Reference     string
	RawExcerpt    string
	Processed     bool
	ErrorDetail   string
	ReceivedAt    time.Time
	ProcessedAt   *time.Time
}
