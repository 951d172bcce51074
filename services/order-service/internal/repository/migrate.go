package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Migrate creates the service's tables when they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			price NUMERIC(12,2) NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ingredients (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			quantity NUMERIC(14,3) NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS recipes (
			product_id VARCHAR(64) NOT NULL REFERENCES products(id),
			ingredient_id VARCHAR(64) NOT NULL REFERENCES ingredients(id),
			qty_per_unit NUMERIC(14,3) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recipes_product_id ON recipes(product_id)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			reference VARCHAR(64) NOT NULL UNIQUE,
			payer_email VARCHAR(255) NOT NULL DEFAULT '',
			total NUMERIC(12,2) NOT NULL DEFAULT 0,
			status VARCHAR(32) NOT NULL,
			payment_id VARCHAR(64),
			preference_id VARCHAR(64),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_reference ON orders(reference)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status)`,

		`CREATE TABLE IF NOT EXISTS order_items (
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id VARCHAR(64) NOT NULL,
			product_name VARCHAR(255) NOT NULL,
			quantity INTEGER NOT NULL,
			unit_price NUMERIC(12,2) NOT NULL,
			subtotal NUMERIC(12,2) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,

		`CREATE TABLE IF NOT EXISTS webhook_events (
			payment_id VARCHAR(64) PRIMARY KEY,
			request_id VARCHAR(128),
			topic VARCHAR(64) NOT NULL DEFAULT 'payment',
			payment_status VARCHAR(32),
			reference VARCHAR(64),
			raw_excerpt TEXT NOT NULL DEFAULT '',
			processed BOOLEAN NOT NULL DEFAULT false,
			error_detail TEXT,
			received_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			processed_at TIMESTAMP WITH TIME ZONE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_webhook_events_reference ON webhook_events(reference)`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
