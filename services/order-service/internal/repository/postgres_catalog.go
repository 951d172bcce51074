package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"bakehouse-system/services/order-service/internal/domain"
)

// PostgresCatalogRepo serves the read-only catalog surfaces: products,
// recipe lines and ingredient stock snapshots.
type PostgresCatalogRepo struct {
	db *sqlx.DB
}

func NewPostgresCatalogRepo(db *sqlx.DB) *PostgresCatalogRepo {
	return &PostgresCatalogRepo{db: db}
}

func (r *PostgresCatalogRepo) RecipeFor(ctx context.Context, productID string) ([]domain.RecipeLine, error) {
	var rows []struct {
		ProductID    string  `db:"product_id"`
		IngredientID string  `db:"ingredient_id"`
		QtyPerUnit   float64 `db:"qty_per_unit"`
	}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT product_id, ingredient_id, qty_per_unit FROM recipes WHERE product_id = $1`, productID)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.RecipeLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, domain.RecipeLine{
			ProductID:    row.ProductID,
			IngredientID: row.IngredientID,
			QtyPerUnit:   row.QtyPerUnit,
		})
	}
	return lines, nil
}

func (r *PostgresCatalogRepo) ProductsByID(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT id, name, price FROM products WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID    string  `db:"id"`
		Name  string  `db:"name"`
		Price float64 `db:"price"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = domain.Product{ID: row.ID, Name: row.Name, Price: row.Price}
	}
	return out, nil
}

func (r *PostgresCatalogRepo) StockFor(ctx context.Context, ingredientIDs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(ingredientIDs))
	if len(ingredientIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT id, quantity FROM ingredients WHERE id IN (?)`, ingredientIDs)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID       string  `db:"id"`
		Quantity float64 `db:"quantity"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row.Quantity
	}
	return out, nil
}
