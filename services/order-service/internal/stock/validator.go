// Package stock implements the reservation pre-check that runs before a
// checkout creates an order. The check is advisory: it simulates the
// combined ingredient draw of a multi-item request against a working
// copy of current stock and never touches the real ledger. The binding
// decrement happens later, inside the paid transition.
package stock

import (
	"context"
	"fmt"
	"math"

	"bakehouse-system/services/order-service/internal/domain"
)

type ItemRequest struct {
	ProductID string
	Quantity  int
}

type ItemVerdict struct {
	ProductID   string
	ProductName string
	Requested   int
	Feasible    int
	OK          bool
	Reason      string
}

type Result struct {
	Valid bool
	Items []ItemVerdict
}

// Shortfalls converts the failing verdicts into the checkout rejection.
func (r *Result) Shortfalls() *domain.InsufficientStockError {
	var out []domain.ItemShortfall
	for _, v := range r.Items {
		if v.OK {
			continue
		}
		out = append(out, domain.ItemShortfall{
			ProductID:   v.ProductID,
			ProductName: v.ProductName,
			Requested:   v.Requested,
			Available:   v.Feasible,
			Reason:      v.Reason,
		})
	}
	return &domain.InsufficientStockError{Shortfalls: out}
}

type Validator struct {
	recipes     domain.RecipeRepository
	ingredients domain.IngredientRepository
}

func NewValidator(recipes domain.RecipeRepository, ingredients domain.IngredientRepository) *Validator {
	return &Validator{recipes: recipes, ingredients: ingredients}
}

// Check validates the batch in caller order: earlier items get first
// claim on shared ingredients. Items that cannot be fully satisfied are
// reported with the largest fulfillable quantity, and that feasible
// amount is still charged against the working copy so later items see a
// consistent view.
func (v *Validator) Check(ctx context.Context, items []ItemRequest) (*Result, error) {
	recipes := make(map[string][]domain.RecipeLine, len(items))
	productIDs := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := recipes[it.ProductID]; ok {
			continue
		}
		lines, err := v.recipes.RecipeFor(ctx, it.ProductID)
		if err != nil {
			return nil, fmt.Errorf("loading recipe for %s: %w", it.ProductID, err)
		}
		recipes[it.ProductID] = lines
		productIDs = append(productIDs, it.ProductID)
	}

	products, err := v.recipes.ProductsByID(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("loading products: %w", err)
	}

	var ingredientIDs []string
	seen := make(map[string]bool)
	for _, lines := range recipes {
		for _, l := range lines {
			if !seen[l.IngredientID] {
				seen[l.IngredientID] = true
				ingredientIDs = append(ingredientIDs, l.IngredientID)
			}
		}
	}

	// The working copy is what gets provisionally decremented; the
	// ledger itself stays untouched.
	working, err := v.ingredients.StockFor(ctx, ingredientIDs)
	if err != nil {
		return nil, fmt.Errorf("loading stock: %w", err)
	}

	res := &Result{Valid: true}
	for _, it := range items {
		name := it.ProductID
		if p, ok := products[it.ProductID]; ok {
			name = p.Name
		}
		verdict := ItemVerdict{
			ProductID:   it.ProductID,
			ProductName: name,
			Requested:   it.Quantity,
		}

		lines := recipes[it.ProductID]
		if len(lines) == 0 {
			verdict.Reason = domain.ErrNoRecipe.Error()
			res.Valid = false
			res.Items = append(res.Items, verdict)
			continue
		}

		feasible := feasibleQuantity(lines, working)
		if feasible >= it.Quantity {
			verdict.OK = true
			verdict.Feasible = it.Quantity
			consume(lines, working, it.Quantity)
		} else {
			verdict.Feasible = feasible
			res.Valid = false
			consume(lines, working, feasible)
		}
		res.Items = append(res.Items, verdict)
	}
	return res, nil
}

// drawPerUnit sums the recipe's lines by ingredient. A recipe may list
// the same ingredient more than once; the effective per-unit draw is
// the total, matching how the paid-transition decrement groups it.
func drawPerUnit(lines []domain.RecipeLine) map[string]float64 {
	draw := make(map[string]float64, len(lines))
	for _, l := range lines {
		draw[l.IngredientID] += l.QtyPerUnit
	}
	return draw
}

// feasibleQuantity is the minimum, across ingredients, of how many
// whole units the working copy can still cover. Ingredients with zero
// total draw are non-limiting; a recipe with no positive requirement
// is unbounded.
func feasibleQuantity(lines []domain.RecipeLine, working map[string]float64) int {
	feasible := math.MaxInt
	for id, perUnit := range drawPerUnit(lines) {
		if perUnit <= 0 {
			continue
		}
		units := int(math.Floor(working[id] / perUnit))
		if units < feasible {
			feasible = units
		}
	}
	if feasible < 0 {
		return 0
	}
	return feasible
}

func consume(lines []domain.RecipeLine, working map[string]float64, qty int) {
	if qty <= 0 {
		return
	}
	for id, perUnit := range drawPerUnit(lines) {
		working[id] -= perUnit * float64(qty)
	}
}
