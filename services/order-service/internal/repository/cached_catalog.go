package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"bakehouse-system/services/order-service/internal/domain"
)

// CachedCatalogRepo is a cache-aside decorator over the catalog
// repository. Recipes and products change rarely and are safe to cache;
// ingredient stock is always read from the primary because the
// reservation check needs a fresh view.
type CachedCatalogRepo struct {
	primary     *PostgresCatalogRepo
	redisClient *redis.Client
	ttl         time.Duration
}

func NewCachedCatalogRepo(primary *PostgresCatalogRepo, redisClient *redis.Client, cacheTTL time.Duration) *CachedCatalogRepo {
	return &CachedCatalogRepo{
		primary:     primary,
		redisClient: redisClient,
		ttl:         cacheTTL,
	}
}

func (r *CachedCatalogRepo) RecipeFor(ctx context.Context, productID string) ([]domain.RecipeLine, error) {
	cacheKey := "recipe:" + productID

	cached, err := r.redisClient.Get(ctx, cacheKey).Bytes()
	if err == nil {
		var lines []domain.RecipeLine
		if err := json.Unmarshal(cached, &lines); err == nil {
			return lines, nil
		}
	}

	lines, err := r.primary.RecipeFor(ctx, productID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(lines); err == nil {
		r.redisClient.Set(ctx, cacheKey, data, r.ttl)
	}
	return lines, nil
}

func (r *CachedCatalogRepo) ProductsByID(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	var misses []string
	for _, id := range ids {
		cached, err := r.redisClient.Get(ctx, "product:"+id).Bytes()
		if err != nil {
			misses = append(misses, id)
			continue
		}
		var p domain.Product
		if err := json.Unmarshal(cached, &p); err != nil {
			misses = append(misses, id)
			continue
		}
		out[id] = p
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := r.primary.ProductsByID(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, p := range fetched {
		out[id] = p
		if data, err := json.Marshal(p); err == nil {
			r.redisClient.Set(ctx, "product:"+id, data, r.ttl)
		}
	}
	return out, nil
}

// StockFor always hits the primary; a stale stock view would defeat the
// reservation check.
func (r *CachedCatalogRepo) StockFor(ctx context.Context, ingredientIDs []string) (map[string]float64, error) {
	return r.primary.StockFor(ctx, ingredientIDs)
}
