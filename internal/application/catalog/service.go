package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/storefront-go/storefront/internal/domain/catalog"
	"github.com/storefront-go/storefront/internal/observability"
	"github.com/storefront-go/storefront/internal/observability/logctx"
)

const componentCatalog = "catalog_service"

type IDGenerator interface {
	NewID() string
}

// ListCache is a read-through cache for listing responses. Implementations
// are best effort; a miss or a failed set never fails the request.
type ListCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

type CreateProductInput struct {
	Name        string
	Description string
	Price       int64
	Stock       int
	Category    string
}

type ListResult struct {
	Products []*domain.Product `json:"products"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PerPage  int               `json:"per_page"`
}

// Service covers the plumbing side of the catalog: create, get, list.
// Stock movement stays with the checkout workflow.
type Service struct {
	products domain.Repository
	ids      IDGenerator
	cache    ListCache
	cacheTTL time.Duration
	log      observability.Logger
}

func NewService(products domain.Repository, ids IDGenerator, cache ListCache, cacheTTL time.Duration, logger observability.Logger) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		products: products,
		ids:      ids,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      logger.With(observability.F("component", componentCatalog)),
	}
}

func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (*domain.Product, error) {
	product, err := domain.New(s.ids.NewID(), in.Name, in.Description, in.Price, in.Stock, in.Category)
	if err != nil {
		return nil, err
	}
	if err := s.products.Insert(ctx, nil, product); err != nil {
		return nil, fmt.Errorf("catalog: insert: %w", err)
	}

	logctx.FromOr(ctx, s.log).Info("product_created",
		observability.F("product_id", product.ID),
		observability.F("category", product.Category),
	)
	return product, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, domain.ErrNotFound
	}
	return s.products.Find(ctx, nil, id)
}

// ListProducts serves listings through the cache when one is configured.
// Cached pages may lag stock changes by up to the TTL; checkout never reads
// them.
func (s *Service) ListProducts(ctx context.Context, f domain.ListFilter) (*ListResult, error) {
	key := listCacheKey(f)
	if s.cache != nil {
		if raw, ok := s.cache.Get(ctx, key); ok {
			var cached ListResult
			if err := json.Unmarshal(raw, &cached); err == nil {
				return &cached, nil
			}
			logctx.FromOr(ctx, s.log).Warn("list_cache_decode_failed", observability.F("key", key))
		}
	}

	products, total, err := s.products.List(ctx, nil, f)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}

	page, perPage := f.Page, f.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	result := &ListResult{Products: products, Total: total, Page: page, PerPage: perPage}

	if s.cache != nil {
		if raw, err := json.Marshal(result); err == nil {
			s.cache.Set(ctx, key, raw, s.cacheTTL)
		}
	}
	return result, nil
}

func listCacheKey(f domain.ListFilter) string {
	return fmt.Sprintf("catalog:list:%s:%d:%d", f.Category, f.Page, f.PerPage)
}
