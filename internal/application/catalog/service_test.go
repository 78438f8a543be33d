package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/storefront-go/storefront/internal/domain/catalog"
	"github.com/storefront-go/storefront/internal/infrastructure/memory"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("prod-%04d", s.n)
}

func newService(t *testing.T, cache ListCache, ttl time.Duration) (*Service, *memory.ProductRepository) {
	t.Helper()
	store := memory.NewStore()
	products := memory.NewProductRepository(store)
	return NewService(products, &seqIDs{}, cache, ttl, nil), products
}

func TestCreateAndGetProduct(t *testing.T) {
	svc, _ := newService(t, nil, 0)

	created, err := svc.CreateProduct(context.Background(), CreateProductInput{
		Name:     "  Widget  ",
		Price:    1500,
		Stock:    10,
		Category: "tools",
	})
	require.NoError(t, err)
	assert.Equal(t, "Widget", created.Name)
	assert.NotEmpty(t, created.ID)

	got, err := svc.GetProduct(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.GetProduct(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateProductValidation(t *testing.T) {
	svc, _ := newService(t, nil, 0)

	_, err := svc.CreateProduct(context.Background(), CreateProductInput{Name: "", Price: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.CreateProduct(context.Background(), CreateProductInput{Name: "x", Price: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = svc.CreateProduct(context.Background(), CreateProductInput{Name: "x", Price: 1, Stock: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidStock)
}

func TestListProductsFiltersByCategory(t *testing.T) {
	svc, _ := newService(t, nil, 0)
	for i, cat := range []string{"tools", "tools", "toys"} {
		_, err := svc.CreateProduct(context.Background(), CreateProductInput{
			Name:     fmt.Sprintf("product %d", i),
			Price:    100,
			Stock:    1,
			Category: cat,
		})
		require.NoError(t, err)
	}

	result, err := svc.ListProducts(context.Background(), domain.ListFilter{Category: "tools"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)
	assert.Len(t, result.Products, 2)
}

func TestListProductsServesCachedPage(t *testing.T) {
	cache := memory.NewListCache()
	svc, products := newService(t, cache, time.Minute)

	_, err := svc.CreateProduct(context.Background(), CreateProductInput{Name: "widget", Price: 100, Stock: 5})
	require.NoError(t, err)

	first, err := svc.ListProducts(context.Background(), domain.ListFilter{})
	require.NoError(t, err)
	require.Len(t, first.Products, 1)

	// Mutate the repository behind the cache; the cached page lags.
	p, err := products.Find(context.Background(), nil, first.Products[0].ID)
	require.NoError(t, err)
	_, err = products.DecrementStock(context.Background(), nil, p.ID, 3)
	require.NoError(t, err)

	second, err := svc.ListProducts(context.Background(), domain.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, second.Products[0].Stock, "listing served from cache")

	// A different page misses the cache and reads through.
	fresh, err := svc.ListProducts(context.Background(), domain.ListFilter{PerPage: 50})
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Products[0].Stock)
}
