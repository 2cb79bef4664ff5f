package product

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sevirun/internal/domain"
	productrepo "sevirun/internal/repository/product"
)

type stubRepo struct {
	productrepo.Repository
	products []domain.Product
	stock    []domain.StockLevel
}

func (s *stubRepo) List(context.Context) ([]domain.Product, error) {
	return s.products, nil
}

func (s *stubRepo) GetByID(_ context.Context, id string) (*domain.Product, error) {
	for _, p := range s.products {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubRepo) ListStock(context.Context, string) ([]domain.StockLevel, error) {
	return s.stock, nil
}

func TestListNeverReturnsNil(t *testing.T) {
	got, err := New(&stubRepo{}, nil).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGetReportsStock(t *testing.T) {
	repo := &stubRepo{
		products: []domain.Product{{ID: "p1", Name: "Runner"}},
		stock: []domain.StockLevel{
			{Variant: domain.Variant{ProductID: "p1", SizeID: "s1", ColourID: "c1"}, Stock: 0},
		},
	}
	svc := New(repo, nil)

	d, err := svc.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, d.InStock)

	repo.stock = append(repo.stock, domain.StockLevel{Variant: domain.Variant{ProductID: "p1", SizeID: "s2", ColourID: "c1"}, Stock: 2})
	d, err = svc.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, d.InStock)
	assert.Len(t, d.Stock, 2)

	_, err = svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
