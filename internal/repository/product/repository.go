package product

import (
	"context"

	"sevirun/internal/domain"
)

// Repository persists the catalogue and per-variant stock.
type Repository interface {
	List(ctx context.Context) ([]domain.Product, error)
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpsertSize(ctx context.Context, name string) (*domain.Size, error)
	UpsertColour(ctx context.Context, name string) (*domain.Colour, error)
	SetStock(ctx context.Context, level domain.StockLevel) error
	GetStock(ctx context.Context, v domain.Variant) (int, error)
	ListStock(ctx context.Context, productID string) ([]domain.StockLevel, error)
}
