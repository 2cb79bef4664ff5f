package product

import (
	"context"

	"go.uber.org/zap"

	"sevirun/internal/domain"
	"sevirun/internal/logging"
	productrepo "sevirun/internal/repository/product"
)

type Service struct {
	repo   productrepo.Repository
	logger *zap.Logger
}

func New(repo productrepo.Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logging.OrNop(logger).Named("product_service")}
}

// Detail is a product with the stock of each of its variants.
type Detail struct {
	Product domain.Product      `json:"product"`
	Stock   []domain.StockLevel `json:"stock"`
	// InStock is false when no variant has units left.
	InStock bool `json:"inStock"`
}

// List returns the available catalogue, highlighted products first.
func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stock, err := s.repo.ListStock(ctx, p.ID)
	if err != nil {
		logging.FromContext(ctx, s.logger).Error("list product stock", zap.String("product_id", p.ID), zap.Error(err))
		return nil, err
	}
	d := &Detail{Product: *p, Stock: stock}
	if d.Stock == nil {
		d.Stock = []domain.StockLevel{}
	}
	for _, level := range d.Stock {
		if level.Stock > 0 {
			d.InStock = true
			break
		}
	}
	return d, nil
}
