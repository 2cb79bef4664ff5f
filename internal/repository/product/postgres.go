package product

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"sevirun/internal/domain"
	"sevirun/internal/logging"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	return &postgresRepo{pool: pool, logger: logging.OrNop(logger).Named("product_repo")}
}

const productColumns = `id::text, key, name, description, picture_url, price_cents, sale_price_cents, is_available, is_highlighted, created_at`

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Key, &p.Name, &p.Description, &p.PictureURL, &p.PriceCents, &p.SalePriceCents, &p.IsAvailable, &p.IsHighlighted, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *postgresRepo) List(ctx context.Context) ([]domain.Product, error) {
	q := `SELECT ` + productColumns + ` FROM products WHERE is_available ORDER BY is_highlighted DESC, created_at DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		r.logger.Error("list products", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var result []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	r.logger.Debug("listed products", zap.Int("count", len(result)))
	return result, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	q := `SELECT ` + productColumns + ` FROM products WHERE id::text = $1`
	p, err := scanProduct(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("get product", zap.String("product_id", id), zap.Error(err))
		return nil, err
	}
	return p, nil
}

func (r *postgresRepo) Upsert(ctx context.Context, product domain.Product) (*domain.Product, error) {
	q := `
INSERT INTO products (key, name, description, picture_url, price_cents, sale_price_cents, is_available, is_highlighted)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (key) DO UPDATE SET
    name = EXCLUDED.name,
    description = EXCLUDED.description,
    picture_url = EXCLUDED.picture_url,
    price_cents = EXCLUDED.price_cents,
    sale_price_cents = EXCLUDED.sale_price_cents,
    is_available = EXCLUDED.is_available,
    is_highlighted = EXCLUDED.is_highlighted
RETURNING ` + productColumns
	p, err := scanProduct(r.pool.QueryRow(ctx, q,
		strings.TrimSpace(product.Key),
		product.Name,
		product.Description,
		product.PictureURL,
		product.PriceCents,
		product.SalePriceCents,
		product.IsAvailable,
		product.IsHighlighted,
	))
	if err != nil {
		r.logger.Error("upsert product", zap.String("key", product.Key), zap.Error(err))
		return nil, err
	}
	r.logger.Debug("upserted product", zap.String("key", p.Key), zap.String("product_id", p.ID))
	return p, nil
}

func (r *postgresRepo) UpsertSize(ctx context.Context, name string) (*domain.Size, error) {
	var s domain.Size
	err := r.pool.QueryRow(ctx, `
INSERT INTO sizes (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id::text, name
`, strings.TrimSpace(name)).Scan(&s.ID, &s.Name)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *postgresRepo) UpsertColour(ctx context.Context, name string) (*domain.Colour, error) {
	var c domain.Colour
	err := r.pool.QueryRow(ctx, `
INSERT INTO colours (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id::text, name
`, strings.TrimSpace(name)).Scan(&c.ID, &c.Name)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *postgresRepo) SetStock(ctx context.Context, level domain.StockLevel) error {
	if level.Stock < 0 {
		level.Stock = 0
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO product_stock (product_id, size_id, colour_id, stock)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4)
ON CONFLICT (product_id, size_id, colour_id) DO UPDATE SET stock = EXCLUDED.stock
`, level.ProductID, level.SizeID, level.ColourID, level.Stock)
	if err != nil {
		r.logger.Error("set stock", zap.String("variant", level.Key()), zap.Error(err))
	}
	return err
}

func (r *postgresRepo) GetStock(ctx context.Context, v domain.Variant) (int, error) {
	var stock int
	err := r.pool.QueryRow(ctx, `
SELECT stock FROM product_stock
WHERE product_id::text = $1 AND size_id::text = $2 AND colour_id::text = $3
`, v.ProductID, v.SizeID, v.ColourID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return stock, nil
}

func (r *postgresRepo) ListStock(ctx context.Context, productID string) ([]domain.StockLevel, error) {
	rows, err := r.pool.Query(ctx, `
SELECT ps.product_id::text, ps.size_id::text, ps.colour_id::text, ps.stock
FROM product_stock ps
JOIN sizes s ON s.id = ps.size_id
JOIN colours c ON c.id = ps.colour_id
WHERE ps.product_id::text = $1
ORDER BY s.name, c.name
`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var levels []domain.StockLevel
	for rows.Next() {
		var l domain.StockLevel
		if err := rows.Scan(&l.ProductID, &l.SizeID, &l.ColourID, &l.Stock); err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}
