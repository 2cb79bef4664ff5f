package cart

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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
	return &postgresRepo{pool: pool, logger: logging.OrNop(logger).Named("cart_repo")}
}

const cartColumns = `id::text, customer_id::text, session_id, created_at, updated_at`

func (r *postgresRepo) GetByOwner(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if owner.CustomerID != "" {
		return r.fetchCart(ctx, `SELECT `+cartColumns+` FROM carts WHERE customer_id::text = $1`, owner.CustomerID)
	}
	return r.fetchCart(ctx, `SELECT `+cartColumns+` FROM carts WHERE session_id = $1`, owner.SessionID)
}

func (r *postgresRepo) Create(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	customerID, sessionID := owner.Columns()
	var cart domain.Cart
	err := r.pool.QueryRow(ctx, `
INSERT INTO carts (customer_id, session_id)
VALUES ($1::uuid, $2)
RETURNING `+cartColumns, customerID, sessionID).Scan(
		&cart.ID,
		&cart.CustomerID,
		&cart.SessionID,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("create cart", zap.Error(err))
		return nil, err
	}
	return &cart, nil
}

func (r *postgresRepo) AddLine(ctx context.Context, cartID string, v domain.Variant, quantity int) error {
	if !domain.ValidQuantity(quantity) {
		return domain.ErrInvalidQuantity
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO cart_lines (cart_id, product_id, size_id, colour_id, quantity)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4::uuid, $5)
ON CONFLICT (cart_id, product_id, size_id, colour_id) DO UPDATE
SET quantity = LEAST(cart_lines.quantity + EXCLUDED.quantity, $6)
`, cartID, v.ProductID, v.SizeID, v.ColourID, quantity, domain.MaxLineQuantity)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23503: no such product, size or colour. 22P02: the id is not a uuid.
		if errors.As(err, &pgErr) && (pgErr.Code == "23503" || pgErr.Code == "22P02") {
			return domain.ErrNotFound
		}
		return err
	}
	if err := touchCart(ctx, tx, cartID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *postgresRepo) SetLineQuantity(ctx context.Context, cartID, lineID string, quantity int) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var cmd pgconn.CommandTag
	if quantity < domain.MinLineQuantity {
		cmd, err = tx.Exec(ctx, `DELETE FROM cart_lines WHERE id::text = $1 AND cart_id::text = $2`, lineID, cartID)
	} else {
		if quantity > domain.MaxLineQuantity {
			quantity = domain.MaxLineQuantity
		}
		cmd, err = tx.Exec(ctx, `UPDATE cart_lines SET quantity = $1 WHERE id::text = $2 AND cart_id::text = $3`, quantity, lineID, cartID)
	}
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	if err := touchCart(ctx, tx, cartID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *postgresRepo) RemoveLine(ctx context.Context, cartID, lineID string) error {
	return r.SetLineQuantity(ctx, cartID, lineID, 0)
}

func (r *postgresRepo) AssignSessionToCustomer(ctx context.Context, sessionID, customerID string) (*domain.Cart, error) {
	var cartID string
	err := r.pool.QueryRow(ctx, `
UPDATE carts
SET customer_id = $1::uuid,
    session_id = NULL,
    updated_at = now()
WHERE session_id = $2
  AND NOT EXISTS (SELECT 1 FROM carts WHERE customer_id = $1::uuid)
RETURNING id::text
`, customerID, sessionID).Scan(&cartID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	r.logger.Info("guest cart assigned", zap.String("cart_id", cartID), zap.String("customer_id", customerID))
	return r.fetchCart(ctx, `SELECT `+cartColumns+` FROM carts WHERE id::text = $1`, cartID)
}

func (r *postgresRepo) fetchCart(ctx context.Context, cartQuery string, args ...any) (*domain.Cart, error) {
	var cart domain.Cart
	err := r.pool.QueryRow(ctx, cartQuery, args...).Scan(
		&cart.ID,
		&cart.CustomerID,
		&cart.SessionID,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	lines, err := loadLines(ctx, r.pool, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Lines = lines
	return &cart, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// loadLines reads the cart lines with the live effective product price.
func loadLines(ctx context.Context, q querier, cartID string) ([]domain.CartLine, error) {
	rows, err := q.Query(ctx, `
SELECT cl.id::text, cl.cart_id::text, cl.product_id::text, cl.size_id::text, cl.colour_id::text,
       p.name, s.name, c.name,
       COALESCE(NULLIF(p.sale_price_cents, 0), p.price_cents),
       cl.quantity
FROM cart_lines cl
JOIN products p ON p.id = cl.product_id
JOIN sizes s ON s.id = cl.size_id
JOIN colours c ON c.id = cl.colour_id
WHERE cl.cart_id::text = $1
ORDER BY cl.created_at ASC, cl.id ASC
`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.CartLine
	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(
			&line.ID,
			&line.CartID,
			&line.ProductID,
			&line.SizeID,
			&line.ColourID,
			&line.ProductName,
			&line.SizeName,
			&line.ColourName,
			&line.UnitPriceCents,
			&line.Quantity,
		); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func touchCart(ctx context.Context, tx pgx.Tx, cartID string) error {
	_, err := tx.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id::text = $1`, cartID)
	return err
}
