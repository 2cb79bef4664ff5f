package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sevirun/internal/domain"
	"sevirun/internal/logging"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	return &postgresRepo{pool: pool, logger: logging.OrNop(logger).Named("order_repo")}
}

// queryer is satisfied by both the pool and a transaction.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const orderColumns = `id, customer_id::text, session_id, state, delivery_type, shipping_address, email, phone,
       payment_method, discount_basis_points, delivery_cost_cents, tracking_number, created_at, updated_at`

func (r *postgresRepo) CreateFromCart(ctx context.Context, in CreateFromCartInput) (*domain.Order, error) {
	if err := in.Owner.Validate(); err != nil {
		return nil, err
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var (
		cartID    string
		ownerCol  = "session_id"
		ownerID   = in.Owner.SessionID
		lineCount int
	)
	if in.Owner.CustomerID != "" {
		ownerCol, ownerID = "customer_id", in.Owner.CustomerID
	}
	err = tx.QueryRow(ctx, `SELECT id::text FROM carts WHERE `+ownerCol+`::text = $1 FOR UPDATE`, ownerID).Scan(&cartID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEmptyCart
		}
		return nil, err
	}
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM cart_lines WHERE cart_id::text = $1`, cartID).Scan(&lineCount); err != nil {
		return nil, err
	}
	if lineCount == 0 {
		return nil, domain.ErrEmptyCart
	}

	customerID, sessionID := in.Owner.Columns()
	var orderID int64
	err = tx.QueryRow(ctx, `
INSERT INTO orders (customer_id, session_id, state, delivery_cost_cents, discount_basis_points)
VALUES ($1::uuid, $2, 'pending', $3, 0)
RETURNING id
`, customerID, sessionID, in.DeliveryCostCents).Scan(&orderID)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	// Unit prices are frozen here: the sale price when set, the list price otherwise.
	if _, err := tx.Exec(ctx, `
INSERT INTO order_lines (order_id, product_id, size_id, colour_id, product_name, size_name, colour_name, quantity, unit_price_cents)
SELECT $1, cl.product_id, cl.size_id, cl.colour_id, p.name, s.name, c.name, cl.quantity,
       COALESCE(NULLIF(p.sale_price_cents, 0), p.price_cents)
FROM cart_lines cl
JOIN products p ON p.id = cl.product_id
JOIN sizes s ON s.id = cl.size_id
JOIN colours c ON c.id = cl.colour_id
WHERE cl.cart_id::text = $2
ORDER BY cl.created_at, cl.id
`, orderID, cartID); err != nil {
		return nil, fmt.Errorf("copy cart lines: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM carts WHERE id::text = $1`, cartID); err != nil {
		return nil, fmt.Errorf("delete cart: %w", err)
	}

	order, err := r.load(ctx, tx, orderID, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	r.logger.Info("order created from cart",
		zap.Int64("order_id", orderID),
		zap.String("cart_id", cartID),
		zap.Int("lines", len(order.Lines)),
	)
	return order, nil
}

func (r *postgresRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	return r.load(ctx, r.pool, id, false)
}

func (r *postgresRepo) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Order, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, domain.ErrNotFound
	}
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE tracking_number = $1`, trackingNumber))
	if err != nil {
		return nil, err
	}
	if order.Lines, err = loadLines(ctx, r.pool, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *postgresRepo) List(ctx context.Context, filter ListFilter) ([]domain.Order, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Owner.CustomerID != "" {
		args = append(args, filter.Owner.CustomerID)
		conds = append(conds, fmt.Sprintf("customer_id::text = $%d", len(args)))
	} else if filter.Owner.SessionID != "" {
		args = append(args, filter.Owner.SessionID)
		conds = append(conds, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, s := range filter.States {
			states = append(states, string(s))
		}
		args = append(args, states)
		conds = append(conds, fmt.Sprintf("state = ANY($%d)", len(args)))
	}
	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		r.logger.Error("list orders", zap.Error(err))
		return nil, err
	}
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, *o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if orders[i].Lines, err = loadLines(ctx, r.pool, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *postgresRepo) UpdateContact(ctx context.Context, id int64, info ContactInfo) (*domain.Order, error) {
	cmd, err := r.pool.Exec(ctx, `
UPDATE orders
SET shipping_address = $2, email = $3, phone = $4, delivery_type = $5, updated_at = now()
WHERE id = $1 AND state = 'pending'
`, id, info.ShippingAddress, info.Email, info.Phone, string(info.DeliveryType))
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		return nil, r.pendingMiss(ctx, id)
	}
	return r.GetByID(ctx, id)
}

func (r *postgresRepo) SetPaymentMethod(ctx context.Context, id int64, method domain.PaymentMethod) (*domain.Order, error) {
	cmd, err := r.pool.Exec(ctx, `
UPDATE orders SET payment_method = $2, updated_at = now()
WHERE id = $1 AND state = 'pending'
`, id, string(method))
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		return nil, r.pendingMiss(ctx, id)
	}
	return r.GetByID(ctx, id)
}

func (r *postgresRepo) UpdateState(ctx context.Context, id int64, from, to domain.OrderState) (*domain.Order, error) {
	if !domain.CanTransition(from, to) {
		return nil, domain.ErrInvalidTransition
	}
	cmd, err := r.pool.Exec(ctx, `
UPDATE orders SET state = $3, updated_at = now()
WHERE id = $1 AND state = $2
`, id, string(from), string(to))
	if err != nil {
		return nil, err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrInvalidTransition
	}
	r.logger.Info("order state changed", zap.Int64("order_id", id), zap.String("from", string(from)), zap.String("to", string(to)))
	return r.GetByID(ctx, id)
}

// pendingMiss distinguishes a missing order from one that left pending.
func (r *postgresRepo) pendingMiss(ctx context.Context, id int64) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return domain.ErrOrderNotPending
}

func (r *postgresRepo) Fulfil(ctx context.Context, in FulfilInput) (FulfilResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return FulfilResult{}, err
	}
	defer tx.Rollback(ctx)

	// The row lock serialises concurrent triggers; the state is re-read under it.
	order, err := r.load(ctx, tx, in.OrderID, true)
	if err != nil {
		return FulfilResult{}, err
	}
	if order.State != domain.OrderPending {
		if err := tx.Commit(ctx); err != nil {
			return FulfilResult{}, err
		}
		return FulfilResult{Order: *order}, nil
	}

	wanted := aggregateLines(order.Lines)
	keys := make([]string, 0, len(wanted))
	for k := range wanted {
		keys = append(keys, k)
	}
	// Stable lock order avoids deadlocks between orders sharing variants.
	sort.Strings(keys)

	type stockRow struct {
		line    aggregatedLine
		stock   int
		present bool
	}
	locked := make([]stockRow, 0, len(keys))
	for _, k := range keys {
		line := wanted[k]
		var stock int
		err := tx.QueryRow(ctx, `
SELECT stock FROM product_stock
WHERE product_id::text = $1 AND size_id::text = $2 AND colour_id::text = $3
FOR UPDATE
`, line.ProductID, line.SizeID, line.ColourID).Scan(&stock)
		present := true
		if errors.Is(err, pgx.ErrNoRows) {
			present, err = false, nil
		}
		if err != nil {
			return FulfilResult{}, fmt.Errorf("lock stock %s: %w", k, err)
		}
		if in.RequireStock && stock < line.quantity {
			return FulfilResult{}, domain.ErrInsufficientStock
		}
		locked = append(locked, stockRow{line: line, stock: stock, present: present})
	}

	var oversold []domain.OversoldLine
	for _, row := range locked {
		left, short := domain.DecrementStock(row.stock, row.line.quantity)
		if short {
			oversold = append(oversold, domain.OversoldLine{Variant: row.line.Variant, Requested: row.line.quantity, Available: row.stock})
		}
		if !row.present {
			continue
		}
		if _, err := tx.Exec(ctx, `
UPDATE product_stock SET stock = $4
WHERE product_id::text = $1 AND size_id::text = $2 AND colour_id::text = $3
`, row.line.ProductID, row.line.SizeID, row.line.ColourID, left); err != nil {
			return FulfilResult{}, fmt.Errorf("decrement stock: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
UPDATE orders
SET state = 'processing',
    payment_method = $2,
    tracking_number = COALESCE(tracking_number, $3),
    updated_at = now()
WHERE id = $1
`, in.OrderID, string(in.PaymentMethod), nullIfEmpty(in.TrackingNumber)); err != nil {
		return FulfilResult{}, fmt.Errorf("mark processing: %w", err)
	}

	updated, err := r.load(ctx, tx, in.OrderID, false)
	if err != nil {
		return FulfilResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return FulfilResult{}, err
	}
	return FulfilResult{Order: *updated, Transitioned: true, Oversold: oversold}, nil
}

func (r *postgresRepo) load(ctx context.Context, q queryer, id int64, forUpdate bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	order, err := scanOrder(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if order.Lines, err = loadLines(ctx, q, id); err != nil {
		return nil, err
	}
	return order, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o             domain.Order
		state         string
		deliveryType  string
		paymentMethod string
		discountBP    int64
	)
	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&o.SessionID,
		&state,
		&deliveryType,
		&o.ShippingAddress,
		&o.Email,
		&o.Phone,
		&paymentMethod,
		&discountBP,
		&o.DeliveryCostCents,
		&o.TrackingNumber,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	o.State = domain.OrderState(state)
	o.DeliveryType = domain.DeliveryType(deliveryType)
	o.PaymentMethod = domain.PaymentMethod(paymentMethod)
	o.DiscountPercentage = decimal.New(discountBP, -2)
	return &o, nil
}

func loadLines(ctx context.Context, q queryer, orderID int64) ([]domain.OrderLine, error) {
	rows, err := q.Query(ctx, `
SELECT id, order_id, product_id::text, size_id::text, colour_id::text,
       product_name, size_name, colour_name, quantity, unit_price_cents
FROM order_lines
WHERE order_id = $1
ORDER BY id
`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(
			&l.ID,
			&l.OrderID,
			&l.ProductID,
			&l.SizeID,
			&l.ColourID,
			&l.ProductName,
			&l.SizeName,
			&l.ColourName,
			&l.Quantity,
			&l.UnitPriceCents,
		); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

type aggregatedLine struct {
	domain.Variant
	quantity int
}

func aggregateLines(lines []domain.OrderLine) map[string]aggregatedLine {
	out := make(map[string]aggregatedLine, len(lines))
	for _, l := range lines {
		agg := out[l.Key()]
		agg.Variant = l.Variant
		agg.quantity += l.Quantity
		out[l.Key()] = agg
	}
	return out
}

func nullIfEmpty(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
