package customer

import (
	"context"
	"errors"
	"strings"

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

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) Repository {
	return &postgresRepo{pool: pool, logger: logging.OrNop(logger).Named("customer_repo")}
}

const customerColumns = `id::text, email, password_hash, name, surname, phone, address, city, postal_code, is_staff, created_at`

func (r *postgresRepo) Create(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	q := `
INSERT INTO customers (email, password_hash, name, surname, phone, address, city, postal_code, is_staff)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + customerColumns
	return r.scanCustomer(r.pool.QueryRow(ctx, q,
		strings.ToLower(strings.TrimSpace(c.Email)),
		c.PasswordHash,
		c.Name,
		c.Surname,
		c.Phone,
		c.Address,
		c.City,
		c.PostalCode,
		c.IsStaff,
	))
}

func (r *postgresRepo) GetByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	q := `SELECT ` + customerColumns + ` FROM customers WHERE lower(email) = lower($1) LIMIT 1`
	return r.scanCustomer(r.pool.QueryRow(ctx, q, strings.TrimSpace(email)))
}

func (r *postgresRepo) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	q := `SELECT ` + customerColumns + ` FROM customers WHERE id::text = $1 LIMIT 1`
	return r.scanCustomer(r.pool.QueryRow(ctx, q, id))
}

func (r *postgresRepo) SetStaff(ctx context.Context, id string, staff bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE customers SET is_staff = $2 WHERE id::text = $1`, id, staff)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *postgresRepo) scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(
		&c.ID,
		&c.Email,
		&c.PasswordHash,
		&c.Name,
		&c.Surname,
		&c.Phone,
		&c.Address,
		&c.City,
		&c.PostalCode,
		&c.IsStaff,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrAlreadyExists
		}
		r.logger.Error("scan customer", zap.Error(err))
		return nil, err
	}
	return &c, nil
}
