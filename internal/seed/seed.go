package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"sevirun/internal/domain"
	"sevirun/internal/importer"
	"sevirun/internal/logging"
	custrepo "sevirun/internal/repository/customer"
	productrepo "sevirun/internal/repository/product"
	tokenrepo "sevirun/internal/repository/token"
	customersvc "sevirun/internal/service/customer"
)

//go:embed catalogue.csv
var catalogueCSV string

type account struct {
	Email    string
	Password string
	Name     string
	Staff    bool
}

// Demo accounts for manual testing. Never run the seed against production.
var accounts = []account{
	{Email: "staff@sevirun.example", Password: "Sevirun2024", Name: "Staff", Staff: true},
	{Email: "cliente@sevirun.example", Password: "Cliente2024", Name: "Cliente"},
}

// Apply inserts the demo catalogue, stock and accounts. It is idempotent.
func Apply(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	logger = logging.OrNop(logger).Named("seed")

	products := productrepo.NewPostgres(pool, logger)
	stats, err := importer.NewCSVImporter(strings.NewReader(catalogueCSV), products, logger).Run(ctx)
	if err != nil {
		return fmt.Errorf("seed catalogue: %w", err)
	}

	customers := custrepo.NewPostgres(pool, logger)
	svc := customersvc.New(customers, tokenrepo.NewPostgres(pool), logger)
	for _, a := range accounts {
		if err := ensureAccount(ctx, svc, customers, a); err != nil {
			return fmt.Errorf("seed account %s: %w", a.Email, err)
		}
	}

	logger.Info("seed applied",
		zap.Int("products", stats.Products),
		zap.Int("stock_levels", stats.StockLevels),
		zap.Int("accounts", len(accounts)),
	)
	return nil
}

func ensureAccount(ctx context.Context, svc *customersvc.Service, repo custrepo.Repository, a account) error {
	c, err := svc.Signup(ctx, customersvc.SignupInput{Email: a.Email, Password: a.Password, Name: a.Name})
	if errors.Is(err, domain.ErrAlreadyExists) {
		c, err = repo.GetByEmail(ctx, a.Email)
	}
	if err != nil {
		return err
	}
	return repo.SetStaff(ctx, c.ID, a.Staff)
}
