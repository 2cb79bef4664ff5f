package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sevirun/internal/domain"
	"sevirun/internal/logging"
)

// CatalogueWriter is the subset of the product repository the importer needs.
type CatalogueWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpsertSize(ctx context.Context, name string) (*domain.Size, error)
	UpsertColour(ctx context.Context, name string) (*domain.Colour, error)
	SetStock(ctx context.Context, level domain.StockLevel) error
}

// CSVImporter reads catalogue CSV files and upserts products and their stock.
//
// Expected headers: key, name, description, picture, price, sale_price, size,
// colour, stock. A row with a key starts a product; rows with an empty key add
// further size and colour stock to the product above them.
type CSVImporter struct {
	reader *csv.Reader
	repo   CatalogueWriter
	logger *zap.Logger
}

func NewCSVImporter(r io.Reader, repo CatalogueWriter, logger *zap.Logger) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	return &CSVImporter{
		reader: csvr,
		repo:   repo,
		logger: logging.OrNop(logger).Named("importer"),
	}
}

// Stats summarises an import run.
type Stats struct {
	Products    int
	StockLevels int
}

type stockRow struct {
	Size   string
	Colour string
	Stock  int
}

type productRow struct {
	Line           int
	Key            string
	Name           string
	Desc           string
	Picture        string
	PriceCents     int64
	SalePriceCents *int64
	Stock          []stockRow
}

// Run parses CSV rows and upserts products grouped by product key.
func (i *CSVImporter) Run(ctx context.Context) (Stats, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return Stats{}, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if _, ok := index["key"]; !ok {
		return Stats{}, errors.New("read headers: missing key column")
	}

	var (
		current *productRow
		stats   Stats
		line    = 1
	)

	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("read row: %w", err)
		}
		line++

		row, stock, err := parseRow(record, index, line)
		if err != nil {
			return stats, err
		}
		if row == nil && stock == nil {
			continue
		}

		if row != nil {
			if current != nil {
				if err := i.save(ctx, current, &stats); err != nil {
					return stats, err
				}
			}
			current = row
		}
		if stock != nil {
			if current == nil {
				return stats, fmt.Errorf("line %d: stock row before any product", line)
			}
			current.Stock = append(current.Stock, *stock)
		}
	}

	if current != nil {
		if err := i.save(ctx, current, &stats); err != nil {
			return stats, err
		}
	}

	i.logger.Info("catalogue imported", zap.Int("products", stats.Products), zap.Int("stock_levels", stats.StockLevels))
	return stats, nil
}

func (i *CSVImporter) save(ctx context.Context, row *productRow, stats *Stats) error {
	if row.Name == "" || row.PriceCents <= 0 {
		return fmt.Errorf("line %d: invalid product row (missing name or price) for key %q", row.Line, row.Key)
	}

	p, err := i.repo.Upsert(ctx, domain.Product{
		Key:            row.Key,
		Name:           row.Name,
		Description:    row.Desc,
		PictureURL:     row.Picture,
		PriceCents:     row.PriceCents,
		SalePriceCents: row.SalePriceCents,
		IsAvailable:    true,
	})
	if err != nil {
		return fmt.Errorf("upsert product %q: %w", row.Key, err)
	}
	stats.Products++

	for _, s := range row.Stock {
		size, err := i.repo.UpsertSize(ctx, s.Size)
		if err != nil {
			return fmt.Errorf("upsert size %q: %w", s.Size, err)
		}
		colour, err := i.repo.UpsertColour(ctx, s.Colour)
		if err != nil {
			return fmt.Errorf("upsert colour %q: %w", s.Colour, err)
		}
		level := domain.StockLevel{
			Variant: domain.Variant{ProductID: p.ID, SizeID: size.ID, ColourID: colour.ID},
			Stock:   s.Stock,
		}
		if err := i.repo.SetStock(ctx, level); err != nil {
			return fmt.Errorf("set stock for %q %s/%s: %w", row.Key, s.Size, s.Colour, err)
		}
		stats.StockLevels++
	}
	return nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func parseRow(record []string, index map[string]int, line int) (*productRow, *stockRow, error) {
	key := pick(record, index, "key")
	size := pick(record, index, "size")
	colour := pick(record, index, "colour")

	var stock *stockRow
	if size != "" || colour != "" {
		if size == "" || colour == "" {
			return nil, nil, fmt.Errorf("line %d: size and colour go together", line)
		}
		n, err := strconv.Atoi(orDefault(pick(record, index, "stock"), "0"))
		if err != nil || n < 0 {
			return nil, nil, fmt.Errorf("line %d: invalid stock %q", line, pick(record, index, "stock"))
		}
		stock = &stockRow{Size: size, Colour: colour, Stock: n}
	}

	if key == "" {
		return nil, stock, nil
	}

	price, err := parseCents(pick(record, index, "price"))
	if err != nil {
		return nil, nil, fmt.Errorf("line %d: invalid price: %w", line, err)
	}
	row := &productRow{
		Line:       line,
		Key:        key,
		Name:       pick(record, index, "name"),
		Desc:       pick(record, index, "description"),
		Picture:    pick(record, index, "picture"),
		PriceCents: price,
	}
	if raw := pick(record, index, "sale_price"); raw != "" {
		sale, err := parseCents(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: invalid sale price: %w", line, err)
		}
		if sale > 0 {
			row.SalePriceCents = &sale
		}
	}
	return row, stock, nil
}

// parseCents turns a decimal euro amount such as "55.90" into cents.
func parseCents(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
	if err != nil {
		return 0, err
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative amount %s", raw)
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
