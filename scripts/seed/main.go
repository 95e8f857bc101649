package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nahum29/tiendita/internal/app"
	"github.com/nahum29/tiendita/internal/platform/db"
)

type seedProduct struct {
	sku       string
	name      string
	category  string
	price     string
	cost      string
	stock     int64
	threshold int64
	bulk      bool
}

// Bulk prices are per kg; bulk stock is in grams.
var products = []seedProduct{
	{"7501000111206", "Coca-Cola 600 ml", "Bebidas", "18.00", "13.50", 48, 12, false},
	{"7501055300075", "Agua Ciel 1 L", "Bebidas", "12.00", "8.00", 36, 12, false},
	{"7501030411020", "Pan Bimbo grande", "Panaderia", "52.00", "41.00", 10, 3, false},
	{"7501020515343", "Leche Lala 1 L", "Lacteos", "28.50", "23.00", 24, 6, false},
	{"7501071301452", "Aceite 1-2-3 1 L", "Abarrotes", "45.00", "36.00", 12, 4, false},
	{"GRA-FRIJOL", "Frijol negro", "Granel", "42.00", "30.00", 25000, 5000, true},
	{"GRA-ARROZ", "Arroz", "Granel", "32.00", "22.00", 30000, 5000, true},
	{"GRA-AZUCAR", "Azucar estandar", "Granel", "34.00", "26.00", 20000, 5000, true},
	{"GRA-HUEVO", "Huevo blanco", "Granel", "48.00", "38.00", 15000, 3000, true},
}

var customers = []struct {
	name  string
	phone string
}{
	{"Doña Lupe", "5512345678"},
	{"Don Chucho", "5587654321"},
	{"Mari la de la esquina", ""},
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg, err := app.LoadConfig()
	if err != nil {
		logger.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		categories, err := seedCategories(ctx, tx)
		if err != nil {
			return fmt.Errorf("seed categories: %w", err)
		}
		n, err := seedProducts(ctx, tx, categories, cfg.Operator())
		if err != nil {
			return fmt.Errorf("seed products: %w", err)
		}
		logger.Info("products seeded", slog.Int("inserted", n))
		n, err = seedCustomers(ctx, tx)
		if err != nil {
			return fmt.Errorf("seed customers: %w", err)
		}
		logger.Info("customers seeded", slog.Int("inserted", n))
		return nil
	})
	if err != nil {
		logger.Error("seed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("seed completed")
}

func seedCategories(ctx context.Context, tx pgx.Tx) (map[string]uuid.UUID, error) {
	ids := make(map[string]uuid.UUID)
	for _, p := range products {
		if _, ok := ids[p.category]; ok {
			continue
		}
		var id uuid.UUID
		err := tx.QueryRow(ctx, `
			INSERT INTO categories (id, name) VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, uuid.New(), p.category).Scan(&id)
		if err != nil {
			return nil, err
		}
		ids[p.category] = id
	}
	return ids, nil
}

func seedProducts(ctx context.Context, tx pgx.Tx, categories map[string]uuid.UUID, operator uuid.UUID) (int, error) {
	inserted := 0
	now := time.Now()
	for _, p := range products {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE lower(sku) = lower($1))`, p.sku).Scan(&exists); err != nil {
			return inserted, err
		}
		if exists {
			continue
		}
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO products (id, sku, name, price, cost, stock, low_stock_threshold, category_id, is_bulk, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10, $10)`,
			id, p.sku, p.name, decimal.RequireFromString(p.price), decimal.RequireFromString(p.cost),
			p.stock, p.threshold, categories[p.category], p.bulk, now)
		if err != nil {
			return inserted, err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO stock_movements (id, product_id, qty_change, balance_after, reason, note, created_at)
			VALUES ($1, $2, $3, $3, 'restock', $4, $5)`,
			uuid.New(), id, p.stock, "opening stock seeded by "+operator.String(), now)
		if err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, nil
}

func seedCustomers(ctx context.Context, tx pgx.Tx) (int, error) {
	inserted := 0
	for _, c := range customers {
		tag, err := tx.Exec(ctx, `
			INSERT INTO customers (id, name, phone)
			SELECT $1, $2, NULLIF($3, '')
			WHERE NOT EXISTS (SELECT 1 FROM customers WHERE lower(name) = lower($2))`,
			uuid.New(), c.name, c.phone)
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}
