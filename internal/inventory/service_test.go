package inventory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nahum29/tiendita/internal/shared"
)

type memoryRepo struct {
	products   map[uuid.UUID]Product
	movements  []Movement
	categories []Category
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[uuid.UUID]Product)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	products := make(map[uuid.UUID]Product, len(r.products))
	for k, v := range r.products {
		products[k] = v
	}
	movements := append([]Movement(nil), r.movements...)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.products = products
		r.movements = movements
		return err
	}
	return nil
}

func (r *memoryRepo) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	p, ok := r.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (r *memoryRepo) GetBySKU(ctx context.Context, sku string) (Product, error) {
	for _, p := range r.products {
		if p.Active && strings.EqualFold(p.SKU, sku) {
			return p, nil
		}
	}
	return Product{}, ErrProductNotFound
}

func (r *memoryRepo) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	var out []Product
	for _, p := range r.products {
		if !filter.IncludeInactive && !p.Active {
			continue
		}
		if filter.LowStockOnly && !p.LowStock() {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Query)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, productID uuid.UUID, limit int) ([]Movement, error) {
	var out []Movement
	for i := len(r.movements) - 1; i >= 0 && len(out) < limit; i-- {
		if r.movements[i].ProductID == productID {
			out = append(out, r.movements[i])
		}
	}
	return out, nil
}

func (r *memoryRepo) ListCategories(ctx context.Context) ([]Category, error) {
	return r.categories, nil
}

func (r *memoryRepo) InsertCategory(ctx context.Context, c Category) error {
	r.categories = append(r.categories, c)
	return nil
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, id uuid.UUID) (Product, error) {
	return tx.repo.GetProduct(ctx, id)
}

func (tx *memoryTx) InsertProduct(ctx context.Context, p Product) error {
	if p.SKU != "" {
		for _, existing := range tx.repo.products {
			if strings.EqualFold(existing.SKU, p.SKU) {
				return ErrDuplicateSKU
			}
		}
	}
	tx.repo.products[p.ID] = p
	return nil
}

func (tx *memoryTx) UpdateProduct(ctx context.Context, p Product) error {
	if _, ok := tx.repo.products[p.ID]; !ok {
		return ErrProductNotFound
	}
	tx.repo.products[p.ID] = p
	return nil
}

func (tx *memoryTx) SetStock(ctx context.Context, id uuid.UUID, stock int64) error {
	p, ok := tx.repo.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Stock = stock
	tx.repo.products[id] = p
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) error {
	tx.repo.movements = append(tx.repo.movements, m)
	return nil
}

type recordingAudit struct {
	actions []string
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

type countingCache struct {
	bumps int
	err   error
}

func (c *countingCache) Bump(ctx context.Context) error {
	c.bumps++
	return c.err
}

func newTestService(repo *memoryRepo) (*Service, *recordingAudit, *countingCache) {
	audit := &recordingAudit{}
	cache := &countingCache{}
	now := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
	svc := NewService(repo, audit, ServiceConfig{Cache: cache, Now: func() time.Time { return now }})
	return svc, audit, cache
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCreateProductRecordsOpeningStock(t *testing.T) {
	repo := newMemoryRepo()
	svc, audit, cache := newTestService(repo)

	p, err := svc.CreateProduct(context.Background(), ProductInput{
		SKU:   "7501000111",
		Name:  "  Refresco 600ml ",
		Price: dec("18"),
		Cost:  dec("12.5"),
		Stock: 24,
	})
	require.NoError(t, err)
	require.Equal(t, "Refresco 600ml", p.Name)
	require.True(t, p.Active)
	require.Len(t, repo.movements, 1)
	require.Equal(t, ReasonRestock, repo.movements[0].Reason)
	require.Equal(t, int64(24), repo.movements[0].BalanceAfter)
	require.Equal(t, []string{"inventory:product_created"}, audit.actions)
	require.Equal(t, 1, cache.bumps)

	_, err = svc.CreateProduct(context.Background(), ProductInput{SKU: "7501000111", Name: "Otro", Price: dec("1")})
	require.ErrorIs(t, err, ErrDuplicateSKU)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateProductValidation(t *testing.T) {
	svc, _, _ := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, ProductInput{Name: " ", Price: dec("1")})
	require.ErrorIs(t, err, ErrNameRequired)

	_, err = svc.CreateProduct(ctx, ProductInput{Name: "Azucar", Price: dec("-1")})
	require.ErrorIs(t, err, ErrInvalidPrice)

	_, err = svc.CreateProduct(ctx, ProductInput{Name: "Azucar", Price: dec("1"), Stock: -5})
	require.ErrorIs(t, err, ErrInvalidStock)
}

func TestBulkProductPricesPerGram(t *testing.T) {
	p := Product{Name: "Frijol", Price: dec("42"), Cost: dec("30"), IsBulk: true, Stock: 2500}
	require.True(t, p.UnitPrice().Equal(dec("0.042")))
	require.True(t, p.UnitCost().Equal(dec("0.03")))
	require.Equal(t, "250 g", p.FormatQuantity(250))
	require.Equal(t, "2.50 kg", p.StockLabel())

	piece := Product{Name: "Jabon", Price: dec("15"), Stock: 3, LowStockThreshold: 5}
	require.True(t, piece.UnitPrice().Equal(dec("15")))
	require.True(t, piece.LowStock())
	require.Equal(t, "3", piece.StockLabel())
}

func TestAdjustStock(t *testing.T) {
	repo := newMemoryRepo()
	svc, audit, _ := newTestService(repo)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, ProductInput{Name: "Arroz", Price: dec("30"), Stock: 10})
	require.NoError(t, err)

	mv, err := svc.Adjust(ctx, AdjustmentInput{ProductID: p.ID, QtyChange: 5, Reason: ReasonRestock})
	require.NoError(t, err)
	require.Equal(t, int64(15), mv.BalanceAfter)

	mv, err = svc.Adjust(ctx, AdjustmentInput{ProductID: p.ID, QtyChange: -3, Note: "merma"})
	require.NoError(t, err)
	require.Equal(t, ReasonAdjustment, mv.Reason)
	require.Equal(t, int64(12), repo.products[p.ID].Stock)
	require.Contains(t, audit.actions, "inventory:stock_adjusted")

	movements, err := svc.ListMovements(ctx, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, movements, 3)
	require.Equal(t, int64(-3), movements[0].QtyChange)
}

func TestAdjustRejectsInvalidInput(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, ProductInput{Name: "Arroz", Price: dec("30"), Stock: 2})
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, AdjustmentInput{ProductID: p.ID})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Adjust(ctx, AdjustmentInput{ProductID: p.ID, QtyChange: -1, Reason: ReasonRestock})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Adjust(ctx, AdjustmentInput{ProductID: p.ID, QtyChange: 1, Reason: ReasonSale})
	require.ErrorIs(t, err, ErrInvalidReason)

	_, err = svc.Adjust(ctx, AdjustmentInput{ProductID: uuid.New(), QtyChange: 1})
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestNegativeStockGuard(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, ProductInput{Name: "Huevo", Price: dec("3"), Stock: 4})
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, AdjustmentInput{ProductID: p.ID, QtyChange: -5})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, int64(4), repo.products[p.ID].Stock)
	require.Len(t, repo.movements, 1)
}

func TestDeductForSale(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()
	bulk, err := svc.CreateProduct(ctx, ProductInput{Name: "Frijol", Price: dec("42"), Stock: 1000, IsBulk: true})
	require.NoError(t, err)
	saleID := uuid.New()

	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		updated, err := svc.DeductForSaleTx(ctx, tx, bulk.ID, 250, saleID)
		require.Equal(t, int64(750), updated.Stock)
		return err
	})
	require.NoError(t, err)
	last := repo.movements[len(repo.movements)-1]
	require.Equal(t, ReasonSale, last.Reason)
	require.Equal(t, int64(-250), last.QtyChange)
	require.Equal(t, saleID, *last.RefSaleID)

	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := svc.DeductForSaleTx(ctx, tx, bulk.ID, 800, saleID)
		return err
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Contains(t, err.Error(), "750 g")
	require.Equal(t, int64(750), repo.products[bulk.ID].Stock)

	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := svc.DeductForSaleTx(ctx, tx, bulk.ID, 0, saleID)
		return err
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestDeductForSaleRejectsInactiveProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, ProductInput{Name: "Pan", Price: dec("4"), Stock: 10})
	require.NoError(t, err)
	_, err = svc.UpdateProduct(ctx, p.ID, ProductInput{Name: "Pan", Price: dec("4"), Active: false})
	require.NoError(t, err)
	require.Equal(t, int64(10), repo.products[p.ID].Stock)

	err = repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := svc.DeductForSaleTx(ctx, tx, p.ID, 1, uuid.New())
		return err
	})
	require.ErrorIs(t, err, ErrProductInactive)
}

func TestLookupBySKU(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, _ := newTestService(repo)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, ProductInput{SKU: "ABC-1", Name: "Galletas", Price: dec("12")})
	require.NoError(t, err)

	found, err := svc.LookupBySKU(ctx, " abc-1 ")
	require.NoError(t, err)
	require.Equal(t, p.ID, found.ID)

	_, err = svc.LookupBySKU(ctx, "")
	require.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestCacheFailureDoesNotFailWrite(t *testing.T) {
	repo := newMemoryRepo()
	svc, _, cache := newTestService(repo)
	cache.err = errors.New("redis down")

	_, err := svc.CreateProduct(context.Background(), ProductInput{Name: "Sal", Price: dec("10")})
	require.NoError(t, err)
	require.Len(t, repo.products, 1)
}

func TestCategories(t *testing.T) {
	svc, _, _ := newTestService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateCategory(ctx, "  ")
	require.ErrorIs(t, err, ErrNameRequired)

	c, err := svc.CreateCategory(ctx, "Abarrotes")
	require.NoError(t, err)
	list, err := svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Equal(t, []Category{c}, list)
}
