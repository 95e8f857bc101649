package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"
)

const (
	lowStockLimit    = 20
	recentSalesLimit = 10
	dashboardReport  = "dashboard"
)

// RepositoryPort is the reporting data source.
type RepositoryPort interface {
	SalesSummary(ctx context.Context, rg Range) (SalesSummary, error)
	PaymentsByMethod(ctx context.Context, rg Range) ([]MethodTotal, error)
	CreditSummary(ctx context.Context) (CreditSummary, error)
	LowStock(ctx context.Context, limit int) ([]LowStockItem, error)
	RecentSales(ctx context.Context, limit int) ([]RecentSale, error)
	CreditRows(ctx context.Context) ([]CreditRow, error)
	SaleRows(ctx context.Context, rg Range) ([]SaleRow, error)
	DumpTable(ctx context.Context, table string) (json.RawMessage, error)
}

// Service assembles reports.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service. Dates are interpreted in loc.
func NewService(repo RepositoryPort, cache *Cache, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, loc: loc, logger: logger.With(slog.String("module", "reports")), now: time.Now}
}

// Today returns the store's current day as a range.
func (s *Service) Today() Range {
	now := s.now().In(s.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	return Range{From: start, To: start.AddDate(0, 0, 1)}
}

// Dashboard returns the home screen figures for rg, served from the cache
// until the next write bumps it.
func (s *Service) Dashboard(ctx context.Context, rg Range) (Dashboard, error) {
	if !rg.From.Before(rg.To) {
		return Dashboard{}, ErrInvalidRange
	}
	key, err := s.cache.BuildKey(ctx, dashboardReport, rg.From.UTC().Format(time.RFC3339), rg.To.UTC().Format(time.RFC3339))
	if err != nil {
		s.logger.Warn("build dashboard cache key", slog.Any("error", err))
		return s.buildDashboard(ctx, rg)
	}
	var out Dashboard
	err = s.cache.FetchJSON(ctx, dashboardReport, key, &out, func(ctx context.Context) (any, error) {
		return s.buildDashboard(ctx, rg)
	})
	return out, err
}

func (s *Service) buildDashboard(ctx context.Context, rg Range) (Dashboard, error) {
	d := Dashboard{Range: rg, GeneratedAt: s.now()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.Sales, err = s.repo.SalesSummary(gctx, rg)
		return err
	})
	g.Go(func() error {
		var err error
		d.Payments, err = s.repo.PaymentsByMethod(gctx, rg)
		return err
	})
	g.Go(func() error {
		var err error
		d.Credit, err = s.repo.CreditSummary(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.LowStock, err = s.repo.LowStock(gctx, lowStockLimit)
		return err
	})
	g.Go(func() error {
		var err error
		d.RecentSales, err = s.repo.RecentSales(gctx, recentSalesLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, fmt.Errorf("reports: dashboard: %w", err)
	}
	if d.Payments == nil {
		d.Payments = []MethodTotal{}
	}
	if d.LowStock == nil {
		d.LowStock = []LowStockItem{}
	}
	if d.RecentSales == nil {
		d.RecentSales = []RecentSale{}
	}
	return d, nil
}

// Invalidate drops every cached report.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// ExportCredits writes every credit note to a spreadsheet.
func (s *Service) ExportCredits(ctx context.Context) (*excelize.File, error) {
	rows, err := s.repo.CreditRows(ctx)
	if err != nil {
		return nil, err
	}
	sheet := newSheet("Creditos", []string{"Cliente", "Semana", "Vence", "Estado", "Total", "Pendiente"})
	for _, r := range rows {
		sheet.row(
			r.CustomerName,
			r.WeekStart.Format(time.DateOnly)+" - "+r.WeekEnd.Format(time.DateOnly),
			r.DueDate.Format(time.DateOnly),
			r.Status,
			r.Total.InexactFloat64(),
			r.Outstanding.InexactFloat64(),
		)
	}
	return sheet.finish()
}

// ExportSales writes the sales of rg to a spreadsheet.
func (s *Service) ExportSales(ctx context.Context, rg Range) (*excelize.File, error) {
	if !rg.From.Before(rg.To) {
		return nil, ErrInvalidRange
	}
	rows, err := s.repo.SaleRows(ctx, rg)
	if err != nil {
		return nil, err
	}
	sheet := newSheet("Ventas", []string{"Fecha", "Venta", "Cliente", "Estado", "Pago", "Articulos", "Total", "Costo", "Ganancia"})
	for _, r := range rows {
		sheet.row(
			r.CreatedAt.In(s.loc).Format("2006-01-02 15:04"),
			r.ID.String(),
			r.CustomerName,
			r.Status,
			r.Method,
			r.Items,
			r.Total.InexactFloat64(),
			r.Cost.InexactFloat64(),
			r.Total.Sub(r.Cost).InexactFloat64(),
		)
	}
	return sheet.finish()
}

// Backup dumps every store table as JSON.
func (s *Service) Backup(ctx context.Context) (Backup, error) {
	b := Backup{GeneratedAt: s.now().UTC(), Tables: make(map[string]json.RawMessage, len(BackupTables))}
	for _, table := range BackupTables {
		raw, err := s.repo.DumpTable(ctx, table)
		if err != nil {
			return Backup{}, fmt.Errorf("reports: dump %s: %w", table, err)
		}
		b.Tables[table] = raw
	}
	return b, nil
}

type sheetWriter struct {
	file *excelize.File
	name string
	next int
	err  error
}

func newSheet(name string, headers []string) *sheetWriter {
	f := excelize.NewFile()
	w := &sheetWriter{file: f, name: name, next: 1}
	if err := f.SetSheetName("Sheet1", name); err != nil {
		w.err = err
		return w
	}
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	w.row(values...)
	if w.err == nil {
		w.err = f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	}
	return w
}

func (w *sheetWriter) row(values ...any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, w.next)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.file.SetSheetRow(w.name, cell, &values)
	w.next++
}

func (w *sheetWriter) finish() (*excelize.File, error) {
	if w.err != nil {
		_ = w.file.Close()
		return nil, w.err
	}
	return w.file, nil
}
