package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// RepositoryPort reads audit rows.
type RepositoryPort interface {
	Window(ctx context.Context, f Filters, offset, limit int) ([]Row, error)
}

// Service serves the audit timeline.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of rows matching f.
func (s *Service) Timeline(ctx context.Context, f Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	f, err := normalize(f)
	if err != nil {
		return Result{}, err
	}
	offset := (f.Page - 1) * f.PageSize
	rows, err := s.repo.Window(ctx, f, offset, f.PageSize+1)
	if err != nil {
		return Result{}, fmt.Errorf("audit: timeline: %w", err)
	}
	hasNext := len(rows) > f.PageSize
	if hasNext {
		rows = rows[:f.PageSize]
	}
	if rows == nil {
		rows = []Row{}
	}
	paging := Paging{Page: f.Page, PageSize: f.PageSize, HasNext: hasNext}
	if f.Page > 1 {
		paging.PrevPage = f.Page - 1
	}
	if hasNext {
		paging.NextPage = f.Page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// ExportCSV writes every row matching f, up to a fixed cap, as CSV.
func (s *Service) ExportCSV(ctx context.Context, f Filters, w io.Writer) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	f, err := normalize(f)
	if err != nil {
		return err
	}
	rows, err := s.repo.Window(ctx, f, 0, maxExportRows)
	if err != nil {
		return fmt.Errorf("audit: export: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"at", "actor_id", "action", "entity", "entity_id", "meta"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			row.ActorID.String(),
			row.Action,
			row.Entity,
			row.EntityID,
			string(row.Meta),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func normalize(f Filters) (Filters, error) {
	f.Entity = strings.TrimSpace(f.Entity)
	f.EntityID = strings.TrimSpace(f.EntityID)
	f.Action = strings.TrimSpace(f.Action)
	if !f.From.IsZero() && !f.To.IsZero() {
		if !f.From.Before(f.To) || f.To.Sub(f.From) > MaxRange {
			return Filters{}, ErrInvalidRange
		}
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	switch {
	case f.PageSize <= 0:
		f.PageSize = defaultPageSize
	case f.PageSize > maxPageSize:
		f.PageSize = maxPageSize
	}
	return f, nil
}
