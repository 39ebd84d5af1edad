package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/fanwire/go-fanwire-backend/internal/domain"
	"github.com/fanwire/go-fanwire-backend/internal/repo"
)

// SuperstarService serves the public superstar directory.
type SuperstarService struct {
	DB *gorm.DB
}

// ListPage returns a page of superstar profile summaries ordered by handle,
// with the total count for pagination.
func (s *SuperstarService) ListPage(ctx context.Context, page, perPage int) ([]domain.SuperstarSummary, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	offset := (page - 1) * perPage

	total, err := repo.CountSuperstars(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.SuperstarSummary{}, 0, nil
	}

	rows, err := repo.ListSuperstarsPage(ctx, s.DB, offset, perPage)
	if err != nil {
		return nil, 0, err
	}
	out := make([]domain.SuperstarSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, Summarize(r))
	}
	return out, total, nil
}
