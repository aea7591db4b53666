package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
)

// CategoriesRepository reads the fixed rating category catalog.
type CategoriesRepository struct {
	pool *pgxpool.Pool
}

const categoryColumns = `id, name, weight, is_primary, is_active, display_order`

// List returns every category ordered for display.
func (r *CategoriesRepository) List(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY display_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

// GetByID fetches a single category.
func (r *CategoriesRepository) GetByID(ctx context.Context, id string) (domain.Category, error) {
	category, err := scanCategory(r.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Category{}, ErrNotFound
		}
		return domain.Category{}, err
	}
	return category, nil
}

func scanCategory(row pgx.Row) (domain.Category, error) {
	var c domain.Category
	err := row.Scan(&c.ID, &c.Name, &c.Weight, &c.IsPrimary, &c.IsActive, &c.DisplayOrder)
	return c, err
}
