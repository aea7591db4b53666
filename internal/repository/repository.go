package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
	"github.com/Clark-Hu/smart-ratings/internal/store"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = domain.ErrNotFound

// ErrStorageConflict is reported when a uniqueness constraint rejects a write.
var ErrStorageConflict = errors.New("repository: uniqueness conflict")

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNumericOutOfRange   = "22003"
)

// Querier is satisfied by both the pool and an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository aggregates all domain-specific repositories.
type Repository struct {
	pool       *pgxpool.Pool
	Entities   *EntitiesRepository
	Categories *CategoriesRepository
	Ratings    *RatingsRepository
	Seeds      *SeedsRepository
	Audit      *AuditRepository
	Reports    *ReportsRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:       pool,
		Entities:   &EntitiesRepository{pool: pool},
		Categories: &CategoriesRepository{pool: pool},
		Ratings:    &RatingsRepository{pool: pool},
		Seeds:      &SeedsRepository{pool: pool},
		Audit:      &AuditRepository{pool: pool},
		Reports:    &ReportsRepository{pool: pool},
	}
}

// InTx runs fn inside a single transaction. The transaction commits only when
// fn returns nil; any error rolls back every write fn made.
func (r *Repository) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%w: %s", ErrStorageConflict, pgErr.ConstraintName)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
	case pgNumericOutOfRange:
		return domain.NewValidationError(pgErr.ColumnName, "value out of range")
	}
	return err
}
