package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
)

// SeedsRepository persists administrator seed configuration.
type SeedsRepository struct {
	pool *pgxpool.Pool
}

// SeedDefaults are the values a freshly onboarded key starts with.
type SeedDefaults struct {
	RealWeight decimal.Decimal
	FakeWeight decimal.Decimal
	Mode       domain.DisplayMode
}

// SeedUpdateParams carries the full replacement state for a seed row.
type SeedUpdateParams struct {
	EntityID        string
	CategoryID      string
	FakeCount       int64
	FakeAverage     decimal.Decimal
	RealWeight      decimal.Decimal
	FakeWeight      decimal.Decimal
	Mode            domain.DisplayMode
	AllowNewRatings bool
	UpdatedBy       string
}

// Candidate is the aggregate and seed of one entity's primary category, read together.
type Candidate struct {
	EntityID  string
	Aggregate domain.AggregateRating
	Seed      domain.SeedConfig
}

const seedColumns = `entity_id, category_id, fake_count, fake_average, real_weight, fake_weight,
        display_mode, allow_new_ratings, updated_by, updated_at`

// EnsureDefaultsForEntity creates a default seed row for every category of an
// entity. Existing rows are left untouched.
func (r *SeedsRepository) EnsureDefaultsForEntity(ctx context.Context, q Querier, entityID string, defaults SeedDefaults) error {
	const query = `
        INSERT INTO seed_configs (entity_id, category_id, real_weight, fake_weight, display_mode)
        SELECT $1::text, c.id, $2::numeric, $3::numeric, $4::text FROM categories c
        ON CONFLICT (entity_id, category_id) DO NOTHING
    `
	if _, err := q.Exec(ctx, query, entityID, defaults.RealWeight, defaults.FakeWeight, string(defaults.Mode)); err != nil {
		return fmt.Errorf("create default seeds: %w", translatePgError(err))
	}
	return nil
}

// EnsureDefault creates the default seed row for a single key if it is missing.
func (r *SeedsRepository) EnsureDefault(ctx context.Context, q Querier, entityID, categoryID string, defaults SeedDefaults) error {
	const query = `
        INSERT INTO seed_configs (entity_id, category_id, real_weight, fake_weight, display_mode)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (entity_id, category_id) DO NOTHING
    `
	if _, err := q.Exec(ctx, query, entityID, categoryID, defaults.RealWeight, defaults.FakeWeight, string(defaults.Mode)); err != nil {
		return fmt.Errorf("create default seed: %w", translatePgError(err))
	}
	return nil
}

// Get reads the seed row for a key without locking.
func (r *SeedsRepository) Get(ctx context.Context, entityID, categoryID string) (domain.SeedConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM seed_configs WHERE entity_id = $1 AND category_id = $2`, seedColumns)
	return r.getOne(r.pool.QueryRow(ctx, query, entityID, categoryID))
}

// GetForUpdate reads the seed row and locks it until the transaction ends.
func (r *SeedsRepository) GetForUpdate(ctx context.Context, q Querier, entityID, categoryID string) (domain.SeedConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM seed_configs WHERE entity_id = $1 AND category_id = $2 FOR UPDATE`, seedColumns)
	return r.getOne(q.QueryRow(ctx, query, entityID, categoryID))
}

// Update overwrites the seed row for a key and returns the stored state.
func (r *SeedsRepository) Update(ctx context.Context, q Querier, params SeedUpdateParams) (domain.SeedConfig, error) {
	query := fmt.Sprintf(`
        UPDATE seed_configs SET
            fake_count        = $3,
            fake_average      = $4,
            real_weight       = $5,
            fake_weight       = $6,
            display_mode      = $7,
            allow_new_ratings = $8,
            updated_by        = $9,
            updated_at        = now()
        WHERE entity_id = $1 AND category_id = $2
        RETURNING %s
    `, seedColumns)

	seed, err := r.getOne(q.QueryRow(ctx, query,
		params.EntityID,
		params.CategoryID,
		params.FakeCount,
		params.FakeAverage,
		params.RealWeight,
		params.FakeWeight,
		string(params.Mode),
		params.AllowNewRatings,
		params.UpdatedBy,
	))
	if err != nil {
		return domain.SeedConfig{}, translatePgError(err)
	}
	return seed, nil
}

// AcceptsRatings reports whether new ratings are open for a key. The seed row
// is share-locked so a concurrent freeze waits for the submission to commit.
// A key without a seed row is open.
func (r *SeedsRepository) AcceptsRatings(ctx context.Context, q Querier, entityID, categoryID string) (bool, error) {
	const query = `
        SELECT allow_new_ratings FROM seed_configs
        WHERE entity_id = $1 AND category_id = $2
        FOR SHARE
    `
	var open bool
	err := q.QueryRow(ctx, query, entityID, categoryID).Scan(&open)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read ratings gate: %w", err)
	}
	return open, nil
}

// ListForEntity returns the seed rows of every category of an entity.
func (r *SeedsRepository) ListForEntity(ctx context.Context, entityID string) ([]domain.SeedConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM seed_configs WHERE entity_id = $1 ORDER BY category_id`, seedColumns)
	rows, err := r.pool.Query(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("list seeds: %w", err)
	}
	defer rows.Close()

	var out []domain.SeedConfig
	for rows.Next() {
		seed, err := scanSeed(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, seed)
	}
	return out, rows.Err()
}

// PrimaryCandidates reads aggregate and seed state of the primary category for
// every entity. Entities without a seed row fall back to defaults.
func (r *SeedsRepository) PrimaryCandidates(ctx context.Context, defaults SeedDefaults) ([]Candidate, error) {
	const query = `
        SELECT e.id, c.id,
               COALESCE(a.real_count, 0), COALESCE(a.real_sum, 0),
               COALESCE(a.stars_1, 0), COALESCE(a.stars_2, 0), COALESCE(a.stars_3, 0),
               COALESCE(a.stars_4, 0), COALESCE(a.stars_5, 0),
               COALESCE(s.fake_count, 0), COALESCE(s.fake_average, 0),
               COALESCE(s.real_weight, $1), COALESCE(s.fake_weight, $2),
               COALESCE(s.display_mode, $3), COALESCE(s.allow_new_ratings, TRUE)
        FROM entities e
        CROSS JOIN categories c
        LEFT JOIN rating_aggregates a ON a.entity_id = e.id AND a.category_id = c.id
        LEFT JOIN seed_configs s ON s.entity_id = e.id AND s.category_id = c.id
        WHERE c.is_primary AND c.is_active
        ORDER BY e.id
    `
	rows, err := r.pool.Query(ctx, query, defaults.RealWeight, defaults.FakeWeight, string(defaults.Mode))
	if err != nil {
		return nil, fmt.Errorf("list featured candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var mode string
		if err := rows.Scan(
			&c.EntityID,
			&c.Aggregate.CategoryID,
			&c.Aggregate.RealCount,
			&c.Aggregate.RealSum,
			&c.Aggregate.Distribution[0],
			&c.Aggregate.Distribution[1],
			&c.Aggregate.Distribution[2],
			&c.Aggregate.Distribution[3],
			&c.Aggregate.Distribution[4],
			&c.Seed.FakeCount,
			&c.Seed.FakeAverage,
			&c.Seed.RealWeight,
			&c.Seed.FakeWeight,
			&mode,
			&c.Seed.AllowNewRatings,
		); err != nil {
			return nil, err
		}
		c.Aggregate.EntityID = c.EntityID
		c.Seed.EntityID = c.EntityID
		c.Seed.CategoryID = c.Aggregate.CategoryID
		c.Seed.Mode = domain.DisplayMode(mode)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SeedsRepository) getOne(row pgx.Row) (domain.SeedConfig, error) {
	seed, err := scanSeed(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SeedConfig{}, ErrNotFound
		}
		return domain.SeedConfig{}, err
	}
	return seed, nil
}

func scanSeed(row pgx.Row) (domain.SeedConfig, error) {
	var seed domain.SeedConfig
	var mode string
	err := row.Scan(
		&seed.EntityID,
		&seed.CategoryID,
		&seed.FakeCount,
		&seed.FakeAverage,
		&seed.RealWeight,
		&seed.FakeWeight,
		&mode,
		&seed.AllowNewRatings,
		&seed.UpdatedBy,
		&seed.UpdatedAt,
	)
	if err != nil {
		return domain.SeedConfig{}, err
	}
	seed.Mode = domain.DisplayMode(mode)
	return seed, nil
}
