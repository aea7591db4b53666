package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
)

// RatingsRepository stores rating events and their running aggregates.
type RatingsRepository struct {
	pool *pgxpool.Pool
}

// RatingInsertParams captures the payload required to record a rating.
type RatingInsertParams struct {
	ID         string
	EntityID   string
	CategoryID string
	RaterID    string
	Stars      int
	Comment    string
}

const eventColumns = `id, entity_id, category_id, rater_id, stars, comment, created_at`

const aggregateColumns = `entity_id, category_id, real_count, real_sum,
        stars_1, stars_2, stars_3, stars_4, stars_5, updated_at`

// InsertEvent records a rating if the (entity, category, rater) key is free.
// An occupied key reports ErrStorageConflict and writes nothing.
func (r *RatingsRepository) InsertEvent(ctx context.Context, q Querier, params RatingInsertParams) (domain.RatingEvent, error) {
	query := fmt.Sprintf(`
        INSERT INTO rating_events (id, entity_id, category_id, rater_id, stars, comment)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (entity_id, category_id, rater_id) DO NOTHING
        RETURNING %s
    `, eventColumns)

	event, err := scanEvent(q.QueryRow(ctx, query,
		params.ID,
		params.EntityID,
		params.CategoryID,
		params.RaterID,
		params.Stars,
		params.Comment,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RatingEvent{}, ErrStorageConflict
		}
		return domain.RatingEvent{}, translatePgError(err)
	}
	return event, nil
}

// IncrementAggregate adds one rating of the given stars to the running totals,
// creating the aggregate row on first use. The update is a single-row atomic
// statement so concurrent callers never lose an increment.
func (r *RatingsRepository) IncrementAggregate(ctx context.Context, q Querier, entityID, categoryID string, stars int) (domain.AggregateRating, error) {
	if stars < domain.MinStars || stars > domain.MaxStars {
		return domain.AggregateRating{}, fmt.Errorf("increment aggregate: stars %d out of range", stars)
	}
	var buckets [domain.MaxStars]int64
	buckets[stars-1] = 1

	query := fmt.Sprintf(`
        INSERT INTO rating_aggregates AS a
            (entity_id, category_id, real_count, real_sum, stars_1, stars_2, stars_3, stars_4, stars_5)
        VALUES ($1,$2,1,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (entity_id, category_id) DO UPDATE SET
            real_count = a.real_count + 1,
            real_sum   = a.real_sum + EXCLUDED.real_sum,
            stars_1    = a.stars_1 + EXCLUDED.stars_1,
            stars_2    = a.stars_2 + EXCLUDED.stars_2,
            stars_3    = a.stars_3 + EXCLUDED.stars_3,
            stars_4    = a.stars_4 + EXCLUDED.stars_4,
            stars_5    = a.stars_5 + EXCLUDED.stars_5,
            updated_at = now()
        RETURNING %s
    `, aggregateColumns)

	agg, err := scanAggregate(q.QueryRow(ctx, query,
		entityID,
		categoryID,
		int64(stars),
		buckets[0], buckets[1], buckets[2], buckets[3], buckets[4],
	))
	if err != nil {
		return domain.AggregateRating{}, fmt.Errorf("increment aggregate: %w", translatePgError(err))
	}
	return agg, nil
}

// Aggregate returns the running totals for a key. A key nobody has rated yet
// yields a zero aggregate rather than ErrNotFound.
func (r *RatingsRepository) Aggregate(ctx context.Context, entityID, categoryID string) (domain.AggregateRating, error) {
	query := fmt.Sprintf(`SELECT %s FROM rating_aggregates WHERE entity_id = $1 AND category_id = $2`, aggregateColumns)
	agg, err := scanAggregate(r.pool.QueryRow(ctx, query, entityID, categoryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AggregateRating{EntityID: entityID, CategoryID: categoryID}, nil
		}
		return domain.AggregateRating{}, fmt.Errorf("load aggregate: %w", err)
	}
	return agg, nil
}

// ListAggregatesForEntity returns every aggregate row recorded for an entity.
func (r *RatingsRepository) ListAggregatesForEntity(ctx context.Context, entityID string) ([]domain.AggregateRating, error) {
	query := fmt.Sprintf(`SELECT %s FROM rating_aggregates WHERE entity_id = $1 ORDER BY category_id`, aggregateColumns)
	rows, err := r.pool.Query(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	defer rows.Close()

	var out []domain.AggregateRating
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

// GetEvent retrieves a rating a rater left for a key.
func (r *RatingsRepository) GetEvent(ctx context.Context, entityID, categoryID, raterID string) (domain.RatingEvent, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM rating_events
        WHERE entity_id = $1 AND category_id = $2 AND rater_id = $3
    `, eventColumns)
	event, err := scanEvent(r.pool.QueryRow(ctx, query, entityID, categoryID, raterID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RatingEvent{}, ErrNotFound
		}
		return domain.RatingEvent{}, err
	}
	return event, nil
}

// GetEventByID retrieves a rating by its id through q.
func (r *RatingsRepository) GetEventByID(ctx context.Context, q Querier, id string) (domain.RatingEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM rating_events WHERE id = $1`, eventColumns)
	event, err := scanEvent(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RatingEvent{}, ErrNotFound
		}
		return domain.RatingEvent{}, err
	}
	return event, nil
}

// CountEvents returns the number of committed events for a key.
func (r *RatingsRepository) CountEvents(ctx context.Context, entityID, categoryID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
        SELECT COUNT(*)::int8 FROM rating_events WHERE entity_id = $1 AND category_id = $2
    `, entityID, categoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func scanEvent(row pgx.Row) (domain.RatingEvent, error) {
	var event domain.RatingEvent
	var stars int16
	err := row.Scan(
		&event.ID,
		&event.EntityID,
		&event.CategoryID,
		&event.RaterID,
		&stars,
		&event.Comment,
		&event.CreatedAt,
	)
	if err != nil {
		return domain.RatingEvent{}, err
	}
	event.Stars = int(stars)
	return event, nil
}

func scanAggregate(row pgx.Row) (domain.AggregateRating, error) {
	var agg domain.AggregateRating
	err := row.Scan(
		&agg.EntityID,
		&agg.CategoryID,
		&agg.RealCount,
		&agg.RealSum,
		&agg.Distribution[0],
		&agg.Distribution[1],
		&agg.Distribution[2],
		&agg.Distribution[3],
		&agg.Distribution[4],
		&agg.UpdatedAt,
	)
	return agg, err
}
