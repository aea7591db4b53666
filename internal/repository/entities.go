package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
)

// EntitiesRepository provides persistence helpers for rated entities.
type EntitiesRepository struct {
	pool *pgxpool.Pool
}

const entityColumns = `id, name, created_at, updated_at`

// EntityCreateParams bundles the fields required to onboard an entity.
type EntityCreateParams struct {
	ID   string
	Name string
}

// EntityListFilters encapsulates search and pagination options.
type EntityListFilters struct {
	Query  *string
	Limit  int
	Cursor *EntityCursor
}

// EntityCursor allows stable pagination by created_at/id.
type EntityCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

// EntityListResult returns the paginated payload.
type EntityListResult struct {
	Items      []domain.Entity
	NextCursor *string
}

// Create inserts a new entity row. A duplicate id reports ErrStorageConflict.
func (r *EntitiesRepository) Create(ctx context.Context, q Querier, params EntityCreateParams) (domain.Entity, error) {
	query := fmt.Sprintf(`
        INSERT INTO entities (id, name)
        VALUES ($1,$2)
        RETURNING %s
    `, entityColumns)

	entity, err := scanEntity(q.QueryRow(ctx, query, params.ID, params.Name))
	if err != nil {
		return domain.Entity{}, translatePgError(err)
	}
	return entity, nil
}

// GetByID fetches an entity by its identifier.
func (r *EntitiesRepository) GetByID(ctx context.Context, id string) (domain.Entity, error) {
	query := fmt.Sprintf(`SELECT %s FROM entities WHERE id = $1`, entityColumns)
	entity, err := scanEntity(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entity{}, ErrNotFound
		}
		return domain.Entity{}, err
	}
	return entity, nil
}

// Exists reports whether an entity with id is present, as seen by q.
func (r *EntitiesRepository) Exists(ctx context.Context, q Querier, id string) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM entities WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check entity: %w", err)
	}
	return exists, nil
}

// List returns entities that match the provided filters, newest first.
func (r *EntitiesRepository) List(ctx context.Context, filters EntityListFilters) (EntityListResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	} else if filters.Limit > 100 {
		filters.Limit = 100
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.Query != nil && strings.TrimSpace(*filters.Query) != "" {
		q := "%" + strings.TrimSpace(*filters.Query) + "%"
		where = append(where, fmt.Sprintf("(name ILIKE %s OR id ILIKE %s)", arg(q), arg(q)))
	}
	if filters.Cursor != nil {
		cursorCreated := arg(filters.Cursor.CreatedAt)
		cursorID := arg(filters.Cursor.ID)
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s)", cursorCreated, cursorID))
	}

	queryBuilder := strings.Builder{}
	queryBuilder.WriteString("SELECT ")
	queryBuilder.WriteString(entityColumns)
	queryBuilder.WriteString(" FROM entities")
	if len(where) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(where, " AND "))
	}
	queryBuilder.WriteString(" ORDER BY created_at DESC, id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT %d", filters.Limit))

	rows, err := r.pool.Query(ctx, queryBuilder.String(), args...)
	if err != nil {
		return EntityListResult{}, err
	}
	defer rows.Close()

	items := make([]domain.Entity, 0)
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return EntityListResult{}, err
		}
		items = append(items, entity)
	}
	if err := rows.Err(); err != nil {
		return EntityListResult{}, err
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		token, err := encodeCursor(EntityCursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return EntityListResult{}, err
		}
		nextCursor = &token
	}

	return EntityListResult{Items: items, NextCursor: nextCursor}, nil
}

func scanEntity(row pgx.Row) (domain.Entity, error) {
	var entity domain.Entity
	if err := row.Scan(&entity.ID, &entity.Name, &entity.CreatedAt, &entity.UpdatedAt); err != nil {
		return domain.Entity{}, err
	}
	return entity, nil
}

func encodeCursor(c EntityCursor) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a cursor token into an EntityCursor.
func DecodeCursor(token string) (*EntityCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor EntityCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	return &cursor, nil
}
