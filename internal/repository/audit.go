package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/smart-ratings/internal/domain"
)

// AuditRepository appends and reads the audit trail. The table rejects
// UPDATE and DELETE at the database level.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// AuditAppendParams describes one audit record.
type AuditAppendParams struct {
	ActorID string
	Action  string
	Target  string
	Before  []byte
	After   []byte
	Reason  string
}

// AuditListFilters narrows an audit listing. BeforeID pages backwards by id.
type AuditListFilters struct {
	Target   *string
	Action   *string
	BeforeID int64
	Limit    int
}

// AuditListResult returns the paginated payload.
type AuditListResult struct {
	Items      []domain.AuditEntry
	NextCursor *int64
}

// Append writes an audit entry through q so it commits with the mutation it describes.
func (r *AuditRepository) Append(ctx context.Context, q Querier, params AuditAppendParams) (domain.AuditEntry, error) {
	const query = `
        INSERT INTO audit_entries (actor_id, action, target, before, after, reason)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at
    `
	entry := domain.AuditEntry{
		ActorID: params.ActorID,
		Action:  params.Action,
		Target:  params.Target,
		Before:  params.Before,
		After:   params.After,
		Reason:  params.Reason,
	}
	err := q.QueryRow(ctx, query,
		params.ActorID,
		params.Action,
		params.Target,
		nullableJSON(params.Before),
		nullableJSON(params.After),
		params.Reason,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return domain.AuditEntry{}, fmt.Errorf("append audit entry: %w", err)
	}
	return entry, nil
}

// List returns audit entries newest first.
func (r *AuditRepository) List(ctx context.Context, filters AuditListFilters) (AuditListResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	} else if filters.Limit > 200 {
		filters.Limit = 200
	}

	where := make([]string, 0)
	args := make([]interface{}, 0)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}
	if filters.Target != nil && *filters.Target != "" {
		where = append(where, "target = "+arg(*filters.Target))
	}
	if filters.Action != nil && *filters.Action != "" {
		where = append(where, "action = "+arg(*filters.Action))
	}
	if filters.BeforeID > 0 {
		where = append(where, "id < "+arg(filters.BeforeID))
	}

	var b strings.Builder
	b.WriteString("SELECT id, actor_id, action, target, before, after, reason, created_at FROM audit_entries")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(fmt.Sprintf(" ORDER BY id DESC LIMIT %d", filters.Limit))

	rows, err := r.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return AuditListResult{}, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	items := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var entry domain.AuditEntry
		var before, after []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.ActorID,
			&entry.Action,
			&entry.Target,
			&before,
			&after,
			&entry.Reason,
			&entry.CreatedAt,
		); err != nil {
			return AuditListResult{}, err
		}
		entry.Before = before
		entry.After = after
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return AuditListResult{}, err
	}

	var next *int64
	if len(items) == filters.Limit {
		id := items[len(items)-1].ID
		next = &id
	}
	return AuditListResult{Items: items, NextCursor: next}, nil
}

// Count returns the number of entries, optionally for a single target.
func (r *AuditRepository) Count(ctx context.Context, target string) (int64, error) {
	var count int64
	var err error
	if target == "" {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*)::int8 FROM audit_entries`).Scan(&count)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*)::int8 FROM audit_entries WHERE target = $1`, target).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
