package history

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists cost history in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const insertColumns = 7

// BatchInsert writes records in a single multi-row INSERT. Records already
// present are ignored so a retried batch is harmless. It is a no-op when
// records is empty.
func (s *Store) BatchInsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	query, args := buildInsert(records)
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("batch inserting cost history: %w", err)
	}
	return nil
}

func buildInsert(records []Record) (string, []any) {
	args := make([]any, 0, len(records)*insertColumns)
	rows := make([]string, 0, len(records))

	for i, r := range records {
		placeholders := make([]string, insertColumns)
		for j := range placeholders {
			placeholders[j] = "$" + strconv.Itoa(i*insertColumns+j+1)
		}
		rows = append(rows, "("+strings.Join(placeholders, ", ")+")")

		degraded := r.Degraded
		if degraded == nil {
			degraded = []string{}
		}
		args = append(args,
			r.ID,
			r.TakenAt,
			r.Principal,
			r.InstanceCount,
			r.TotalCost,
			r.Currency,
			degraded,
		)
	}

	query := `INSERT INTO cost_history
		(id, taken_at, principal, instance_count, total_cost, currency, degraded)
		VALUES ` + strings.Join(rows, ", ") + `
		ON CONFLICT (id) DO NOTHING`
	return query, args
}

// List returns records matching q, newest first.
func (s *Store) List(ctx context.Context, q Query) ([]Record, error) {
	query, args := buildList(q)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cost history: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.ID, &r.TakenAt, &r.Principal, &r.InstanceCount,
			&r.TotalCost, &r.Currency, &r.Degraded,
		); err != nil {
			return nil, fmt.Errorf("scanning cost history row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cost history rows: %w", err)
	}
	return records, nil
}

// buildList constructs the listing query and its positional arguments.
func buildList(q Query) (string, []any) {
	var conds []string
	var args []any

	if q.Principal != "" {
		args = append(args, q.Principal)
		conds = append(conds, "principal = $"+strconv.Itoa(len(args)))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		conds = append(conds, "taken_at >= $"+strconv.Itoa(len(args)))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := `SELECT id, taken_at, principal, instance_count, total_cost, currency, degraded
	FROM cost_history`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY taken_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args))
	return query, args
}
