package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the PostgreSQL Ledger.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// The increment happens inside the row lock taken by ON CONFLICT, so concurrent
// debits for the same user and day never lose an update.
const upsertDailyUsage = `
	INSERT INTO daily_usage (user_id, date, credit_used, credit_allocated, balance_snapshot)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (user_id, date) DO UPDATE
	SET credit_used = daily_usage.credit_used + EXCLUDED.credit_used,
	    updated_at  = NOW()`

func (r *Repository) UsedOn(ctx context.Context, userID uuid.UUID, day time.Time) (float64, error) {
	var used float64
	err := r.pool.QueryRow(ctx,
		`SELECT credit_used FROM daily_usage WHERE user_id = $1 AND date = $2`,
		userID, day).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("querying daily usage: %w", err)
	}
	return used, nil
}

func (r *Repository) Debit(ctx context.Context, userID uuid.UUID, day time.Time, amount float64) error {
	if _, err := r.pool.Exec(ctx, upsertDailyUsage, userID, day, amount, 0.0, 0.0); err != nil {
		return fmt.Errorf("upserting daily usage: %w", err)
	}
	return nil
}

func (r *Repository) Settle(ctx context.Context, day time.Time, s Settlement) error {
	e := s.Entry
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertDailyUsage, e.UserID, day, e.Cost, s.Allocated, s.Balance); err != nil {
			return fmt.Errorf("upserting daily usage: %w", err)
		}

		_, err := tx.Exec(ctx,
			`INSERT INTO usage_logs (id, user_id, model, input_tokens, output_tokens, cost, streamed, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			e.ID, e.UserID, e.Model, e.InputTokens, e.OutputTokens, e.Cost, e.Streamed, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting usage log: %w", err)
		}
		return nil
	})
}

// ListUsage returns paginated usage log entries for a user with optional time bounds.
func (r *Repository) ListUsage(ctx context.Context, userID uuid.UUID, params ListParams) ([]UsageLogEntry, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	conditions := []string{"user_id = $1"}
	args := []any{userID}
	argIdx := 2

	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM usage_logs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting usage logs: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	query := fmt.Sprintf(
		`SELECT id, user_id, model, input_tokens, output_tokens, cost, streamed, created_at
		 FROM usage_logs WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying usage logs: %w", err)
	}
	defer rows.Close()

	entries := make([]UsageLogEntry, 0, params.PageSize)
	for rows.Next() {
		var e UsageLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Model, &e.InputTokens, &e.OutputTokens,
			&e.Cost, &e.Streamed, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning usage log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating usage logs: %w", err)
	}

	return entries, total, nil
}
