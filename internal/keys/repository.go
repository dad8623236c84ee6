package keys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	// Replace deactivates the user's active credentials and inserts key in one transaction.
	Replace(ctx context.Context, key *APIKey) error
	GetActiveByHash(ctx context.Context, hash string) (*APIKey, error)
	GetActiveByUser(ctx context.Context, userID uuid.UUID) (*APIKey, error)
	DeactivateAll(ctx context.Context, userID uuid.UUID) (int64, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const keyColumns = `id, user_id, key_hash, prefix, is_active, created_at, last_used_at`

func scanKey(row pgx.Row) (*APIKey, error) {
	k := &APIKey{}
	if err := row.Scan(&k.ID, &k.UserID, &k.KeyHash, &k.Prefix, &k.IsActive, &k.CreatedAt, &k.LastUsedAt); err != nil {
		return nil, err
	}
	return k, nil
}

func (r *postgresRepository) Replace(ctx context.Context, key *APIKey) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// Concurrent issues for one user queue on this lock.
		var id uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, key.UserID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("locking user: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`UPDATE api_keys SET is_active = FALSE WHERE user_id = $1 AND is_active`, key.UserID); err != nil {
			return fmt.Errorf("deactivating api keys: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO api_keys (id, user_id, key_hash, prefix, is_active, created_at)
			 VALUES ($1, $2, $3, $4, TRUE, $5)`,
			key.ID, key.UserID, key.KeyHash, key.Prefix, key.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting api key: %w", err)
		}
		return nil
	})
}

func (r *postgresRepository) GetActiveByHash(ctx context.Context, hash string) (*APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE key_hash = $1 AND is_active`

	k, err := scanKey(r.pool.QueryRow(ctx, query, hash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying api key by hash: %w", err)
	}
	return k, nil
}

func (r *postgresRepository) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*APIKey, error) {
	query := `SELECT ` + keyColumns + ` FROM api_keys WHERE user_id = $1 AND is_active`

	k, err := scanKey(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying active api key: %w", err)
	}
	return k, nil
}

func (r *postgresRepository) DeactivateAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE api_keys SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		return 0, fmt.Errorf("deactivating api keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *postgresRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = GREATEST(COALESCE(last_used_at, $2), $2) WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touching api key: %w", err)
	}
	return nil
}
