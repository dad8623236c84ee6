package users

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
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByWallet(ctx context.Context, wallet string) (*User, error)
	// GetOrCreate returns the user for wallet, inserting it with firstSeenAt = now when absent.
	GetOrCreate(ctx context.Context, wallet string, now time.Time) (*User, error)
	// RecordTransferOut moves lastSoldAt forward to at and clears the diamond-hands flag.
	// It reports false when no user holds wallet.
	RecordTransferOut(ctx context.Context, wallet string, at time.Time) (bool, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const userColumns = `id, wallet_address, first_seen_at, last_sold_at, is_diamond_hands, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(&user.ID, &user.WalletAddress, &user.FirstSeenAt, &user.LastSoldAt,
		&user.IsDiamondHands, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) GetByWallet(ctx context.Context, wallet string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE wallet_address = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, wallet))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying user by wallet: %w", err)
	}
	return user, nil
}

func (r *postgresRepository) GetOrCreate(ctx context.Context, wallet string, now time.Time) (*User, error) {
	// DO NOTHING keeps first_seen_at from the original insert.
	insert := `
		INSERT INTO users (id, wallet_address, first_seen_at, is_diamond_hands, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $3, $3)
		ON CONFLICT (wallet_address) DO NOTHING
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, insert, uuid.New(), wallet, now))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	user, err = r.GetByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s vanished after conflicting insert", wallet)
	}
	return user, nil
}

func (r *postgresRepository) RecordTransferOut(ctx context.Context, wallet string, at time.Time) (bool, error) {
	query := `
		UPDATE users
		SET last_sold_at = GREATEST(COALESCE(last_sold_at, $2), $2),
		    is_diamond_hands = FALSE,
		    updated_at = NOW()
		WHERE wallet_address = $1`

	tag, err := r.pool.Exec(ctx, query, wallet, at)
	if err != nil {
		return false, fmt.Errorf("recording transfer out: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
