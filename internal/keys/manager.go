package keys

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/google/uuid"

	"github.com/holdgate/holdgate/internal/clock"
)

const touchTimeout = 5 * time.Second

// Manager issues, resolves and revokes credentials.
type Manager struct {
	repo    Repository
	hasher  *Hasher
	touches pond.Pool
	clock   clock.Clock
}

// NewManager records last-used times on touches. A nil pool disables them.
func NewManager(repo Repository, hasher *Hasher, touches pond.Pool, clk clock.Clock) *Manager {
	return &Manager{repo: repo, hasher: hasher, touches: touches, clock: clk}
}

// Issue creates a new active credential for userID, deactivating any previous one.
func (m *Manager) Issue(ctx context.Context, userID uuid.UUID) (*Issued, error) {
	plaintext, err := Generate()
	if err != nil {
		return nil, err
	}

	key := &APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		KeyHash:   m.hasher.Hash(plaintext),
		Prefix:    DisplayPrefix(plaintext),
		IsActive:  true,
		CreatedAt: m.clock.Now().UTC(),
	}
	if err := m.repo.Replace(ctx, key); err != nil {
		return nil, fmt.Errorf("issuing api key: %w", err)
	}

	slog.Info("api key issued", "user_id", userID, "key_id", key.ID)
	return &Issued{Key: key, Plaintext: plaintext}, nil
}

// Lookup resolves a plaintext credential to its active key.
func (m *Manager) Lookup(ctx context.Context, plaintext string) (*APIKey, error) {
	if !WellFormed(plaintext) {
		return nil, ErrInvalidFormat
	}

	key, err := m.repo.GetActiveByHash(ctx, m.hasher.Hash(plaintext))
	if err != nil {
		return nil, fmt.Errorf("looking up api key: %w", err)
	}
	if key == nil {
		return nil, ErrInvalidKey
	}

	m.touch(key.ID)
	return key, nil
}

// touch records the use in the background. A full queue drops it.
func (m *Manager) touch(id uuid.UUID) {
	if m.touches == nil {
		return
	}
	at := m.clock.Now().UTC()
	_, ok := m.touches.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := m.repo.TouchLastUsed(ctx, id, at); err != nil {
			slog.Warn("api key: last-used update failed", "error", err, "key_id", id)
		}
	})
	if !ok {
		slog.Debug("api key: touch queue full, dropping", "key_id", id)
	}
}

// Revoke deactivates every active credential of userID.
func (m *Manager) Revoke(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := m.repo.DeactivateAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoking api keys: %w", err)
	}
	if n == 0 {
		return 0, ErrNoActiveKey
	}
	slog.Info("api keys revoked", "user_id", userID, "count", n)
	return n, nil
}

// Active returns the user's active credential, or nil.
func (m *Manager) Active(ctx context.Context, userID uuid.UUID) (*APIKey, error) {
	key, err := m.repo.GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading active api key: %w", err)
	}
	return key, nil
}
