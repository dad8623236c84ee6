//go:build integration

package keys

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdgate/holdgate/internal/clock"
	"github.com/holdgate/holdgate/internal/database/dbtest"
	"github.com/holdgate/holdgate/internal/users"
)

func TestRepository_ConcurrentIssueLeavesOneActive(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()

	user, err := users.NewRepository(pool).GetOrCreate(ctx, "0x00000000000000000000000000000000000000C1", time.Now())
	require.NoError(t, err)

	hasher, err := NewHasher("hash-secret")
	require.NoError(t, err)
	m := NewManager(NewRepository(pool), hasher, nil, clock.New())

	const n = 10
	var wg sync.WaitGroup
	issued := make([]*Issued, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := m.Issue(ctx, user.ID)
			assert.NoError(t, err)
			issued[i] = out
		}()
	}
	wg.Wait()

	var active int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM api_keys WHERE user_id = $1 AND is_active`, user.ID).Scan(&active))
	assert.Equal(t, 1, active)

	var valid int
	for _, is := range issued {
		if is == nil {
			continue
		}
		if _, err := m.Lookup(ctx, is.Plaintext); err == nil {
			valid++
		}
	}
	assert.Equal(t, 1, valid)
}

func TestRepository_IssueUnknownUser(t *testing.T) {
	pool := dbtest.NewPool(t)
	hasher, err := NewHasher("hash-secret")
	require.NoError(t, err)
	m := NewManager(NewRepository(pool), hasher, nil, clock.New())

	_, err = m.Issue(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestRepository_TouchAndRevoke(t *testing.T) {
	pool := dbtest.NewPool(t)
	ctx := context.Background()

	user, err := users.NewRepository(pool).GetOrCreate(ctx, "0x00000000000000000000000000000000000000C2", time.Now())
	require.NoError(t, err)

	repo := NewRepository(pool)
	hasher, err := NewHasher("hash-secret")
	require.NoError(t, err)
	m := NewManager(repo, hasher, nil, clock.New())

	issued, err := m.Issue(ctx, user.ID)
	require.NoError(t, err)

	at := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.TouchLastUsed(ctx, issued.Key.ID, at))
	// Older touches never move last_used_at backwards.
	require.NoError(t, repo.TouchLastUsed(ctx, issued.Key.ID, at.Add(-time.Hour)))

	active, err := m.Active(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, active.LastUsedAt)
	assert.True(t, at.Equal(*active.LastUsedAt))

	n, err := m.Revoke(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = m.Revoke(ctx, user.ID)
	assert.ErrorIs(t, err, ErrNoActiveKey)
}
