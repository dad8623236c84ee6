package credits_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdgate/holdgate/internal/clock"
	"github.com/holdgate/holdgate/internal/credits"
	"github.com/holdgate/holdgate/internal/credits/creditstest"
	"github.com/holdgate/holdgate/internal/users"
)

const wallet = "0x00000000000000000000000000000000000000Aa"

var now = time.Date(2024, 6, 10, 15, 30, 0, 0, time.UTC)

type fixture struct {
	engine   *credits.Engine
	user     *users.User
	balances *creditstest.Balances
	supply   *creditstest.Supply
	ledger   *creditstest.Ledger
}

// newFixture builds an engine around a long-standing holder (multiplier 1.0).
func newFixture(t *testing.T) *fixture {
	t.Helper()

	user := &users.User{
		ID:             uuid.New(),
		WalletAddress:  wallet,
		FirstSeenAt:    now.Add(-30 * 24 * time.Hour),
		IsDiamondHands: true,
	}
	f := &fixture{
		user:     user,
		balances: creditstest.NewBalances(),
		supply:   creditstest.NewSupply(200_000_000, 500),
		ledger:   creditstest.NewLedger(),
	}
	f.engine = credits.NewEngine(creditstest.NewUsers(user), f.balances, f.supply, f.ledger, 1000, clock.Fixed(now))
	return f
}

func TestCalculateDailyBudget_ZeroBalanceSkipsSupply(t *testing.T) {
	f := newFixture(t)
	f.balances.Set(wallet, 0)

	budget, err := f.engine.CalculateDailyBudget(context.Background(), f.user.ID, wallet)
	require.NoError(t, err)

	assert.Zero(t, budget.DailyBudget)
	assert.Zero(t, budget.Multiplier)
	assert.Zero(t, budget.RawBalance)
	assert.Zero(t, f.supply.SupplyReads())
}

func TestCalculateDailyBudget_ProportionalShare(t *testing.T) {
	f := newFixture(t)
	f.balances.Set(wallet, 2000)

	budget, err := f.engine.CalculateDailyBudget(context.Background(), f.user.ID, wallet)
	require.NoError(t, err)

	assert.Equal(t, 1.0, budget.Multiplier)
	assert.InDelta(t, 0.005, budget.DailyBudget, 1e-12)
	assert.Equal(t, 2000.0, budget.RawBalance)
}

func TestCalculateDailyBudget_BelowThresholdIsZero(t *testing.T) {
	f := newFixture(t)

	for _, bal := range []float64{0, 1, 500, 999.999} {
		f.balances.Set(wallet, bal)
		budget, err := f.engine.CalculateDailyBudget(context.Background(), f.user.ID, wallet)
		require.NoError(t, err)
		assert.Zero(t, budget.DailyBudget, "balance %v", bal)
		assert.Equal(t, bal, budget.RawBalance)
	}

	f.balances.Set(wallet, 1000)
	budget, err := f.engine.CalculateDailyBudget(context.Background(), f.user.ID, wallet)
	require.NoError(t, err)
	assert.Positive(t, budget.DailyBudget)
}

func TestCalculateDailyBudget_BalanceOracleFailureIsZero(t *testing.T) {
	f := newFixture(t)
	f.balances.Err = errors.New("rpc down")

	budget, err := f.engine.CalculateDailyBudget(context.Background(), f.user.ID, wallet)
	require.NoError(t, err)
	assert.Zero(t, budget.DailyBudget)
	assert.Zero(t, budget.RawBalance)
}

func TestCalculateDailyBudget_UnknownUserHasNoMultiplier(t *testing.T) {
	f := newFixture(t)
	f.balances.Set(wallet, 5000)

	budget, err := f.engine.CalculateDailyBudget(context.Background(), uuid.New(), wallet)
	require.NoError(t, err)
	assert.Zero(t, budget.Multiplier)
	assert.Zero(t, budget.DailyBudget)
}

func TestHoldingMultiplier(t *testing.T) {
	f := newFixture(t)

	m, err := f.engine.HoldingMultiplier(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m)

	m, err = f.engine.HoldingMultiplier(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Zero(t, m)
}

func TestCreditInfo_RemainingClampedAndIdempotent(t *testing.T) {
	f := newFixture(t)
	f.balances.Set(wallet, 2000)
	ctx := context.Background()

	first, err := f.engine.CreditInfo(ctx, f.user.ID, wallet)
	require.NoError(t, err)
	second, err := f.engine.CreditInfo(ctx, f.user.ID, wallet)
	require.NoError(t, err)
	assert.Equal(t, first.Remaining, second.Remaining)
	assert.InDelta(t, 0.005, first.Remaining, 1e-12)

	require.NoError(t, f.engine.Debit(ctx, f.user.ID, 0.002))
	info, err := f.engine.CreditInfo(ctx, f.user.ID, wallet)
	require.NoError(t, err)
	assert.InDelta(t, 0.002, info.Used, 1e-12)
	assert.InDelta(t, 0.003, info.Remaining, 1e-12)

	// Overspend shows as zero remaining, never negative.
	require.NoError(t, f.engine.Debit(ctx, f.user.ID, 0.01))
	info, err = f.engine.CreditInfo(ctx, f.user.ID, wallet)
	require.NoError(t, err)
	assert.InDelta(t, 0.012, info.Used, 1e-12)
	assert.Zero(t, info.Remaining)
}

func TestDebit_RejectsInvalidAmounts(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.engine.Debit(context.Background(), f.user.ID, -1))
}

func TestDebit_ConcurrentSumsExactly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 200
	var wg sync.WaitGroup
	want := 0.0
	for i := 1; i <= n; i++ {
		amount := float64(i) / 1000
		want += amount
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.engine.Debit(ctx, f.user.ID, amount))
		}()
	}
	wg.Wait()

	used, err := f.engine.UsedToday(ctx, f.user.ID)
	require.NoError(t, err)
	assert.InDelta(t, want, used, 1e-9)
}

func TestSettle_DebitsFullCostAndLogs(t *testing.T) {
	f := newFixture(t)
	f.balances.Set(wallet, 2000)
	ctx := context.Background()

	// Cost far above the 0.005 budget is still debited in full.
	err := f.engine.Settle(ctx, credits.Settlement{
		Entry: credits.UsageLogEntry{
			UserID:       f.user.ID,
			Model:        "openai/gpt-4o",
			InputTokens:  1000,
			OutputTokens: 2000,
			Cost:         0.0225,
		},
		Allocated: 0.005,
		Balance:   2000,
	})
	require.NoError(t, err)

	used, err := f.engine.UsedToday(ctx, f.user.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.0225, used, 1e-12)

	entries := f.ledger.Entries()
	require.Len(t, entries, 1)
	assert.NotEqual(t, uuid.Nil, entries[0].ID)
	assert.Equal(t, now, entries[0].CreatedAt)
}

func TestSettle_ZeroCostStillLogged(t *testing.T) {
	f := newFixture(t)

	err := f.engine.Settle(context.Background(), credits.Settlement{
		Entry: credits.UsageLogEntry{UserID: f.user.ID, Model: "openai/gpt-4o", Streamed: true},
	})
	require.NoError(t, err)
	require.Len(t, f.ledger.Entries(), 1)
	assert.Zero(t, f.ledger.Entries()[0].Cost)
}

func TestSettle_LedgerErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.ledger.Err = errors.New("db down")

	err := f.engine.Settle(context.Background(), credits.Settlement{
		Entry: credits.UsageLogEntry{UserID: f.user.ID, Model: "x", Cost: 0.1},
	})
	assert.ErrorIs(t, err, f.ledger.Err)
}

func TestResetsAt(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC), f.engine.ResetsAt())
}
