package credits

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/holdgate/holdgate/internal/clock"
	"github.com/holdgate/holdgate/internal/metrics"
	"github.com/holdgate/holdgate/internal/users"
)

// UserReader fetches users for the holding multiplier.
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*users.User, error)
}

// BalanceOracle reads a wallet's token holding.
type BalanceOracle interface {
	Balance(ctx context.Context, wallet string) (float64, error)
}

// SupplySource provides the shared distribution inputs. Implementations absorb their own failures.
type SupplySource interface {
	CirculatingSupply(ctx context.Context) float64
	DailyPool(ctx context.Context) float64
}

// Ledger persists daily usage and the usage log.
type Ledger interface {
	UsedOn(ctx context.Context, userID uuid.UUID, day time.Time) (float64, error)
	// Debit atomically adds amount to the day's row, creating it when absent.
	Debit(ctx context.Context, userID uuid.UUID, day time.Time, amount float64) error
	// Settle debits and appends the usage log entry in one transaction.
	Settle(ctx context.Context, day time.Time, s Settlement) error
	ListUsage(ctx context.Context, userID uuid.UUID, params ListParams) ([]UsageLogEntry, int64, error)
}

// Engine turns balances and holding history into daily budgets and keeps the ledger.
type Engine struct {
	users      UserReader
	balances   BalanceOracle
	supply     SupplySource
	ledger     Ledger
	minHolding float64
	clock      clock.Clock
}

func NewEngine(userReader UserReader, balances BalanceOracle, supply SupplySource, ledger Ledger, minHolding float64, clk clock.Clock) *Engine {
	return &Engine{
		users:      userReader,
		balances:   balances,
		supply:     supply,
		ledger:     ledger,
		minHolding: minHolding,
		clock:      clk,
	}
}

// HoldingMultiplier returns the user's current multiplier; unknown users get 0.
func (e *Engine) HoldingMultiplier(ctx context.Context, userID uuid.UUID) (float64, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("loading user: %w", err)
	}
	return Multiplier(user, e.clock.Now()), nil
}

// CalculateDailyBudget computes today's budget for the user holding wallet.
func (e *Engine) CalculateDailyBudget(ctx context.Context, userID uuid.UUID, wallet string) (Budget, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return Budget{}, fmt.Errorf("loading user: %w", err)
	}
	return e.budgetFor(ctx, user, wallet), nil
}

func (e *Engine) budgetFor(ctx context.Context, user *users.User, wallet string) Budget {
	balance, err := e.balances.Balance(ctx, wallet)
	if err != nil {
		metrics.OracleFallbacksTotal.WithLabelValues("balance").Inc()
		slog.Warn("credits: balance oracle failed, treating as zero", "error", err, "wallet", wallet)
		balance = 0
	}

	if balance < e.minHolding {
		return Budget{DailyBudget: 0, Multiplier: 0, RawBalance: balance}
	}

	multiplier := Multiplier(user, e.clock.Now())
	supply := e.supply.CirculatingSupply(ctx)
	pool := e.supply.DailyPool(ctx)

	var base float64
	if supply > 0 {
		base = balance / supply * pool
	}

	return Budget{
		DailyBudget: base * multiplier,
		Multiplier:  multiplier,
		RawBalance:  balance,
	}
}

// UsedToday returns the credit consumed in the current UTC day.
func (e *Engine) UsedToday(ctx context.Context, userID uuid.UUID) (float64, error) {
	used, err := e.ledger.UsedOn(ctx, userID, clock.DayStart(e.clock.Now()))
	if err != nil {
		return 0, fmt.Errorf("reading today's usage: %w", err)
	}
	return used, nil
}

// Debit adds amount to today's usage.
func (e *Engine) Debit(ctx context.Context, userID uuid.UUID, amount float64) error {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("invalid debit amount %v", amount)
	}
	if err := e.ledger.Debit(ctx, userID, clock.DayStart(e.clock.Now()), amount); err != nil {
		return fmt.Errorf("debiting: %w", err)
	}
	return nil
}

// CreditInfo loads the user and composes budget and usage.
func (e *Engine) CreditInfo(ctx context.Context, userID uuid.UUID, wallet string) (Info, error) {
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return Info{}, fmt.Errorf("loading user: %w", err)
	}
	return e.infoFor(ctx, userID, user, wallet)
}

// CreditInfoForUser is CreditInfo for a user the caller already loaded.
func (e *Engine) CreditInfoForUser(ctx context.Context, user *users.User) (Info, error) {
	return e.infoFor(ctx, user.ID, user, user.WalletAddress)
}

func (e *Engine) infoFor(ctx context.Context, userID uuid.UUID, user *users.User, wallet string) (Info, error) {
	budget := e.budgetFor(ctx, user, wallet)

	used, err := e.UsedToday(ctx, userID)
	if err != nil {
		return Info{}, err
	}

	return Info{
		Balance:    budget.RawBalance,
		Daily:      budget.DailyBudget,
		Used:       used,
		Remaining:  math.Max(0, budget.DailyBudget-used),
		Multiplier: budget.Multiplier,
	}, nil
}

// Settle records a reconciled completion. Cost is debited in full even when it
// exceeds what remained at admission time.
func (e *Engine) Settle(ctx context.Context, s Settlement) error {
	if s.Entry.Cost < 0 || math.IsNaN(s.Entry.Cost) || math.IsInf(s.Entry.Cost, 0) {
		return fmt.Errorf("invalid settlement cost %v", s.Entry.Cost)
	}
	if s.Entry.ID == uuid.Nil {
		s.Entry.ID = uuid.New()
	}
	if s.Entry.CreatedAt.IsZero() {
		s.Entry.CreatedAt = e.clock.Now().UTC()
	}

	if err := e.ledger.Settle(ctx, clock.DayStart(s.Entry.CreatedAt), s); err != nil {
		return fmt.Errorf("settling usage: %w", err)
	}
	return nil
}

// ListUsage returns the user's usage log, newest first.
func (e *Engine) ListUsage(ctx context.Context, userID uuid.UUID, params ListParams) ([]UsageLogEntry, int64, error) {
	return e.ledger.ListUsage(ctx, userID, params)
}

// ResetsAt is when today's usage rolls over.
func (e *Engine) ResetsAt() time.Time {
	return clock.NextDayStart(e.clock.Now())
}
