// Package creditstest provides in-memory collaborators for tests that drive the credit engine.
package creditstest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/holdgate/holdgate/internal/credits"
	"github.com/holdgate/holdgate/internal/users"
)

type dayKey struct {
	user uuid.UUID
	day  time.Time
}

// Ledger is a mutex-guarded credits.Ledger.
type Ledger struct {
	mu      sync.Mutex
	used    map[dayKey]float64
	entries []credits.UsageLogEntry

	// Err, when set, fails every write.
	Err error
}

func NewLedger() *Ledger {
	return &Ledger{used: make(map[dayKey]float64)}
}

func (l *Ledger) UsedOn(_ context.Context, userID uuid.UUID, day time.Time) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used[dayKey{userID, day}], nil
}

func (l *Ledger) Debit(_ context.Context, userID uuid.UUID, day time.Time, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	l.used[dayKey{userID, day}] += amount
	return nil
}

func (l *Ledger) Settle(_ context.Context, day time.Time, s credits.Settlement) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	l.used[dayKey{s.Entry.UserID, day}] += s.Entry.Cost
	l.entries = append(l.entries, s.Entry)
	return nil
}

func (l *Ledger) ListUsage(_ context.Context, userID uuid.UUID, params credits.ListParams) ([]credits.UsageLogEntry, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []credits.UsageLogEntry
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))

	start := (params.Page - 1) * params.PageSize
	if start < 0 || start >= len(out) {
		return nil, total, nil
	}
	end := min(start+params.PageSize, len(out))
	return out[start:end], total, nil
}

// Entries returns a copy of every logged settlement.
func (l *Ledger) Entries() []credits.UsageLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]credits.UsageLogEntry(nil), l.entries...)
}

// Users is a map-backed user reader.
type Users struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*users.User
}

func NewUsers(us ...*users.User) *Users {
	u := &Users{byID: make(map[uuid.UUID]*users.User)}
	for _, user := range us {
		u.Put(user)
	}
	return u
}

func (u *Users) Put(user *users.User) {
	u.mu.Lock()
	u.byID[user.ID] = user
	u.mu.Unlock()
}

func (u *Users) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.byID[id], nil
}

// Balances is a map-backed balance oracle keyed by wallet.
type Balances struct {
	mu       sync.Mutex
	byWallet map[string]float64

	// Err, when set, fails every read.
	Err error
}

func NewBalances() *Balances {
	return &Balances{byWallet: make(map[string]float64)}
}

func (b *Balances) Set(wallet string, balance float64) {
	b.mu.Lock()
	b.byWallet[wallet] = balance
	b.mu.Unlock()
}

func (b *Balances) Balance(_ context.Context, wallet string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return 0, b.Err
	}
	return b.byWallet[wallet], nil
}

// Supply is a fixed credits.SupplySource that counts supply reads.
type Supply struct {
	mu     sync.Mutex
	supply float64
	pool   float64
	reads  int
}

func NewSupply(supply, pool float64) *Supply {
	return &Supply{supply: supply, pool: pool}
}

func (s *Supply) CirculatingSupply(context.Context) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return s.supply
}

func (s *Supply) DailyPool(context.Context) float64 {
	return s.pool
}

// SupplyReads is how many times CirculatingSupply was called.
func (s *Supply) SupplyReads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
