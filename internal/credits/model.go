package credits

import (
	"time"

	"github.com/google/uuid"
)

// DailyUsage is the per-user, per-UTC-day ledger row.
type DailyUsage struct {
	UserID          uuid.UUID `json:"userId"`
	Date            time.Time `json:"date"`
	CreditUsed      float64   `json:"creditUsed"`
	CreditAllocated float64   `json:"creditAllocated"`
	BalanceSnapshot float64   `json:"balanceSnapshot"`
}

// UsageLogEntry records one billed upstream call.
type UsageLogEntry struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"userId"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"inputTokens"`
	OutputTokens int64     `json:"outputTokens"`
	Cost         float64   `json:"cost"`
	Streamed     bool      `json:"streamed"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Budget is the result of CalculateDailyBudget.
type Budget struct {
	DailyBudget float64
	Multiplier  float64
	RawBalance  float64
}

// Info is a point-in-time view of a user's credit.
type Info struct {
	Balance    float64 `json:"balance"`
	Daily      float64 `json:"daily"`
	Used       float64 `json:"used"`
	Remaining  float64 `json:"remaining"`
	Multiplier float64 `json:"multiplier"`
}

// Settlement is one reconciled completion, written to the ledger as a unit.
type Settlement struct {
	Entry UsageLogEntry
	// Allocated and Balance are copied onto the day's row when it is created.
	Allocated float64
	Balance   float64
}

// ListParams holds pagination parameters for usage log queries.
type ListParams struct {
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// DefaultListParams returns sensible defaults.
func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}
