package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamEvents holds every holdgate event.
const StreamEvents = "HOLDGATE_EVENTS"

// Subject constants.
const (
	SubjectEventsWildcard = "holdgate.events.>"
	SubjectUsageEvent     = "holdgate.events.usage"
	SubjectTransferEvent  = "holdgate.events.transfer"
)

// Transfer directions relative to the tracked wallet.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// UsageEvent is published after a completion is settled.
type UsageEvent struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Model        string    `json:"model"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	Streamed     bool      `json:"streamed"`
	Timestamp    time.Time `json:"timestamp"`
}

// TransferEvent is published by the chain indexer for token movements of tracked wallets.
type TransferEvent struct {
	Wallet    string    `json:"wallet"`
	Direction string    `json:"direction"`
	Amount    string    `json:"amount"`
	TxHash    string    `json:"tx_hash"`
	BlockTime time.Time `json:"block_time"`
}
