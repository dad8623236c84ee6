package users

import (
	"time"

	"github.com/google/uuid"
)

// User is one wallet-controlled identity. WalletAddress is stored EIP-55 checksummed.
type User struct {
	ID             uuid.UUID  `json:"id"`
	WalletAddress  string     `json:"wallet"`
	FirstSeenAt    time.Time  `json:"firstSeenAt"`
	LastSoldAt     *time.Time `json:"lastSoldAt,omitempty"`
	IsDiamondHands bool       `json:"isDiamondHands"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}
