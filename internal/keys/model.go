package keys

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidFormat means the credential could not have been issued here.
	ErrInvalidFormat = errors.New("keys: malformed credential")
	// ErrInvalidKey means no active credential matches.
	ErrInvalidKey = errors.New("keys: invalid credential")
	// ErrNoActiveKey is returned by Revoke when there was nothing to revoke.
	ErrNoActiveKey = errors.New("keys: no active credential")
	// ErrUserNotFound is returned by Issue for an unknown user.
	ErrUserNotFound = errors.New("keys: user not found")
)

// APIKey is a stored credential. The plaintext is never persisted.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"-"`
	KeyHash    string     `json:"-"`
	Prefix     string     `json:"prefix"`
	IsActive   bool       `json:"-"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
}

// Issued pairs a new credential with its plaintext, which is shown once.
type Issued struct {
	Key       *APIKey
	Plaintext string
}
