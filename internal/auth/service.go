package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/holdgate/holdgate/internal/clock"
	"github.com/holdgate/holdgate/internal/users"
)

const (
	// ChallengeMaxAge bounds how old a signed challenge may be.
	ChallengeMaxAge = 5 * time.Minute
	// ChallengeMaxSkew tolerates clients whose clocks run ahead.
	ChallengeMaxSkew = time.Minute
)

// UserConnector fetches or creates the user for a wallet.
type UserConnector interface {
	Connect(ctx context.Context, wallet string) (*users.User, error)
}

// Session is the result of a successful connect.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *users.User
}

type Service struct {
	jwt      *JWTManager
	users    UserConnector
	verifier Verifier
	clock    clock.Clock
}

func NewService(jwt *JWTManager, userConnector UserConnector, verifier Verifier, clk clock.Clock) *Service {
	return &Service{
		jwt:      jwt,
		users:    userConnector,
		verifier: verifier,
		clock:    clk,
	}
}

// RequestChallenge returns the message wallet must sign to connect.
func (s *Service) RequestChallenge(wallet string) (Challenge, error) {
	if !common.IsHexAddress(wallet) {
		return Challenge{}, ErrInvalidWallet
	}
	return BuildChallenge(wallet, s.clock.Now()), nil
}

// Connect verifies a signed challenge and opens a session for the wallet.
// Freshness is checked before the signature, so a replayed message fails even if validly signed.
func (s *Service) Connect(ctx context.Context, wallet, signature, message string) (*Session, error) {
	if !common.IsHexAddress(wallet) {
		return nil, ErrInvalidWallet
	}
	addr := common.HexToAddress(wallet)

	named, ts, err := ParseChallenge(message)
	if err != nil {
		return nil, err
	}
	if common.HexToAddress(named) != addr {
		return nil, ErrWalletMismatch
	}

	now := s.clock.Now()
	if now.Sub(ts) > ChallengeMaxAge {
		return nil, ErrExpiredChallenge
	}
	if ts.Sub(now) > ChallengeMaxSkew {
		return nil, ErrFutureChallenge
	}

	if err := s.verifier.Verify(addr.Hex(), message, signature); err != nil {
		return nil, err
	}

	user, err := s.users.Connect(ctx, addr.Hex())
	if err != nil {
		return nil, fmt.Errorf("connecting user: %w", err)
	}

	token, expiresAt, err := s.jwt.Issue(user.ID.String(), user.WalletAddress)
	if err != nil {
		return nil, err
	}

	slog.Info("wallet connected", "user_id", user.ID, "wallet", user.WalletAddress)
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Authenticate resolves a session token to its principal.
func (s *Service) Authenticate(token string) (*Principal, error) {
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("session token carries invalid user id: %w", err)
	}
	return &Principal{UserID: userID, Wallet: claims.Wallet}, nil
}
