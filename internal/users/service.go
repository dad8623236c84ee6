package users

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/holdgate/holdgate/internal/clock"
)

type Service struct {
	repo  Repository
	clock clock.Clock
}

func NewService(repo Repository, clk clock.Clock) *Service {
	return &Service{repo: repo, clock: clk}
}

// NormalizeWallet returns the EIP-55 form of a hex address. Callers validate first.
func NormalizeWallet(wallet string) string {
	return common.HexToAddress(wallet).Hex()
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByWallet(ctx context.Context, wallet string) (*User, error) {
	return s.repo.GetByWallet(ctx, NormalizeWallet(wallet))
}

// Connect returns the user for wallet, creating it on first sign-in.
func (s *Service) Connect(ctx context.Context, wallet string) (*User, error) {
	return s.repo.GetOrCreate(ctx, NormalizeWallet(wallet), s.clock.Now().UTC())
}

// RecordTransferOut marks wallet as having sold at the given time.
func (s *Service) RecordTransferOut(ctx context.Context, wallet string, at time.Time) (bool, error) {
	return s.repo.RecordTransferOut(ctx, NormalizeWallet(wallet), at.UTC())
}
