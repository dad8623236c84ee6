package auth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holdgate/holdgate/internal/clock"
	"github.com/holdgate/holdgate/internal/users"
)

type memUsers struct {
	mu       sync.Mutex
	byWallet map[string]*users.User
}

func (m *memUsers) Connect(_ context.Context, wallet string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byWallet[wallet]; ok {
		return u, nil
	}
	u := &users.User{ID: uuid.New(), WalletAddress: wallet, IsDiamondHands: true}
	m.byWallet[wallet] = u
	return u, nil
}

type signer struct {
	key    *ecdsa.PrivateKey
	wallet string
}

func newSigner(t *testing.T) signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return signer{key: key, wallet: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

// sign produces a personal_sign signature with V in wallet form (27/28).
func (s signer) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), s.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func newTestService(now *time.Time) (*Service, *memUsers) {
	clk := clock.Func(func() time.Time { return *now })
	repo := &memUsers{byWallet: make(map[string]*users.User)}
	jwt := NewJWTManager(testSecret, 7*24*time.Hour, clk)
	return NewService(jwt, repo, EthereumVerifier{}, clk), repo
}

func TestRequestChallenge(t *testing.T) {
	now := time.UnixMilli(1700000000000).UTC()
	svc, _ := newTestService(&now)

	raw := "0xde709f2102306220921060314715629080e2fb77"
	checksummed := common.HexToAddress(raw).Hex()

	c, err := svc.RequestChallenge(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), c.Timestamp)
	assert.Contains(t, c.Message, "Wallet: "+checksummed)
	assert.Contains(t, c.Message, "Timestamp: 1700000000000")

	wallet, ts, err := ParseChallenge(c.Message)
	require.NoError(t, err)
	assert.Equal(t, checksummed, wallet)
	assert.True(t, ts.Equal(now))

	_, err = svc.RequestChallenge("not-a-wallet")
	assert.ErrorIs(t, err, ErrInvalidWallet)
}

func TestConnect_HappyPath(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(&now)
	s := newSigner(t)

	c, err := svc.RequestChallenge(s.wallet)
	require.NoError(t, err)
	now = now.Add(30 * time.Second)

	// Lower-cased wallet in the request still matches.
	session, err := svc.Connect(context.Background(), strings.ToLower(s.wallet), s.sign(t, c.Message), c.Message)
	require.NoError(t, err)
	assert.Equal(t, s.wallet, session.User.WalletAddress)

	p, err := svc.Authenticate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, p.UserID)
	assert.Equal(t, s.wallet, p.Wallet)

	// Reconnecting returns the same user.
	again, err := svc.Connect(context.Background(), s.wallet, s.sign(t, c.Message), c.Message)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, again.User.ID)
}

func TestConnect_AcceptsRawRecoveryID(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(&now)
	s := newSigner(t)

	c := BuildChallenge(s.wallet, now)
	sig, err := crypto.Sign(accounts.TextHash([]byte(c.Message)), s.key)
	require.NoError(t, err)

	_, err = svc.Connect(context.Background(), s.wallet, hexutil.Encode(sig), c.Message)
	assert.NoError(t, err)
}

func TestConnect_ReplayRejectedRegardlessOfSignature(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, repo := newTestService(&now)
	s := newSigner(t)

	c := BuildChallenge(s.wallet, now)
	sig := s.sign(t, c.Message)

	now = now.Add(5*time.Minute + time.Second)
	_, err := svc.Connect(context.Background(), s.wallet, sig, c.Message)
	assert.ErrorIs(t, err, ErrExpiredChallenge)
	assert.Empty(t, repo.byWallet)

	// Exactly at the limit is still accepted.
	now = now.Add(-time.Second)
	_, err = svc.Connect(context.Background(), s.wallet, sig, c.Message)
	assert.NoError(t, err)
}

func TestConnect_FutureTimestampRejected(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(&now)
	s := newSigner(t)

	c := BuildChallenge(s.wallet, now.Add(2*time.Minute))
	_, err := svc.Connect(context.Background(), s.wallet, s.sign(t, c.Message), c.Message)
	assert.ErrorIs(t, err, ErrFutureChallenge)
}

func TestConnect_Rejections(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(&now)
	s := newSigner(t)
	other := newSigner(t)
	c := BuildChallenge(s.wallet, now)

	tests := []struct {
		name    string
		wallet  string
		sig     string
		message string
		wantErr error
	}{
		{"invalid wallet", "0x123", s.sign(t, c.Message), c.Message, ErrInvalidWallet},
		{"malformed message", s.wallet, s.sign(t, "hello"), "hello", ErrMalformedChallenge},
		{"message for another wallet", other.wallet, other.sign(t, c.Message), c.Message, ErrWalletMismatch},
		{"signed by another key", s.wallet, other.sign(t, c.Message), c.Message, ErrInvalidSignature},
		{"signature over other text", s.wallet, s.sign(t, c.Message+"x"), c.Message, ErrInvalidSignature},
		{"truncated signature", s.wallet, s.sign(t, c.Message)[:100], c.Message, ErrInvalidSignature},
		{"not hex", s.wallet, "0xzz", c.Message, ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Connect(context.Background(), tt.wallet, tt.sig, tt.message)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseChallenge_BadTimestamp(t *testing.T) {
	msg := fmt.Sprintf("%s\n\nWallet: 0x00000000000000000000000000000000000000aa\nTimestamp: soon", challengeHeader)
	_, _, err := ParseChallenge(msg)
	assert.ErrorIs(t, err, ErrMalformedChallenge)
}
