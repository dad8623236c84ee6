package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/holdgate/holdgate/internal/clock"
)

const issuer = "holdgate"

// SessionClaims identify a connected wallet.
type SessionClaims struct {
	UserID string `json:"uid"`
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	secret []byte
	expiry time.Duration
	clock  clock.Clock
}

func NewJWTManager(secret string, expiry time.Duration, clk clock.Clock) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		expiry: expiry,
		clock:  clk,
	}
}

// Issue signs a session token for the user and returns it with its expiry.
func (m *JWTManager) Issue(userID, wallet string) (string, time.Time, error) {
	now := m.clock.Now()
	expiresAt := now.Add(m.expiry)

	claims := SessionClaims{
		UserID: userID,
		Wallet: wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session token: %w", err)
	}
	return signed, expiresAt, nil
}

func (m *JWTManager) Validate(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing session token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid session token claims")
	}
	return claims, nil
}

func (m *JWTManager) Expiry() time.Duration {
	return m.expiry
}
