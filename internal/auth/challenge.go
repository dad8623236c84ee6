package auth

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	challengeHeader = "holdgate wants you to sign in with your wallet."
	walletField     = "Wallet: "
	timestampField  = "Timestamp: "
)

var (
	ErrInvalidWallet      = errors.New("auth: invalid wallet address")
	ErrMalformedChallenge = errors.New("auth: malformed challenge message")
	ErrWalletMismatch     = errors.New("auth: challenge names a different wallet")
	ErrExpiredChallenge   = errors.New("auth: challenge expired")
	ErrFutureChallenge    = errors.New("auth: challenge timestamp is in the future")
	ErrInvalidSignature   = errors.New("auth: invalid signature")
)

// Challenge is the message a wallet signs to connect.
type Challenge struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// BuildChallenge formats the sign-in message for wallet at ts.
func BuildChallenge(wallet string, ts time.Time) Challenge {
	ms := ts.UnixMilli()
	msg := fmt.Sprintf("%s\n\n%s%s\n%s%d",
		challengeHeader, walletField, common.HexToAddress(wallet).Hex(), timestampField, ms)
	return Challenge{Message: msg, Timestamp: ms}
}

// ParseChallenge extracts the wallet and timestamp lines of a sign-in message.
func ParseChallenge(message string) (wallet string, ts time.Time, err error) {
	var (
		haveWallet bool
		haveTS     bool
	)

	sc := bufio.NewScanner(strings.NewReader(message))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, walletField):
			wallet = strings.TrimSpace(strings.TrimPrefix(line, walletField))
			haveWallet = true
		case strings.HasPrefix(line, timestampField):
			ms, perr := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, timestampField)), 10, 64)
			if perr != nil {
				return "", time.Time{}, ErrMalformedChallenge
			}
			ts = time.UnixMilli(ms)
			haveTS = true
		}
	}
	if err := sc.Err(); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrMalformedChallenge, err)
	}
	if !haveWallet || !haveTS || !common.IsHexAddress(wallet) {
		return "", time.Time{}, ErrMalformedChallenge
	}
	return wallet, ts, nil
}
