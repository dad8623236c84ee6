package auth

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Verifier checks that signature over message was produced by wallet.
type Verifier interface {
	Verify(wallet, message, signature string) error
}

// EthereumVerifier checks EIP-191 personal_sign signatures.
type EthereumVerifier struct{}

func (EthereumVerifier) Verify(wallet, message, signature string) error {
	if !strings.HasPrefix(signature, "0x") && !strings.HasPrefix(signature, "0X") {
		signature = "0x" + signature
	}
	sig, err := hexutil.Decode(strings.ToLower(signature))
	if err != nil || len(sig) != crypto.SignatureLength {
		return ErrInvalidSignature
	}

	// Wallets emit V as 27/28; SigToPub wants 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return ErrInvalidSignature
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return ErrInvalidSignature
	}
	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(wallet) {
		return ErrInvalidSignature
	}
	return nil
}
