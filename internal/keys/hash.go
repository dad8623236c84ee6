package keys

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const (
	// Tag starts every credential.
	Tag = "sk-hold-"
	// secretBytes of randomness follow the tag, hex encoded.
	secretBytes = 24
	// Length of a well-formed credential.
	Length = len(Tag) + 2*secretBytes

	displayLen = 12
)

// Hasher derives the lookup hash of a credential. The same plaintext always yields the same hash.
type Hasher struct {
	secret []byte
}

func NewHasher(secret string) (*Hasher, error) {
	if secret == "" {
		return nil, fmt.Errorf("credential hash secret is empty")
	}
	return &Hasher{secret: []byte(secret)}, nil
}

// Hash returns hex(HMAC-SHA256(secret, plaintext)).
func (h *Hasher) Hash(plaintext string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}

// Generate returns a fresh credential plaintext.
func Generate() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("generating credential: %w", err)
	}
	return Tag + hex.EncodeToString(buf), nil
}

// WellFormed reports whether plaintext has the tag, the length and a lowercase hex body.
func WellFormed(plaintext string) bool {
	if len(plaintext) != Length || !strings.HasPrefix(plaintext, Tag) {
		return false
	}
	for _, c := range plaintext[len(Tag):] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// DisplayPrefix is the part of a credential safe to show after issue.
func DisplayPrefix(plaintext string) string {
	if len(plaintext) <= displayLen {
		return plaintext + "..."
	}
	return plaintext[:displayLen] + "..."
}
