package transfer

import (
	"strings"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ParseAddress decodes a base58 account address of exactly 32 bytes.
func ParseAddress(s string) (solana.PublicKey, error) {
	decoded, err := base58.Decode(strings.TrimSpace(s))
	if err != nil || len(decoded) != solana.PublicKeyLength {
		return solana.PublicKey{}, ErrInvalidAddress
	}
	return solana.PublicKeyFromBytes(decoded), nil
}

// IsOnCurve reports whether key is a valid ed25519 point. Off-curve keys
// are program-derived addresses with no private key.
func IsOnCurve(key solana.PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(key[:])
	return err == nil
}
