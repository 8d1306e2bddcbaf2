package transfer

import (
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Snapshot is the last known wallet state. Balance is in SOL and is
// invalid until the first successful fetch.
type Snapshot struct {
	Connected bool
	Address   *solana.PublicKey
	Balance   decimal.NullDecimal
}

// Form holds the raw user input for one transfer.
type Form struct {
	Amount      string
	Destination string
}

// Reset clears both fields.
func (f *Form) Reset() {
	f.Amount = ""
	f.Destination = ""
}

// Preflight is a validated transfer request.
type Preflight struct {
	Sender      solana.PublicKey
	Destination solana.PublicKey
	Amount      decimal.Decimal
	Lamports    uint64
	// OffCurve is set for destinations that no private key controls.
	OffCurve bool
}

// Validate checks form against snap. It performs no I/O.
//
// The balance check is advisory: it uses the last fetched balance, which
// may be stale, and ignores network fees.
func Validate(snap Snapshot, form Form) (Preflight, error) {
	if !snap.Connected || snap.Address == nil {
		return Preflight{}, ErrWalletNotConnected
	}

	amountText := strings.TrimSpace(form.Amount)
	destText := strings.TrimSpace(form.Destination)
	if amountText == "" || destText == "" {
		return Preflight{}, ErrMissingField
	}

	dest, err := ParseAddress(destText)
	if err != nil {
		return Preflight{}, err
	}

	amount, err := ParseAmount(amountText)
	if err != nil {
		return Preflight{}, err
	}

	if snap.Balance.Valid && amount.GreaterThan(snap.Balance.Decimal) {
		return Preflight{}, ErrInsufficientBalance
	}

	return Preflight{
		Sender:      *snap.Address,
		Destination: dest,
		Amount:      amount,
		Lamports:    ToLamports(amount),
		OffCurve:    !IsOnCurve(dest),
	}, nil
}
