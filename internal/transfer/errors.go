package transfer

import (
	"errors"
	"strings"
)

// Kind classifies a transfer failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindWalletNotConnected
	KindMissingField
	KindInvalidAddress
	KindInvalidAmount
	KindInsufficientBalance
	KindUserRejected
	KindInsufficientFundsOnChain
	KindBusy
)

var kindNames = map[Kind]string{
	KindUnknown:                  "unknown",
	KindWalletNotConnected:       "wallet_not_connected",
	KindMissingField:             "missing_field",
	KindInvalidAddress:           "invalid_address",
	KindInvalidAmount:            "invalid_amount",
	KindInsufficientBalance:      "insufficient_balance",
	KindUserRejected:             "user_rejected",
	KindInsufficientFundsOnChain: "insufficient_funds_on_chain",
	KindBusy:                     "busy",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Error is a classified transfer failure. Message is shown to the user as is.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work
// with errors.Is regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Input and preflight errors.
var (
	ErrWalletNotConnected  = &Error{Kind: KindWalletNotConnected, Message: "Please connect your wallet first"}
	ErrMissingField        = &Error{Kind: KindMissingField, Message: "Please fill in all fields"}
	ErrInvalidAddress      = &Error{Kind: KindInvalidAddress, Message: "Invalid Solana address"}
	ErrInvalidAmount       = &Error{Kind: KindInvalidAmount, Message: "Please enter a valid amount"}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance, Message: "Insufficient balance for this transfer"}
	ErrBusy                = &Error{Kind: KindBusy, Message: "A transfer is already in progress"}
)

// Submission errors.
var (
	ErrUserRejected             = &Error{Kind: KindUserRejected, Message: "Transfer cancelled - you rejected the request in your wallet"}
	ErrInsufficientFundsOnChain = &Error{Kind: KindInsufficientFundsOnChain, Message: "Insufficient balance for transfer + network fees"}
)

// KindOf returns the kind of err, or KindUnknown if it is not an *Error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// Classify maps a wallet or network failure to a user-facing *Error.
// Errors that are already classified are returned unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var te *Error
	if errors.As(err, &te) {
		return te
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "user rejected"):
		return &Error{Kind: KindUserRejected, Message: ErrUserRejected.Message, Err: err}
	case strings.Contains(msg, "insufficient funds"), strings.Contains(msg, "insufficient lamports"):
		return &Error{Kind: KindInsufficientFundsOnChain, Message: ErrInsufficientFundsOnChain.Message, Err: err}
	default:
		return &Error{Kind: KindUnknown, Message: "Transfer failed: " + err.Error(), Err: err}
	}
}
