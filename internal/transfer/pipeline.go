// Package transfer validates, builds and submits native SOL transfers.
package transfer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tokenscope/internal/observability"
)

// Wallet is the signing and submission provider a transfer runs against.
type Wallet interface {
	Available() bool
	Connected() bool
	Address() (solana.PublicKey, bool)
	GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error)
	GetRecentBlockhash(ctx context.Context) (solana.Hash, error)
	// SendTransaction signs and submits tx. Implementations must not retry.
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Outcome describes a transfer the network accepted.
type Outcome struct {
	Signature   solana.Signature
	Lamports    uint64
	Destination solana.PublicKey
	// Balance is the sender balance fetched after submission, if the
	// fetch succeeded.
	Balance decimal.NullDecimal
}

// ExplorerURL returns the Solana Explorer link for the transaction.
func (o Outcome) ExplorerURL(cluster string) string {
	u := "https://explorer.solana.com/tx/" + o.Signature.String()
	if cluster != "" && cluster != "mainnet-beta" {
		u += "?cluster=" + cluster
	}
	return u
}

// Pipeline runs one transfer at a time against a wallet.
type Pipeline struct {
	wallet Wallet
	logger *zap.Logger
	busy   atomic.Bool

	mu           sync.RWMutex
	balance      decimal.NullDecimal
	balanceOwner solana.PublicKey
}

// Option configures Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline creates a pipeline for w.
func NewPipeline(w Wallet, opts ...Option) *Pipeline {
	p := &Pipeline{
		wallet: w,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Busy reports whether a submission is in flight.
func (p *Pipeline) Busy() bool {
	return p.busy.Load()
}

// Snapshot returns the current wallet state. Connection and address are
// read live; the balance is the last fetched value for that address.
func (p *Pipeline) Snapshot() Snapshot {
	var snap Snapshot
	if !p.wallet.Connected() {
		return snap
	}
	addr, ok := p.wallet.Address()
	if !ok {
		return snap
	}
	snap.Connected = true
	snap.Address = &addr

	p.mu.RLock()
	if p.balanceOwner.Equals(addr) {
		snap.Balance = p.balance
	}
	p.mu.RUnlock()
	return snap
}

// Refresh fetches the wallet balance. On failure the cached balance is
// cleared, not kept, and the error is returned. Until the next successful
// fetch Validate skips the advisory balance check.
func (p *Pipeline) Refresh(ctx context.Context) (Snapshot, error) {
	snap := p.Snapshot()
	if !snap.Connected {
		return snap, ErrWalletNotConnected
	}

	lamports, err := p.wallet.GetBalance(ctx, *snap.Address)
	if err != nil {
		p.setBalance(*snap.Address, decimal.NullDecimal{})
		snap.Balance = decimal.NullDecimal{}
		return snap, fmt.Errorf("get balance: %w", err)
	}

	snap.Balance = decimal.NullDecimal{Decimal: LamportsToSOL(lamports), Valid: true}
	p.setBalance(*snap.Address, snap.Balance)
	return snap, nil
}

func (p *Pipeline) setBalance(owner solana.PublicKey, balance decimal.NullDecimal) {
	p.mu.Lock()
	p.balanceOwner = owner
	p.balance = balance
	p.mu.Unlock()
}

// Submit validates form and sends the transfer. Failures are returned as
// *Error. On success form is cleared and the balance is re-fetched; a
// failed re-fetch is logged and does not affect the outcome.
//
// A call made while another is in flight fails with ErrBusy.
func (p *Pipeline) Submit(ctx context.Context, form *Form) (*Outcome, error) {
	if !p.busy.CompareAndSwap(false, true) {
		observability.RecordTransfer(KindBusy.String())
		return nil, ErrBusy
	}
	defer p.busy.Store(false)

	logger := p.logger.With(zap.String("attempt_id", uuid.NewString()))

	outcome, err := p.submit(ctx, logger, form)
	if err != nil {
		te := Classify(err)
		logger.Warn("transfer failed",
			zap.Stringer("kind", te.Kind),
			zap.Error(err),
		)
		observability.RecordTransfer(te.Kind.String())
		return nil, te
	}

	observability.RecordTransfer("success")
	return outcome, nil
}

func (p *Pipeline) submit(ctx context.Context, logger *zap.Logger, form *Form) (*Outcome, error) {
	pf, err := Validate(p.Snapshot(), *form)
	if err != nil {
		return nil, err
	}
	if pf.OffCurve {
		logger.Warn("destination is off curve",
			zap.Stringer("destination", pf.Destination),
		)
	}

	blockhash, err := p.wallet.GetRecentBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get recent blockhash: %w", err)
	}

	tx, err := BuildTransfer(pf.Sender, pf.Destination, pf.Lamports, blockhash)
	if err != nil {
		return nil, err
	}

	logger.Info("submitting transfer",
		zap.Stringer("from", pf.Sender),
		zap.Stringer("to", pf.Destination),
		zap.Uint64("lamports", pf.Lamports),
	)

	sig, err := p.wallet.SendTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}

	logger.Info("transfer submitted", zap.Stringer("signature", sig))
	form.Reset()

	outcome := &Outcome{
		Signature:   sig,
		Lamports:    pf.Lamports,
		Destination: pf.Destination,
	}
	if snap, err := p.Refresh(ctx); err != nil {
		logger.Warn("balance refresh failed", zap.Error(err))
	} else {
		outcome.Balance = snap.Balance
	}
	return outcome, nil
}
