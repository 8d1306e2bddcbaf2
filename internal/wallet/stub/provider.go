// Package stub provides an in-memory wallet for tests.
package stub

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// ErrNotConnected is returned when the stub is not connected.
var ErrNotConnected = errors.New("wallet not connected")

// Provider implements transfer.Wallet in memory. Balances are served in
// order; the last value repeats.
type Provider struct {
	mu sync.Mutex

	IsAvailable bool
	IsConnected bool
	Addr        solana.PublicKey
	Balances    []uint64
	BalanceErr  error
	Blockhash   solana.Hash
	BlockErr    error
	Signature   solana.Signature
	SendErr     error
	// Gate, if set, blocks SendTransaction until it is closed.
	Gate chan struct{}

	BalanceCalls int
	Sent         []*solana.Transaction
}

// NewProvider creates a connected provider for addr with the given balance.
func NewProvider(addr solana.PublicKey, lamports uint64) *Provider {
	return &Provider{
		IsAvailable: true,
		IsConnected: true,
		Addr:        addr,
		Balances:    []uint64{lamports},
		Blockhash:   solana.Hash{1, 2, 3},
		Signature:   solana.Signature{9, 9, 9},
	}
}

// Available reports IsAvailable.
func (p *Provider) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.IsAvailable
}

// Connected reports IsConnected.
func (p *Provider) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.IsConnected
}

// Address returns Addr while connected.
func (p *Provider) Address() (solana.PublicKey, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.IsConnected {
		return solana.PublicKey{}, false
	}
	return p.Addr, true
}

// GetBalance returns the next configured balance.
func (p *Provider) GetBalance(_ context.Context, _ solana.PublicKey) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.BalanceCalls++
	if p.BalanceErr != nil {
		return 0, p.BalanceErr
	}
	if len(p.Balances) == 0 {
		return 0, nil
	}
	b := p.Balances[0]
	if len(p.Balances) > 1 {
		p.Balances = p.Balances[1:]
	}
	return b, nil
}

// GetRecentBlockhash returns Blockhash.
func (p *Provider) GetRecentBlockhash(_ context.Context) (solana.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Blockhash, p.BlockErr
}

// SendTransaction records tx and returns Signature or SendErr.
func (p *Provider) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	p.mu.Lock()
	gate := p.Gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return solana.Signature{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.IsConnected {
		return solana.Signature{}, ErrNotConnected
	}
	p.Sent = append(p.Sent, tx)
	if p.SendErr != nil {
		return solana.Signature{}, p.SendErr
	}
	return p.Signature, nil
}

// SentCount returns the number of SendTransaction calls that reached the
// network.
func (p *Provider) SentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Sent)
}

// BalanceCount returns the number of GetBalance calls.
func (p *Provider) BalanceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.BalanceCalls
}
