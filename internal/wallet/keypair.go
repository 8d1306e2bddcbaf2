// Package wallet provides transfer signers.
package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	rpc "tokenscope/internal/solana"
)

var (
	// ErrUserRejected is returned when the approver declines to sign.
	ErrUserRejected = errors.New("User rejected the request.")
	// ErrNotConnected is returned by operations that need a connected wallet.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrUnavailable is returned by Connect when no usable key or RPC is set.
	ErrUnavailable = errors.New("wallet unavailable")
)

// Approver decides whether a transaction may be signed.
type Approver func(ctx context.Context, s Summary) (bool, error)

// ApproveAll signs everything. Intended for non-interactive use.
func ApproveAll(context.Context, Summary) (bool, error) {
	return true, nil
}

// Keypair is a local signer backed by an ed25519 key, submitting
// through a JSON-RPC node.
type Keypair struct {
	key     solana.PrivateKey
	pub     solana.PublicKey
	client  rpc.RPCClient
	approve Approver
	logger  *zap.Logger

	mu        sync.RWMutex
	connected bool
}

// Option configures Keypair.
type Option func(*Keypair)

// WithApprover gates every signature behind approve.
func WithApprover(approve Approver) Option {
	return func(k *Keypair) {
		if approve != nil {
			k.approve = approve
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(k *Keypair) {
		if logger != nil {
			k.logger = logger
		}
	}
}

// NewKeypair creates a wallet for key. It starts disconnected.
func NewKeypair(key solana.PrivateKey, client rpc.RPCClient, opts ...Option) *Keypair {
	k := &Keypair{
		key:     key,
		client:  client,
		approve: ApproveAll,
		logger:  zap.NewNop(),
	}
	if len(key) == 64 {
		k.pub = key.PublicKey()
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// LoadKeypair reads a solana-keygen JSON key file.
func LoadKeypair(path string, client rpc.RPCClient, opts ...Option) (*Keypair, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return NewKeypair(key, client, opts...), nil
}

// Available reports whether the wallet has a usable key and RPC client.
func (k *Keypair) Available() bool {
	return len(k.key) == 64 && k.client != nil
}

// Connect makes the address visible to callers.
func (k *Keypair) Connect(_ context.Context) error {
	if !k.Available() {
		return ErrUnavailable
	}
	k.mu.Lock()
	k.connected = true
	k.mu.Unlock()
	k.logger.Info("wallet connected", zap.Stringer("address", k.pub))
	return nil
}

// Disconnect hides the address until the next Connect.
func (k *Keypair) Disconnect() {
	k.mu.Lock()
	k.connected = false
	k.mu.Unlock()
}

// Connected reports whether Connect has been called.
func (k *Keypair) Connected() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.connected
}

// Address returns the public key while connected.
func (k *Keypair) Address() (solana.PublicKey, bool) {
	if !k.Connected() {
		return solana.PublicKey{}, false
	}
	return k.pub, true
}

// GetBalance returns the lamport balance of address.
func (k *Keypair) GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	return k.client.GetBalance(ctx, address.String())
}

// GetRecentBlockhash returns the latest blockhash.
func (k *Keypair) GetRecentBlockhash(ctx context.Context) (solana.Hash, error) {
	bh, err := k.client.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Hash{}, err
	}
	hash, err := solana.HashFromBase58(bh.Hash)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("parse blockhash: %w", err)
	}
	return hash, nil
}

// SendTransaction asks the approver, signs tx with the wallet key and
// submits it once.
func (k *Keypair) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if !k.Connected() {
		return solana.Signature{}, ErrNotConnected
	}

	ok, err := k.approve(ctx, Describe(tx))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("approval: %w", err)
	}
	if !ok {
		return solana.Signature{}, ErrUserRejected
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(k.pub) {
			return &k.key
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("serialize transaction: %w", err)
	}

	sig, err := k.client.SendTransaction(ctx, base64.StdEncoding.EncodeToString(raw))
	if err != nil {
		return solana.Signature{}, err
	}

	parsed, err := solana.SignatureFromBase58(sig)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("parse signature: %w", err)
	}
	return parsed, nil
}
