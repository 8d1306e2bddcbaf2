package solana

import "context"

// DefaultEndpoint is the devnet JSON-RPC endpoint.
const DefaultEndpoint = "https://api.devnet.solana.com"

// Commitment levels accepted by the RPC node.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// RPCClient defines the subset of the Solana JSON-RPC API used for transfers.
type RPCClient interface {
	// GetBalance returns the lamport balance of a base58 address.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// GetLatestBlockhash returns the latest blockhash and the last block
	// height at which it is valid.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SendTransaction submits a base64-encoded signed transaction and
	// returns its signature. It is issued exactly once and never retried.
	SendTransaction(ctx context.Context, encodedTx string) (string, error)
}

// Blockhash is a recent blockhash with its validity window.
type Blockhash struct {
	Hash                 string
	LastValidBlockHeight uint64
}
