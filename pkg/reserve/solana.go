package reserve

import (
	"context"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

// SolanaBalanceRPC is the slice of rpc.Client the reserve reader consumes.
type SolanaBalanceRPC interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
}

// SolanaReserveReader reads the fee-paying account's lamport balance.
type SolanaReserveReader struct {
	client SolanaBalanceRPC
}

// NewSolanaReserveReader creates a reserve reader over one RPC client.
func NewSolanaReserveReader(client SolanaBalanceRPC) *SolanaReserveReader {
	return &SolanaReserveReader{client: client}
}

// NativeReserve returns the account's current lamport balance.
func (r *SolanaReserveReader) NativeReserve(ctx context.Context, account types.Account) (*big.Int, error) {
	pubkey, err := solana.PublicKeyFromBase58(account.Address)
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonUnknown, err, "invalid solana account address")
	}

	balance, err := r.client.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonNetwork, err, "failed to get balance")
	}
	return new(big.Int).SetUint64(balance.Value), nil
}
