package broadcast

import (
	"context"

	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

// EVMRouter fans one chain family out to per-network broadcasters, keyed
// by the chain identifier carried on the quote's source asset.
type EVMRouter struct {
	networks map[string]*EVMBroadcaster
}

// NewEVMRouter creates an empty router; add networks before use.
func NewEVMRouter() *EVMRouter {
	return &EVMRouter{networks: make(map[string]*EVMBroadcaster)}
}

// AddNetwork registers a broadcaster for one chain identifier.
func (r *EVMRouter) AddNetwork(chainID string, b *EVMBroadcaster) {
	r.networks[chainID] = b
}

// Execute dispatches to the broadcaster for the quote's source chain.
func (r *EVMRouter) Execute(ctx context.Context, quote *types.Quote, account types.Account) (types.ExecutionAttempt, error) {
	b, ok := r.networks[quote.From.ChainID]
	if !ok {
		return types.ExecutionAttempt{ChainFamily: types.FamilyEVM, Status: types.AttemptFailed},
			swaperr.New(types.ReasonUnknown, "no network configured for chain %q", quote.From.ChainID)
	}
	return b.Execute(ctx, quote, account)
}

// ConfirmTransaction probes every configured network for the receipt. The
// hash alone does not identify the network, so the first network that
// resolves the transaction answers.
func (r *EVMRouter) ConfirmTransaction(ctx context.Context, txHash string) (bool, error) {
	var lastErr error
	for _, b := range r.networks {
		confirmed, err := b.ConfirmTransaction(ctx, txHash)
		if err != nil {
			lastErr = err
			continue
		}
		if confirmed {
			return true, nil
		}
	}
	if lastErr != nil {
		return false, lastErr
	}
	return false, nil
}
