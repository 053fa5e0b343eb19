package client

import (
	"context"
	"math/big"

	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

// Pricer derives read-only spot rates from small dry quotes. It exists for
// display purposes only; execution always uses a full, fresh quote.
type Pricer struct {
	routing *RoutingClient
}

// NewPricer creates a pricer backed by the routing client.
func NewPricer(routing *RoutingClient) *Pricer {
	return &Pricer{routing: routing}
}

// probeDivisor sizes the dry quote at a fraction of the intended amount so
// the rate reflects realistic depth without moving the book.
const probeDivisor = 10

// SpotRate returns how many destination tokens one source token currently
// buys, probed with a dry quote at a tenth of the intended amount.
func (p *Pricer) SpotRate(ctx context.Context, from, to types.Asset, intendedAmount *big.Int, accounts []types.Account) (*big.Rat, error) {
	if intendedAmount == nil || intendedAmount.Sign() <= 0 {
		return nil, swaperr.New(types.ReasonInvalidAmount, "intended amount must be greater than zero")
	}

	probe := new(big.Int).Div(intendedAmount, big.NewInt(probeDivisor))
	if probe.Sign() == 0 {
		probe = intendedAmount
	}

	quote, err := p.routing.GetSwapQuote(ctx, QuoteParams{
		From:        from,
		To:          to,
		AmountIn:    probe,
		SlippageBps: 100,
		Accounts:    accounts,
		Dry:         true,
	})
	if err != nil {
		return nil, err
	}

	if quote.AmountIn.Sign() == 0 {
		return nil, swaperr.New(types.ReasonUnknown, "dry quote returned zero input amount")
	}

	// Normalize both legs to whole tokens before dividing.
	in := new(big.Rat).SetFrac(quote.AmountIn, pow10(from.Decimals))
	out := new(big.Rat).SetFrac(quote.ExpectedOut, pow10(to.Decimals))
	return new(big.Rat).Quo(out, in), nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
