// Package reserve detects and remedies the funding deficiency specific to
// chains that require accounts to hold a minimum native balance to exist
// and pay fees. Before every execution attempt the guard checks whether
// the swap would leave the fee-paying account below its operational
// minimum and, when remediable, performs a small funding-asset top-up swap
// first.
package reserve

import (
	"context"
	"math/big"

	"github.com/rs/zerolog/log"

	"omniswap/pkg/client"
	"omniswap/pkg/policy"
	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

// Sizing constants for the top-up heuristic. These are tunable policy
// values, not correctness requirements: half of the available funding
// balance, clamped, with a small fixed default when the user has ample
// funds so no more balance is consumed than necessary.
var (
	// RequiredReserveLamports is the native balance target the
	// fee-paying account should hold after the swap.
	RequiredReserveLamports = big.NewInt(5_000_000) // 0.005 SOL

	// TopUpFloorLamports is the minimum native balance needed to execute
	// the top-up swap itself. Below it no remediation is possible: the
	// top-up transaction needs reserve to execute.
	TopUpFloorLamports = big.NewInt(2_100_000) // ~ATA creation + fee

	// MinFundingUnits is the smallest funding-asset balance worth
	// spending on a top-up (1 USDC at 6 decimals).
	MinFundingUnits = big.NewInt(1_000_000)

	// TopUpDefaultUnits, TopUpMinUnits and TopUpMaxUnits bound the
	// funding amount consumed by one top-up.
	TopUpDefaultUnits = big.NewInt(2_000_000)
	TopUpMinUnits     = big.NewInt(1_000_000)
	TopUpMaxUnits     = big.NewInt(5_000_000)
)

// NativeReserveReader reports the native balance of the fee-paying account
// on the reserve-requiring chain.
type NativeReserveReader interface {
	NativeReserve(ctx context.Context, account types.Account) (*big.Int, error)
}

// FundingReader reports the user's aggregated funding-asset balance.
type FundingReader interface {
	GetAggregatedBalance(ctx context.Context, account types.Account, assetID string) (*client.AggregatedBalance, error)
}

// Quoter obtains the top-up swap quote.
type Quoter interface {
	GetSwapQuote(ctx context.Context, params client.QuoteParams) (*types.Quote, error)
}

// Executor runs the top-up transaction through the signing pipeline.
type Executor interface {
	Execute(ctx context.Context, quote *types.Quote, accounts []types.Account) (types.ExecutionAttempt, error)
}

// Config binds the guard to its funding and native asset identities.
type Config struct {
	// FundingAsset is the stable, widely held asset spent on top-ups, in
	// its aggregated identity used for balance reads.
	FundingAsset types.Asset
	// FundingSources are the chain-specific variants of the funding
	// asset. The top-up swap executes from the best-funded of these.
	FundingSources []types.Asset
	// NativeAsset is the reserve chain's native token as a swap
	// destination.
	NativeAsset types.Asset
}

// Guard is the chain-reserve guard.
type Guard struct {
	reserves NativeReserveReader
	funding  FundingReader
	quoter   Quoter
	executor Executor
	cfg      Config
}

// NewGuard wires the guard's collaborators.
func NewGuard(reserves NativeReserveReader, funding FundingReader, quoter Quoter, executor Executor, cfg Config) *Guard {
	return &Guard{
		reserves: reserves,
		funding:  funding,
		quoter:   quoter,
		executor: executor,
		cfg:      cfg,
	}
}

// CheckReserve computes a fresh reserve check for one execution attempt.
// Quotes that do not touch the reserve-requiring chain return immediately
// with no network calls.
func (g *Guard) CheckReserve(ctx context.Context, quote *types.Quote, accounts []types.Account) (types.ChainReserveCheck, error) {
	check := types.ChainReserveCheck{RequiredReserve: RequiredReserveLamports}

	if !quote.TouchesSolana() {
		return check, nil
	}

	account, ok := types.AccountFor(accounts, types.FamilySolana)
	if !ok {
		return check, swaperr.New(types.ReasonUnknown, "quote touches solana but no solana account is configured")
	}

	current, err := g.reserves.NativeReserve(ctx, account)
	if err != nil {
		return check, swaperr.Wrap(types.ReasonNetwork, err, "failed to read native reserve")
	}
	check.CurrentReserve = current

	if current.Cmp(RequiredReserveLamports) >= 0 {
		return check, nil
	}
	check.NeedsTopUp = true

	available, err := g.fundingBalance(ctx, accounts)
	if err != nil {
		return check, err
	}
	check.AvailableFundingAsset = available

	// Below the execution floor the top-up transaction itself cannot be
	// paid for; no amount of funding asset elsewhere helps.
	if current.Cmp(TopUpFloorLamports) < 0 && available.Cmp(MinFundingUnits) < 0 {
		check.IsUnrecoverable = true
		check.Message = "Your wallet has no SOL to pay network fees. Send at least 0.005 SOL to your wallet address to continue."
		return check, nil
	}
	if current.Cmp(TopUpFloorLamports) < 0 {
		// Funding exists but the account cannot execute the swap that
		// would spend it.
		check.IsUnrecoverable = true
		check.Message = "Your wallet needs a small amount of SOL before it can top itself up. Send at least 0.005 SOL to your wallet address to continue."
		return check, nil
	}

	if available.Cmp(MinFundingUnits) >= 0 {
		check.CanAutoTopUp = true
	} else {
		check.Message = "Not enough " + g.cfg.FundingAsset.Symbol + " to automatically top up SOL for network fees."
	}
	return check, nil
}

// selectFundingSource picks the chain-specific funding asset whose chain
// holds the largest balance across the user's accounts. The aggregated
// identity answers "how much do I have"; the top-up swap itself must spend
// from one concrete chain.
func (g *Guard) selectFundingSource(ctx context.Context, accounts []types.Account) (types.Asset, *big.Int, error) {
	perChain := make(map[string]*big.Int)
	for _, account := range accounts {
		balance, err := g.funding.GetAggregatedBalance(ctx, account, g.cfg.FundingAsset.AssetID)
		if err != nil {
			return types.Asset{}, nil, swaperr.Wrap(types.ReasonNetwork, err, "failed to read funding balance")
		}
		for _, cb := range balance.PerChain {
			if perChain[cb.ChainID] == nil {
				perChain[cb.ChainID] = new(big.Int)
			}
			perChain[cb.ChainID].Add(perChain[cb.ChainID], cb.Amount)
		}
	}

	var best types.Asset
	bestBalance := new(big.Int)
	for _, source := range g.cfg.FundingSources {
		balance := perChain[source.ChainID]
		if balance == nil {
			continue
		}
		if balance.Cmp(bestBalance) > 0 {
			best = source
			bestBalance = balance
		}
	}
	if best.AssetID == "" {
		return types.Asset{}, nil, swaperr.New(types.ReasonInsufficientReserve,
			"no configured chain holds %s to fund a top-up", g.cfg.FundingAsset.Symbol)
	}
	return best, bestBalance, nil
}

// fundingBalance sums the aggregated funding-asset balance across all of
// the user's accounts.
func (g *Guard) fundingBalance(ctx context.Context, accounts []types.Account) (*big.Int, error) {
	total := new(big.Int)
	for _, account := range accounts {
		balance, err := g.funding.GetAggregatedBalance(ctx, account, g.cfg.FundingAsset.AssetID)
		if err != nil {
			return nil, swaperr.Wrap(types.ReasonNetwork, err, "failed to read funding balance")
		}
		total.Add(total, balance.Total)
	}
	return total, nil
}

// TopUpAmount sizes the top-up: half of the available funding balance
// clamped to the fixed bounds, replaced by the small default when balance
// is ample.
func TopUpAmount(available *big.Int) *big.Int {
	half := new(big.Int).Rsh(available, 1)
	if half.Cmp(TopUpDefaultUnits) >= 0 {
		return new(big.Int).Set(TopUpDefaultUnits)
	}
	if half.Cmp(TopUpMinUnits) < 0 {
		half = new(big.Int).Set(TopUpMinUnits)
	}
	if half.Cmp(TopUpMaxUnits) > 0 {
		half = new(big.Int).Set(TopUpMaxUnits)
	}
	if half.Cmp(available) > 0 {
		half = new(big.Int).Set(available)
	}
	return half
}

// PerformTopUp quotes and executes the funding-asset to native-asset
// top-up swap at a wide fixed slippage: topping up prioritizes success
// over rate. Failure here is terminal for the overall swap, since repeated
// top-up attempts would drain funds without benefit.
func (g *Guard) PerformTopUp(ctx context.Context, check types.ChainReserveCheck, accounts []types.Account) (*types.TopUpResult, error) {
	if !check.CanAutoTopUp {
		return nil, swaperr.New(types.ReasonInsufficientReserve, "top-up requested but auto top-up is not possible")
	}

	source, sourceBalance, err := g.selectFundingSource(ctx, accounts)
	if err != nil {
		return nil, err
	}

	amount := TopUpAmount(check.AvailableFundingAsset)
	if amount.Cmp(sourceBalance) > 0 {
		amount = sourceBalance
	}
	if amount.Cmp(MinFundingUnits) < 0 {
		return nil, swaperr.New(types.ReasonInsufficientReserve,
			"no single chain holds enough %s for a top-up", g.cfg.FundingAsset.Symbol)
	}

	log.Info().
		Str("amount", amount.String()).
		Str("asset", source.Symbol).
		Str("chain", source.ChainID).
		Msg("performing reserve top-up swap")

	quote, err := g.quoter.GetSwapQuote(ctx, client.QuoteParams{
		From:        source,
		To:          g.cfg.NativeAsset,
		AmountIn:    amount,
		SlippageBps: policy.TopUpSlippageBps,
		Accounts:    accounts,
	})
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonInsufficientReserve, err, "failed to quote top-up swap")
	}

	attempt, err := g.executor.Execute(ctx, quote, accounts)
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonInsufficientReserve, err, "top-up swap failed")
	}
	if attempt.Status != types.AttemptConfirmed {
		return nil, swaperr.New(types.ReasonInsufficientReserve, "top-up swap did not confirm (status %s)", attempt.Status)
	}

	return &types.TopUpResult{
		TxHash:   attempt.TxHash,
		Consumed: quote.AmountIn,
	}, nil
}
