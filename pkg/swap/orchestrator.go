// Package swap holds the top-level swap execution orchestrator: the state
// machine that sequences reserve guard, top-up, sign/broadcast, confirm
// and bounded retry, and reduces every outcome to a single
// SwapExecutionResult with user-facing messaging.
package swap

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"omniswap/pkg/history"
	"omniswap/pkg/policy"
	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

// ReserveGuard checks and remedies the destination chain's native reserve.
type ReserveGuard interface {
	CheckReserve(ctx context.Context, quote *types.Quote, accounts []types.Account) (types.ChainReserveCheck, error)
	PerformTopUp(ctx context.Context, check types.ChainReserveCheck, accounts []types.Account) (*types.TopUpResult, error)
}

// QuoteSource supplies fresh quotes for retries and post-top-up amounts.
type QuoteSource interface {
	FetchForRetry(ctx context.Context, attemptNumber int, amountOverride *big.Int) (*types.Quote, error)
}

// Executor signs, broadcasts and confirms one quote.
type Executor interface {
	Execute(ctx context.Context, quote *types.Quote, accounts []types.Account) (types.ExecutionAttempt, error)
}

// Recorder persists terminal results. A nil recorder disables history.
type Recorder interface {
	Record(entry history.Entry) error
}

// Config tunes one orchestrator.
type Config struct {
	// MaxRetries bounds automatic retries after the first attempt.
	MaxRetries int
	// TopUpSettleWait is the pause after a confirmed top-up, giving the
	// routing service's balance view time to catch up.
	TopUpSettleWait time.Duration
	// FundingAssetID identifies the top-up funding asset; when the main
	// swap spends the same asset, the consumed amount is deducted from
	// the swap amount.
	FundingAssetID string
}

// DefaultMaxRetries is the retry budget when none is configured.
const DefaultMaxRetries = 2

// Orchestrator owns the lifecycle of one SwapExecutionResult per
// invocation. Only one orchestration may be in flight at a time; a second
// invocation while one is pending is rejected rather than interleaved,
// since both would race over the same account's transaction ordering and
// balance state.
type Orchestrator struct {
	guard    ReserveGuard
	quotes   QuoteSource
	executor Executor
	recorder Recorder
	cfg      Config

	mu       sync.Mutex
	inFlight bool
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(guard ReserveGuard, quotes QuoteSource, executor Executor, recorder Recorder, cfg Config) *Orchestrator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &Orchestrator{
		guard:    guard,
		quotes:   quotes,
		executor: executor,
		recorder: recorder,
		cfg:      cfg,
	}
}

// ExecuteSwap runs the full execution pipeline for one quote. It never
// returns an error; every failure path resolves to a result with a
// user-facing message.
func (o *Orchestrator) ExecuteSwap(ctx context.Context, quote *types.Quote, accounts []types.Account) types.SwapExecutionResult {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return types.SwapExecutionResult{
			Success: false,
			Error:   "Another swap is already in progress. Please wait for it to finish.",
		}
	}
	o.inFlight = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	result, topUpTx, attempts := o.run(ctx, quote, accounts)
	o.record(quote, result, topUpTx, attempts)
	return result
}

// run is the actual pipeline; split out so recording sees the terminal
// result exactly once.
func (o *Orchestrator) run(ctx context.Context, quote *types.Quote, accounts []types.Account) (types.SwapExecutionResult, string, int) {
	check, err := o.guard.CheckReserve(ctx, quote, accounts)
	if err != nil {
		return failure(err), "", 0
	}

	if check.IsUnrecoverable {
		// No top-up can fix this; surface the manual-funding guidance
		// without attempting anything.
		return types.SwapExecutionResult{Success: false, Error: check.Message}, "", 0
	}

	topUpTx := ""
	if check.NeedsTopUp {
		if !check.CanAutoTopUp {
			msg := check.Message
			if msg == "" {
				msg = policy.UserMessage(types.ReasonInsufficientReserve, "")
			}
			return types.SwapExecutionResult{Success: false, Error: msg}, "", 0
		}

		topUp, err := o.guard.PerformTopUp(ctx, check, accounts)
		if err != nil {
			// Terminal: the main swap would fail anyway, and repeating
			// top-ups drains funds without benefit.
			return failure(err), "", 0
		}
		topUpTx = topUp.TxHash

		if o.cfg.TopUpSettleWait > 0 {
			if err := sleepCtx(ctx, o.cfg.TopUpSettleWait); err != nil {
				return failure(swaperr.Wrap(types.ReasonNetwork, err, "interrupted waiting for top-up to settle")), topUpTx, 0
			}
		}

		if quote.From.AssetID == o.cfg.FundingAssetID {
			remaining := new(big.Int).Sub(quote.AmountIn, topUp.Consumed)
			if remaining.Sign() <= 0 {
				return types.SwapExecutionResult{
					Success: false,
					Error:   "The fee top-up used the full swap amount; nothing is left to swap.",
				}, topUpTx, 0
			}
			quote, err = o.quotes.FetchForRetry(ctx, 0, remaining)
		} else {
			// The top-up invalidated the original quote's balance view;
			// refresh at the same amount.
			quote, err = o.quotes.FetchForRetry(ctx, 0, nil)
		}
		if err != nil {
			return failure(err), topUpTx, 0
		}
	}

	result, attempts := o.executeWithRetry(ctx, quote, accounts)
	return result, topUpTx, attempts
}

// executeWithRetry runs the sign/broadcast/confirm loop with a hard retry
// ceiling. Every retry uses a freshly fetched quote; a failed quote is
// never re-executed, since an expired or invalid quote reproduces the same
// failure deterministically.
func (o *Orchestrator) executeWithRetry(ctx context.Context, quote *types.Quote, accounts []types.Account) (types.SwapExecutionResult, int) {
	for attemptNumber := 0; ; attemptNumber++ {
		attempt, err := o.executor.Execute(ctx, quote, accounts)
		if err == nil {
			if attempt.Status == types.AttemptUnknown {
				// Confirmation polling exhausted without resolution. The
				// transaction may still land; treat as delivered rather
				// than retrying a swap that might double-execute.
				log.Warn().Str("tx", attempt.TxHash).Msg("confirmation unresolved, reporting as submitted")
			}
			return types.SwapExecutionResult{Success: true, TxHash: attempt.TxHash}, attemptNumber + 1
		}

		reason := swaperr.ReasonOf(err)
		if !policy.IsRetryableFailure(reason) || attemptNumber >= o.cfg.MaxRetries {
			return failure(err), attemptNumber + 1
		}

		escalation := 0
		if policy.IsSlippageRelatedFailure(reason) {
			escalation = attemptNumber + 1
		}

		log.Info().
			Str("reason", string(reason)).
			Int("attempt", attemptNumber+1).
			Msg("retrying swap with a fresh quote")

		fresh, ferr := o.quotes.FetchForRetry(ctx, escalation, nil)
		if ferr != nil {
			return failure(ferr), attemptNumber + 1
		}
		quote = fresh
	}
}

func (o *Orchestrator) record(quote *types.Quote, result types.SwapExecutionResult, topUpTx string, attempts int) {
	if o.recorder == nil {
		return
	}
	entry := history.Entry{
		FromSymbol:  quote.From.Symbol,
		ToSymbol:    quote.To.Symbol,
		AmountIn:    quote.AmountIn.String(),
		ExpectedOut: quote.ExpectedOut.String(),
		Success:     result.Success,
		TxHash:      result.TxHash,
		TopUpTxHash: topUpTx,
		Error:       result.Error,
		Attempts:    attempts,
	}
	if err := o.recorder.Record(entry); err != nil {
		log.Warn().Err(err).Msg("failed to record swap history")
	}
}

// failure maps an internal error to the terminal user-facing result.
func failure(err error) types.SwapExecutionResult {
	reason := swaperr.ReasonOf(err)
	raw := ""
	if root := swaperr.RootCause(err); root != nil {
		raw = root.Error()
	}
	return types.SwapExecutionResult{
		Success: false,
		Error:   policy.UserMessage(reason, raw),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
