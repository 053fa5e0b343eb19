// Package quotefetch owns quote retrieval for the swap pipeline: the
// debounced, cancellable path driven by user input, and the synchronous
// retry path driven by the orchestrator. Of several rapid requests inside
// one debounce window, only the last produces a network call, and a
// late-arriving stale response never overwrites fresher state.
package quotefetch

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"omniswap/pkg/client"
	"omniswap/pkg/policy"
	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

// RoutingService is the slice of the routing client the fetcher consumes.
type RoutingService interface {
	GetSwapQuote(ctx context.Context, params client.QuoteParams) (*types.Quote, error)
}

// Request are the parameters of one quote fetch.
type Request struct {
	From     types.Asset
	To       types.Asset
	AmountIn *big.Int
	Accounts []types.Account
}

// minInputFloors lists native assets whose swap amount must exceed a fixed
// smallest-unit floor, covering the destination account's rent/creation
// cost. Amounts below the floor fail fast before any network call.
var minInputFloors = map[types.ChainFamily]*big.Int{
	types.FamilySolana: big.NewInt(5_000_000), // 0.005 SOL
}

// DefaultDebounceWindow collapses rapid successive fetches into one
// in-flight request.
const DefaultDebounceWindow = 400 * time.Millisecond

// Fetcher serializes quote fetching for one logical slot. All state is
// owned by the fetcher and mutated under its lock; the generation counter
// decides which in-flight response is still current.
type Fetcher struct {
	routing RoutingService
	userBps int
	window  time.Duration

	mu       sync.Mutex
	gen      uint64
	timer    *time.Timer
	cancel   context.CancelFunc
	lastReq  Request
	latest   *types.Quote
	lastErr  error
	onUpdate func(*types.Quote, error)
}

// New creates a fetcher. userBps is the user's slippage preference, applied
// through the policy engine as a floor widener. A zero window falls back to
// the default debounce window.
func New(routing RoutingService, userBps int, window time.Duration) *Fetcher {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Fetcher{
		routing: routing,
		userBps: userBps,
		window:  window,
	}
}

// OnUpdate registers a callback invoked whenever a fetch resolves with
// either a fresh quote or a genuine error. Cancelled and superseded fetches
// never trigger it.
func (f *Fetcher) OnUpdate(fn func(*types.Quote, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onUpdate = fn
}

// Fetch schedules a debounced quote fetch for the given request,
// superseding any scheduled or in-flight fetch. It returns immediately.
func (f *Fetcher) Fetch(req Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gen++
	gen := f.gen
	f.lastReq = req

	if f.timer != nil {
		f.timer.Stop()
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}

	f.timer = time.AfterFunc(f.window, func() {
		f.run(gen, req)
	})
}

// Cancel aborts any scheduled or in-flight fetch without touching the last
// resolved state. Cancelling is not an error.
func (f *Fetcher) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// Latest returns the most recent resolved quote or fetch error.
func (f *Fetcher) Latest() (*types.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.lastErr
}

func (f *Fetcher) run(gen uint64, req Request) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.mu.Unlock()

	quote, err := f.fetch(ctx, req, policy.ComputeBaseSlippageBps(req.From, req.To, f.userBps))

	f.mu.Lock()
	defer f.mu.Unlock()

	// A response for a superseded generation is discarded on arrival, not
	// merely ignored by the caller.
	if gen != f.gen {
		return
	}
	if swaperr.IsCanceled(err) {
		return
	}

	f.latest, f.lastErr = quote, err
	if f.onUpdate != nil {
		f.onUpdate(quote, err)
	}
}

// FetchForRetry fetches a fresh quote synchronously for the orchestrator's
// retry loop, bypassing the debounce path. The slippage tolerance is
// escalated for the given attempt number, and amountOverride substitutes a
// different input amount when a top-up consumed part of the balance.
func (f *Fetcher) FetchForRetry(ctx context.Context, attemptNumber int, amountOverride *big.Int) (*types.Quote, error) {
	f.mu.Lock()
	req := f.lastReq
	f.mu.Unlock()

	if req.AmountIn == nil {
		return nil, swaperr.New(types.ReasonInvalidAmount, "no previous quote request to retry")
	}
	if amountOverride != nil {
		req.AmountIn = amountOverride
	}

	base := policy.ComputeBaseSlippageBps(req.From, req.To, f.userBps)
	bps := policy.EscalateSlippage(base, attemptNumber)
	if bps > base {
		log.Debug().
			Int("attempt", attemptNumber).
			Int("slippage_bps", bps).
			Msg("escalating slippage for retry quote")
	}

	return f.fetch(ctx, req, bps)
}

// fetch validates the request and performs one network call.
func (f *Fetcher) fetch(ctx context.Context, req Request, slippageBps int) (*types.Quote, error) {
	if req.AmountIn == nil || req.AmountIn.Sign() <= 0 {
		return nil, swaperr.New(types.ReasonInvalidAmount, "swap amount must be greater than zero")
	}
	if req.From.Native {
		if floor, ok := minInputFloors[req.From.ChainFamily]; ok && req.AmountIn.Cmp(floor) < 0 {
			return nil, swaperr.New(types.ReasonInvalidAmount,
				"amount below minimum for native %s: need at least %s to cover account creation",
				req.From.Symbol, types.FromSmallestUnit(floor, req.From.Decimals))
		}
	}

	return f.routing.GetSwapQuote(ctx, client.QuoteParams{
		From:        req.From,
		To:          req.To,
		AmountIn:    req.AmountIn,
		SlippageBps: slippageBps,
		Accounts:    req.Accounts,
	})
}
