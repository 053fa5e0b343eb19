package swap_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"omniswap/pkg/history"
	"omniswap/pkg/swap"
	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

type fakeGuard struct {
	check      types.ChainReserveCheck
	checkErr   error
	topUp      *types.TopUpResult
	topUpErr   error
	checkCalls int
	topUpCalls int
}

func (f *fakeGuard) CheckReserve(ctx context.Context, quote *types.Quote, accounts []types.Account) (types.ChainReserveCheck, error) {
	f.checkCalls++
	return f.check, f.checkErr
}

func (f *fakeGuard) PerformTopUp(ctx context.Context, check types.ChainReserveCheck, accounts []types.Account) (*types.TopUpResult, error) {
	f.topUpCalls++
	return f.topUp, f.topUpErr
}

type fakeQuotes struct {
	mu       sync.Mutex
	attempts []int
	amounts  []*big.Int
	quote    *types.Quote
	err      error
}

func (f *fakeQuotes) FetchForRetry(ctx context.Context, attemptNumber int, amountOverride *big.Int) (*types.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, attemptNumber)
	f.amounts = append(f.amounts, amountOverride)
	if f.err != nil {
		return nil, f.err
	}
	quote := *f.quote
	if amountOverride != nil {
		quote.AmountIn = amountOverride
	}
	return &quote, nil
}

type executeResult struct {
	attempt types.ExecutionAttempt
	err     error
}

type fakeExecutor struct {
	mu      sync.Mutex
	results []executeResult
	calls   int
	block   chan struct{}
}

func (f *fakeExecutor) Execute(ctx context.Context, quote *types.Quote, accounts []types.Account) (types.ExecutionAttempt, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	r := f.results[idx]
	return r.attempt, r.err
}

type fakeRecorder struct {
	entries []history.Entry
}

func (f *fakeRecorder) Record(entry history.Entry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func confirmed(hash string) executeResult {
	return executeResult{attempt: types.ExecutionAttempt{Status: types.AttemptConfirmed, TxHash: hash}}
}

func failed(reason types.FailureReason, msg string) executeResult {
	return executeResult{
		attempt: types.ExecutionAttempt{Status: types.AttemptFailed, FailureReason: reason},
		err:     swaperr.New(reason, "%s", msg),
	}
}

type OrchestratorTestSuite struct {
	suite.Suite

	guard    *fakeGuard
	quotes   *fakeQuotes
	executor *fakeExecutor
	recorder *fakeRecorder

	quote    *types.Quote
	accounts []types.Account
}

func TestRunOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func (s *OrchestratorTestSuite) SetupTest() {
	sol := types.Asset{
		Symbol: "SOL", Decimals: 9, AssetID: "sol-native",
		ChainFamily: types.FamilySolana, ChainID: "sol", Native: true,
	}
	usdc := types.Asset{
		Symbol: "USDC", Decimals: 6, AssetID: "base-usdc",
		ChainFamily: types.FamilyEVM, ChainID: "base", ContractAddress: "0xusdc",
	}

	s.quote = &types.Quote{
		ID:          "dep-1",
		From:        sol,
		To:          usdc,
		AmountIn:    big.NewInt(10_000_000),
		ExpectedOut: big.NewInt(1_500_000),
		SlippageBps: 150,
	}
	s.accounts = []types.Account{{ChainFamily: types.FamilySolana, Address: "owner"}}

	s.guard = &fakeGuard{}
	s.quotes = &fakeQuotes{quote: s.quote}
	s.executor = &fakeExecutor{results: []executeResult{confirmed("tx-1")}}
	s.recorder = &fakeRecorder{}
}

func (s *OrchestratorTestSuite) newOrchestrator() *swap.Orchestrator {
	return swap.NewOrchestrator(s.guard, s.quotes, s.executor, s.recorder, swap.Config{
		MaxRetries:     2,
		FundingAssetID: "usdc-agg",
	})
}

func (s *OrchestratorTestSuite) TestHappyPath() {
	result := s.newOrchestrator().ExecuteSwap(context.Background(), s.quote, s.accounts)

	s.True(result.Success)
	s.Equal("tx-1", result.TxHash)
	s.Empty(result.Error)
	s.Equal(1, s.executor.calls)
	s.Zero(s.guard.topUpCalls)

	s.Require().Len(s.recorder.entries, 1)
	entry := s.recorder.entries[0]
	s.True(entry.Success)
	s.Equal("tx-1", entry.TxHash)
	s.Equal(1, entry.Attempts)
}

func (s *OrchestratorTestSuite) TestUnrecoverableReserveBlocksExecution() {
	s.guard.check = types.ChainReserveCheck{
		NeedsTopUp:      true,
		IsUnrecoverable: true,
		Message:         "Your wallet has no SOL to pay network fees. Send at least 0.005 SOL to your wallet address to continue.",
	}

	result := s.newOrchestrator().ExecuteSwap(context.Background(), s.quote, s.accounts)

	s.False(result.Success)
	s.Equal(s.guard.check.Message, result.Error)
	// Nothing was signed or broadcast.
	s.Zero(s.executor.calls)
	s.Zero(s.guard.topUpCalls)
}

func (s *OrchestratorTestSuite) TestTopUpThenSwap() {
	s.guard.check = types.ChainReserveCheck{NeedsTopUp: true, CanAutoTopUp: true}
	s.guard.topUp = &types.TopUpResult{TxHash: "topup-tx", Consumed: big.NewInt(2_000_000)}

	result := s.newOrchestrator().ExecuteSwap(context.Background(), s.quote, s.accounts)

	s.True(result.Success)
	s.Equal(1, s.guard.topUpCalls)
	s.Equal(1, s.executor.calls)

	// The quote was refreshed after the top-up, at the original amount
	// since the swap does not spend the funding asset.
	s.Require().Len(s.quotes.attempts, 1)
	s.Equal(0, s.quotes.attempts[0])
	s.Nil(s.quotes.amounts[0])

	s.Require().Len(s.recorder.entries, 1)
	s.Equal("topup-tx", s.recorder.entries[0].TopUpTxHash)
}

func (s *OrchestratorTestSuite) TestTopUpDeductsConsumedFundingAsset() {
	// The swap itself spends the funding asset.
	s.quote.From = types.Asset{Symbol: "USDC", Decimals: 6, AssetID: "usdc-agg",
		ChainFamily: types.FamilySolana, ChainID: "sol", ContractAddress: "EPjF"}
	s.guard.check = types.ChainReserveCheck{NeedsTopUp: true, CanAutoTopUp: true}
	s.guard.topUp = &types.TopUpResult{TxHash: "topup-tx", Consumed: big.NewInt(2_000_000)}

	result := s.newOrchestrator().ExecuteSwap(context.Background(), s.quote, s.accounts)

	s.True(result.Success)
	s.Require().Len(s.quotes.amounts, 1)
	s.Equal(big.NewInt(8_000_000), s.quotes.amounts[0])
}

func (s *OrchestratorTestSuite) TestTopUpConsumingEverythingStopsTheSwap() {
	s.quote.From = types.Asset{Symbol: "USDC", Decimals: 6, AssetID: "usdc-agg",
		ChainFamily: types.FamilySolana, ChainID: "sol", ContractAddress: "EPjF"}
	s.quote.AmountIn = big.NewInt(1_500_000)
	s.guard.check = types.ChainReserveCheck{NeedsTopUp: true, CanAutoTopUp: true}
	s.guard.topUp = &types.TopUpResult{TxHash: "topup-tx", Consumed: big.NewInt(2_000_000)}

	result := s.newOrchestrator().ExecuteSwap(context.Background(), s.quote, s.accounts)

	s.False(result.Success)
	s.Contains(result.Error, "nothing is left to swap")
	s.Zero(s.executor.calls)
}

func (s *OrchestratorTestSuite) TestManualFundingRequiredWhenAutoTopUpImpossible() {
	s.guard.check = types.ChainReserveCheck{
		NeedsTopUp: true,
		Message:    "Not enough USDC to automatically top up SOL for network fees.",
	}

	result := s.newOrchestrator().ExecuteSwap(context.Background(), s.quote, s.accounts)

	s.False(result.Success)
	s.Equal(s.guard.check.Message, result.Error)
	s.Zero(s.executor.calls)
}

func (s *OrchestratorTestSuite) TestSlippageFailureRetriesWithEscalation() {
	s.executor.results = []executeResult{
		failed(types.ReasonSlippage, "slippage exceeded"),
		confirmed("tx-2"),
	}

	result := s.newOrchestrator().ExecuteSwap(context.Background(), s.quote, s.accounts)

	s.True(result.Success)
	s.Equal("tx-2", result.TxHash)
	s.Equal(2, s.executor.calls)

	// The retry quote escalated slippage for attempt one.
	s.Require().Len(s.quotes.attempts, 1)
	s.Equal(1, s.quotes.attempts[0])

	s.Equal(2, s.recorder.entries[0].Attempts)
}

func (s *OrchestratorTestSuite) TestNonSlippageRetryKeepsBaseTolerance() {
	s.executor.results = []executeResult{
		failed(types.ReasonSolverAtCapacity, "solver busy"),
		confirmed("tx-2"),
	}

	result := s.newOrchestrator().ExecuteSwap(context.Background(), s.quote, s.accounts)

	s.True(result.Success)
	s.Require().Len(s.quotes.attempts, 1)
	s.Equal(0, s.quotes.attempts[0])
}

func (s *OrchestratorTestSuite) TestInsufficientBalanceFailsImmediately() {
	s.executor.results = []executeResult{
		failed(types.ReasonInsufficientBalance, "transfer amount exceeds balance"),
	}

	result := s.newOrchestrator().ExecuteSwap(context.Background(), s.quote, s.accounts)

	s.False(result.Success)
	s.Equal("Insufficient token balance for this swap.", result.Error)
	s.Equal(1, s.executor.calls)
	s.Empty(s.quotes.attempts)
}

func (s *OrchestratorTestSuite) TestRetryBudgetExhaustion() {
	s.executor.results = []executeResult{
		failed(types.ReasonSlippage, "slippage exceeded"),
	}

	result := s.newOrchestrator().ExecuteSwap(context.Background(), s.quote, s.accounts)

	s.False(result.Success)
	s.Equal("Price moved too much during the swap. Please try again.", result.Error)
	// First attempt plus two retries.
	s.Equal(3, s.executor.calls)
	s.Len(s.quotes.attempts, 2)

	s.Require().Len(s.recorder.entries, 1)
	s.False(s.recorder.entries[0].Success)
	s.Equal(3, s.recorder.entries[0].Attempts)
}

func (s *OrchestratorTestSuite) TestUnresolvedConfirmationCountsAsSubmitted() {
	s.executor.results = []executeResult{
		{attempt: types.ExecutionAttempt{Status: types.AttemptUnknown, TxHash: "tx-maybe"}},
	}

	result := s.newOrchestrator().ExecuteSwap(context.Background(), s.quote, s.accounts)

	s.True(result.Success)
	s.Equal("tx-maybe", result.TxHash)
	s.Equal(1, s.executor.calls)
}

func (s *OrchestratorTestSuite) TestConcurrentInvocationRejected() {
	s.executor.block = make(chan struct{})
	orch := s.newOrchestrator()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		orch.ExecuteSwap(context.Background(), s.quote, s.accounts)
	}()

	// Wait for the first invocation to reach the executor.
	s.Eventually(func() bool {
		s.executor.mu.Lock()
		defer s.executor.mu.Unlock()
		return s.executor.calls == 0 && s.guard.checkCalls == 1
	}, time.Second, time.Millisecond)

	second := orch.ExecuteSwap(context.Background(), s.quote, s.accounts)
	s.False(second.Success)
	s.Contains(second.Error, "already in progress")

	close(s.executor.block)
	wg.Wait()
}

func (s *OrchestratorTestSuite) TestFailedTopUpIsTerminal() {
	s.guard.check = types.ChainReserveCheck{NeedsTopUp: true, CanAutoTopUp: true}
	s.guard.topUpErr = swaperr.New(types.ReasonInsufficientReserve, "top-up swap failed")

	result := s.newOrchestrator().ExecuteSwap(context.Background(), s.quote, s.accounts)

	s.False(result.Success)
	s.Equal(1, s.guard.topUpCalls)
	s.Zero(s.executor.calls)
}
