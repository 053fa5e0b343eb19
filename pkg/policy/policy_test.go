package policy_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"omniswap/pkg/policy"
	"omniswap/pkg/types"
)

type SlippageTestSuite struct {
	suite.Suite
}

func TestRunSlippageTestSuite(t *testing.T) {
	suite.Run(t, new(SlippageTestSuite))
}

func asset(symbol string, family types.ChainFamily) types.Asset {
	return types.Asset{Symbol: symbol, ChainFamily: family, ChainID: string(family)}
}

func (s *SlippageTestSuite) TestClassifyAsset() {
	s.Equal(policy.ClassStablecoin, policy.ClassifyAsset("USDC"))
	s.Equal(policy.ClassStablecoin, policy.ClassifyAsset(" usdt "))
	s.Equal(policy.ClassMajor, policy.ClassifyAsset("SOL"))
	s.Equal(policy.ClassMajor, policy.ClassifyAsset("eth"))
	s.Equal(policy.ClassVolatile, policy.ClassifyAsset("BONK"))
	s.Equal(policy.ClassVolatile, policy.ClassifyAsset(""))
}

func (s *SlippageTestSuite) TestBaseSlippage_SameChainPairs() {
	s.Equal(50, policy.ComputeBaseSlippageBps(
		asset("USDC", types.FamilyEVM), asset("USDT", types.FamilyEVM), 0))
	s.Equal(100, policy.ComputeBaseSlippageBps(
		asset("USDC", types.FamilyEVM), asset("ETH", types.FamilyEVM), 0))
	s.Equal(300, policy.ComputeBaseSlippageBps(
		asset("ETH", types.FamilyEVM), asset("BONK", types.FamilyEVM), 0))
}

func (s *SlippageTestSuite) TestBaseSlippage_CrossChainPremium() {
	// Major pair across families: 100 * 1.5
	s.Equal(150, policy.ComputeBaseSlippageBps(
		asset("ETH", types.FamilyEVM), asset("SOL", types.FamilySolana), 0))
	// Stable pair across families: 50 * 1.5
	s.Equal(75, policy.ComputeBaseSlippageBps(
		asset("USDC", types.FamilyEVM), asset("USDT", types.FamilySolana), 0))
}

func (s *SlippageTestSuite) TestBaseSlippage_UserPreferenceIsAFloorWidener() {
	from := asset("ETH", types.FamilyEVM)
	to := asset("BONK", types.FamilySolana)

	// The recommendation (300 * 1.5 = 450) wins over a narrower preference.
	s.Equal(450, policy.ComputeBaseSlippageBps(from, to, 100))
	// A wider preference wins over the recommendation.
	s.Equal(600, policy.ComputeBaseSlippageBps(from, to, 600))
	// Nothing exceeds the global cap.
	s.Equal(policy.MaxSlippageBps, policy.ComputeBaseSlippageBps(from, to, 5000))
}

func (s *SlippageTestSuite) TestEscalateSlippage() {
	s.Equal(100, policy.EscalateSlippage(100, 0))
	s.Equal(150, policy.EscalateSlippage(100, 1))
	s.Equal(225, policy.EscalateSlippage(100, 2))
	s.Equal(policy.MaxSlippageBps, policy.EscalateSlippage(100, 20))
	s.Equal(policy.MaxSlippageBps, policy.EscalateSlippage(900, 1))
}

func (s *SlippageTestSuite) TestEscalateSlippage_StrictlyIncreasesUntilCap() {
	prev := policy.EscalateSlippage(50, 0)
	for attempt := 1; attempt < 12; attempt++ {
		next := policy.EscalateSlippage(50, attempt)
		if prev < policy.MaxSlippageBps {
			s.Greater(next, prev)
		} else {
			s.Equal(policy.MaxSlippageBps, next)
		}
		prev = next
	}
}

type RetryPolicyTestSuite struct {
	suite.Suite
}

func TestRunRetryPolicyTestSuite(t *testing.T) {
	suite.Run(t, new(RetryPolicyTestSuite))
}

func (s *RetryPolicyTestSuite) TestRetryableReasons() {
	retryable := []types.FailureReason{
		types.ReasonSlippage,
		types.ReasonOrderExpired,
		types.ReasonExecutionReverted,
		types.ReasonOutputTooLow,
		types.ReasonSolverAtCapacity,
	}
	for _, reason := range retryable {
		s.True(policy.IsRetryableFailure(reason), string(reason))
	}

	terminal := []types.FailureReason{
		types.ReasonNoLiquidity,
		types.ReasonInvalidAmount,
		types.ReasonInsufficientBalance,
		types.ReasonInsufficientReserve,
		types.ReasonSigningRejected,
		types.ReasonNetwork,
		types.ReasonUnknown,
		types.ReasonNone,
	}
	for _, reason := range terminal {
		s.False(policy.IsRetryableFailure(reason), string(reason))
	}
}

func (s *RetryPolicyTestSuite) TestSlippageRelatedReasons() {
	s.True(policy.IsSlippageRelatedFailure(types.ReasonSlippage))
	s.True(policy.IsSlippageRelatedFailure(types.ReasonOutputTooLow))
	s.True(policy.IsSlippageRelatedFailure(types.ReasonOrderExpired))
	s.False(policy.IsSlippageRelatedFailure(types.ReasonExecutionReverted))
	s.False(policy.IsSlippageRelatedFailure(types.ReasonSolverAtCapacity))
}

func (s *RetryPolicyTestSuite) TestUserMessages() {
	s.Equal("Insufficient token balance for this swap.",
		policy.UserMessage(types.ReasonInsufficientBalance, "execution error: transfer amount exceeds balance"))
	s.Equal("Price moved too much during the swap. Please try again.",
		policy.UserMessage(types.ReasonSlippage, ""))

	// Unknown reasons fall back to short raw text when available.
	s.Equal("custom provider error", policy.UserMessage(types.ReasonUnknown, "custom provider error"))

	// Long raw text is never surfaced.
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	s.Equal("The swap could not be completed. Please try again.",
		policy.UserMessage(types.ReasonUnknown, string(long)))
	s.Equal("The swap could not be completed. Please try again.",
		policy.UserMessage(types.ReasonUnknown, ""))
}
