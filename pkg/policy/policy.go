// Package policy is the slippage and retry policy engine: pure tables and
// functions, no I/O. It decides the effective slippage tolerance for a
// pair, whether a failure reason is worth an automatic retry, how far to
// escalate tolerance across retries, and what message the user sees.
package policy

import (
	"strings"

	"omniswap/pkg/types"
)

// AssetClass buckets tokens by expected volatility.
type AssetClass string

const (
	ClassStablecoin AssetClass = "stablecoin"
	ClassMajor      AssetClass = "major"
	ClassVolatile   AssetClass = "volatile"
)

const (
	// SlippageStableBps applies to stablecoin-to-stablecoin pairs.
	SlippageStableBps = 50
	// SlippageMajorBps applies when the riskier leg is a major asset.
	SlippageMajorBps = 100
	// SlippageVolatileBps is the meme tier: any volatile or unrecognized
	// token.
	SlippageVolatileBps = 300

	// CrossChainPremiumNum/Den widen tolerance by 1.5x when the two
	// assets live in different execution environments.
	CrossChainPremiumNum = 3
	CrossChainPremiumDen = 2

	// MaxSlippageBps caps the effective tolerance regardless of user
	// preference or escalation.
	MaxSlippageBps = 1000

	// EscalationNum/Den multiply tolerance by 1.5x per retry attempt.
	EscalationNum = 3
	EscalationDen = 2

	// TopUpSlippageBps is the wide fixed tolerance used for reserve
	// top-up swaps, which prioritize success over rate.
	TopUpSlippageBps = 500
)

var stablecoinSymbols = map[string]struct{}{
	"USDC": {}, "USDT": {}, "DAI": {}, "FRAX": {}, "TUSD": {}, "USDP": {}, "PYUSD": {},
}

var majorSymbols = map[string]struct{}{
	"BTC": {}, "WBTC": {}, "ETH": {}, "WETH": {}, "SOL": {}, "BNB": {}, "NEAR": {},
}

// ClassifyAsset buckets a symbol; unrecognized symbols are volatile.
func ClassifyAsset(symbol string) AssetClass {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, ok := stablecoinSymbols[symbol]; ok {
		return ClassStablecoin
	}
	if _, ok := majorSymbols[symbol]; ok {
		return ClassMajor
	}
	return ClassVolatile
}

func recommendedBps(from, to types.Asset) int {
	riskier := ClassifyAsset(from.Symbol)
	if rank(ClassifyAsset(to.Symbol)) > rank(riskier) {
		riskier = ClassifyAsset(to.Symbol)
	}

	var bps int
	switch riskier {
	case ClassStablecoin:
		bps = SlippageStableBps
	case ClassMajor:
		bps = SlippageMajorBps
	default:
		bps = SlippageVolatileBps
	}

	if from.ChainFamily != to.ChainFamily {
		bps = bps * CrossChainPremiumNum / CrossChainPremiumDen
	}
	return bps
}

func rank(c AssetClass) int {
	switch c {
	case ClassStablecoin:
		return 0
	case ClassMajor:
		return 1
	default:
		return 2
	}
}

// ComputeBaseSlippageBps selects the recommended tolerance for the pair and
// treats the user preference as a floor widener only: the user can widen
// tolerance above the computed recommendation but never narrow it below the
// safety minimum. The result is capped at MaxSlippageBps.
func ComputeBaseSlippageBps(from, to types.Asset, userBps int) int {
	bps := recommendedBps(from, to)
	if userBps > bps {
		bps = userBps
	}
	if bps > MaxSlippageBps {
		bps = MaxSlippageBps
	}
	return bps
}

// EscalateSlippage widens the tolerance for a retry attempt. Attempt 0 is
// the first execution; each retry strictly increases tolerance up to the
// global cap.
func EscalateSlippage(baseBps, attemptNumber int) int {
	bps := baseBps
	for i := 0; i < attemptNumber; i++ {
		bps = bps * EscalationNum / EscalationDen
		if bps >= MaxSlippageBps {
			return MaxSlippageBps
		}
	}
	if bps > MaxSlippageBps {
		bps = MaxSlippageBps
	}
	return bps
}

var retryableReasons = map[types.FailureReason]struct{}{
	types.ReasonSlippage:          {},
	types.ReasonOrderExpired:      {},
	types.ReasonExecutionReverted: {},
	types.ReasonOutputTooLow:      {},
	types.ReasonSolverAtCapacity:  {},
}

var slippageRelatedReasons = map[types.FailureReason]struct{}{
	types.ReasonSlippage:     {},
	types.ReasonOutputTooLow: {},
	types.ReasonOrderExpired: {},
}

// IsRetryableFailure reports whether the reason reflects a transient
// condition safe to retry automatically. Everything else is terminal.
func IsRetryableFailure(reason types.FailureReason) bool {
	_, ok := retryableReasons[reason]
	return ok
}

// IsSlippageRelatedFailure reports whether a retry should escalate the
// slippage tolerance.
func IsSlippageRelatedFailure(reason types.FailureReason) bool {
	_, ok := slippageRelatedReasons[reason]
	return ok
}

var userMessages = map[types.FailureReason]string{
	types.ReasonSlippage:            "Price moved too much during the swap. Please try again.",
	types.ReasonOrderExpired:        "The swap offer expired before it could execute. Please try again.",
	types.ReasonExecutionReverted:   "The swap transaction was rejected on-chain. Please try again.",
	types.ReasonOutputTooLow:        "The swap could not meet the minimum output. Try a higher slippage tolerance.",
	types.ReasonSolverAtCapacity:    "The swap service is busy right now. Please try again shortly.",
	types.ReasonNoLiquidity:         "No route with enough liquidity was found for this pair.",
	types.ReasonInvalidAmount:       "The swap amount is invalid.",
	types.ReasonInsufficientBalance: "Insufficient token balance for this swap.",
	types.ReasonInsufficientReserve: "Your wallet needs a small amount of SOL to pay network fees. Send SOL to your wallet address and try again.",
	types.ReasonSigningRejected:     "The transaction was not signed.",
	types.ReasonNetwork:             "A network error interrupted the swap. Please try again.",
}

const fallbackMessage = "The swap could not be completed. Please try again."

// maxRawMessageLen bounds how much raw provider text is ever shown.
const maxRawMessageLen = 140

// UserMessage maps a failure reason to a short, non-technical message. Raw
// provider text is the last resort, and only when it is short enough to be
// meaningful.
func UserMessage(reason types.FailureReason, raw string) string {
	if msg, ok := userMessages[reason]; ok {
		return msg
	}
	raw = strings.TrimSpace(raw)
	if raw != "" && len(raw) <= maxRawMessageLen {
		return raw
	}
	return fallbackMessage
}
