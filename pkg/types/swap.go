package types

import (
	"encoding/json"
	"math/big"
	"time"
)

// SwapRequest represents a user's swap intent before any quote exists.
type SwapRequest struct {
	Amount      string
	SourceToken string
	DestToken   string
	SourceChain string
	DestChain   string
	Accounts    []Account
}

// FailureReason is a normalized provider-reported failure code. Raw
// provider errors are classified into one of these at the boundary so the
// orchestrator's retry decision has a consistent input.
type FailureReason string

const (
	ReasonNone                FailureReason = ""
	ReasonSlippage            FailureReason = "SLIPPAGE"
	ReasonOrderExpired        FailureReason = "ORDER_EXPIRED"
	ReasonExecutionReverted   FailureReason = "EXECUTION_REVERTED"
	ReasonOutputTooLow        FailureReason = "OUTPUT_TOO_LOW"
	ReasonSolverAtCapacity    FailureReason = "SOLVER_AT_CAPACITY"
	ReasonNoLiquidity         FailureReason = "NO_LIQUIDITY"
	ReasonInvalidAmount       FailureReason = "INVALID_AMOUNT"
	ReasonInsufficientBalance FailureReason = "TRANSFER_AMOUNT_EXCEEDS_BALANCE"
	ReasonInsufficientReserve FailureReason = "INSUFFICIENT_NATIVE_RESERVE"
	ReasonSigningRejected     FailureReason = "SIGNING_REJECTED"
	ReasonNetwork             FailureReason = "NETWORK_ERROR"
	ReasonUnknown             FailureReason = "UNKNOWN"
)

// Quote is an immutable record of one exchange offer from the routing
// service. A new quote supersedes but never updates a previous one; a quote
// is consumed exactly once by the orchestrator and discarded after the
// attempt, success or failure.
type Quote struct {
	ID             string
	From           Asset
	To             Asset
	AmountIn       *big.Int
	ExpectedOut    *big.Int
	MinAmountOut   *big.Int
	SlippageBps    int
	FeeTotal       *big.Int
	DepositAddress string
	Deadline       time.Time

	// Raw is the provider payload required for execution, passed through
	// opaque to the signer.
	Raw json.RawMessage
}

// Expired reports whether the quote's deadline has passed.
func (q *Quote) Expired(now time.Time) bool {
	return !q.Deadline.IsZero() && now.After(q.Deadline)
}

// TouchesSolana reports whether either leg of the quote executes on the
// Solana chain family.
func (q *Quote) TouchesSolana() bool {
	return q.From.ChainFamily == FamilySolana || q.To.ChainFamily == FamilySolana
}

// ChainReserveCheck is the ephemeral result of inspecting the destination
// chain's fee-paying account ahead of an execution attempt. It is computed
// fresh for every attempt and never persisted.
type ChainReserveCheck struct {
	NeedsTopUp            bool
	CurrentReserve        *big.Int
	RequiredReserve       *big.Int
	CanAutoTopUp          bool
	AvailableFundingAsset *big.Int
	IsUnrecoverable       bool
	Message               string
}

// AttemptStatus tracks one pass through sign, broadcast and confirm.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "PENDING"
	AttemptSigned    AttemptStatus = "SIGNED"
	AttemptBroadcast AttemptStatus = "BROADCAST"
	AttemptConfirmed AttemptStatus = "CONFIRMED"
	AttemptFailed    AttemptStatus = "FAILED"
	AttemptUnknown   AttemptStatus = "UNKNOWN"
)

// ExecutionAttempt is one sign-broadcast-confirm pass for either the
// top-up transaction or the main swap transaction.
type ExecutionAttempt struct {
	ChainFamily   ChainFamily
	Status        AttemptStatus
	TxHash        string
	FailureReason FailureReason
}

// SwapExecutionResult is the terminal output of the orchestrator, produced
// exactly once per user-initiated swap. Error carries the user-facing
// message; it is empty on success.
type SwapExecutionResult struct {
	Success bool   `json:"success"`
	TxHash  string `json:"tx_hash,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TopUpResult reports a completed reserve top-up so the orchestrator can
// recompute the remaining swappable amount.
type TopUpResult struct {
	TxHash   string
	Consumed *big.Int
}
