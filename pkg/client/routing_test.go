package client

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"omniswap/pkg/types"
)

func TestNormalizeState(t *testing.T) {
	cases := map[string]ExecutionState{
		"PENDING":            ExecPending,
		"PENDING_DEPOSIT":    ExecPending,
		"KNOWN_DEPOSIT_TX":   ExecPending,
		"INCOMPLETE_DEPOSIT": ExecPending,
		"IN_PROGRESS":        ExecInProgress,
		"processing":         ExecInProgress,
		"EXECUTED":           ExecExecuted,
		"COMPLETED":          ExecCompleted,
		"success":            ExecCompleted,
		"REFUNDED":           ExecRefunded,
		"FAILED":             ExecFailed,
		"SOMETHING_NEW":      ExecPending,
		"":                   ExecPending,
	}

	for raw, expected := range cases {
		assert.Equal(t, expected, normalizeState(raw), "state %q", raw)
	}
}

func TestExecutionStatusTerminal(t *testing.T) {
	assert.False(t, ExecutionStatus{State: ExecPending}.Terminal())
	assert.False(t, ExecutionStatus{State: ExecInProgress}.Terminal())
	assert.False(t, ExecutionStatus{State: ExecExecuted}.Terminal())
	assert.True(t, ExecutionStatus{State: ExecCompleted}.Terminal())
	assert.True(t, ExecutionStatus{State: ExecRefunded}.Terminal())
	assert.True(t, ExecutionStatus{State: ExecFailed}.Terminal())
}

func TestClassifyQuoteMessage(t *testing.T) {
	assert.Equal(t, types.ReasonNoLiquidity, classifyQuoteMessage("Insufficient liquidity for this pair"))
	assert.Equal(t, types.ReasonNoLiquidity, classifyQuoteMessage("no route found"))
	assert.Equal(t, types.ReasonInvalidAmount, classifyQuoteMessage("amount below minimum"))
	assert.Equal(t, types.ReasonUnknown, classifyQuoteMessage("internal error"))
}
