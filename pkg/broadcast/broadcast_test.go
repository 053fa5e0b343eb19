package broadcast

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

func TestClassifyChainError(t *testing.T) {
	cases := []struct {
		msg      string
		expected types.FailureReason
	}{
		{"insufficient funds for gas * price + value", types.ReasonInsufficientBalance},
		{"Transfer: transfer amount exceeds balance", types.ReasonInsufficientBalance},
		{"custom program error: 0x1771", types.ReasonSlippage},
		{"slippage tolerance exceeded", types.ReasonSlippage},
		{"blockhash not found", types.ReasonOrderExpired},
		{"transaction expired: block height exceeded", types.ReasonOrderExpired},
		{"execution reverted", types.ReasonExecutionReverted},
		{"user rejected the request", types.ReasonSigningRejected},
		{"connection refused", types.ReasonNetwork},
		{"i/o timeout", types.ReasonNetwork},
		{"something nobody has seen before", types.ReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			assert.Equal(t, tc.expected, classifyChainError(errors.New(tc.msg)))
		})
	}

	assert.Equal(t, types.ReasonNone, classifyChainError(nil))
}

func TestClassifyChainError_UsesRootCause(t *testing.T) {
	root := errors.New("custom program error: 0x1771")
	wrapped := swaperr.Wrap(types.ReasonNetwork, root, "send failed")
	assert.Equal(t, types.ReasonSlippage, classifyChainError(wrapped))
}

func TestFeeBuffer(t *testing.T) {
	assert.Equal(t, big.NewInt(5000), feeBuffer(types.FamilySolana))
	assert.Zero(t, feeBuffer(types.FamilyEVM).Sign())
}

type stubBroadcaster struct {
	executed int
	attempt  types.ExecutionAttempt
}

func (s *stubBroadcaster) Execute(ctx context.Context, quote *types.Quote, account types.Account) (types.ExecutionAttempt, error) {
	s.executed++
	return s.attempt, nil
}

func (s *stubBroadcaster) ConfirmTransaction(ctx context.Context, txHash string) (bool, error) {
	return true, nil
}

func TestManagerDispatchesOnOriginFamily(t *testing.T) {
	solana := &stubBroadcaster{attempt: types.ExecutionAttempt{Status: types.AttemptConfirmed, TxHash: "sol-tx"}}
	evm := &stubBroadcaster{attempt: types.ExecutionAttempt{Status: types.AttemptConfirmed, TxHash: "evm-tx"}}

	m := NewManager()
	m.Register(types.FamilySolana, solana)
	m.Register(types.FamilyEVM, evm)
	assert.Len(t, m.Supported(), 2)

	quote := &types.Quote{From: types.Asset{ChainFamily: types.FamilySolana}}
	accounts := []types.Account{
		{ChainFamily: types.FamilySolana, Address: "sol-owner"},
		{ChainFamily: types.FamilyEVM, Address: "0xowner"},
	}

	attempt, err := m.Execute(context.Background(), quote, accounts)
	require.NoError(t, err)
	assert.Equal(t, "sol-tx", attempt.TxHash)
	assert.Equal(t, 1, solana.executed)
	assert.Zero(t, evm.executed)
}

func TestManagerRejectsUnknownFamilyAndMissingAccount(t *testing.T) {
	m := NewManager()

	quote := &types.Quote{From: types.Asset{ChainFamily: types.FamilySolana}}
	_, err := m.Execute(context.Background(), quote, nil)
	require.Error(t, err)

	m.Register(types.FamilySolana, &stubBroadcaster{})
	_, err = m.Execute(context.Background(), quote, []types.Account{{ChainFamily: types.FamilyEVM, Address: "0x1"}})
	require.Error(t, err)
}
