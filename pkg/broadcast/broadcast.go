// Package broadcast turns an unsigned transaction payload into a confirmed
// on-chain transaction, per supported chain family. Signing goes through
// the custody provider; broadcasting and confirmation polling are chain
// specific. Each execution is one attempt through the state machine
// PENDING -> SIGNED -> BROADCAST -> CONFIRMED | FAILED | UNKNOWN.
package broadcast

import (
	"context"
	"math/big"
	"strings"

	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

// TxType tells the custody provider how to interpret the payload bytes.
type TxType string

const (
	TxTypeEVM    TxType = "evm"
	TxTypeSolana TxType = "solana"
)

// SignRequest is the custody-provider signing contract. UnsignedTx carries
// the serialized transaction; RPCUrl pins the network endpoint custody must
// use when it broadcasts on our behalf.
type SignRequest struct {
	Account    string
	ChainID    string
	TxType     TxType
	UnsignedTx []byte
	RPCUrl     string
}

// Custody is the wallet-infrastructure signing provider. For the EVM
// family signing and broadcasting are one provider call; for Solana the
// core signs first and broadcasts manually.
type Custody interface {
	SignTransaction(ctx context.Context, req SignRequest) ([]byte, error)
	SignAndSendTransaction(ctx context.Context, req SignRequest) (string, error)
}

// Broadcaster executes a quote's deposit transaction on one chain family.
type Broadcaster interface {
	Execute(ctx context.Context, quote *types.Quote, account types.Account) (types.ExecutionAttempt, error)
	ConfirmTransaction(ctx context.Context, txHash string) (bool, error)
}

// Manager routes execution to the broadcaster for the quote's origin chain
// family.
type Manager struct {
	broadcasters map[types.ChainFamily]Broadcaster
}

// NewManager creates an empty manager; register broadcasters per family.
func NewManager() *Manager {
	return &Manager{
		broadcasters: make(map[types.ChainFamily]Broadcaster),
	}
}

// Register installs the broadcaster for a chain family.
func (m *Manager) Register(family types.ChainFamily, b Broadcaster) {
	m.broadcasters[family] = b
}

// Supported returns the chain families with a registered broadcaster.
func (m *Manager) Supported() []types.ChainFamily {
	families := make([]types.ChainFamily, 0, len(m.broadcasters))
	for family := range m.broadcasters {
		families = append(families, family)
	}
	return families
}

// Execute signs, broadcasts and confirms the quote's deposit transaction
// on its origin chain.
func (m *Manager) Execute(ctx context.Context, quote *types.Quote, accounts []types.Account) (types.ExecutionAttempt, error) {
	family := quote.From.ChainFamily
	b, ok := m.broadcasters[family]
	if !ok {
		return types.ExecutionAttempt{ChainFamily: family, Status: types.AttemptFailed},
			swaperr.New(types.ReasonUnknown, "no broadcaster for chain family %s", family)
	}

	account, ok := types.AccountFor(accounts, family)
	if !ok {
		return types.ExecutionAttempt{ChainFamily: family, Status: types.AttemptFailed},
			swaperr.New(types.ReasonUnknown, "no account for chain family %s", family)
	}

	return b.Execute(ctx, quote, account)
}

// classifyChainError maps raw node/provider error text to a normalized
// failure reason. Unrecognized errors stay unknown; the policy engine
// treats those as terminal.
func classifyChainError(err error) types.FailureReason {
	if err == nil {
		return types.ReasonNone
	}
	msg := strings.ToLower(swaperr.RootCause(err).Error())
	switch {
	case strings.Contains(msg, "insufficient funds"),
		strings.Contains(msg, "insufficient lamports"),
		strings.Contains(msg, "insufficient balance"),
		strings.Contains(msg, "transfer amount exceeds balance"):
		return types.ReasonInsufficientBalance
	case strings.Contains(msg, "slippage"),
		strings.Contains(msg, "0x1771"):
		return types.ReasonSlippage
	case strings.Contains(msg, "blockhash not found"),
		strings.Contains(msg, "block height exceeded"),
		strings.Contains(msg, "expired"):
		return types.ReasonOrderExpired
	case strings.Contains(msg, "reverted"):
		return types.ReasonExecutionReverted
	case strings.Contains(msg, "rejected"),
		strings.Contains(msg, "denied"):
		return types.ReasonSigningRejected
	case strings.Contains(msg, "connection"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "temporar"):
		return types.ReasonNetwork
	default:
		return types.ReasonUnknown
	}
}

// feeBuffer is the native amount kept aside for transaction fees when
// checking spendable balance before a native transfer.
func feeBuffer(family types.ChainFamily) *big.Int {
	switch family {
	case types.FamilySolana:
		return big.NewInt(5000) // lamports per signature
	default:
		return big.NewInt(0) // gas is priced separately on EVM
	}
}

func ensure(err error, reason types.FailureReason, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if r := classifyChainError(err); r != types.ReasonUnknown {
		reason = r
	}
	return swaperr.Wrap(reason, err, format, args...)
}
