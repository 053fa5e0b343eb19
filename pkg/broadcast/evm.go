package broadcast

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

// ERC20 transfer function ABI
const erc20TransferABI = `[{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

const erc20BalanceOfABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}]`

// EVMClient is the slice of ethclient.Client the broadcaster consumes.
type EVMClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// EVMConfig tunes one EVM broadcaster.
type EVMConfig struct {
	RPCUrl          string
	ChainID         int64
	GasLimit        *uint64
	GasPrice        *int64
	ConfirmInterval time.Duration
	ConfirmAttempts int
}

// EVMBroadcaster executes deposits on EVM-compatible networks. Signing and
// broadcasting are a single custody call; the broadcaster only builds the
// unsigned transaction and polls for the receipt afterwards.
type EVMBroadcaster struct {
	client  EVMClient
	custody Custody
	cfg     EVMConfig
}

// NewEVMBroadcaster creates a broadcaster for one EVM network.
func NewEVMBroadcaster(client EVMClient, custody Custody, cfg EVMConfig) *EVMBroadcaster {
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = 2 * time.Second
	}
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = 30
	}
	return &EVMBroadcaster{
		client:  client,
		custody: custody,
		cfg:     cfg,
	}
}

// Execute builds the deposit transfer for the quote, has custody sign and
// send it in one call, then waits for the receipt.
func (e *EVMBroadcaster) Execute(ctx context.Context, quote *types.Quote, account types.Account) (types.ExecutionAttempt, error) {
	attempt := types.ExecutionAttempt{ChainFamily: types.FamilyEVM, Status: types.AttemptPending}

	if !common.IsHexAddress(quote.DepositAddress) {
		return fail(&attempt, swaperr.New(types.ReasonUnknown, "invalid deposit address: %s", quote.DepositAddress))
	}
	if !common.IsHexAddress(account.Address) {
		return fail(&attempt, swaperr.New(types.ReasonUnknown, "invalid account address: %s", account.Address))
	}
	from := common.HexToAddress(account.Address)

	tx, err := e.buildTransfer(ctx, from, quote)
	if err != nil {
		return fail(&attempt, err)
	}

	payload, err := tx.MarshalBinary()
	if err != nil {
		return fail(&attempt, swaperr.Wrap(types.ReasonUnknown, err, "failed to serialize transaction"))
	}

	// One provider call covers sign and broadcast for this family.
	txHash, err := e.custody.SignAndSendTransaction(ctx, SignRequest{
		Account:    account.Address,
		ChainID:    big.NewInt(e.cfg.ChainID).String(),
		TxType:     TxTypeEVM,
		UnsignedTx: payload,
		RPCUrl:     e.cfg.RPCUrl,
	})
	if err != nil {
		return fail(&attempt, ensure(err, types.ReasonSigningRejected, "custody failed to sign and send"))
	}
	attempt.Status = types.AttemptBroadcast
	attempt.TxHash = txHash

	confirmed, err := e.ConfirmTransaction(ctx, txHash)
	if err != nil {
		return fail(&attempt, err)
	}
	if !confirmed {
		// Unresolved, not failed: the transaction may still land.
		attempt.Status = types.AttemptUnknown
		return attempt, nil
	}

	attempt.Status = types.AttemptConfirmed
	return attempt, nil
}

// buildTransfer constructs the unsigned deposit transfer, native or ERC20.
func (e *EVMBroadcaster) buildTransfer(ctx context.Context, from common.Address, quote *types.Quote) (*ethtypes.Transaction, error) {
	to := common.HexToAddress(quote.DepositAddress)
	amount := quote.AmountIn

	nonce, err := e.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, ensure(err, types.ReasonNetwork, "failed to get nonce")
	}

	gasPrice, err := e.gasPrice(ctx)
	if err != nil {
		return nil, ensure(err, types.ReasonNetwork, "failed to get gas price")
	}

	if quote.From.Native {
		balance, err := e.client.BalanceAt(ctx, from, nil)
		if err != nil {
			return nil, ensure(err, types.ReasonNetwork, "failed to get balance")
		}
		if balance.Cmp(amount) < 0 {
			return nil, swaperr.New(types.ReasonInsufficientBalance,
				"insufficient balance: have %s wei, need %s wei", balance.String(), amount.String())
		}

		gasLimit := uint64(21000)
		if e.cfg.GasLimit != nil {
			gasLimit = *e.cfg.GasLimit
		}
		return ethtypes.NewTransaction(nonce, to, amount, gasLimit, gasPrice, nil), nil
	}

	tokenAddress := common.HexToAddress(quote.From.ContractAddress)

	balance, err := e.erc20Balance(ctx, tokenAddress, from)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(amount) < 0 {
		return nil, swaperr.New(types.ReasonInsufficientBalance,
			"insufficient token balance: have %s, need %s", balance.String(), amount.String())
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonUnknown, err, "failed to parse ERC20 ABI")
	}
	data, err := parsedABI.Pack("transfer", to, amount)
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonUnknown, err, "failed to pack transfer data")
	}

	gasLimit := uint64(100000)
	if e.cfg.GasLimit != nil {
		gasLimit = *e.cfg.GasLimit
	} else {
		msg := ethereum.CallMsg{From: from, To: &tokenAddress, Data: data}
		if estimated, err := e.client.EstimateGas(ctx, msg); err == nil {
			gasLimit = estimated * 120 / 100
		}
	}

	return ethtypes.NewTransaction(nonce, tokenAddress, big.NewInt(0), gasLimit, gasPrice, data), nil
}

// ConfirmTransaction polls for the receipt on a fixed interval up to the
// configured attempt bound. It raises immediately on a reverted receipt,
// returns false without error when the bound is exhausted, and keeps
// polling through transient RPC errors.
func (e *EVMBroadcaster) ConfirmTransaction(ctx context.Context, txHash string) (bool, error) {
	hash := common.HexToHash(txHash)

	for i := 0; i < e.cfg.ConfirmAttempts; i++ {
		receipt, err := e.client.TransactionReceipt(ctx, hash)
		if err != nil {
			if ctx.Err() != nil {
				return false, ensure(ctx.Err(), types.ReasonNetwork, "confirmation interrupted")
			}
			// Likely a connectivity blip or not-yet-indexed tx; keep
			// polling.
			log.Warn().Err(err).Str("tx", txHash).Msg("receipt fetch failed, retrying")
		} else if receipt != nil {
			if receipt.Status == ethtypes.ReceiptStatusFailed {
				return false, swaperr.New(types.ReasonExecutionReverted, "transaction %s reverted on-chain", txHash)
			}
			return true, nil
		}

		if err := sleepCtx(ctx, e.cfg.ConfirmInterval); err != nil {
			return false, ensure(err, types.ReasonNetwork, "confirmation interrupted")
		}
	}

	return false, nil
}

func (e *EVMBroadcaster) gasPrice(ctx context.Context) (*big.Int, error) {
	if e.cfg.GasPrice != nil {
		return big.NewInt(*e.cfg.GasPrice), nil
	}
	return e.client.SuggestGasPrice(ctx)
}

func (e *EVMBroadcaster) erc20Balance(ctx context.Context, tokenAddress, account common.Address) (*big.Int, error) {
	parsedABI, err := abi.JSON(strings.NewReader(erc20BalanceOfABI))
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonUnknown, err, "failed to parse balanceOf ABI")
	}
	data, err := parsedABI.Pack("balanceOf", account)
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonUnknown, err, "failed to pack balanceOf data")
	}

	result, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &tokenAddress, Data: data}, nil)
	if err != nil {
		return nil, ensure(err, types.ReasonNetwork, "failed to call balanceOf")
	}
	return new(big.Int).SetBytes(result), nil
}

// fail stamps the attempt as failed with the normalized reason.
func fail(attempt *types.ExecutionAttempt, err error) (types.ExecutionAttempt, error) {
	attempt.Status = types.AttemptFailed
	attempt.FailureReason = swaperr.ReasonOf(err)
	return *attempt, err
}

// sleepCtx sleeps for d or until the context is cancelled.
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
