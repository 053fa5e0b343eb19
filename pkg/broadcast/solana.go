package broadcast

import (
	"context"
	"fmt"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

// SolanaRPC is the slice of rpc.Client the broadcaster consumes. The same
// endpoint supplies the transaction's blockhash and receives the broadcast,
// so signing can never race against an inconsistent network view.
type SolanaRPC interface {
	GetRecentBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetRecentBlockhashResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// SolanaConfig tunes the Solana broadcaster.
type SolanaConfig struct {
	RPCUrl        string
	Commitment    string
	SkipPreflight bool

	// QuickCheckDelay is the empirically tuned wait between broadcast and
	// the first status probe.
	QuickCheckDelay time.Duration
	ConfirmInterval time.Duration
	ConfirmAttempts int
}

// SolanaBroadcaster executes deposits on Solana. Signing and broadcasting
// are deliberately separate: custody signs, then the broadcaster sends the
// signed transaction itself against the endpoint that supplied the
// blockhash.
type SolanaBroadcaster struct {
	client  SolanaRPC
	custody Custody
	cfg     SolanaConfig
}

// NewSolanaBroadcaster creates the Solana-family broadcaster.
func NewSolanaBroadcaster(client SolanaRPC, custody Custody, cfg SolanaConfig) *SolanaBroadcaster {
	if cfg.QuickCheckDelay <= 0 {
		cfg.QuickCheckDelay = 1500 * time.Millisecond
	}
	if cfg.ConfirmInterval <= 0 {
		cfg.ConfirmInterval = 2 * time.Second
	}
	if cfg.ConfirmAttempts <= 0 {
		cfg.ConfirmAttempts = 30
	}
	return &SolanaBroadcaster{
		client:  client,
		custody: custody,
		cfg:     cfg,
	}
}

// Execute builds the deposit transfer, signs it through custody, validates
// the signature, broadcasts manually and confirms.
func (s *SolanaBroadcaster) Execute(ctx context.Context, quote *types.Quote, account types.Account) (types.ExecutionAttempt, error) {
	attempt := types.ExecutionAttempt{ChainFamily: types.FamilySolana, Status: types.AttemptPending}

	owner, err := solana.PublicKeyFromBase58(account.Address)
	if err != nil {
		return fail(&attempt, swaperr.Wrap(types.ReasonUnknown, err, "invalid account address"))
	}
	recipient, err := solana.PublicKeyFromBase58(quote.DepositAddress)
	if err != nil {
		return fail(&attempt, swaperr.Wrap(types.ReasonUnknown, err, "invalid deposit address"))
	}

	tx, err := s.buildTransfer(ctx, owner, recipient, quote)
	if err != nil {
		return fail(&attempt, err)
	}

	payload, err := tx.MarshalBinary()
	if err != nil {
		return fail(&attempt, swaperr.Wrap(types.ReasonUnknown, err, "failed to serialize transaction"))
	}

	signedBytes, err := s.custody.SignTransaction(ctx, SignRequest{
		Account:    account.Address,
		ChainID:    "solana",
		TxType:     TxTypeSolana,
		UnsignedTx: payload,
		RPCUrl:     s.cfg.RPCUrl,
	})
	if err != nil {
		return fail(&attempt, ensure(err, types.ReasonSigningRejected, "custody failed to sign"))
	}

	signedTx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(signedBytes))
	if err != nil {
		return fail(&attempt, swaperr.Wrap(types.ReasonSigningRejected, err, "failed to decode signed transaction"))
	}
	// A silent signing failure surfaces as an all-zero placeholder
	// signature; catch it here instead of as a confusing on-chain
	// rejection.
	if len(signedTx.Signatures) == 0 || signedTx.Signatures[0].IsZero() {
		return fail(&attempt, swaperr.New(types.ReasonSigningRejected, "custody returned transaction without a valid signature"))
	}
	attempt.Status = types.AttemptSigned

	sig, err := s.client.SendTransactionWithOpts(ctx, signedTx, rpc.TransactionOpts{
		SkipPreflight:       s.cfg.SkipPreflight,
		PreflightCommitment: s.commitment(),
	})
	if err != nil {
		return fail(&attempt, ensure(err, types.ReasonNetwork, "failed to send transaction"))
	}
	attempt.Status = types.AttemptBroadcast
	attempt.TxHash = sig.String()

	// One early probe after a short wait fast-fails slippage-type errors
	// so the orchestrator can retry sooner.
	if err := sleepCtx(ctx, s.cfg.QuickCheckDelay); err != nil {
		return fail(&attempt, ensure(err, types.ReasonNetwork, "interrupted before status check"))
	}
	if err := s.quickCheck(ctx, sig); err != nil {
		return fail(&attempt, err)
	}

	confirmed, err := s.ConfirmTransaction(ctx, sig.String())
	if err != nil {
		return fail(&attempt, err)
	}
	if !confirmed {
		attempt.Status = types.AttemptUnknown
		return attempt, nil
	}

	attempt.Status = types.AttemptConfirmed
	return attempt, nil
}

// buildTransfer constructs the unsigned deposit transfer, native SOL or
// SPL token, anchored to a fresh blockhash from this broadcaster's client.
func (s *SolanaBroadcaster) buildTransfer(ctx context.Context, owner, recipient solana.PublicKey, quote *types.Quote) (*solana.Transaction, error) {
	recent, err := s.client.GetRecentBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, ensure(err, types.ReasonNetwork, "failed to get recent blockhash")
	}

	var instructions []solana.Instruction
	amount := quote.AmountIn.Uint64()

	if quote.From.Native {
		balance, err := s.client.GetBalance(ctx, owner, s.commitment())
		if err != nil {
			return nil, ensure(err, types.ReasonNetwork, "failed to get balance")
		}
		if balance.Value < amount+feeBuffer(types.FamilySolana).Uint64() {
			return nil, swaperr.New(types.ReasonInsufficientBalance,
				"insufficient balance: have %d lamports, need %d including fees",
				balance.Value, amount+feeBuffer(types.FamilySolana).Uint64())
		}
		instructions = append(instructions, system.NewTransferInstruction(amount, owner, recipient).Build())
	} else {
		mint, err := solana.PublicKeyFromBase58(quote.From.ContractAddress)
		if err != nil {
			return nil, swaperr.Wrap(types.ReasonUnknown, err, "invalid token mint address")
		}

		source, _, err := solana.FindAssociatedTokenAddress(owner, mint)
		if err != nil {
			return nil, swaperr.Wrap(types.ReasonUnknown, err, "failed to derive source token account")
		}
		dest, _, err := solana.FindAssociatedTokenAddress(recipient, mint)
		if err != nil {
			return nil, swaperr.Wrap(types.ReasonUnknown, err, "failed to derive destination token account")
		}

		exists, err := s.accountExists(ctx, dest)
		if err != nil {
			return nil, ensure(err, types.ReasonNetwork, "failed to check destination account")
		}
		if !exists {
			instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(owner, recipient, mint).Build())
		}

		instructions = append(instructions, token.NewTransferInstruction(
			amount,
			source,
			dest,
			owner,
			[]solana.PublicKey{},
		).Build())
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(owner),
	)
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonUnknown, err, "failed to create transaction")
	}
	return tx, nil
}

// quickCheck performs the single early status probe. Only a definitive
// on-chain failure raises; "not yet confirmed" is fine.
func (s *SolanaBroadcaster) quickCheck(ctx context.Context, sig solana.Signature) error {
	statuses, err := s.client.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		// Transient probe failure; full confirmation polling follows.
		log.Warn().Err(err).Str("tx", sig.String()).Msg("quick status probe failed")
		return nil
	}
	if len(statuses.Value) == 0 || statuses.Value[0] == nil {
		return nil
	}
	if txErr := statuses.Value[0].Err; txErr != nil {
		return swaperr.New(classifyOnChainError(txErr), "transaction %s failed on-chain: %v", sig, txErr)
	}
	return nil
}

// ConfirmTransaction polls signature status on a fixed interval up to the
// configured bound. An explicit on-chain error raises immediately; RPC
// errors are logged and polling continues; exhausting the bound returns
// false without error.
func (s *SolanaBroadcaster) ConfirmTransaction(ctx context.Context, txHash string) (bool, error) {
	sig, err := solana.SignatureFromBase58(txHash)
	if err != nil {
		return false, swaperr.Wrap(types.ReasonUnknown, err, "invalid transaction signature")
	}

	for i := 0; i < s.cfg.ConfirmAttempts; i++ {
		statuses, err := s.client.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			if ctx.Err() != nil {
				return false, ensure(ctx.Err(), types.ReasonNetwork, "confirmation interrupted")
			}
			log.Warn().Err(err).Str("tx", txHash).Msg("status fetch failed, retrying")
		} else if len(statuses.Value) > 0 && statuses.Value[0] != nil {
			status := statuses.Value[0]
			if status.Err != nil {
				return false, swaperr.New(classifyOnChainError(status.Err),
					"transaction %s failed on-chain: %v", txHash, status.Err)
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return true, nil
			}
		}

		if err := sleepCtx(ctx, s.cfg.ConfirmInterval); err != nil {
			return false, ensure(err, types.ReasonNetwork, "confirmation interrupted")
		}
	}

	return false, nil
}

func (s *SolanaBroadcaster) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	info, err := s.client.GetAccountInfo(ctx, account)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return false, nil
		}
		return false, err
	}
	return info.Value != nil, nil
}

func (s *SolanaBroadcaster) commitment() rpc.CommitmentType {
	switch strings.ToLower(s.cfg.Commitment) {
	case "finalized":
		return rpc.CommitmentFinalized
	case "confirmed":
		return rpc.CommitmentConfirmed
	case "processed":
		return rpc.CommitmentProcessed
	default:
		return rpc.CommitmentConfirmed
	}
}

// classifyOnChainError maps a transaction meta error to a failure reason.
// Custom program error 0x1771 is the common slippage-exceeded code.
func classifyOnChainError(txErr interface{}) types.FailureReason {
	msg := strings.ToLower(strings.TrimSpace(toString(txErr)))
	switch {
	case strings.Contains(msg, "slippage"), strings.Contains(msg, "0x1771"), strings.Contains(msg, "6001"):
		return types.ReasonSlippage
	case strings.Contains(msg, "insufficientfunds"), strings.Contains(msg, "insufficient funds"):
		return types.ReasonInsufficientBalance
	case strings.Contains(msg, "blockhashnotfound"):
		return types.ReasonOrderExpired
	default:
		return types.ReasonExecutionReverted
	}
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
