package broadcast

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

// LocalCustody is a Custody implementation backed by locally configured
// private keys. The CLI uses it in place of a remote wallet-infrastructure
// provider; the rest of the pipeline cannot tell the difference.
type LocalCustody struct {
	evmKeys   map[string]*ecdsa.PrivateKey // keyed by chain id
	solanaKey *solana.PrivateKey
}

// NewLocalCustody creates an empty local signer; add keys per chain.
func NewLocalCustody() *LocalCustody {
	return &LocalCustody{
		evmKeys: make(map[string]*ecdsa.PrivateKey),
	}
}

// AddEVMKey registers a hex-encoded EVM private key for one chain id.
func (l *LocalCustody) AddEVMKey(chainID int64, privateKeyHex string) error {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}
	l.evmKeys[big.NewInt(chainID).String()] = key
	return nil
}

// SetSolanaKey registers a base58-encoded Solana private key.
func (l *LocalCustody) SetSolanaKey(privateKeyBase58 string) error {
	key, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}
	l.solanaKey = &key
	return nil
}

// SignTransaction signs the payload and returns the serialized signed
// transaction without broadcasting it.
func (l *LocalCustody) SignTransaction(ctx context.Context, req SignRequest) ([]byte, error) {
	switch req.TxType {
	case TxTypeSolana:
		return l.signSolana(req)
	case TxTypeEVM:
		signed, err := l.signEVM(req)
		if err != nil {
			return nil, err
		}
		return signed.MarshalBinary()
	default:
		return nil, swaperr.New(types.ReasonSigningRejected, "unsupported transaction type %q", req.TxType)
	}
}

// SignAndSendTransaction signs the payload and broadcasts it against the
// requested RPC endpoint, returning the transaction hash.
func (l *LocalCustody) SignAndSendTransaction(ctx context.Context, req SignRequest) (string, error) {
	if req.TxType != TxTypeEVM {
		return "", swaperr.New(types.ReasonSigningRejected, "sign-and-send is only supported for EVM transactions")
	}

	signed, err := l.signEVM(req)
	if err != nil {
		return "", err
	}

	client, err := ethclient.Dial(req.RPCUrl)
	if err != nil {
		return "", swaperr.Wrap(types.ReasonNetwork, err, "failed to connect to RPC endpoint")
	}
	defer client.Close()

	if err := client.SendTransaction(ctx, signed); err != nil {
		return "", ensure(err, types.ReasonNetwork, "failed to send transaction")
	}
	return signed.Hash().Hex(), nil
}

func (l *LocalCustody) signEVM(req SignRequest) (*ethtypes.Transaction, error) {
	key, ok := l.evmKeys[req.ChainID]
	if !ok {
		return nil, swaperr.New(types.ReasonSigningRejected, "no key configured for chain id %s", req.ChainID)
	}

	chainID, ok := new(big.Int).SetString(req.ChainID, 10)
	if !ok {
		return nil, swaperr.New(types.ReasonSigningRejected, "invalid chain id %q", req.ChainID)
	}

	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(req.UnsignedTx); err != nil {
		return nil, swaperr.Wrap(types.ReasonSigningRejected, err, "failed to decode transaction")
	}

	signed, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(chainID), key)
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonSigningRejected, err, "failed to sign transaction")
	}
	return signed, nil
}

func (l *LocalCustody) signSolana(req SignRequest) ([]byte, error) {
	if l.solanaKey == nil {
		return nil, swaperr.New(types.ReasonSigningRejected, "no solana key configured")
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(req.UnsignedTx))
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonSigningRejected, err, "failed to decode transaction")
	}

	signerKey := l.solanaKey.PublicKey()
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(signerKey) {
			return l.solanaKey
		}
		return nil
	}); err != nil {
		return nil, swaperr.Wrap(types.ReasonSigningRejected, err, "failed to sign transaction")
	}

	return tx.MarshalBinary()
}
