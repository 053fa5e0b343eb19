package types

import (
	"fmt"
	"math/big"
	"strings"
)

// ChainFamily identifies the execution environment of a network.
type ChainFamily string

const (
	FamilyEVM    ChainFamily = "evm"
	FamilySolana ChainFamily = "solana"
)

// Asset is a fungible token identity. Two addressing modes coexist: a
// chain-specific asset is bound to one network and contract/mint address,
// while an aggregated asset is a single logical id (e.g. "USDC") that the
// routing service resolves to the best-available chain-specific balance.
// An aggregated asset never carries a ChainID; a chain-specific asset
// always does.
type Asset struct {
	ChainFamily     ChainFamily `json:"chain_family"`
	ChainID         string      `json:"chain_id,omitempty"`
	ContractAddress string      `json:"contract_address,omitempty"`
	Native          bool        `json:"native,omitempty"`
	Symbol          string      `json:"symbol"`
	Decimals        int         `json:"decimals"`

	// AssetID is the routing-service identifier for this asset. For
	// aggregated assets it is the only addressing information present.
	AssetID string `json:"asset_id"`
}

// IsAggregated reports whether the asset is a routing-service logical id
// spanning multiple chains rather than a concrete on-chain token.
func (a Asset) IsAggregated() bool {
	return a.ChainID == ""
}

// IsNativeSOL reports whether the asset is the Solana chain's native token.
func (a Asset) IsNativeSOL() bool {
	return a.ChainFamily == FamilySolana && a.Native
}

func (a Asset) String() string {
	if a.IsAggregated() {
		return fmt.Sprintf("%s (aggregated)", a.Symbol)
	}
	return fmt.Sprintf("%s@%s:%s", a.Symbol, a.ChainFamily, a.ChainID)
}

// Validate checks the aggregated/chain-specific addressing invariant.
func (a Asset) Validate() error {
	if a.Symbol == "" {
		return fmt.Errorf("asset symbol is required")
	}
	if a.Decimals < 0 {
		return fmt.Errorf("asset decimals must not be negative")
	}
	if a.ChainID != "" && a.ChainFamily == "" {
		return fmt.Errorf("chain-specific asset %s must carry a chain family", a.Symbol)
	}
	if a.ChainID != "" && !a.Native && a.ContractAddress == "" {
		return fmt.Errorf("chain-specific asset %s must carry a contract address or be native", a.Symbol)
	}
	return nil
}

// Account is a user-controlled address on one chain family.
type Account struct {
	ChainFamily ChainFamily `json:"chain_family"`
	Address     string      `json:"address"`
}

// AccountFor returns the first account matching the given chain family.
func AccountFor(accounts []Account, family ChainFamily) (Account, bool) {
	for _, acc := range accounts {
		if acc.ChainFamily == family {
			return acc, true
		}
	}
	return Account{}, false
}

// ToSmallestUnit converts a human-readable decimal amount (e.g. "1.5") to
// an integer amount in the token's smallest unit. The fractional part is
// truncated beyond the token's precision.
func ToSmallestUnit(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("empty amount")
	}

	neg := strings.HasPrefix(amount, "-")
	whole, frac := amount, ""
	if i := strings.IndexByte(amount, '.'); i >= 0 {
		whole, frac = amount[:i], amount[i+1:]
	}
	if whole == "" || whole == "-" {
		whole += "0"
	}
	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", decimals-len(frac))

	value, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount format: %s", amount)
	}
	if neg || value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative: %s", amount)
	}
	return value, nil
}

// FromSmallestUnit formats an integer smallest-unit amount as a
// human-readable decimal string. Trailing fractional zeros are trimmed, so
// a round trip through ToSmallestUnit preserves the integer value but not
// the textual form.
func FromSmallestUnit(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	s := amount.String()
	if decimals == 0 {
		return s
	}

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	whole := s[:len(s)-decimals]
	frac := strings.TrimRight(s[len(s)-decimals:], "0")

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}
