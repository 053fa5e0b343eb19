package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"

	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

// ChainBalance is one per-chain slice of an aggregated balance.
type ChainBalance struct {
	ChainID string
	Amount  *big.Int
}

// AggregatedBalance is the normalized balance record for one asset across
// all of the user's accounts.
type AggregatedBalance struct {
	AssetID  string
	Total    *big.Int
	PerChain []ChainBalance
}

// BalanceAPI is the client for the cross-chain balance service.
type BalanceAPI struct {
	url        string
	httpClient *http.Client
}

// NewBalanceAPI creates a balance-service client. A nil httpClient falls
// back to the default client.
func NewBalanceAPI(baseURL string, httpClient *http.Client) *BalanceAPI {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &BalanceAPI{
		url:        baseURL,
		httpClient: httpClient,
	}
}

// rawBalanceResponse accepts the field spellings the balance service has
// used across versions. Exactly one spelling per field is populated; the
// adapter below folds them into one record.
type rawBalanceResponse struct {
	AssetID      string            `json:"assetId"`
	AssetIDSnake string            `json:"asset_id"`
	Total        string            `json:"total"`
	TotalBalance string            `json:"totalBalance"`
	TotalSnake   string            `json:"total_balance"`
	Chains       []rawChainBalance `json:"chains"`
	Breakdown    []rawChainBalance `json:"perChainBreakdown"`
}

type rawChainBalance struct {
	ChainID      string `json:"chainId"`
	ChainIDSnake string `json:"chain_id"`
	Amount       string `json:"amount"`
	Balance      string `json:"balance"`
}

// GetAggregatedBalance fetches the total and per-chain balance of one
// asset across the given account.
func (b *BalanceAPI) GetAggregatedBalance(ctx context.Context, account types.Account, assetID string) (*AggregatedBalance, error) {
	endpoint := fmt.Sprintf("%s/aggregated-balance?account=%s&assetId=%s",
		b.url, url.QueryEscape(account.Address), url.QueryEscape(assetID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonNetwork, err, "failed to build balance request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonNetwork, err, "balance request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, swaperr.New(types.ReasonNetwork, "balance request failed with status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonNetwork, err, "failed to read balance response")
	}

	var raw rawBalanceResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, swaperr.Wrap(types.ReasonNetwork, err, "failed to decode balance response")
	}

	return normalizeBalance(raw, assetID)
}

// normalizeBalance folds the response shape variants into one record.
func normalizeBalance(raw rawBalanceResponse, assetID string) (*AggregatedBalance, error) {
	out := &AggregatedBalance{AssetID: firstNonEmpty(raw.AssetID, raw.AssetIDSnake, assetID)}

	total := firstNonEmpty(raw.Total, raw.TotalBalance, raw.TotalSnake)
	if total == "" {
		total = "0"
	}
	value, ok := new(big.Int).SetString(total, 10)
	if !ok {
		return nil, swaperr.New(types.ReasonNetwork, "balance service returned unparseable total %q", total)
	}
	out.Total = value

	chains := raw.Chains
	if len(chains) == 0 {
		chains = raw.Breakdown
	}
	for _, c := range chains {
		amount := firstNonEmpty(c.Amount, c.Balance)
		v, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			continue
		}
		out.PerChain = append(out.PerChain, ChainBalance{
			ChainID: firstNonEmpty(c.ChainID, c.ChainIDSnake),
			Amount:  v,
		})
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
