// Package client holds the thin clients for the external SaaS surfaces the
// swap core composes: the routing/quote service, the aggregated-balance
// service and a read-only spot-rate helper. Provider responses are
// normalized to the internal record types at this boundary; nothing above
// this package sees raw provider shapes.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/jellydator/ttlcache/v3"

	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

const (
	tokenCacheKey = "supported-tokens"
	tokenCacheTTL = 5 * time.Minute

	quoteDeadline = 10 * time.Minute
)

// ExecutionState is the normalized execution status of a quote.
type ExecutionState string

const (
	ExecPending    ExecutionState = "PENDING"
	ExecInProgress ExecutionState = "IN_PROGRESS"
	ExecExecuted   ExecutionState = "EXECUTED"
	ExecCompleted  ExecutionState = "COMPLETED"
	ExecRefunded   ExecutionState = "REFUNDED"
	ExecFailed     ExecutionState = "FAILED"
)

// ExecutionStatus is the normalized result of one status poll.
type ExecutionStatus struct {
	State      ExecutionState
	FailReason types.FailureReason
	AmountOut  string
	DestTxHash string
}

// Terminal reports whether the swap has reached a final state.
func (s ExecutionStatus) Terminal() bool {
	switch s.State {
	case ExecCompleted, ExecRefunded, ExecFailed:
		return true
	}
	return false
}

// QuoteParams are the inputs to one quote request.
type QuoteParams struct {
	From        types.Asset
	To          types.Asset
	AmountIn    *big.Int
	SlippageBps int
	Accounts    []types.Account

	// Dry requests a rate-only quote without reserving a deposit address.
	Dry bool
}

// RoutingClient wraps the routing-service SDK. The supported-token list is
// held in an injected TTL cache rather than ambient package state.
type RoutingClient struct {
	client *oneclick.APIClient
	ctx    context.Context
	tokens *ttlcache.Cache[string, []oneclick.TokenResponse]
}

// NewRoutingClient creates an authenticated routing-service client.
func NewRoutingClient(jwtToken string) *RoutingClient {
	config := oneclick.NewConfiguration()
	ctx := context.WithValue(context.Background(), oneclick.ContextAccessToken, jwtToken)

	tokens := ttlcache.New[string, []oneclick.TokenResponse](
		ttlcache.WithTTL[string, []oneclick.TokenResponse](tokenCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, []oneclick.TokenResponse](),
	)

	return &RoutingClient{
		client: oneclick.NewAPIClient(config),
		ctx:    ctx,
		tokens: tokens,
	}
}

// SupportedTokens retrieves all tokens the routing service can swap,
// served from the TTL cache between refreshes.
func (c *RoutingClient) SupportedTokens() ([]oneclick.TokenResponse, error) {
	if item := c.tokens.Get(tokenCacheKey); item != nil {
		return item.Value(), nil
	}

	resp, httpResp, err := c.client.OneClickAPI.GetTokens(c.ctx).Execute()
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonNetwork, err, "failed to get tokens")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, swaperr.New(types.ReasonNetwork, "token list returned status code %d", httpResp.StatusCode)
	}

	c.tokens.Set(tokenCacheKey, resp, ttlcache.DefaultTTL)
	return resp, nil
}

// ResolveAsset finds a token by symbol, optionally restricted to one chain.
// With an empty chain the aggregated (cross-chain) identity is returned.
func (c *RoutingClient) ResolveAsset(symbol, chain string) (types.Asset, error) {
	tokens, err := c.SupportedTokens()
	if err != nil {
		return types.Asset{}, err
	}

	symbol = strings.ToUpper(symbol)
	chain = strings.ToLower(chain)

	for _, token := range tokens {
		if strings.ToUpper(token.GetSymbol()) != symbol {
			continue
		}
		if chain != "" && strings.ToLower(token.GetBlockchain()) != chain {
			continue
		}
		return assetFromToken(token, chain == ""), nil
	}

	if chain != "" {
		return types.Asset{}, swaperr.New(types.ReasonInvalidAmount, "token '%s' not found on chain '%s'", symbol, chain)
	}
	return types.Asset{}, swaperr.New(types.ReasonInvalidAmount, "token '%s' not found", symbol)
}

// assetFromToken normalizes one SDK token record to the internal Asset
// shape. Aggregated assets drop the chain binding entirely.
func assetFromToken(token oneclick.TokenResponse, aggregated bool) types.Asset {
	asset := types.Asset{
		Symbol:   token.GetSymbol(),
		Decimals: int(token.GetDecimals()),
		AssetID:  token.GetAssetId(),
	}
	if aggregated {
		return asset
	}

	blockchain := strings.ToLower(token.GetBlockchain())
	asset.ChainID = blockchain
	switch blockchain {
	case "sol", "solana":
		asset.ChainFamily = types.FamilySolana
	default:
		asset.ChainFamily = types.FamilyEVM
	}
	asset.ContractAddress = token.GetContractAddress()
	asset.Native = asset.ContractAddress == ""
	return asset
}

// GetSwapQuote requests one exchange offer from the routing service and
// normalizes it to the internal Quote record.
func (c *RoutingClient) GetSwapQuote(ctx context.Context, params QuoteParams) (*types.Quote, error) {
	if params.AmountIn == nil || params.AmountIn.Sign() <= 0 {
		return nil, swaperr.New(types.ReasonInvalidAmount, "swap amount must be greater than zero")
	}

	recipient, ok := types.AccountFor(params.Accounts, params.To.ChainFamily)
	if !ok && !params.To.IsAggregated() {
		return nil, swaperr.New(types.ReasonInvalidAmount, "no account for destination chain family %s", params.To.ChainFamily)
	}
	refund, ok := types.AccountFor(params.Accounts, params.From.ChainFamily)
	if !ok {
		refund = recipient
	}

	deadline := time.Now().Add(quoteDeadline)

	quoteReq := oneclick.NewQuoteRequest(
		params.Dry,
		"EXACT_INPUT",
		float32(params.SlippageBps),
		params.From.AssetID,
		"ORIGIN_CHAIN",
		params.To.AssetID,
		params.AmountIn.String(),
		refund.Address,
		"ORIGIN_CHAIN",
		recipient.Address,
		"DESTINATION_CHAIN",
		deadline,
	)

	reqCtx := c.ctx
	if ctx != nil {
		reqCtx = mergeAuth(ctx, c.ctx)
	}

	resp, httpResp, err := c.client.OneClickAPI.GetQuote(reqCtx).QuoteRequest(*quoteReq).Execute()
	if err != nil {
		return nil, quoteError(httpResp, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, swaperr.New(types.ReasonNetwork, "quote returned status code %d", httpResp.StatusCode)
	}
	if resp == nil {
		return nil, swaperr.New(types.ReasonNetwork, "empty quote response")
	}

	return quoteFromResponse(resp, params, deadline)
}

// quoteFromResponse is the versioned adapter from the provider quote shape
// to the internal immutable Quote.
func quoteFromResponse(resp *oneclick.QuoteResponse, params QuoteParams, deadline time.Time) (*types.Quote, error) {
	details := resp.GetQuote()

	amountIn, ok := new(big.Int).SetString(details.GetAmountIn(), 10)
	if !ok {
		amountIn = new(big.Int).Set(params.AmountIn)
	}
	expectedOut, ok := new(big.Int).SetString(details.GetAmountOut(), 10)
	if !ok {
		return nil, swaperr.New(types.ReasonUnknown, "quote carries unparseable output amount %q", details.GetAmountOut())
	}

	minOut, ok := new(big.Int).SetString(details.GetMinAmountOut(), 10)
	if !ok {
		// Older responses omit minAmountOut; derive it from the
		// tolerance we asked for.
		minOut = new(big.Int).Mul(expectedOut, big.NewInt(int64(10000-params.SlippageBps)))
		minOut.Div(minOut, big.NewInt(10000))
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, swaperr.Wrap(types.ReasonUnknown, err, "failed to preserve raw quote")
	}

	quote := &types.Quote{
		ID:             details.GetDepositAddress(),
		From:           params.From,
		To:             params.To,
		AmountIn:       amountIn,
		ExpectedOut:    expectedOut,
		MinAmountOut:   minOut,
		SlippageBps:    params.SlippageBps,
		DepositAddress: details.GetDepositAddress(),
		Deadline:       deadline,
		Raw:            raw,
	}
	return quote, nil
}

// GetExecutionStatus polls the routing service for the state of a quote,
// identified by its deposit address.
func (c *RoutingClient) GetExecutionStatus(ctx context.Context, depositAddress string) (ExecutionStatus, error) {
	reqCtx := c.ctx
	if ctx != nil {
		reqCtx = mergeAuth(ctx, c.ctx)
	}

	resp, httpResp, err := c.client.OneClickAPI.GetExecutionStatus(reqCtx).DepositAddress(depositAddress).Execute()
	if err != nil {
		return ExecutionStatus{}, swaperr.Wrap(types.ReasonNetwork, err, "failed to get execution status")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return ExecutionStatus{}, swaperr.New(types.ReasonNetwork, "status returned status code %d", httpResp.StatusCode)
	}

	status := ExecutionStatus{State: normalizeState(resp.GetStatus())}
	if status.State == ExecFailed {
		status.FailReason = types.ReasonExecutionReverted
	}

	details := resp.GetSwapDetails()
	if details.HasAmountOutFormatted() {
		status.AmountOut = details.GetAmountOutFormatted()
	}
	if txs := details.GetDestinationChainTxHashes(); len(txs) > 0 {
		status.DestTxHash = txs[0].GetHash()
	}
	return status, nil
}

// normalizeState folds the provider's status vocabulary, which has drifted
// across versions, into the internal state set.
func normalizeState(raw string) ExecutionState {
	switch strings.ToUpper(raw) {
	case "PENDING", "PENDING_DEPOSIT", "KNOWN_DEPOSIT_TX", "INCOMPLETE_DEPOSIT":
		return ExecPending
	case "IN_PROGRESS", "PROCESSING":
		return ExecInProgress
	case "EXECUTED":
		return ExecExecuted
	case "COMPLETED", "SUCCESS":
		return ExecCompleted
	case "REFUNDED":
		return ExecRefunded
	case "FAILED":
		return ExecFailed
	default:
		return ExecPending
	}
}

// quoteError extracts the real error message from a failed quote request
// and classifies it into a normalized failure reason.
func quoteError(httpResp *http.Response, err error) error {
	if httpResp == nil {
		return swaperr.Wrap(types.ReasonNetwork, err, "failed to get quote")
	}
	defer httpResp.Body.Close()

	bodyBytes, readErr := io.ReadAll(httpResp.Body)
	if readErr != nil || len(bodyBytes) == 0 {
		return swaperr.Wrap(types.ReasonNetwork, err, "failed to get quote (status %d)", httpResp.StatusCode)
	}

	message := string(bodyBytes)
	var errorResp map[string]interface{}
	if jsonErr := json.Unmarshal(bodyBytes, &errorResp); jsonErr == nil {
		if m, ok := errorResp["message"].(string); ok {
			message = m
		} else if errs, ok := errorResp["errors"]; ok {
			message = fmt.Sprintf("%v", errs)
		}
	}

	return swaperr.New(classifyQuoteMessage(message), "quote request failed (status %d): %s", httpResp.StatusCode, message)
}

func classifyQuoteMessage(message string) types.FailureReason {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "liquidity"), strings.Contains(lower, "no route"):
		return types.ReasonNoLiquidity
	case strings.Contains(lower, "amount"):
		return types.ReasonInvalidAmount
	default:
		return types.ReasonUnknown
	}
}

// mergeAuth carries the caller's cancellation while keeping the client's
// access token value.
func mergeAuth(ctx, authed context.Context) context.Context {
	return context.WithValue(ctx, oneclick.ContextAccessToken, authed.Value(oneclick.ContextAccessToken))
}
