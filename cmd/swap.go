package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/fatih/color"
	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/cobra"

	"omniswap/config"
	"omniswap/pkg/broadcast"
	"omniswap/pkg/client"
	"omniswap/pkg/history"
	"omniswap/pkg/parser"
	"omniswap/pkg/quotefetch"
	"omniswap/pkg/reserve"
	"omniswap/pkg/swap"
	"omniswap/pkg/types"
)

var (
	fromChain string
	toChain   string
	noConfirm bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> to <dest-token>",
	Short: "Execute a cross-chain token swap end to end",
	Long: `Swap tokens across blockchains. The pipeline quotes a route, checks the
destination chain holds enough native balance for fees (topping it up from
USDC automatically when possible), then signs with the configured keys,
broadcasts, confirms, and retries transient failures with a fresh quote.

Examples:
  # Cross-chain swap
  omniswap swap 1 SOL to USDC --to-chain base

  # Same as above using inline chains
  omniswap swap 1 SOL to USDC on base

  # Skip the confirmation prompt
  omniswap swap 0.5 ETH on base to SOL --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&fromChain, "from-chain", "", "Source blockchain (optional)")
	swapCmd.Flags().StringVar(&toChain, "to-chain", "", "Destination blockchain (optional)")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runSwap(cmd *cobra.Command, args []string) {
	// Parse the command
	commandStr := strings.Join(args, " ")
	swapReq, err := parser.ParseSwapCommand(commandStr)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if fromChain != "" {
		swapReq.SourceChain = fromChain
	}
	if toChain != "" {
		swapReq.DestChain = toChain
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx := context.Background()
	p, err := buildPipeline(cfg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	from, err := p.routing.ResolveAsset(swapReq.SourceToken, swapReq.SourceChain)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	to, err := p.routing.ResolveAsset(swapReq.DestToken, swapReq.DestChain)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	amountIn, err := types.ToSmallestUnit(swapReq.Amount, from.Decimals)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	// Fetch the quote through the debounced path; the fetcher remembers
	// the request so retries and post-top-up refreshes reuse it.
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	quote, err := awaitQuote(p.fetcher, quotefetch.Request{
		From:     from,
		To:       to,
		AmountIn: amountIn,
		Accounts: p.accounts,
	})
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		displayQuoteJSON(quote)
	} else {
		displayQuote(quote)
	}

	if !noConfirm && !jsonOutput {
		if !confirmSwap() {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	if !jsonOutput {
		s.Suffix = " Executing swap..."
		s.Start()
	}
	result := p.orchestrator.ExecuteSwap(ctx, quote, p.accounts)
	if !jsonOutput {
		s.Stop()
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		if !result.Success {
			os.Exit(1)
		}
		return
	}

	if !result.Success {
		printError(fmt.Errorf("%s", result.Error))
		os.Exit(1)
	}

	color.Green("\n✓ Swap submitted!")
	fmt.Printf("  Transaction: %s\n", color.CyanString(result.TxHash))
	fmt.Println("\nYou can monitor the swap status using:")
	color.Cyan("  omniswap status %s\n", quote.DepositAddress)
}

// pipeline holds the wired swap execution stack for one CLI invocation.
type pipeline struct {
	routing      *client.RoutingClient
	fetcher      *quotefetch.Fetcher
	manager      *broadcast.Manager
	orchestrator *swap.Orchestrator
	accounts     []types.Account
}

// buildPipeline assembles the execution stack from configuration: local
// custody over the configured keys, per-network broadcasters, the reserve
// guard and the orchestrator.
func buildPipeline(cfg *config.Config) (*pipeline, error) {
	routing := client.NewRoutingClient(cfg.JWTToken)
	custody := broadcast.NewLocalCustody()

	var accounts []types.Account

	manager := broadcast.NewManager()

	if len(cfg.EVM.Networks) > 0 {
		router := broadcast.NewEVMRouter()
		for name, network := range cfg.EVM.Networks {
			if network.PrivateKey == "" || network.RPCUrl == "" {
				continue
			}
			if err := custody.AddEVMKey(network.ChainID, network.PrivateKey); err != nil {
				return nil, fmt.Errorf("evm network %s: %w", name, err)
			}

			key, err := crypto.HexToECDSA(strings.TrimPrefix(network.PrivateKey, "0x"))
			if err != nil {
				return nil, fmt.Errorf("evm network %s: %w", name, err)
			}
			address := crypto.PubkeyToAddress(key.PublicKey).Hex()
			if _, ok := types.AccountFor(accounts, types.FamilyEVM); !ok {
				accounts = append(accounts, types.Account{ChainFamily: types.FamilyEVM, Address: address})
			}

			ethClient, err := ethclient.Dial(network.RPCUrl)
			if err != nil {
				return nil, fmt.Errorf("evm network %s: %w", name, err)
			}
			router.AddNetwork(name, broadcast.NewEVMBroadcaster(ethClient, custody, broadcast.EVMConfig{
				RPCUrl:          network.RPCUrl,
				ChainID:         network.ChainID,
				GasLimit:        network.GasLimit,
				GasPrice:        network.GasPrice,
				ConfirmInterval: cfg.Swap.ConfirmInterval,
				ConfirmAttempts: cfg.Swap.ConfirmAttempts,
			}))
		}
		manager.Register(types.FamilyEVM, router)
	}

	var solClient *solrpc.Client
	if cfg.Solana.PrivateKey != "" && cfg.Solana.RPCUrl != "" {
		if err := custody.SetSolanaKey(cfg.Solana.PrivateKey); err != nil {
			return nil, err
		}
		solKey, err := solana.PrivateKeyFromBase58(cfg.Solana.PrivateKey)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, types.Account{
			ChainFamily: types.FamilySolana,
			Address:     solKey.PublicKey().String(),
		})

		solClient = solrpc.New(cfg.Solana.RPCUrl)
		manager.Register(types.FamilySolana, broadcast.NewSolanaBroadcaster(solClient, custody, broadcast.SolanaConfig{
			RPCUrl:          cfg.Solana.RPCUrl,
			Commitment:      cfg.Solana.Commitment,
			SkipPreflight:   cfg.Solana.SkipPreflight,
			QuickCheckDelay: cfg.Swap.QuickCheckDelay,
			ConfirmInterval: cfg.Swap.ConfirmInterval,
			ConfirmAttempts: cfg.Swap.ConfirmAttempts,
		}))
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no signing keys configured; set solana.private_key or evm.networks in your config")
	}

	fetcher := quotefetch.New(routing, cfg.Swap.UserSlippageBps, cfg.Swap.DebounceWindow)

	guard, fundingAssetID, err := buildGuard(cfg, routing, manager, solClient)
	if err != nil {
		return nil, err
	}

	store, err := history.NewStore(cfg.HistoryFile)
	if err != nil {
		return nil, err
	}

	orchestrator := swap.NewOrchestrator(guard, fetcher, manager, store, swap.Config{
		MaxRetries:      cfg.Swap.MaxRetries,
		TopUpSettleWait: cfg.Swap.TopUpSettleWait,
		FundingAssetID:  fundingAssetID,
	})

	return &pipeline{
		routing:      routing,
		fetcher:      fetcher,
		manager:      manager,
		orchestrator: orchestrator,
		accounts:     accounts,
	}, nil
}

// buildGuard wires the chain-reserve guard: USDC in its aggregated
// identity for balance reads, its chain-specific variants as top-up
// sources, and SOL as the top-up destination.
func buildGuard(cfg *config.Config, routing *client.RoutingClient, manager *broadcast.Manager, solClient *solrpc.Client) (*reserve.Guard, string, error) {
	funding, err := routing.ResolveAsset("USDC", "")
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve funding asset: %w", err)
	}
	native, err := routing.ResolveAsset("SOL", "sol")
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve native asset: %w", err)
	}

	var sources []types.Asset
	for name := range cfg.EVM.Networks {
		if source, err := routing.ResolveAsset("USDC", name); err == nil {
			sources = append(sources, source)
		}
	}
	if solClient != nil {
		if source, err := routing.ResolveAsset("USDC", "sol"); err == nil {
			sources = append(sources, source)
		}
	}

	balances := client.NewBalanceAPI(cfg.BalanceURL, nil)

	var reserves reserve.NativeReserveReader
	if solClient != nil {
		reserves = reserve.NewSolanaReserveReader(solClient)
	} else {
		reserves = noReserve{}
	}

	guard := reserve.NewGuard(reserves, balances, routing, manager, reserve.Config{
		FundingAsset:   funding,
		FundingSources: sources,
		NativeAsset:    native,
	})
	return guard, funding.AssetID, nil
}

// noReserve stands in when no Solana endpoint is configured; quotes that
// touch Solana then fail the reserve read with a clear message.
type noReserve struct{}

func (noReserve) NativeReserve(ctx context.Context, account types.Account) (*big.Int, error) {
	return nil, fmt.Errorf("no solana RPC endpoint configured")
}

// awaitQuote drives one fetch through the debounced path and blocks until
// it resolves.
func awaitQuote(fetcher *quotefetch.Fetcher, req quotefetch.Request) (*types.Quote, error) {
	type outcome struct {
		quote *types.Quote
		err   error
	}
	done := make(chan outcome, 1)
	fetcher.OnUpdate(func(q *types.Quote, err error) {
		select {
		case done <- outcome{quote: q, err: err}:
		default:
		}
	})

	fetcher.Fetch(req)

	select {
	case out := <-done:
		return out.quote, out.err
	case <-time.After(60 * time.Second):
		fetcher.Cancel()
		return nil, fmt.Errorf("timed out waiting for quote")
	}
}

func displayQuote(quote *types.Quote) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:              %s %s\n",
		types.FromSmallestUnit(quote.AmountIn, quote.From.Decimals), color.YellowString(quote.From.Symbol))
	fmt.Printf("  To:                ~%s %s\n",
		types.FromSmallestUnit(quote.ExpectedOut, quote.To.Decimals), color.YellowString(quote.To.Symbol))
	fmt.Printf("  Minimum received:  %s %s\n",
		types.FromSmallestUnit(quote.MinAmountOut, quote.To.Decimals), quote.To.Symbol)
	fmt.Printf("  Slippage:          %.2f%%\n", float64(quote.SlippageBps)/100)

	if quote.From.ChainID != "" {
		fmt.Printf("  Source Chain:      %s\n", quote.From.ChainID)
	}
	if quote.To.ChainID != "" {
		fmt.Printf("  Destination Chain: %s\n", quote.To.ChainID)
	}
	fmt.Printf("  Quote expires:     %s\n", quote.Deadline.Format(time.RFC1123))

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func displayQuoteJSON(quote *types.Quote) {
	output := map[string]interface{}{
		"deposit_address": quote.DepositAddress,
		"amount_in":       types.FromSmallestUnit(quote.AmountIn, quote.From.Decimals),
		"source_token":    quote.From.Symbol,
		"expected_out":    types.FromSmallestUnit(quote.ExpectedOut, quote.To.Decimals),
		"min_out":         types.FromSmallestUnit(quote.MinAmountOut, quote.To.Decimals),
		"dest_token":      quote.To.Symbol,
		"slippage_bps":    quote.SlippageBps,
		"deadline":        quote.Deadline,
	}
	data, _ := json.MarshalIndent(output, "", "  ")
	fmt.Println(string(data))
}

func confirmSwap() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with swap? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
