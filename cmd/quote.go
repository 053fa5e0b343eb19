package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"omniswap/config"
	"omniswap/pkg/client"
	"omniswap/pkg/parser"
	"omniswap/pkg/policy"
	"omniswap/pkg/types"
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <source-token> to <dest-token>",
	Short: "Fetch a quote without executing anything",
	Long: `Fetch a dry quote for a swap. No deposit address is reserved and nothing
is signed or broadcast.

Examples:
  omniswap quote 1 SOL to USDC
  omniswap quote 100 USDC on base to SOL`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&fromChain, "from-chain", "", "Source blockchain (optional)")
	quoteCmd.Flags().StringVar(&toChain, "to-chain", "", "Destination blockchain (optional)")
}

func runQuote(cmd *cobra.Command, args []string) {
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

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	ctx := context.Background()
	quote, err := p.routing.GetSwapQuote(ctx, client.QuoteParams{
		From:        from,
		To:          to,
		AmountIn:    amountIn,
		SlippageBps: policy.ComputeBaseSlippageBps(from, to, cfg.Swap.UserSlippageBps),
		Accounts:    p.accounts,
		Dry:         true,
	})

	var rate string
	if err == nil {
		pricer := client.NewPricer(p.routing)
		if r, rerr := pricer.SpotRate(ctx, from, to, amountIn, p.accounts); rerr == nil {
			rate = r.FloatString(6)
		}
	}

	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		displayQuoteJSON(quote)
		return
	}

	displayQuote(quote)
	if rate != "" {
		fmt.Printf("  Rate: 1 %s ~ %s %s\n\n", from.Symbol, rate, to.Symbol)
	}
}
