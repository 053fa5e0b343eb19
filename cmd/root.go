package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "omniswap",
	Short: "A CLI for cross-chain swaps with automatic signing and fee top-up",
	Long: `omniswap is a command-line tool for cross-chain token swaps. It quotes a
route, checks the destination chain has enough native balance for fees
(topping it up automatically when possible), then signs, broadcasts and
confirms the transaction, retrying transient failures with a fresh quote.

Examples:
  omniswap swap 1 SOL to USDC
  omniswap swap 0.5 ETH on base to SOL
  omniswap quote 100 USDC to SOL
  omniswap tokens
  omniswap status <deposit-address>
  omniswap history`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().Logger()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
