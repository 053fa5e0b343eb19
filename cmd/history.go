package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"omniswap/config"
	"omniswap/pkg/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past swap results",
	Long: `Show the recorded outcomes of past swaps, most recent first.

Examples:
  omniswap history
  omniswap history --limit 5
  omniswap history --json`,
	Run: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of entries to show")
}

func runHistory(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	store, err := history.NewStore(cfg.HistoryFile)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	entries := store.List()
	if historyLimit > 0 && len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(entries) == 0 {
		fmt.Println("\nNo swaps recorded yet.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("                               SWAP HISTORY")
	fmt.Println(strings.Repeat("=", 90))

	for _, entry := range entries {
		outcome := color.GreenString("ok")
		if !entry.Success {
			outcome = color.RedString("failed")
		}

		fmt.Printf("\n  %s  %s -> %s  [%s]\n",
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			color.YellowString(entry.FromSymbol),
			color.YellowString(entry.ToSymbol),
			outcome)
		fmt.Printf("    Amount:   %s %s (expected ~%s %s)\n",
			entry.AmountIn, entry.FromSymbol, entry.ExpectedOut, entry.ToSymbol)
		if entry.TxHash != "" {
			fmt.Printf("    Tx:       %s\n", color.HiBlackString(entry.TxHash))
		}
		if entry.TopUpTxHash != "" {
			fmt.Printf("    Top-up:   %s\n", color.HiBlackString(entry.TopUpTxHash))
		}
		if entry.Error != "" {
			fmt.Printf("    Error:    %s\n", entry.Error)
		}
		if entry.Attempts > 1 {
			fmt.Printf("    Attempts: %d\n", entry.Attempts)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d swaps\n\n", len(entries))
}
