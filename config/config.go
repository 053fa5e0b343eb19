package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// EVMNetwork holds per-network settings for EVM execution.
type EVMNetwork struct {
	RPCUrl     string
	ChainID    int64
	PrivateKey string
	GasLimit   *uint64
	GasPrice   *int64
}

// EVMConfig groups all configured EVM networks by name.
type EVMConfig struct {
	Networks map[string]EVMNetwork
}

// SolanaConfig holds the Solana execution settings.
type SolanaConfig struct {
	RPCUrl              string
	PrivateKey          string
	Commitment          string
	SkipPreflight       bool
}

// SwapConfig holds the execution-pipeline tuning knobs. The delays are
// empirically tuned constants surfaced here instead of being hardcoded at
// call sites.
type SwapConfig struct {
	// UserSlippageBps is the user's preferred tolerance; the policy
	// engine treats it as a floor widener only.
	UserSlippageBps int
	// MaxRetries bounds automatic retries after the first attempt.
	MaxRetries int
	// DebounceWindow collapses rapid quote requests into one call.
	DebounceWindow time.Duration
	// QuickCheckDelay is the wait between broadcast and the first
	// status probe on Solana.
	QuickCheckDelay time.Duration
	// TopUpSettleWait is how long to wait after a reserve top-up for
	// balances to propagate before quoting the main swap.
	TopUpSettleWait time.Duration
	// ConfirmInterval and ConfirmAttempts bound confirmation polling.
	ConfirmInterval time.Duration
	ConfirmAttempts int
}

// Config holds the application configuration.
type Config struct {
	JWTToken   string
	BaseURL    string
	BalanceURL string
	HistoryFile string

	EVM    EVMConfig
	Solana SolanaConfig
	Swap   SwapConfig
}

var globalConfig *Config

// Load reads configuration from environment variables and config file.
func Load() (*Config, error) {
	viper.SetConfigName(".omniswap")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	// Set default values
	viper.SetDefault("base_url", "https://1click.chaindefuser.com")
	viper.SetDefault("solana.commitment", "confirmed")
	viper.SetDefault("solana.skip_preflight", true)
	viper.SetDefault("swap.user_slippage_bps", 100)
	viper.SetDefault("swap.max_retries", 2)
	viper.SetDefault("swap.debounce_ms", 400)
	viper.SetDefault("swap.quick_check_delay_ms", 1500)
	viper.SetDefault("swap.topup_settle_ms", 2000)
	viper.SetDefault("swap.confirm_interval_ms", 2000)
	viper.SetDefault("swap.confirm_attempts", 30)

	// Read from environment variables
	viper.SetEnvPrefix("OMNISWAP")
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		JWTToken:    viper.GetString("jwt_token"),
		BaseURL:     viper.GetString("base_url"),
		BalanceURL:  viper.GetString("balance_url"),
		HistoryFile: viper.GetString("history_file"),
		Solana: SolanaConfig{
			RPCUrl:        viper.GetString("solana.rpc_url"),
			PrivateKey:    viper.GetString("solana.private_key"),
			Commitment:    viper.GetString("solana.commitment"),
			SkipPreflight: viper.GetBool("solana.skip_preflight"),
		},
		Swap: SwapConfig{
			UserSlippageBps: viper.GetInt("swap.user_slippage_bps"),
			MaxRetries:      viper.GetInt("swap.max_retries"),
			DebounceWindow:  time.Duration(viper.GetInt("swap.debounce_ms")) * time.Millisecond,
			QuickCheckDelay: time.Duration(viper.GetInt("swap.quick_check_delay_ms")) * time.Millisecond,
			TopUpSettleWait: time.Duration(viper.GetInt("swap.topup_settle_ms")) * time.Millisecond,
			ConfirmInterval: time.Duration(viper.GetInt("swap.confirm_interval_ms")) * time.Millisecond,
			ConfirmAttempts: viper.GetInt("swap.confirm_attempts"),
		},
	}

	cfg.EVM.Networks = make(map[string]EVMNetwork)
	for name := range viper.GetStringMap("evm.networks") {
		prefix := "evm.networks." + name
		network := EVMNetwork{
			RPCUrl:     viper.GetString(prefix + ".rpc_url"),
			ChainID:    viper.GetInt64(prefix + ".chain_id"),
			PrivateKey: viper.GetString(prefix + ".private_key"),
		}
		if viper.IsSet(prefix + ".gas_limit") {
			limit := viper.GetUint64(prefix + ".gas_limit")
			network.GasLimit = &limit
		}
		if viper.IsSet(prefix + ".gas_price") {
			price := viper.GetInt64(prefix + ".gas_price")
			network.GasPrice = &price
		}
		cfg.EVM.Networks[name] = network
	}

	// Validate JWT token
	if cfg.JWTToken == "" {
		return nil, fmt.Errorf("JWT token not found. Please set OMNISWAP_JWT_TOKEN environment variable or create a .omniswap.yaml config file")
	}

	globalConfig = cfg
	return cfg, nil
}

// Get returns the global configuration.
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration.
func Set(cfg *Config) {
	globalConfig = cfg
}
