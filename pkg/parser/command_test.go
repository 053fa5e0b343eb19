package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omniswap/pkg/types"
)

func TestParseSwapCommand(t *testing.T) {
	cases := []struct {
		name     string
		command  string
		expected types.SwapRequest
	}{
		{
			name:    "basic with swap prefix",
			command: "swap 1 SOL to USDC",
			expected: types.SwapRequest{
				Amount: "1", SourceToken: "SOL", DestToken: "USDC",
			},
		},
		{
			name:    "without prefix and decimal amount",
			command: "1.5 ETH to BTC",
			expected: types.SwapRequest{
				Amount: "1.5", SourceToken: "ETH", DestToken: "BTC",
			},
		},
		{
			name:    "source chain clause",
			command: "100 USDC on BASE to SOL",
			expected: types.SwapRequest{
				Amount: "100", SourceToken: "USDC", SourceChain: "base", DestToken: "SOL",
			},
		},
		{
			name:    "both chain clauses",
			command: "swap 0.25 USDC on ARB to USDC on SOL",
			expected: types.SwapRequest{
				Amount: "0.25", SourceToken: "USDC", SourceChain: "arb",
				DestToken: "USDC", DestChain: "sol",
			},
		},
		{
			name:    "lowercase input is normalized",
			command: "  swap 2 sol to usdc  ",
			expected: types.SwapRequest{
				Amount: "2", SourceToken: "SOL", DestToken: "USDC",
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := ParseSwapCommand(tc.command)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, *req)
		})
	}
}

func TestParseSwapCommandRejectsMalformedInput(t *testing.T) {
	for _, command := range []string{
		"",
		"swap",
		"swap SOL to USDC",
		"swap 1 SOL",
		"swap 1 SOL USDC",
		"swap -1 SOL to USDC",
		"swap 1 SOL to USDC extra words",
	} {
		t.Run(command, func(t *testing.T) {
			_, err := ParseSwapCommand(command)
			assert.Error(t, err)
		})
	}
}

func TestValidateSwapRequest(t *testing.T) {
	valid := &types.SwapRequest{Amount: "1", SourceToken: "SOL", DestToken: "USDC"}
	assert.NoError(t, ValidateSwapRequest(valid))

	assert.Error(t, ValidateSwapRequest(&types.SwapRequest{SourceToken: "SOL", DestToken: "USDC"}))
	assert.Error(t, ValidateSwapRequest(&types.SwapRequest{Amount: "1", DestToken: "USDC"}))
	assert.Error(t, ValidateSwapRequest(&types.SwapRequest{Amount: "1", SourceToken: "SOL"}))
}

func TestNormalizeTokenSymbol(t *testing.T) {
	assert.Equal(t, "BTC", NormalizeTokenSymbol("wbtc"))
	assert.Equal(t, "ETH", NormalizeTokenSymbol(" WETH "))
	assert.Equal(t, "SOL", NormalizeTokenSymbol("WSOL"))
	assert.Equal(t, "USDC", NormalizeTokenSymbol("usdc"))
}
