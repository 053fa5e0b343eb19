package types_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"omniswap/pkg/types"
)

type AmountTestSuite struct {
	suite.Suite
}

func TestRunAmountTestSuite(t *testing.T) {
	suite.Run(t, new(AmountTestSuite))
}

func (s *AmountTestSuite) TestToSmallestUnit() {
	cases := []struct {
		amount   string
		decimals int
		expected string
	}{
		{"1", 9, "1000000000"},
		{"1.5", 6, "1500000"},
		{"0.000001", 6, "1"},
		{"0.5", 0, "0"},
		{"100.25", 2, "10025"},
		{".5", 6, "500000"},
		{"0.0000001", 6, "0"}, // truncated beyond precision
	}

	for _, tc := range cases {
		got, err := types.ToSmallestUnit(tc.amount, tc.decimals)
		s.NoError(err, tc.amount)
		s.Equal(tc.expected, got.String(), tc.amount)
	}
}

func (s *AmountTestSuite) TestToSmallestUnit_Invalid() {
	_, err := types.ToSmallestUnit("", 6)
	s.Error(err)

	_, err = types.ToSmallestUnit("abc", 6)
	s.Error(err)

	_, err = types.ToSmallestUnit("-1.5", 6)
	s.Error(err)
}

func (s *AmountTestSuite) TestFromSmallestUnit() {
	s.Equal("1", types.FromSmallestUnit(big.NewInt(1_000_000_000), 9))
	s.Equal("1.5", types.FromSmallestUnit(big.NewInt(1_500_000), 6))
	s.Equal("0.000001", types.FromSmallestUnit(big.NewInt(1), 6))
	s.Equal("0.0005", types.FromSmallestUnit(big.NewInt(500_000), 9))
	s.Equal("42", types.FromSmallestUnit(big.NewInt(42), 0))
	s.Equal("0", types.FromSmallestUnit(nil, 6))
}

type AssetTestSuite struct {
	suite.Suite
}

func TestRunAssetTestSuite(t *testing.T) {
	suite.Run(t, new(AssetTestSuite))
}

func (s *AssetTestSuite) TestAggregatedAddressing() {
	aggregated := types.Asset{Symbol: "USDC", Decimals: 6, AssetID: "usdc.omft.near"}
	s.True(aggregated.IsAggregated())
	s.NoError(aggregated.Validate())

	specific := types.Asset{
		Symbol:          "USDC",
		Decimals:        6,
		AssetID:         "base-usdc",
		ChainFamily:     types.FamilyEVM,
		ChainID:         "base",
		ContractAddress: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	}
	s.False(specific.IsAggregated())
	s.NoError(specific.Validate())
}

func (s *AssetTestSuite) TestValidateRejectsIncompleteAssets() {
	s.Error(types.Asset{Decimals: 6}.Validate())

	// Chain-bound without a family
	s.Error(types.Asset{Symbol: "X", ChainID: "base"}.Validate())

	// Chain-bound, non-native, no contract
	s.Error(types.Asset{Symbol: "X", ChainFamily: types.FamilyEVM, ChainID: "base"}.Validate())

	// Native token needs no contract
	s.NoError(types.Asset{
		Symbol: "SOL", ChainFamily: types.FamilySolana, ChainID: "sol", Native: true,
	}.Validate())
}

func (s *AssetTestSuite) TestAccountFor() {
	accounts := []types.Account{
		{ChainFamily: types.FamilyEVM, Address: "0xabc"},
		{ChainFamily: types.FamilySolana, Address: "So1ana"},
	}

	acc, ok := types.AccountFor(accounts, types.FamilySolana)
	s.True(ok)
	s.Equal("So1ana", acc.Address)

	_, ok = types.AccountFor(nil, types.FamilyEVM)
	s.False(ok)
}

func (s *AssetTestSuite) TestQuoteTouchesSolana() {
	sol := types.Asset{Symbol: "SOL", ChainFamily: types.FamilySolana, ChainID: "sol", Native: true}
	eth := types.Asset{Symbol: "ETH", ChainFamily: types.FamilyEVM, ChainID: "eth", Native: true}

	s.True((&types.Quote{From: sol, To: eth}).TouchesSolana())
	s.True((&types.Quote{From: eth, To: sol}).TouchesSolana())
	s.False((&types.Quote{From: eth, To: eth}).TouchesSolana())
}

func (s *AssetTestSuite) TestQuoteExpired() {
	now := time.Now()
	q := &types.Quote{Deadline: now.Add(time.Minute)}
	s.False(q.Expired(now))
	s.True(q.Expired(now.Add(2 * time.Minute)))

	// No deadline means never expired.
	s.False((&types.Quote{}).Expired(now))
}
