package client

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

type BalanceAPITestSuite struct {
	suite.Suite

	account types.Account
}

func TestRunBalanceAPITestSuite(t *testing.T) {
	suite.Run(t, new(BalanceAPITestSuite))
}

func (s *BalanceAPITestSuite) SetupTest() {
	s.account = types.Account{
		ChainFamily: types.FamilyEVM,
		Address:     "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf",
	}
}

func (s *BalanceAPITestSuite) serve(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/aggregated-balance", r.URL.Path)
		s.Equal(s.account.Address, r.URL.Query().Get("account"))
		s.Equal("usdc-agg", r.URL.Query().Get("assetId"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func (s *BalanceAPITestSuite) TestCamelCaseResponse() {
	srv := s.serve(http.StatusOK, `{
		"assetId": "usdc-agg",
		"totalBalance": "9000000",
		"chains": [
			{"chainId": "base", "amount": "6000000"},
			{"chainId": "sol", "amount": "3000000"}
		]
	}`)
	defer srv.Close()

	balance, err := NewBalanceAPI(srv.URL, nil).GetAggregatedBalance(context.Background(), s.account, "usdc-agg")
	s.Require().NoError(err)
	s.Equal("usdc-agg", balance.AssetID)
	s.Equal(big.NewInt(9_000_000), balance.Total)
	s.Require().Len(balance.PerChain, 2)
	s.Equal("base", balance.PerChain[0].ChainID)
	s.Equal(big.NewInt(6_000_000), balance.PerChain[0].Amount)
	s.Equal("sol", balance.PerChain[1].ChainID)
}

func (s *BalanceAPITestSuite) TestSnakeCaseResponse() {
	srv := s.serve(http.StatusOK, `{
		"asset_id": "usdc-agg",
		"total_balance": "5000000",
		"perChainBreakdown": [
			{"chain_id": "arb", "balance": "5000000"}
		]
	}`)
	defer srv.Close()

	balance, err := NewBalanceAPI(srv.URL, nil).GetAggregatedBalance(context.Background(), s.account, "usdc-agg")
	s.Require().NoError(err)
	s.Equal(big.NewInt(5_000_000), balance.Total)
	s.Require().Len(balance.PerChain, 1)
	s.Equal("arb", balance.PerChain[0].ChainID)
	s.Equal(big.NewInt(5_000_000), balance.PerChain[0].Amount)
}

func (s *BalanceAPITestSuite) TestMissingTotalDefaultsToZero() {
	srv := s.serve(http.StatusOK, `{"assetId": "usdc-agg"}`)
	defer srv.Close()

	balance, err := NewBalanceAPI(srv.URL, nil).GetAggregatedBalance(context.Background(), s.account, "usdc-agg")
	s.Require().NoError(err)
	s.Equal(big.NewInt(0), balance.Total)
	s.Empty(balance.PerChain)
}

func (s *BalanceAPITestSuite) TestUnparseableChainAmountSkipped() {
	srv := s.serve(http.StatusOK, `{
		"total": "1000",
		"chains": [
			{"chainId": "base", "amount": "not-a-number"},
			{"chainId": "sol", "amount": "1000"}
		]
	}`)
	defer srv.Close()

	balance, err := NewBalanceAPI(srv.URL, nil).GetAggregatedBalance(context.Background(), s.account, "usdc-agg")
	s.Require().NoError(err)
	s.Require().Len(balance.PerChain, 1)
	s.Equal("sol", balance.PerChain[0].ChainID)
}

func (s *BalanceAPITestSuite) TestUnparseableTotalRejected() {
	srv := s.serve(http.StatusOK, `{"total": "1.5e6"}`)
	defer srv.Close()

	_, err := NewBalanceAPI(srv.URL, nil).GetAggregatedBalance(context.Background(), s.account, "usdc-agg")
	s.Error(err)
	s.Equal(types.ReasonNetwork, swaperr.ReasonOf(err))
}

func (s *BalanceAPITestSuite) TestServerErrorStatus() {
	srv := s.serve(http.StatusBadGateway, `oops`)
	defer srv.Close()

	_, err := NewBalanceAPI(srv.URL, nil).GetAggregatedBalance(context.Background(), s.account, "usdc-agg")
	s.Error(err)
	s.Equal(types.ReasonNetwork, swaperr.ReasonOf(err))
	s.Contains(err.Error(), "502")
}
