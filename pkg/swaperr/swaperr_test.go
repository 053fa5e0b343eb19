package swaperr_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"omniswap/pkg/swaperr"
	"omniswap/pkg/types"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestRunErrorTestSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (s *ErrorTestSuite) TestReasonOf() {
	s.Equal(types.ReasonNone, swaperr.ReasonOf(nil))
	s.Equal(types.ReasonUnknown, swaperr.ReasonOf(errors.New("boom")))
	s.Equal(types.ReasonSlippage, swaperr.ReasonOf(swaperr.New(types.ReasonSlippage, "price moved")))
}

func (s *ErrorTestSuite) TestWrapPreservesInnerReason() {
	inner := swaperr.New(types.ReasonInsufficientBalance, "transfer amount exceeds balance")
	outer := swaperr.Wrap(types.ReasonNetwork, inner, "broadcast failed")

	// The nested specific reason survives the generic wrapper.
	s.Equal(types.ReasonInsufficientBalance, outer.Reason)
	s.Equal(types.ReasonInsufficientBalance, swaperr.ReasonOf(outer))
}

func (s *ErrorTestSuite) TestWrapAssignsReasonToUnclassifiedCause() {
	outer := swaperr.Wrap(types.ReasonNetwork, errors.New("connection refused"), "rpc call failed")
	s.Equal(types.ReasonNetwork, outer.Reason)
}

func (s *ErrorTestSuite) TestReasonSurvivesStandardWrapping() {
	err := swaperr.New(types.ReasonOrderExpired, "deadline passed")
	wrapped := fmt.Errorf("attempt 1: %w", err)
	s.Equal(types.ReasonOrderExpired, swaperr.ReasonOf(wrapped))
}

func (s *ErrorTestSuite) TestRootCause() {
	root := errors.New("0x1771 custom program error")
	chain := swaperr.Wrap(types.ReasonSlippage, fmt.Errorf("send failed: %w", root), "broadcast failed")

	s.Equal(root, swaperr.RootCause(chain))
	s.Nil(swaperr.RootCause(nil))
}

func (s *ErrorTestSuite) TestIsCanceled() {
	s.True(swaperr.IsCanceled(context.Canceled))
	s.True(swaperr.IsCanceled(context.DeadlineExceeded))
	s.True(swaperr.IsCanceled(swaperr.Wrap(types.ReasonNetwork, context.Canceled, "fetch aborted")))
	s.False(swaperr.IsCanceled(errors.New("boom")))
	s.False(swaperr.IsCanceled(nil))
}

func (s *ErrorTestSuite) TestErrorString() {
	s.Equal("price moved", swaperr.New(types.ReasonSlippage, "price moved").Error())

	wrapped := swaperr.Wrap(types.ReasonNetwork, errors.New("eof"), "quote failed")
	s.Equal("quote failed: eof", wrapped.Error())
}
