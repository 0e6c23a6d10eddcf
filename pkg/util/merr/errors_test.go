// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"context"
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type stateName string

func (s stateName) String() string { return string(s) }

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrLiveSessionNotFound("ls-1")
	errors.Wrap(err, "failed to load live session")
	s.ErrorIs(err, ErrLiveSessionNotFound)
	s.Equal(Code(ErrLiveSessionNotFound), Code(err))
	s.Equal(TimeoutCode, Code(context.DeadlineExceeded))
	s.Equal(CanceledCode, Code(context.Canceled))
	s.Equal(errUnexpected.errCode, Code(errUnexpected))

	sameCodeErr := newLiveError("new error", ErrLiveSessionNotFound.errCode, false)
	s.True(sameCodeErr.Is(ErrLiveSessionNotFound))
}

func (s *ErrSuite) TestWrap() {
	// Service 相关错误。
	s.ErrorIs(WrapErrServiceNotReady("test", 0, "test init..."), ErrServiceNotReady)
	s.ErrorIs(WrapErrTooManyRequests(100, "too many requests"), ErrServiceTooManyRequests)
	s.ErrorIs(WrapErrServiceInternal("never throw out"), ErrServiceInternal)

	// IO 相关错误。
	s.ErrorIs(WrapErrIoFailed("test_key", os.ErrClosed), ErrIoFailed)
	s.NoError(WrapErrIoFailed("test_key", nil))

	// 参数相关错误。
	s.ErrorIs(WrapErrParameterInvalidRange(1, 1<<16, 0, "tick should be in range"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidMsg("tick %s", "0s"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterMissing("store", "no store"), ErrParameterMissing)

	// 直播会话相关错误。
	s.ErrorIs(WrapErrLiveSessionNotFound("ls-1"), ErrLiveSessionNotFound)
	s.ErrorIs(WrapErrLiveSessionInvalidTransition("ls-1", "opened", stateName("OPENED")), ErrLiveSessionInvalidTransition)
	s.ErrorIs(WrapErrLiveSessionClosed("ls-1", "touch"), ErrLiveSessionClosed)
	s.ErrorIs(WrapErrLiveSessionMissingBreakConfig("ls-1"), ErrLiveSessionMissingBreakConfig)
	s.ErrorIs(WrapErrLiveSessionNotRegistered("ls-1"), ErrLiveSessionNotRegistered)
}

func (s *ErrSuite) TestInvalidTransitionMessage() {
	err := WrapErrLiveSessionInvalidTransition("ls-1", "breaked", stateName("READY"))
	s.Contains(err.Error(), "live session cannot be breaked from READY")
	s.Contains(err.Error(), "liveSession=ls-1")
	s.False(errors.Is(err, ErrLiveSessionClosed))
}

func (s *ErrSuite) TestRetryable() {
	s.True(IsRetryableErr(WrapErrIoFailed("live_session", os.ErrDeadlineExceeded)))
	s.True(IsRetryableErr(errors.Wrap(WrapErrIoFailed("live_session", os.ErrClosed), "load")))
	s.False(IsRetryableErr(WrapErrLiveSessionInvalidTransition("ls-1", "opened", stateName("CLOSED"))))
	s.False(IsRetryableErr(errors.New("plain")))
}

func (s *ErrSuite) TestCanceledOrTimeout() {
	s.True(IsCanceledOrTimeout(errors.Wrap(context.Canceled, "close")))
	s.True(IsCanceledOrTimeout(context.DeadlineExceeded))
	s.False(IsCanceledOrTimeout(ErrIoFailed))
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Equal("first: second", err.Error())
}

func (s *ErrSuite) TestCombineWithNil() {
	err := errors.New("non-nil")

	err = Combine(nil, err)
	s.NotNil(err)
}

func (s *ErrSuite) TestCombineOnlyNil() {
	err := Combine(nil, nil)
	s.Nil(err)
}

func (s *ErrSuite) TestCombineCode() {
	err := Combine(WrapErrLiveSessionNotFound("ls-1"), WrapErrLiveSessionClosed("ls-2"))
	s.Equal(Code(ErrLiveSessionClosed), Code(err))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}
