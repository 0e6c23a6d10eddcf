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

package conc

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/lk2023060901/danmu-live-session/pkg/util/merr"
)

func TestPool(t *testing.T) {
	pool := NewPool[any](4, WithExpiryDuration(time.Minute))
	defer pool.Release()

	taskNum := pool.Cap() * 2
	futures := make([]*Future[any], 0, taskNum)
	for i := 0; i < taskNum; i++ {
		res := i
		future := pool.Submit(func() (any, error) {
			time.Sleep(5 * time.Millisecond)
			return res, nil
		})
		futures = append(futures, future)
	}

	assert.NoError(t, AwaitAll(futures...))
	for i, future := range futures {
		res, err := future.Await()
		assert.NoError(t, err)
		assert.Equal(t, i, res.(int))
		assert.True(t, future.Done())
	}
}

func TestPoolError(t *testing.T) {
	pool := NewPool[int](2)
	defer pool.Release()

	boom := errors.New("boom")
	ok := pool.Submit(func() (int, error) { return 1, nil })
	bad := pool.Submit(func() (int, error) { return 0, boom })

	assert.ErrorIs(t, AwaitAll(ok, bad), boom)
	assert.Equal(t, 1, ok.Value())
	assert.Len(t, BlockOnAll(ok, bad), 1)
}

func TestPoolPreHandler(t *testing.T) {
	called := make(chan struct{}, 1)
	pool := NewPool[int](1, WithPreHandler(func() { called <- struct{}{} }))
	defer pool.Release()

	assert.True(t, pool.Submit(func() (int, error) { return 0, nil }).OK())
	select {
	case <-called:
	default:
		t.Fatal("pre handler not called")
	}
}

func TestPoolConcealPanic(t *testing.T) {
	pool := NewPool[int](1, WithName("test"), WithConcealPanic(true))
	defer pool.Release()

	future := pool.Submit(func() (int, error) { panic("boom") })
	_, err := future.Await()
	assert.ErrorContains(t, err, "boom")

	// 池在 panic 后仍可用。
	assert.Equal(t, 2, pool.Submit(func() (int, error) { return 2, nil }).Value())
}

func TestPoolNonBlockingOverload(t *testing.T) {
	pool := NewPool[int](1, WithNonBlocking(true))
	defer pool.Release()

	release := make(chan struct{})
	busy := pool.Submit(func() (int, error) {
		<-release
		return 0, nil
	})
	overflow := pool.Submit(func() (int, error) { return 1, nil })
	assert.ErrorIs(t, overflow.Err(), merr.ErrServiceTooManyRequests)

	close(release)
	assert.True(t, busy.OK())
}

func TestPoolSubmitAfterRelease(t *testing.T) {
	pool := NewPool[int](1)
	pool.Release()

	future := pool.Submit(func() (int, error) { return 1, nil })
	assert.True(t, future.Done())
	assert.ErrorIs(t, future.Err(), merr.ErrServiceNotReady)
}

func TestPoolResize(t *testing.T) {
	pool := NewPool[int](2)
	defer pool.Release()

	assert.NoError(t, pool.Resize(4))
	assert.Equal(t, 4, pool.Cap())
	assert.ErrorIs(t, pool.Resize(0), merr.ErrParameterInvalid)

	pre := NewPool[int](2, WithPreAlloc(true))
	defer pre.Release()
	assert.ErrorIs(t, pre.Resize(4), merr.ErrServiceInternal)
}

func TestGo(t *testing.T) {
	future := Go(func() (string, error) { return "done", nil })
	<-future.Inner()
	assert.Equal(t, "done", future.Value())
}
