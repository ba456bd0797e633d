/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture(t *testing.T) {
	ctx := context.Background()

	t.Run("Should deliver the value of the operation", func(t *testing.T) {
		v, err := Go(func() (int, error) { return 42, nil }).Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("Should report a panic as an error", func(t *testing.T) {
		_, err := Go(func() (int, error) { panic("boom") }).Await(ctx)
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("Should complete failed futures immediately", func(t *testing.T) {
		f := Failed[string](context.Canceled)
		select {
		case <-f.Done():
		default:
			t.Fatal("failed future is not done")
		}
		_, err := f.Await(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("Should stop waiting when the context ends", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		f := Go(func() (int, error) { <-release; return 1, nil })

		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := f.Await(waitCtx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestAwaitAll(t *testing.T) {
	ctx := context.Background()

	t.Run("Should keep results in future order", func(t *testing.T) {
		futures := []*Future[int]{
			Go(func() (int, error) { time.Sleep(5 * time.Millisecond); return 1, nil }),
			Go(func() (int, error) { return 2, nil }),
		}
		got, err := AwaitAll(ctx, futures)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, got)
	})

	t.Run("Should return the first error", func(t *testing.T) {
		boom := errors.New("boom")
		futures := []*Future[int]{Failed[int](boom), Go(func() (int, error) { return 2, nil })}
		_, err := AwaitAll(ctx, futures)
		assert.ErrorIs(t, err, boom)
	})
}
