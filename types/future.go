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
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Future is the result of an operation started on its own goroutine.
type Future[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Go runs fn asynchronously and returns a Future for its result. A panic in fn
// is reported as the future's error.
func Go[V any](fn func() (V, error)) *Future[V] {
	f := &Future[V]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if p := recover(); p != nil {
				f.err = fmt.Errorf("async operation panicked: %v", p)
			}
		}()
		f.val, f.err = fn()
	}()
	return f
}

// Failed returns an already completed future carrying err.
func Failed[V any](err error) *Future[V] {
	f := &Future[V]{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

func (f *Future[V]) Done() <-chan struct{} { return f.done }

// Await blocks until the operation finishes or ctx is done. Cancelling ctx
// does not stop the operation itself.
func (f *Future[V]) Await(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// AwaitAll waits for every future and returns their values in order. The
// first error encountered is returned.
func AwaitAll[V any](ctx context.Context, futures []*Future[V]) ([]V, error) {
	results := make([]V, len(futures))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range futures {
		g.Go(func() error {
			v, err := f.Await(gctx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
