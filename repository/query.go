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

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomoncle/repokit/database"
	"github.com/tomoncle/repokit/types"
	"github.com/uptrace/bun"
)

// scopeTx resolves the scope transaction behind any repository.
func scopeTx[T any](ctx context.Context, r Repository[T]) (context.Context, bun.Tx, error) {
	if r == nil || r.Scope() == nil {
		return ctx, bun.Tx{}, database.ErrNotConnected
	}
	f := r.Scope()
	tx, err := f.Tx(ctx)
	if err != nil {
		return ctx, bun.Tx{}, err
	}
	return f.Context(ctx), tx, nil
}

// QueryInto runs a raw query on r's scope and scans the rows into K, which
// may be a struct, a map or a scalar.
func QueryInto[K any, T any](ctx context.Context, r Repository[T], query string, args ...any) ([]K, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: sql is empty", database.ErrInvalidArgument)
	}
	ctx, tx, err := scopeTx(ctx, r)
	if err != nil {
		return nil, err
	}
	return queryInto[K](ctx, tx, query, args...)
}

// QueryIntoWithTimeout is QueryInto bounded by timeout. The transaction is
// acquired before the deadline starts so only the statement is bounded.
func QueryIntoWithTimeout[K any, T any](ctx context.Context, r Repository[T], query string, timeout time.Duration, args ...any) ([]K, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: sql is empty", database.ErrInvalidArgument)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive, got %s", database.ErrInvalidArgument, timeout)
	}
	ctx, tx, err := scopeTx(ctx, r)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return queryInto[K](ctx, tx, query, args...)
}

func queryInto[K any](ctx context.Context, tx bun.Tx, query string, args ...any) ([]K, error) {
	out := make([]K, 0)
	if err := tx.NewRaw(query, args...).Scan(ctx, &out); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}

// ExecuteScalar returns the first column of the first row. No rows yields
// sql.ErrNoRows.
func ExecuteScalar[K any, T any](ctx context.Context, r Repository[T], query string, args ...any) (K, error) {
	var value K
	if strings.TrimSpace(query) == "" {
		return value, fmt.Errorf("%w: sql is empty", database.ErrInvalidArgument)
	}
	ctx, tx, err := scopeTx(ctx, r)
	if err != nil {
		return value, err
	}
	err = tx.NewRaw(query, args...).Scan(ctx, &value)
	return value, err
}

// InsertAs inserts entity and returns its key typed as K.
func InsertAs[K any, T any, PT interface {
	*T
	KeyedEntity[K]
}](ctx context.Context, r Repository[T], entity PT) (K, error) {
	var zero K
	if (*T)(entity) == nil {
		return zero, fmt.Errorf("%w: entity is nil", database.ErrInvalidArgument)
	}
	if _, err := r.Insert(ctx, (*T)(entity)); err != nil {
		return zero, err
	}
	return entity.Key(), nil
}

// InsertAsAsync runs InsertAs on its own goroutine after acquiring the
// scope transaction.
func InsertAsAsync[K any, T any, PT interface {
	*T
	KeyedEntity[K]
}](ctx context.Context, r Repository[T], entity PT) *types.Future[K] {
	if (*T)(entity) == nil {
		return types.Failed[K](fmt.Errorf("%w: entity is nil", database.ErrInvalidArgument))
	}
	if _, _, err := scopeTx(ctx, r); err != nil {
		return types.Failed[K](err)
	}
	return types.Go(func() (K, error) { return InsertAs[K, T, PT](ctx, r, entity) })
}
