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

// Package unitofwork runs caller code inside the transaction of one scope,
// committing on success and rolling back on failure.
package unitofwork

import (
	"context"
	"fmt"

	"github.com/tomoncle/repokit/database"
	"github.com/uptrace/bun"
)

// Process is the work run inside a transaction.
type Process func(ctx context.Context, conn bun.Conn, tx bun.Tx) error

// ResultProcess is a Process that produces a value.
type ResultProcess[R any] func(ctx context.Context, conn bun.Conn, tx bun.Tx) (R, error)

// UnitOfWork drives a ConnectionFactory through one transaction.
type UnitOfWork struct {
	factory *database.ConnectionFactory
	logger  database.Logger
}

// New returns a unit of work that runs its steps in factory's transaction.
func New(factory *database.ConnectionFactory) *UnitOfWork {
	return &UnitOfWork{factory: factory, logger: database.GetLogger()}
}

// Factory returns the scope the unit of work commits or rolls back.
func (u *UnitOfWork) Factory() *database.ConnectionFactory { return u.factory }

// Run invokes process with the scope's connection and transaction. It commits
// when process returns nil. Otherwise it rolls back and returns the error from
// process unchanged; a panic is rolled back and re-raised.
func (u *UnitOfWork) Run(ctx context.Context, process Process) error {
	_, err := RunWithResult(ctx, u, func(ctx context.Context, conn bun.Conn, tx bun.Tx) (struct{}, error) {
		return struct{}{}, process(ctx, conn, tx)
	})
	return err
}

// RunWithResult is Run for a process that returns a value. The value is
// returned only when the transaction committed.
func RunWithResult[R any](ctx context.Context, u *UnitOfWork, process ResultProcess[R]) (result R, err error) {
	var zero R
	if u == nil || u.factory == nil {
		return zero, database.ErrNotConnected
	}
	if process == nil {
		return zero, fmt.Errorf("%w: process is nil", database.ErrInvalidArgument)
	}
	conn, err := u.factory.Conn(ctx)
	if err != nil {
		return zero, err
	}
	tx, err := u.factory.Tx(ctx)
	if err != nil {
		return zero, err
	}

	defer func() {
		if p := recover(); p != nil {
			u.rollback()
			panic(p)
		}
	}()

	result, err = process(u.factory.Context(ctx), conn, tx)
	if err != nil {
		u.rollback()
		return zero, err
	}
	if err = u.factory.Commit(); err != nil {
		u.logger.Error("commit failed, rolling back", "error", err)
		u.rollback()
		return zero, err
	}
	return result, nil
}

func (u *UnitOfWork) rollback() {
	if err := u.factory.Rollback(); err != nil {
		u.logger.Error("rollback failed", "error", err)
	}
}
