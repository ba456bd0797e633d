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

package database

import (
	"context"
	"fmt"

	"github.com/tomoncle/repokit/types"
	"github.com/uptrace/bun"
)

// ConnectionFactory provides exactly one connection and one transaction for
// a logical scope such as a request or a batch. Both are acquired lazily on
// first use and released by Commit, Rollback or Close.
//
// A ConnectionFactory is not safe for concurrent use; create one per scope.
type ConnectionFactory struct {
	db      *bun.DB
	logger  Logger
	profile *Profile

	conn  *bun.Conn
	tx    *bun.Tx
	state types.ScopeState
}

// NewConnectionFactory binds a new scope to db. When profiling is true every
// statement issued through the scope's context is recorded in its Profile;
// db must carry a ProfilingHook for that to happen.
func NewConnectionFactory(db *bun.DB, profiling bool, logger Logger) *ConnectionFactory {
	if logger == nil {
		logger = GetLogger()
	}
	f := &ConnectionFactory{db: db, logger: logger}
	if profiling {
		f.profile = &Profile{}
	}
	return f
}

// Context returns ctx annotated with this scope's profile.
func (f *ConnectionFactory) Context(ctx context.Context) context.Context {
	return withProfile(ctx, f.profile)
}

// Conn returns the scope's connection, opening it on first call.
func (f *ConnectionFactory) Conn(ctx context.Context) (bun.Conn, error) {
	if f.state.IsClosed() {
		return bun.Conn{}, ErrScopeClosed
	}
	if f.conn != nil {
		return *f.conn, nil
	}
	if f.db == nil {
		return bun.Conn{}, ErrNotConnected
	}
	// The connection lives as long as the scope, not the first caller's context.
	conn, err := f.db.Conn(f.Context(context.WithoutCancel(ctx)))
	if err != nil {
		return bun.Conn{}, fmt.Errorf("failed to open connection: %w", err)
	}
	f.conn = &conn
	f.state = types.ScopeOpen
	f.logger.Debug("scope connection opened", "profiling", f.profile != nil)
	return conn, nil
}

// Tx returns the scope's transaction, beginning it on the scope connection
// on first call.
func (f *ConnectionFactory) Tx(ctx context.Context) (bun.Tx, error) {
	if f.state.IsClosed() {
		return bun.Tx{}, ErrScopeClosed
	}
	if f.tx != nil {
		return *f.tx, nil
	}
	conn, err := f.Conn(ctx)
	if err != nil {
		return bun.Tx{}, err
	}
	tx, err := conn.BeginTx(f.Context(context.WithoutCancel(ctx)), nil)
	if err != nil {
		return bun.Tx{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	f.tx = &tx
	return tx, nil
}

// IDB is Tx typed as bun.IDB for query building.
func (f *ConnectionFactory) IDB(ctx context.Context) (bun.IDB, error) {
	tx, err := f.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// DB returns the pool the scope borrows from.
func (f *ConnectionFactory) DB() *bun.DB { return f.db }

// State reports where the scope is in its lifecycle.
func (f *ConnectionFactory) State() types.ScopeState { return f.state }

// Profile returns the statements recorded so far; zero when profiling is off.
func (f *ConnectionFactory) Profile() ProfileStats { return f.profile.Snapshot() }

// Commit commits the transaction and closes the connection. It is a no-op
// when nothing was opened or the scope is already closed. Errors meaning the
// handles were already released are logged and dropped.
func (f *ConnectionFactory) Commit() error {
	if f.conn == nil || f.tx == nil || f.state.IsClosed() {
		return nil
	}
	if err := f.tx.Commit(); err != nil {
		if !IsDisposedError(err) {
			return err
		}
		f.logger.Warn("commit on released transaction ignored", "error", err)
	}
	f.state = types.ScopeCommitted
	return f.closeConn()
}

// Rollback mirrors Commit, rolling the transaction back instead.
func (f *ConnectionFactory) Rollback() error {
	if f.conn == nil || f.tx == nil || f.state.IsClosed() {
		return nil
	}
	if err := f.tx.Rollback(); err != nil {
		if !IsDisposedError(err) {
			return err
		}
		f.logger.Warn("rollback on released transaction ignored", "error", err)
	}
	f.state = types.ScopeRolledBack
	return f.closeConn()
}

// Close commits whatever is still open, releases both handles and marks the
// scope disposed. Further calls return nil.
func (f *ConnectionFactory) Close() error {
	if f.state == types.ScopeDisposed {
		return nil
	}
	err := f.Commit()
	if err != nil {
		f.logger.Error("commit on close failed, rolling back", "error", err)
		if rbErr := f.Rollback(); rbErr != nil {
			f.logger.Error("rollback on close failed", "error", rbErr)
		}
	}
	if f.conn != nil && !f.state.IsClosed() {
		if cerr := f.closeConn(); cerr != nil && err == nil {
			err = cerr
		}
	}
	f.conn = nil
	f.tx = nil
	f.state = types.ScopeDisposed
	return err
}

func (f *ConnectionFactory) closeConn() error {
	if f.conn == nil {
		return nil
	}
	if err := f.conn.Close(); err != nil {
		if IsDisposedError(err) {
			f.logger.Warn("close on released connection ignored", "error", err)
			return nil
		}
		return err
	}
	f.logger.Debug("scope connection closed", "state", f.state)
	return nil
}
