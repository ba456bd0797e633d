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

package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/repokit/database"
	"github.com/tomoncle/repokit/internal/dbtest"
	"github.com/tomoncle/repokit/types"
)

func insertProduct(t *testing.T, f *database.ConnectionFactory, name string) *dbtest.Product {
	t.Helper()
	ctx := context.Background()
	tx, err := f.Tx(ctx)
	require.NoError(t, err)
	p := &dbtest.Product{Name: name, Price: 1.5}
	_, err = tx.NewInsert().Model(p).Exec(f.Context(ctx))
	require.NoError(t, err)
	return p
}

func TestConnectionFactory_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("Should be a no-op to commit or roll back before anything is opened", func(t *testing.T) {
		f := database.NewConnectionFactory(dbtest.OpenProducts(t), false, nil)
		assert.NoError(t, f.Commit())
		assert.NoError(t, f.Rollback())
		assert.Equal(t, types.ScopeIdle, f.State())
		assert.NoError(t, f.Close())
	})

	t.Run("Should return the same connection and transaction within a scope", func(t *testing.T) {
		f := dbtest.Scope(t, dbtest.OpenProducts(t))
		tx1, err := f.Tx(ctx)
		require.NoError(t, err)
		tx2, err := f.Tx(ctx)
		require.NoError(t, err)
		assert.Same(t, tx1.Tx, tx2.Tx)

		c1, err := f.Conn(ctx)
		require.NoError(t, err)
		c2, err := f.Conn(ctx)
		require.NoError(t, err)
		assert.Same(t, c1.Conn, c2.Conn)
		assert.Equal(t, types.ScopeOpen, f.State())
	})

	t.Run("Should keep commit and rollback idempotent after commit", func(t *testing.T) {
		db := dbtest.OpenProducts(t)
		f := dbtest.Scope(t, db)
		insertProduct(t, f, "widget")

		require.NoError(t, f.Commit())
		assert.Equal(t, types.ScopeCommitted, f.State())
		assert.NoError(t, f.Commit())
		assert.NoError(t, f.Rollback())
		assert.Equal(t, types.ScopeCommitted, f.State())
		assert.Equal(t, 1, dbtest.Count(t, db))
	})

	t.Run("Should discard work on rollback and ignore a later commit", func(t *testing.T) {
		db := dbtest.OpenProducts(t)
		f := dbtest.Scope(t, db)
		insertProduct(t, f, "widget")

		require.NoError(t, f.Rollback())
		assert.Equal(t, types.ScopeRolledBack, f.State())
		assert.NoError(t, f.Rollback())
		assert.NoError(t, f.Commit())
		assert.Equal(t, 0, dbtest.Count(t, db))
	})

	t.Run("Should refuse to reopen a closed scope", func(t *testing.T) {
		f := dbtest.Scope(t, dbtest.OpenProducts(t))
		_, err := f.Tx(ctx)
		require.NoError(t, err)
		require.NoError(t, f.Commit())

		_, err = f.Conn(ctx)
		assert.ErrorIs(t, err, database.ErrScopeClosed)
		_, err = f.Tx(ctx)
		assert.ErrorIs(t, err, database.ErrScopeClosed)
	})

	t.Run("Should swallow commit on a transaction released behind its back", func(t *testing.T) {
		db := dbtest.OpenProducts(t)
		f := dbtest.Scope(t, db)
		insertProduct(t, f, "widget")
		tx, err := f.Tx(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Rollback())

		assert.NoError(t, f.Commit())
		assert.Equal(t, types.ScopeCommitted, f.State())
		assert.Equal(t, 0, dbtest.Count(t, db))
	})

	t.Run("Should report ErrNotConnected without a pool", func(t *testing.T) {
		f := database.NewConnectionFactory(nil, false, nil)
		_, err := f.Conn(ctx)
		assert.ErrorIs(t, err, database.ErrNotConnected)
	})
}

func TestConnectionFactory_Close(t *testing.T) {
	ctx := context.Background()

	t.Run("Should commit pending work on close", func(t *testing.T) {
		db := dbtest.OpenProducts(t)
		f := database.NewConnectionFactory(db, false, nil)
		insertProduct(t, f, "widget")

		require.NoError(t, f.Close())
		assert.Equal(t, types.ScopeDisposed, f.State())
		assert.Equal(t, 1, dbtest.Count(t, db))
	})

	t.Run("Should treat a second close as a silent no-op", func(t *testing.T) {
		f := database.NewConnectionFactory(dbtest.OpenProducts(t), false, nil)
		_, err := f.Tx(ctx)
		require.NoError(t, err)

		require.NoError(t, f.Close())
		assert.NoError(t, f.Close())
		assert.Equal(t, types.ScopeDisposed, f.State())
		assert.NoError(t, f.Commit())
		assert.NoError(t, f.Rollback())
	})

	t.Run("Should close after an explicit rollback without committing", func(t *testing.T) {
		db := dbtest.OpenProducts(t)
		f := database.NewConnectionFactory(db, false, nil)
		insertProduct(t, f, "widget")
		require.NoError(t, f.Rollback())

		require.NoError(t, f.Close())
		assert.Equal(t, 0, dbtest.Count(t, db))
	})
}

func TestConnectionFactory_Profile(t *testing.T) {
	t.Run("Should count statements issued through the scope", func(t *testing.T) {
		f := dbtest.Scope(t, dbtest.OpenProducts(t))
		insertProduct(t, f, "widget")
		before := f.Profile().Queries
		assert.Positive(t, before)

		insertProduct(t, f, "gadget")
		stats := f.Profile()
		assert.Equal(t, before+1, stats.Queries)
		assert.Zero(t, stats.Failed)
		assert.Contains(t, stats.LastQuery, "INSERT")
	})

	t.Run("Should record nothing when profiling is off", func(t *testing.T) {
		f := database.NewConnectionFactory(dbtest.OpenProducts(t), false, nil)
		defer f.Close()
		insertProduct(t, f, "widget")
		assert.Equal(t, database.ProfileStats{}, f.Profile())
	})
}
