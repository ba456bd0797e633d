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

// Package dbtest opens throwaway SQLite databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tomoncle/repokit/database"
	"github.com/uptrace/bun"
)

// Product is the entity used across package tests.
type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID    int64   `bun:"id,pk,autoincrement"`
	Name  string  `bun:"name,notnull"`
	Price float64 `bun:"price"`
}

func (p *Product) PrimaryKey() int64 { return p.ID }

func (p *Product) Key() int64 { return p.ID }

// Config returns a profiled SQLite configuration backed by a file in the
// test's temporary directory.
func Config(t testing.TB) *database.ConnectionConfig {
	cfg := database.DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.ConnectionString = filepath.Join(t.TempDir(), "repokit.db")
	cfg.EnableProfiling = true
	cfg.SlowQueryTime = 0
	return cfg
}

// Open connects to a fresh database, creates tables for models and closes
// the pool when the test ends.
func Open(t testing.TB, models ...interface{}) *bun.DB {
	t.Helper()
	ctx := context.Background()
	manager := database.NewManager(Config(t), nil)
	require.NoError(t, manager.Connect(ctx))
	t.Cleanup(func() { _ = manager.Disconnect() })

	db := manager.DB()
	if len(models) > 0 {
		require.NoError(t, database.CreateTables(ctx, db, models...))
	}
	return db
}

// OpenProducts is Open with the products table created.
func OpenProducts(t testing.TB) *bun.DB {
	return Open(t, (*Product)(nil))
}

// Scope returns a profiled ConnectionFactory over db that is closed when the
// test ends.
func Scope(t testing.TB, db *bun.DB) *database.ConnectionFactory {
	f := database.NewConnectionFactory(db, true, nil)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

// Count returns the number of products visible outside any scope.
func Count(t testing.TB, db *bun.DB) int {
	t.Helper()
	n, err := db.NewSelect().Model((*Product)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}
