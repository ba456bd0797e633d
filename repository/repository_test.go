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

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/repokit/database"
	"github.com/tomoncle/repokit/internal/dbtest"
	"github.com/tomoncle/repokit/repository"
	"github.com/tomoncle/repokit/types"
	"github.com/uptrace/bun"
)

type Product = dbtest.Product

// ticket has columns named after SQL keywords.
type ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Order string `bun:"order"`
	Group string `bun:"group"`
}

func (t *ticket) PrimaryKey() int64 { return t.ID }

func newRepo(t *testing.T) (repository.Repository[Product], *database.ConnectionFactory) {
	t.Helper()
	f := dbtest.Scope(t, dbtest.OpenProducts(t))
	return repository.NewRepository[Product](f), f
}

func seed(t *testing.T, repo repository.Repository[Product], names ...string) []*Product {
	t.Helper()
	products := make([]*Product, len(names))
	for i, name := range names {
		products[i] = &Product{Name: name, Price: float64(i + 1)}
		_, err := repo.Insert(context.Background(), products[i])
		require.NoError(t, err)
	}
	return products
}

func TestRepository_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("Should insert a new entity and return the generated key", func(t *testing.T) {
		db := dbtest.OpenProducts(t)
		f := database.NewConnectionFactory(db, true, nil)
		repo := repository.NewRepository[Product](f)

		p := &Product{Name: "widget", Price: 9.5}
		key, err := repo.Save(ctx, p)
		require.NoError(t, err)
		assert.Positive(t, key)
		assert.Equal(t, key, p.ID)

		got, err := repo.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, *p, *got)

		require.NoError(t, f.Commit())
		assert.NoError(t, f.Commit())
		assert.Equal(t, 1, dbtest.Count(t, db))
	})

	t.Run("Should update an existing entity and return its key unchanged", func(t *testing.T) {
		repo, _ := newRepo(t)
		p := seed(t, repo, "widget")[0]
		p.Name = "gizmo"

		key, err := repo.Save(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, p.ID, key)

		got, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "gizmo", got.Name)
		n, err := repo.RecordCount(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Should reject a nil entity", func(t *testing.T) {
		repo, _ := newRepo(t)
		_, err := repo.Save(ctx, nil)
		assert.ErrorIs(t, err, database.ErrInvalidArgument)
	})
}

func TestRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("Should return nil without error for a missing key", func(t *testing.T) {
		repo, _ := newRepo(t)
		got, err := repo.Get(ctx, int64(42))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Should resolve asynchronously", func(t *testing.T) {
		repo, _ := newRepo(t)
		p := seed(t, repo, "widget")[0]
		got, err := repo.GetAsync(ctx, p.ID).Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, "widget", got.Name)
	})
}

func TestRepository_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("Should report rows affected", func(t *testing.T) {
		repo, _ := newRepo(t)
		p := seed(t, repo, "widget")[0]
		p.Price = 20

		n, err := repo.UpdateAsync(ctx, p).Await(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		n, err = repo.Update(ctx, &Product{ID: 999, Name: "ghost"})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestRepository_Upsert(t *testing.T) {
	t.Run("Should update fields of conflicting rows", func(t *testing.T) {
		ctx := context.Background()
		repo, _ := newRepo(t)
		p := seed(t, repo, "widget")[0]

		_, err := repo.Upsert(ctx, []string{"name", "price"}, nil,
			&Product{ID: p.ID, Name: "renamed", Price: 3},
			&Product{Name: "fresh", Price: 4},
		)
		require.NoError(t, err)

		got, err := repo.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", got.Name)
		n, err := repo.RecordCount(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("Should quote columns named after keywords", func(t *testing.T) {
		ctx := context.Background()
		f := dbtest.Scope(t, dbtest.Open(t, (*ticket)(nil)))
		repo := repository.NewRepository[ticket](f)
		tk := &ticket{Order: "first", Group: "red"}
		_, err := repo.Insert(ctx, tk)
		require.NoError(t, err)

		_, err = repo.Upsert(ctx, []string{"order", "group"}, []string{"id"},
			&ticket{ID: tk.ID, Order: "second", Group: "blue"},
		)
		require.NoError(t, err)

		got, err := repo.Get(ctx, tk.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "second", got.Order)
		assert.Equal(t, "blue", got.Group)
	})
}

func TestRepository_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("Should fail fast without issuing a statement", func(t *testing.T) {
		repo, f := newRepo(t)
		seed(t, repo, "widget")
		before := f.Profile().Queries

		for _, id := range []int64{0, -1, -100} {
			_, err := repo.DeleteByID(ctx, id)
			assert.ErrorIs(t, err, database.ErrInvalidArgument)
		}
		_, err := repo.Delete(ctx, nil)
		assert.ErrorIs(t, err, database.ErrInvalidArgument)
		_, err = repo.DeleteList(ctx, nil)
		assert.ErrorIs(t, err, database.ErrInvalidArgument)
		_, err = repo.DeleteList(ctx, squirrel.Eq{})
		assert.ErrorIs(t, err, database.ErrInvalidArgument)
		for _, cond := range []string{"", "   ", "WHERE ", "where"} {
			_, err = repo.DeleteListRaw(ctx, cond)
			assert.ErrorIs(t, err, database.ErrInvalidArgument)
		}
		_, err = repo.DeleteByIDAsync(ctx, 0).Await(ctx)
		assert.ErrorIs(t, err, database.ErrInvalidArgument)
		_, err = repo.DeleteListAsync(ctx, nil).Await(ctx)
		assert.ErrorIs(t, err, database.ErrInvalidArgument)
		_, err = repo.DeleteEntitiesAsync(ctx, nil)
		assert.ErrorIs(t, err, database.ErrInvalidArgument)

		assert.Equal(t, before, f.Profile().Queries)
	})

	t.Run("Should delete by entity, key and conditions", func(t *testing.T) {
		repo, _ := newRepo(t)
		ps := seed(t, repo, "a", "b", "c", "d", "e")

		n, err := repo.Delete(ctx, ps[0])
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		n, err = repo.DeleteByID(ctx, ps[1].ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		n, err = repo.DeleteList(ctx, squirrel.Eq{"name": []string{"c", "d"}})
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		n, err = repo.DeleteListRaw(ctx, "price > ?", 100)
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = repo.DeleteListRaw(ctx, "WHERE price > ?", 100)
		require.NoError(t, err)
		assert.Zero(t, n)

		left, err := repo.GetList(ctx)
		require.NoError(t, err)
		require.Len(t, left, 1)
		assert.Equal(t, "e", left[0].Name)
	})

	t.Run("Should delete each entity in its own future", func(t *testing.T) {
		repo, _ := newRepo(t)
		ps := seed(t, repo, "a", "b", "c")

		futures, err := repo.DeleteEntitiesAsync(ctx, ps[:2])
		require.NoError(t, err)
		require.Len(t, futures, 2)
		counts, err := types.AwaitAll(ctx, futures)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 1}, counts)

		n, err := repo.RecordCountAsync(ctx, "").Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestRepository_Query(t *testing.T) {
	ctx := context.Background()

	t.Run("Should run squirrel builders", func(t *testing.T) {
		repo, _ := newRepo(t)
		seed(t, repo, "a", "b", "c")

		got, err := repo.Query(ctx, squirrel.Select("*").From("products").
			Where(squirrel.Gt{"price": 1}).OrderBy("price DESC"))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "c", got[0].Name)

		n, err := repo.QueryCount(ctx, squirrel.Select("COUNT(*)").From("products"))
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
	})

	t.Run("Should fail a count that does not return exactly one row", func(t *testing.T) {
		repo, _ := newRepo(t)
		seed(t, repo, "a", "b")

		_, err := repo.QueryCount(ctx, squirrel.Select("COUNT(*)").From("products").GroupBy("name"))
		assert.ErrorIs(t, err, database.ErrUnexpectedRowCount)
		_, err = repo.QueryCount(ctx, squirrel.Select("COUNT(*)").From("products").
			Where(squirrel.Eq{"name": "zzz"}).GroupBy("name"))
		assert.ErrorIs(t, err, database.ErrUnexpectedRowCount)
	})

	t.Run("Should run raw SQL and query objects", func(t *testing.T) {
		repo, _ := newRepo(t)
		seed(t, repo, "a", "b", "c")

		got, err := repo.QuerySQL(ctx, "SELECT * FROM products WHERE name = ?", "b")
		require.NoError(t, err)
		require.Len(t, got, 1)

		qo, err := repository.NewQueryObject("SELECT * FROM products WHERE price >= ?", 2)
		require.NoError(t, err)
		got, err = repo.QueryObject(ctx, qo)
		require.NoError(t, err)
		assert.Len(t, got, 2)

		update, err := repository.NewQueryObject("UPDATE products SET price = price * ?", 10)
		require.NoError(t, err)
		n, err := repo.Execute(ctx, update)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		_, err = repo.QuerySQL(ctx, " ")
		assert.ErrorIs(t, err, database.ErrInvalidArgument)
		_, err = repo.Execute(ctx, repository.QueryObject{})
		assert.ErrorIs(t, err, database.ErrInvalidArgument)
	})

	t.Run("Should return dynamic rows keyed by column", func(t *testing.T) {
		repo, _ := newRepo(t)
		seed(t, repo, "a", "b")

		rows, err := repo.QueryDynamic(ctx, "SELECT name, price FROM products ORDER BY name")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		name, ok := rows[1].String("name")
		assert.True(t, ok)
		assert.Equal(t, "b", name)
		assert.ElementsMatch(t, []string{"name", "price"}, rows[0].Columns())
	})

	t.Run("Should merge two entities read from one row", func(t *testing.T) {
		repo, _ := newRepo(t)
		seed(t, repo, "a", "b")
		merge := func(first, second *Product) *Product {
			first.Name = first.Name + "/" + second.Name
			return first
		}
		query := "SELECT p.id, p.name, p.price, q.id, q.name, q.price FROM products p " +
			"JOIN products q ON q.id = p.id + 1"

		got, err := repo.QueryMerge(ctx, query, merge)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a/b", got[0].Name)

		rows, err := repo.QueryDynamicMerge(ctx, query, merge)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "a/b", rows[0]["name"])

		_, err = repo.QueryMerge(ctx, "SELECT id, name FROM products", merge)
		assert.ErrorIs(t, err, database.ErrInvalidArgument)
	})
}

func TestRepository_GetList(t *testing.T) {
	ctx := context.Background()

	t.Run("Should filter with maps and raw conditions", func(t *testing.T) {
		repo, _ := newRepo(t)
		seed(t, repo, "a", "b", "c")

		all, err := repo.GetListWhere(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		got, err := repo.GetListWhereAsync(ctx, squirrel.Eq{"name": "b"}).Await(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)

		got, err = repo.GetListRawAsync(ctx, "price < ?", 3).Await(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = repo.GetListAsync(ctx).Await(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("Should accept raw conditions with a leading WHERE", func(t *testing.T) {
		repo, _ := newRepo(t)
		seed(t, repo, "a", "b", "c")

		got, err := repo.GetListRaw(ctx, "WHERE name = 'a'")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].Name)

		n, err := repo.RecordCount(ctx, "WHERE name = 'a'")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		n, err = repo.RecordCount(ctx, "name = 'a'")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err = repo.GetListPaged(ctx, 1, 10, "where price > 1", "name DESC")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "c", got[0].Name)

		deleted, err := repo.DeleteListRaw(ctx, "where name = ?", "a")
		require.NoError(t, err)
		assert.EqualValues(t, 1, deleted)
		n, err = repo.RecordCount(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("Should page with defaults for out of range arguments", func(t *testing.T) {
		repo, _ := newRepo(t)
		names := make([]string, 12)
		for i := range names {
			names[i] = string(rune('a' + i))
		}
		seed(t, repo, names...)

		got, err := repo.GetListPaged(ctx, 2, 5, "", "price DESC")
		require.NoError(t, err)
		require.Len(t, got, 5)
		assert.Equal(t, "g", got[0].Name)

		got, err = repo.GetListPagedAsync(ctx, 0, 0, "price > 1", "name").Await(ctx)
		require.NoError(t, err)
		require.Len(t, got, types.DefaultPageSize)
		assert.Equal(t, "b", got[0].Name)

		page, err := repo.Page(ctx, types.NewPageRequestFromClauses(3, 5, "", "id"))
		require.NoError(t, err)
		assert.Equal(t, 12, page.Total)
		assert.Equal(t, 3, page.TotalPages())
		assert.Len(t, page.Items, 2)
	})

	t.Run("Should pass order clauses through verbatim", func(t *testing.T) {
		repo, _ := newRepo(t)
		seed(t, repo, "a", "?", "c")

		page, err := repo.Page(ctx, types.NewPageRequest(1, 5, nil, []string{"name = '?' DESC", "id"}))
		require.NoError(t, err)
		require.Len(t, page.Items, 3)
		assert.Equal(t, "?", page.Items[0].Name)
		assert.Equal(t, "a", page.Items[1].Name)
	})
}

func TestRepository_ExecuteSp(t *testing.T) {
	t.Run("Should report stored procedures as unsupported on SQLite", func(t *testing.T) {
		ctx := context.Background()
		repo, _ := newRepo(t)
		_, err := repo.ExecuteSp(ctx, "refresh_totals", 1)
		assert.ErrorIs(t, err, database.ErrUnsupported)
		_, err = repo.ExecuteSp(ctx, "")
		assert.ErrorIs(t, err, database.ErrInvalidArgument)
	})
}

func TestTypedQueries(t *testing.T) {
	ctx := context.Background()

	t.Run("Should scan into arbitrary row types", func(t *testing.T) {
		repo, _ := newRepo(t)
		seed(t, repo, "a", "b")

		names, err := repository.QueryInto[string](ctx, repo, "SELECT name FROM products ORDER BY name")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, names)

		type summary struct {
			Name  string  `bun:"name"`
			Price float64 `bun:"price"`
		}
		rows, err := repository.QueryIntoWithTimeout[summary](ctx, repo, "SELECT name, price FROM products WHERE name = ?", time.Second, "b")
		require.NoError(t, err)
		assert.Equal(t, []summary{{Name: "b", Price: 2}}, rows)

		_, err = repository.QueryIntoWithTimeout[summary](ctx, repo, "SELECT 1", 0)
		assert.ErrorIs(t, err, database.ErrInvalidArgument)
	})

	t.Run("Should return a single scalar", func(t *testing.T) {
		repo, _ := newRepo(t)
		seed(t, repo, "a", "b")

		total, err := repository.ExecuteScalar[float64](ctx, repo, "SELECT SUM(price) FROM products")
		require.NoError(t, err)
		assert.Equal(t, 3.0, total)
	})

	t.Run("Should insert with an explicitly typed key", func(t *testing.T) {
		repo, _ := newRepo(t)
		key, err := repository.InsertAs[int64](ctx, repo, &Product{Name: "widget"})
		require.NoError(t, err)
		assert.Positive(t, key)

		key2, err := repository.InsertAsAsync[int64](ctx, repo, &Product{Name: "gadget"}).Await(ctx)
		require.NoError(t, err)
		assert.Greater(t, key2, key)
	})
}
