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

	"github.com/Masterminds/squirrel"
	"github.com/tomoncle/repokit/database"
	"github.com/tomoncle/repokit/types"
)

// Entity is a row type that declares its integer primary key. A zero key
// means the row has not been inserted yet.
type Entity interface {
	PrimaryKey() int64
}

// EntityPtr constrains a repository's pointer type to entities.
type EntityPtr[T any] interface {
	*T
	Entity
}

// KeyedEntity exposes a primary key of an explicit type for InsertAs.
type KeyedEntity[K any] interface {
	Key() K
}

// MergeFunc folds the two entities read from one row of a split query.
type MergeFunc[T any] func(first, second *T) *T

// CrudRepository defines single-entity reads and writes.
type CrudRepository[T any] interface {
	Get(ctx context.Context, id any) (*T, error)
	Save(ctx context.Context, entity *T) (int64, error)
	Insert(ctx context.Context, entity *T) (int64, error)
	Update(ctx context.Context, entity *T) (int64, error)
	Upsert(ctx context.Context, fields []string, conflictKeys []string, entities ...*T) (int64, error)
	Delete(ctx context.Context, entity *T) (int64, error)
	DeleteByID(ctx context.Context, id int64) (int64, error)
	DeleteList(ctx context.Context, where squirrel.Eq) (int64, error)
	DeleteListRaw(ctx context.Context, conditions string, args ...any) (int64, error)
}

// QueryRepository defines reads over sets of rows.
type QueryRepository[T any] interface {
	Query(ctx context.Context, query squirrel.Sqlizer) ([]*T, error)
	QueryCount(ctx context.Context, query squirrel.Sqlizer) (int64, error)
	QuerySQL(ctx context.Context, query string, args ...any) ([]*T, error)
	QueryObject(ctx context.Context, query QueryObject) ([]*T, error)
	QueryMerge(ctx context.Context, query string, merge MergeFunc[T], args ...any) ([]*T, error)
	QueryDynamic(ctx context.Context, query string, args ...any) ([]types.Row, error)
	QueryDynamicMerge(ctx context.Context, query string, merge MergeFunc[T], args ...any) ([]types.Row, error)
	Execute(ctx context.Context, query QueryObject) (int64, error)
	GetList(ctx context.Context) ([]*T, error)
	GetListWhere(ctx context.Context, where squirrel.Eq) ([]*T, error)
	GetListRaw(ctx context.Context, conditions string, args ...any) ([]*T, error)
	GetListPaged(ctx context.Context, pageNumber, rowsPerPage int, conditions, orderBy string) ([]*T, error)
	RecordCount(ctx context.Context, conditions string, args ...any) (int, error)
	ExecuteSp(ctx context.Context, name string, args ...any) (types.Row, error)
}

// PageQueryRepository returns a page together with the total row count.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// AsyncRepository runs operations on their own goroutine. The scope's
// transaction is acquired before the goroutine starts; argument errors are
// returned as already failed futures.
type AsyncRepository[T any] interface {
	GetAsync(ctx context.Context, id any) *types.Future[*T]
	SaveAsync(ctx context.Context, entity *T) *types.Future[int64]
	InsertAsync(ctx context.Context, entity *T) *types.Future[int64]
	UpdateAsync(ctx context.Context, entity *T) *types.Future[int64]
	DeleteAsync(ctx context.Context, entity *T) *types.Future[int64]
	DeleteByIDAsync(ctx context.Context, id int64) *types.Future[int64]
	DeleteListAsync(ctx context.Context, where squirrel.Eq) *types.Future[int64]
	DeleteEntitiesAsync(ctx context.Context, entities []*T) ([]*types.Future[int64], error)
	GetListAsync(ctx context.Context) *types.Future[[]*T]
	GetListWhereAsync(ctx context.Context, where squirrel.Eq) *types.Future[[]*T]
	GetListRawAsync(ctx context.Context, conditions string, args ...any) *types.Future[[]*T]
	GetListPagedAsync(ctx context.Context, pageNumber, rowsPerPage int, conditions, orderBy string) *types.Future[[]*T]
	RecordCountAsync(ctx context.Context, conditions string, args ...any) *types.Future[int]
}

// Repository is the uniform CRUD and query façade over one entity type. Every
// statement runs on the transaction of the scope it was built with.
type Repository[T any] interface {
	CrudRepository[T]
	QueryRepository[T]
	PageQueryRepository[T]
	AsyncRepository[T]
	Scope() *database.ConnectionFactory
}
