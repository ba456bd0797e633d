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
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/tomoncle/repokit/database"
	"github.com/tomoncle/repokit/types"
)

// async opens the scope transaction on the caller's goroutine, then runs fn
// on its own. Lazy acquisition never races with the spawned operation.
func async[V any, T any, PT EntityPtr[T]](ctx context.Context, r *baseRepositoryImpl[T, PT], fn func() (V, error)) *types.Future[V] {
	if _, _, err := r.tx(ctx); err != nil {
		return types.Failed[V](err)
	}
	return types.Go(fn)
}

func (r *baseRepositoryImpl[T, PT]) GetAsync(ctx context.Context, id any) *types.Future[*T] {
	return async(ctx, r, func() (*T, error) { return r.Get(ctx, id) })
}

func (r *baseRepositoryImpl[T, PT]) SaveAsync(ctx context.Context, entity *T) *types.Future[int64] {
	if entity == nil {
		return types.Failed[int64](fmt.Errorf("%w: entity is nil", database.ErrInvalidArgument))
	}
	return async(ctx, r, func() (int64, error) { return r.Save(ctx, entity) })
}

func (r *baseRepositoryImpl[T, PT]) InsertAsync(ctx context.Context, entity *T) *types.Future[int64] {
	if entity == nil {
		return types.Failed[int64](fmt.Errorf("%w: entity is nil", database.ErrInvalidArgument))
	}
	return async(ctx, r, func() (int64, error) { return r.Insert(ctx, entity) })
}

// UpdateAsync resolves to the number of rows affected.
func (r *baseRepositoryImpl[T, PT]) UpdateAsync(ctx context.Context, entity *T) *types.Future[int64] {
	if entity == nil {
		return types.Failed[int64](fmt.Errorf("%w: entity is nil", database.ErrInvalidArgument))
	}
	return async(ctx, r, func() (int64, error) { return r.Update(ctx, entity) })
}

func (r *baseRepositoryImpl[T, PT]) DeleteAsync(ctx context.Context, entity *T) *types.Future[int64] {
	if entity == nil {
		return types.Failed[int64](fmt.Errorf("%w: entity is nil", database.ErrInvalidArgument))
	}
	return async(ctx, r, func() (int64, error) { return r.Delete(ctx, entity) })
}

func (r *baseRepositoryImpl[T, PT]) DeleteByIDAsync(ctx context.Context, id int64) *types.Future[int64] {
	if id <= 0 {
		return types.Failed[int64](fmt.Errorf("%w: id must be positive, got %d", database.ErrInvalidArgument, id))
	}
	return async(ctx, r, func() (int64, error) { return r.DeleteByID(ctx, id) })
}

func (r *baseRepositoryImpl[T, PT]) DeleteListAsync(ctx context.Context, where squirrel.Eq) *types.Future[int64] {
	if len(where) == 0 {
		return types.Failed[int64](fmt.Errorf("%w: delete conditions are empty", database.ErrInvalidArgument))
	}
	return async(ctx, r, func() (int64, error) { return r.DeleteList(ctx, where) })
}

// DeleteEntitiesAsync deletes each entity on its own goroutine and returns
// one future per entity, in order. An empty list is rejected.
func (r *baseRepositoryImpl[T, PT]) DeleteEntitiesAsync(ctx context.Context, entities []*T) ([]*types.Future[int64], error) {
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: no entities to delete", database.ErrInvalidArgument)
	}
	futures := make([]*types.Future[int64], len(entities))
	for i, entity := range entities {
		futures[i] = r.DeleteAsync(ctx, entity)
	}
	return futures, nil
}

func (r *baseRepositoryImpl[T, PT]) GetListAsync(ctx context.Context) *types.Future[[]*T] {
	return async(ctx, r, func() ([]*T, error) { return r.GetList(ctx) })
}

func (r *baseRepositoryImpl[T, PT]) GetListWhereAsync(ctx context.Context, where squirrel.Eq) *types.Future[[]*T] {
	return async(ctx, r, func() ([]*T, error) { return r.GetListWhere(ctx, where) })
}

func (r *baseRepositoryImpl[T, PT]) GetListRawAsync(ctx context.Context, conditions string, args ...any) *types.Future[[]*T] {
	return async(ctx, r, func() ([]*T, error) { return r.GetListRaw(ctx, conditions, args...) })
}

func (r *baseRepositoryImpl[T, PT]) GetListPagedAsync(ctx context.Context, pageNumber, rowsPerPage int, conditions, orderBy string) *types.Future[[]*T] {
	return async(ctx, r, func() ([]*T, error) {
		return r.GetListPaged(ctx, pageNumber, rowsPerPage, conditions, orderBy)
	})
}

func (r *baseRepositoryImpl[T, PT]) RecordCountAsync(ctx context.Context, conditions string, args ...any) *types.Future[int] {
	return async(ctx, r, func() (int, error) { return r.RecordCount(ctx, conditions, args...) })
}
