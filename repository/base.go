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
	"reflect"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/tomoncle/repokit/database"
	"github.com/tomoncle/repokit/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

type baseRepositoryImpl[T any, PT EntityPtr[T]] struct {
	factory *database.ConnectionFactory
}

// NewRepository returns a repository for T whose statements run inside the
// transaction owned by factory.
func NewRepository[T any, PT EntityPtr[T]](factory *database.ConnectionFactory) Repository[T] {
	return &baseRepositoryImpl[T, PT]{factory: factory}
}

func (r *baseRepositoryImpl[T, PT]) Scope() *database.ConnectionFactory { return r.factory }

// tx returns the scope transaction and a context carrying the scope profile.
func (r *baseRepositoryImpl[T, PT]) tx(ctx context.Context) (context.Context, bun.Tx, error) {
	if r.factory == nil {
		return ctx, bun.Tx{}, database.ErrNotConnected
	}
	tx, err := r.factory.Tx(ctx)
	if err != nil {
		return ctx, bun.Tx{}, err
	}
	return r.factory.Context(ctx), tx, nil
}

func (r *baseRepositoryImpl[T, PT]) table() *schema.Table {
	return r.factory.DB().Table(reflect.TypeFor[T]())
}

func (r *baseRepositoryImpl[T, PT]) pkColumn() (string, error) {
	if r.factory == nil || r.factory.DB() == nil {
		return "", database.ErrNotConnected
	}
	t := r.table()
	if len(t.PKs) == 0 {
		return "", fmt.Errorf("%w: model %s has no primary key", database.ErrInvalidArgument, t.Type)
	}
	return t.PKs[0].Name, nil
}

func (r *baseRepositoryImpl[T, PT]) Get(ctx context.Context, id any) (*T, error) {
	pk, err := r.pkColumn()
	if err != nil {
		return nil, err
	}
	ctx, tx, err := r.tx(ctx)
	if err != nil {
		return nil, err
	}
	entity := new(T)
	err = tx.NewSelect().Model(entity).Where("? = ?", bun.Ident(pk), id).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// Save inserts entity when its key is zero and updates it otherwise. The
// returned key is the generated one for inserts and the existing one for
// updates.
func (r *baseRepositoryImpl[T, PT]) Save(ctx context.Context, entity *T) (int64, error) {
	if entity == nil {
		return 0, fmt.Errorf("%w: entity is nil", database.ErrInvalidArgument)
	}
	key := PT(entity).PrimaryKey()
	if key == 0 {
		return r.Insert(ctx, entity)
	}
	if _, err := r.Update(ctx, entity); err != nil {
		return 0, err
	}
	return key, nil
}

// Insert writes entity and returns its generated key, or 0 when the table
// produced none. Bun fills the key field through RETURNING or LastInsertId.
func (r *baseRepositoryImpl[T, PT]) Insert(ctx context.Context, entity *T) (int64, error) {
	if entity == nil {
		return 0, fmt.Errorf("%w: entity is nil", database.ErrInvalidArgument)
	}
	ctx, tx, err := r.tx(ctx)
	if err != nil {
		return 0, err
	}
	if _, err = tx.NewInsert().Model(entity).Exec(ctx); err != nil {
		return 0, err
	}
	return PT(entity).PrimaryKey(), nil
}

func (r *baseRepositoryImpl[T, PT]) Update(ctx context.Context, entity *T) (int64, error) {
	if entity == nil {
		return 0, fmt.Errorf("%w: entity is nil", database.ErrInvalidArgument)
	}
	ctx, tx, err := r.tx(ctx)
	if err != nil {
		return 0, err
	}
	res, err := tx.NewUpdate().Model(entity).WherePK().Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Upsert inserts entities, updating fields on rows that collide on
// conflictKeys. MySQL ignores conflictKeys and uses the table's unique keys.
func (r *baseRepositoryImpl[T, PT]) Upsert(ctx context.Context, fields []string, conflictKeys []string, entities ...*T) (int64, error) {
	if len(fields) == 0 {
		return 0, fmt.Errorf("%w: fields cannot be empty", database.ErrInvalidArgument)
	}
	if len(entities) == 0 {
		return 0, fmt.Errorf("%w: no entities to upsert", database.ErrInvalidArgument)
	}
	ctx, tx, err := r.tx(ctx)
	if err != nil {
		return 0, err
	}
	query := tx.NewInsert().Model(&entities)
	switch {
	case r.factory.DB().HasFeature(feature.InsertOnConflict):
		if len(conflictKeys) == 0 {
			pk, err := r.pkColumn()
			if err != nil {
				return 0, err
			}
			conflictKeys = []string{pk}
		}
		query = query.On("CONFLICT ("+placeholders(len(conflictKeys))+") DO UPDATE", idents(conflictKeys)...)
		for _, field := range fields {
			query = query.Set("? = EXCLUDED.?", bun.Ident(field), bun.Ident(field))
		}
	case r.factory.DB().HasFeature(feature.InsertOnDuplicateKey):
		sets := make([]string, len(fields))
		args := make([]any, 0, 2*len(fields))
		for i, field := range fields {
			sets[i] = "? = VALUES(?)"
			args = append(args, bun.Ident(field), bun.Ident(field))
		}
		query = query.On("DUPLICATE KEY UPDATE "+strings.Join(sets, ", "), args...)
	default:
		return 0, fmt.Errorf("%w: upsert on dialect %s", database.ErrUnsupported, r.factory.DB().Dialect().Name())
	}
	res, err := query.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *baseRepositoryImpl[T, PT]) Delete(ctx context.Context, entity *T) (int64, error) {
	if entity == nil {
		return 0, fmt.Errorf("%w: entity is nil", database.ErrInvalidArgument)
	}
	ctx, tx, err := r.tx(ctx)
	if err != nil {
		return 0, err
	}
	res, err := tx.NewDelete().Model(entity).WherePK().Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *baseRepositoryImpl[T, PT]) DeleteByID(ctx context.Context, id int64) (int64, error) {
	if id <= 0 {
		return 0, fmt.Errorf("%w: id must be positive, got %d", database.ErrInvalidArgument, id)
	}
	pk, err := r.pkColumn()
	if err != nil {
		return 0, err
	}
	ctx, tx, err := r.tx(ctx)
	if err != nil {
		return 0, err
	}
	res, err := tx.NewDelete().Model((*T)(nil)).Where("? = ?", bun.Ident(pk), id).Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteList deletes the rows matching every column/value pair in where.
func (r *baseRepositoryImpl[T, PT]) DeleteList(ctx context.Context, where squirrel.Eq) (int64, error) {
	if len(where) == 0 {
		return 0, fmt.Errorf("%w: delete conditions are empty", database.ErrInvalidArgument)
	}
	cond, args, err := where.ToSql()
	if err != nil {
		return 0, err
	}
	return r.deleteWhere(ctx, cond, args...)
}

// DeleteListRaw deletes the rows matching a raw condition. The condition may
// be written with or without a leading WHERE; a blank one is rejected.
func (r *baseRepositoryImpl[T, PT]) DeleteListRaw(ctx context.Context, conditions string, args ...any) (int64, error) {
	if conditions = types.TrimWhere(conditions); conditions == "" {
		return 0, fmt.Errorf("%w: delete conditions are empty", database.ErrInvalidArgument)
	}
	return r.deleteWhere(ctx, conditions, args...)
}

func (r *baseRepositoryImpl[T, PT]) deleteWhere(ctx context.Context, conditions string, args ...any) (int64, error) {
	ctx, tx, err := r.tx(ctx)
	if err != nil {
		return 0, err
	}
	res, err := tx.NewDelete().Model((*T)(nil)).Where(conditions, args...).Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Query runs a squirrel builder with the default "?" placeholder format.
func (r *baseRepositoryImpl[T, PT]) Query(ctx context.Context, query squirrel.Sqlizer) ([]*T, error) {
	if query == nil {
		return nil, fmt.Errorf("%w: query is nil", database.ErrInvalidArgument)
	}
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	return r.QuerySQL(ctx, sqlStr, args...)
}

// QueryCount runs query and returns its single integer value. Anything other
// than exactly one row is an error.
func (r *baseRepositoryImpl[T, PT]) QueryCount(ctx context.Context, query squirrel.Sqlizer) (int64, error) {
	if query == nil {
		return 0, fmt.Errorf("%w: query is nil", database.ErrInvalidArgument)
	}
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}
	rows, err := r.QueryDynamic(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	if len(rows) != 1 {
		return 0, fmt.Errorf("%w: count query returned %d rows", database.ErrUnexpectedRowCount, len(rows))
	}
	cols := rows[0].Columns()
	if len(cols) != 1 {
		return 0, fmt.Errorf("%w: count query returned %d columns", database.ErrUnexpectedRowCount, len(cols))
	}
	n, ok := rows[0].Int64(cols[0])
	if !ok {
		return 0, fmt.Errorf("count column %s is not an integer: %v", cols[0], rows[0][cols[0]])
	}
	return n, nil
}

func (r *baseRepositoryImpl[T, PT]) QuerySQL(ctx context.Context, query string, args ...any) ([]*T, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: sql is empty", database.ErrInvalidArgument)
	}
	ctx, tx, err := r.tx(ctx)
	if err != nil {
		return nil, err
	}
	entities := make([]*T, 0)
	if err = tx.NewRaw(query, args...).Scan(ctx, &entities); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T, PT]) QueryObject(ctx context.Context, query QueryObject) ([]*T, error) {
	if query.IsZero() {
		return nil, fmt.Errorf("%w: query object is empty", database.ErrInvalidArgument)
	}
	return r.QuerySQL(ctx, query.SQL(), query.Params()...)
}

// QueryDynamic returns rows as column name to value maps.
func (r *baseRepositoryImpl[T, PT]) QueryDynamic(ctx context.Context, query string, args ...any) ([]types.Row, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: sql is empty", database.ErrInvalidArgument)
	}
	ctx, tx, err := r.tx(ctx)
	if err != nil {
		return nil, err
	}
	var maps []map[string]interface{}
	if err = tx.NewRaw(query, args...).Scan(ctx, &maps); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	rows := make([]types.Row, len(maps))
	for i, m := range maps {
		rows[i] = normalizeRow(m)
	}
	return rows, nil
}

// Execute runs a statement that returns no rows and reports rows affected.
func (r *baseRepositoryImpl[T, PT]) Execute(ctx context.Context, query QueryObject) (int64, error) {
	if query.IsZero() {
		return 0, fmt.Errorf("%w: query object is empty", database.ErrInvalidArgument)
	}
	ctx, tx, err := r.tx(ctx)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, query.SQL(), query.Params()...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *baseRepositoryImpl[T, PT]) GetList(ctx context.Context) ([]*T, error) {
	return r.selectWhere(ctx, "")
}

// GetListWhere returns the rows matching where; an empty map returns all rows.
func (r *baseRepositoryImpl[T, PT]) GetListWhere(ctx context.Context, where squirrel.Eq) ([]*T, error) {
	if len(where) == 0 {
		return r.selectWhere(ctx, "")
	}
	cond, args, err := where.ToSql()
	if err != nil {
		return nil, err
	}
	return r.selectWhere(ctx, cond, args...)
}

// GetListRaw filters with a raw condition, with or without a leading WHERE.
// Blank conditions return all rows.
func (r *baseRepositoryImpl[T, PT]) GetListRaw(ctx context.Context, conditions string, args ...any) ([]*T, error) {
	return r.selectWhere(ctx, conditions, args...)
}

func (r *baseRepositoryImpl[T, PT]) selectWhere(ctx context.Context, conditions string, args ...any) ([]*T, error) {
	ctx, tx, err := r.tx(ctx)
	if err != nil {
		return nil, err
	}
	entities := make([]*T, 0)
	query := tx.NewSelect().Model(&entities)
	if conditions = types.TrimWhere(conditions); conditions != "" {
		query = query.Where(conditions, args...)
	}
	if err = query.Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

// GetListPaged returns one page of rows. Page numbers start at 1; a page
// below 1 or a size below 1 falls back to the defaults.
func (r *baseRepositoryImpl[T, PT]) GetListPaged(ctx context.Context, pageNumber, rowsPerPage int, conditions, orderBy string) ([]*T, error) {
	page, err := r.Page(ctx, types.NewPageRequestFromClauses(pageNumber, rowsPerPage, conditions, orderBy))
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (r *baseRepositoryImpl[T, PT]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	if pageRequest == nil {
		pageRequest = types.NewDefaultPageRequest(types.DefaultPage, types.DefaultPageSize)
	}
	ctx, tx, err := r.tx(ctx)
	if err != nil {
		return nil, err
	}
	entities := make([]*T, 0)
	query := tx.NewSelect().Model(&entities)
	if filter := pageRequest.GetFilter(); !filter.IsEmpty() {
		query = query.Where(types.TrimWhere(filter.Schema), filter.Args...)
	}
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := query.Count(ctx)
	if err != nil || total == 0 {
		return pagination, err
	}
	for _, order := range pageRequest.GetOrders() {
		query = query.OrderExpr("?", bun.Safe(order))
	}
	err = query.
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

// RecordCount counts rows matching a raw condition, with or without a leading
// WHERE. Blank conditions count all rows.
func (r *baseRepositoryImpl[T, PT]) RecordCount(ctx context.Context, conditions string, args ...any) (int, error) {
	ctx, tx, err := r.tx(ctx)
	if err != nil {
		return 0, err
	}
	query := tx.NewSelect().Model((*T)(nil))
	if conditions = types.TrimWhere(conditions); conditions != "" {
		query = query.Where(conditions, args...)
	}
	return query.Count(ctx)
}

// ExecuteSp calls a stored procedure and returns its first result row.
// SQLite has no stored procedures and reports ErrUnsupported.
func (r *baseRepositoryImpl[T, PT]) ExecuteSp(ctx context.Context, name string, args ...any) (types.Row, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: procedure name is empty", database.ErrInvalidArgument)
	}
	if r.factory == nil || r.factory.DB() == nil {
		return nil, database.ErrNotConnected
	}
	var stmt string
	switch r.factory.DB().Dialect().Name() {
	case dialect.MySQL:
		stmt = "CALL ?(" + placeholders(len(args)) + ")"
	case dialect.PG:
		stmt = "SELECT * FROM ?(" + placeholders(len(args)) + ")"
	default:
		return nil, fmt.Errorf("%w: stored procedures on %s", database.ErrUnsupported, r.factory.DB().Dialect().Name())
	}
	rows, err := r.QueryDynamic(ctx, stmt, append([]any{bun.Ident(name)}, args...)...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("stored procedure %s returned no rows: %w", name, sql.ErrNoRows)
	}
	return rows[0], nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// idents quotes column names for use as format arguments.
func idents(names []string) []any {
	out := make([]any, len(names))
	for i, name := range names {
		out[i] = bun.Ident(name)
	}
	return out
}

// normalizeRow turns driver byte slices into strings so rows compare and
// print naturally.
func normalizeRow(m map[string]interface{}) types.Row {
	row := make(types.Row, len(m))
	for k, v := range m {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		row[k] = v
	}
	return row
}
