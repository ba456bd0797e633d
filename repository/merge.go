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
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/tomoncle/repokit/database"
	"github.com/tomoncle/repokit/types"
)

// QueryMerge reads rows holding two entities side by side. The columns are
// split at the second occurrence of the primary key column; each half is
// decoded into a T and merge folds the pair into one result.
func (r *baseRepositoryImpl[T, PT]) QueryMerge(ctx context.Context, query string, merge MergeFunc[T], args ...any) ([]*T, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: sql is empty", database.ErrInvalidArgument)
	}
	if merge == nil {
		return nil, fmt.Errorf("%w: merge function is nil", database.ErrInvalidArgument)
	}
	pk, err := r.pkColumn()
	if err != nil {
		return nil, err
	}
	ctx, tx, err := r.tx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	split := splitIndex(columns, pk)
	if split < 0 {
		return nil, fmt.Errorf("%w: split column %q does not appear twice in %v", database.ErrInvalidArgument, pk, columns)
	}

	results := make([]*T, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err = rows.Scan(dest...); err != nil {
			return nil, err
		}
		first, err := decodeEntity[T](columns[:split], values[:split])
		if err != nil {
			return nil, err
		}
		second, err := decodeEntity[T](columns[split:], values[split:])
		if err != nil {
			return nil, err
		}
		results = append(results, merge(first, second))
	}
	return results, rows.Err()
}

// QueryDynamicMerge is QueryMerge with the merged entities returned as rows
// keyed by column name.
func (r *baseRepositoryImpl[T, PT]) QueryDynamicMerge(ctx context.Context, query string, merge MergeFunc[T], args ...any) ([]types.Row, error) {
	entities, err := r.QueryMerge(ctx, query, merge, args...)
	if err != nil {
		return nil, err
	}
	table := r.table()
	rows := make([]types.Row, 0, len(entities))
	for _, entity := range entities {
		if entity == nil {
			continue
		}
		strct := reflect.ValueOf(entity).Elem()
		row := make(types.Row, len(table.Fields))
		for _, field := range table.Fields {
			row[field.Name] = field.Value(strct).Interface()
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// splitIndex returns the position of the second column named key.
func splitIndex(columns []string, key string) int {
	seen := false
	for i, col := range columns {
		if !strings.EqualFold(col, key) {
			continue
		}
		if seen {
			return i
		}
		seen = true
	}
	return -1
}

func decodeEntity[T any](columns []string, values []any) (*T, error) {
	input := make(map[string]any, len(columns))
	for i, col := range columns {
		if values[i] == nil {
			continue
		}
		input[col] = values[i]
	}
	entity := new(T)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "bun",
		WeaklyTypedInput: true,
		Result:           entity,
		MatchName:        matchColumn,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			bytesToStringHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return nil, err
	}
	if err = decoder.Decode(input); err != nil {
		return nil, fmt.Errorf("failed to map row into %T: %w", entity, err)
	}
	return entity, nil
}

// matchColumn matches snake_case columns to Go field names.
func matchColumn(mapKey, fieldName string) bool {
	return strings.EqualFold(strings.ReplaceAll(mapKey, "_", ""), strings.ReplaceAll(fieldName, "_", ""))
}

func bytesToStringHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if b, ok := data.([]byte); ok && to.Kind() != reflect.Slice {
		return string(b), nil
	}
	return data, nil
}
