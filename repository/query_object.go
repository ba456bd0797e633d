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
	"fmt"
	"strings"

	"github.com/tomoncle/repokit/database"
)

// QueryObject is an immutable SQL text with its bound parameters.
type QueryObject struct {
	sql    string
	params []any
}

// NewQueryObject validates sql and captures a copy of params.
func NewQueryObject(sql string, params ...any) (QueryObject, error) {
	if strings.TrimSpace(sql) == "" {
		return QueryObject{}, fmt.Errorf("%w: sql is empty", database.ErrInvalidArgument)
	}
	return QueryObject{sql: sql, params: append([]any(nil), params...)}, nil
}

func (q QueryObject) SQL() string { return q.sql }

// Params returns a copy of the bound parameters.
func (q QueryObject) Params() []any { return append([]any(nil), q.params...) }

// IsZero reports whether q was not built by NewQueryObject.
func (q QueryObject) IsZero() bool { return q.sql == "" }

func (q QueryObject) String() string {
	return fmt.Sprintf("%s %v", q.sql, q.params)
}
