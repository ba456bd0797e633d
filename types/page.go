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

package types

import "strings"

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// QueryFilter describes a raw WHERE clause and its argument values.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// IsEmpty reports whether the filter has no usable condition text.
func (f *QueryFilter) IsEmpty() bool {
	return f == nil || TrimWhere(f.Schema) == ""
}

// TrimWhere trims conditions and drops one leading WHERE keyword in any case,
// so "WHERE name = ?" and "name = ?" yield the same fragment.
func TrimWhere(conditions string) string {
	conditions = strings.TrimSpace(conditions)
	if len(conditions) < 5 || !strings.EqualFold(conditions[:5], "where") {
		return conditions
	}
	if len(conditions) == 5 {
		return ""
	}
	switch conditions[5] {
	case ' ', '\t', '\n', '\r', '(':
		return strings.TrimSpace(conditions[5:])
	}
	return conditions
}

// PageRequest describes a 1-based page, an optional filter and ordering.
type PageRequest struct {
	page     int
	pageSize int
	filter   *QueryFilter
	orders   []string // "id ASC", "name DESC"
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = DefaultPageSize
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = DefaultPage
	}
	return p.page
}

func (p *PageRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

func (p *PageRequest) GetFilter() *QueryFilter {
	return p.filter
}

func (p *PageRequest) GetOrders() []string {
	return p.orders
}

// NewPageRequest constructs a PageRequest with filter and order settings.
func NewPageRequest(page int, pageSize int, filter *QueryFilter, orders []string) *PageRequest {
	return &PageRequest{page, pageSize, filter, orders}
}

// NewPageRequestFromClauses builds a request from a raw conditions string and
// a raw comma separated order-by clause. Conditions may carry a leading WHERE.
// Blank clauses are ignored.
func NewPageRequestFromClauses(page int, pageSize int, conditions string, orderBy string) *PageRequest {
	var filter *QueryFilter
	if conditions = TrimWhere(conditions); conditions != "" {
		filter = NewQueryFilter(conditions)
	}
	var orders []string
	for _, o := range strings.Split(orderBy, ",") {
		if o = strings.TrimSpace(o); o != "" {
			orders = append(orders, o)
		}
	}
	return NewPageRequest(page, pageSize, filter, orders)
}

func NewDefaultPageRequest(page int, pageSize int) *PageRequest {
	return NewPageRequest(page, pageSize, nil, make([]string, 0))
}

// Pagination holds paged result items along with pagination metadata.
type Pagination[T any] struct {
	Page     int
	PageSize int
	Total    int
	Items    []*T
}

// NewDefaultPagination constructs an empty pagination container.
func NewDefaultPagination[T any](page int, pageSize int) *Pagination[T] {
	return &Pagination[T]{page, pageSize, 0, make([]*T, 0)}
}

// TotalPages returns the number of pages needed for Total items.
func (p *Pagination[T]) TotalPages() int {
	if p.PageSize < 1 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}
