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

	"github.com/tomoncle/hummer/types"
	"github.com/uptrace/bun"
)

type queryOp func(*bun.SelectQuery) *bun.SelectQuery

// Query is an unrealized select over T. Builder methods return a new Query
// and never touch the database; List, First, Count, Exists and Page run it.
type Query[T any] struct {
	db       bun.IDB
	entity   string
	ops      []queryOp
	includes []string
}

func newQuery[T any](db bun.IDB, entity string) *Query[T] {
	return &Query[T]{db: db, entity: entity}
}

func (q *Query[T]) with(op queryOp) *Query[T] {
	ops := make([]queryOp, 0, len(q.ops)+1)
	ops = append(ops, q.ops...)
	return &Query[T]{db: q.db, entity: q.entity, ops: append(ops, op), includes: q.includes}
}

func (q *Query[T]) include(paths ...string) *Query[T] {
	includes := make([]string, 0, len(q.includes)+len(paths))
	includes = append(includes, q.includes...)
	return &Query[T]{db: q.db, entity: q.entity, ops: q.ops, includes: append(includes, paths...)}
}

func (q *Query[T]) filter(f *types.QueryFilter) *Query[T] {
	if f.IsEmpty() {
		return q
	}
	return q.Where(f.Schema, f.Args...)
}

func (q *Query[T]) Where(cond string, args ...interface{}) *Query[T] {
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery { return sq.Where(cond, args...) })
}

func (q *Query[T]) Order(orders ...string) *Query[T] {
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery { return sq.Order(orders...) })
}

func (q *Query[T]) Limit(n int) *Query[T] {
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery { return sq.Limit(n) })
}

func (q *Query[T]) Offset(n int) *Query[T] {
	return q.with(func(sq *bun.SelectQuery) *bun.SelectQuery { return sq.Offset(n) })
}

// Apply adds an arbitrary bun modifier, e.g. a join or a group by.
func (q *Query[T]) Apply(fn func(*bun.SelectQuery) *bun.SelectQuery) *Query[T] {
	if fn == nil {
		return q
	}
	return q.with(fn)
}

// Includes returns the relation paths eager-loaded by List, First and Page.
func (q *Query[T]) Includes() []string {
	return append([]string(nil), q.includes...)
}

func (q *Query[T]) build(model interface{}, withIncludes bool) *bun.SelectQuery {
	sq := q.db.NewSelect().Model(model)
	if withIncludes {
		for _, path := range q.includes {
			sq = sq.Relation(path)
		}
	}
	for _, op := range q.ops {
		sq = op(sq)
	}
	return sq
}

// probe builds the select without running it.
func (q *Query[T]) probe() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("build query: %v", r)
		}
	}()
	var entities []*T
	_ = q.build(&entities, true).String()
	return nil
}

func (q *Query[T]) run(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(ActionQuery, q.entity, nil, op, fmt.Errorf("%v", r))
		}
	}()
	if err := fn(); err != nil {
		return newError(ActionQuery, q.entity, nil, op, err)
	}
	return nil
}

func (q *Query[T]) List(ctx context.Context) ([]*T, error) {
	entities := make([]*T, 0)
	err := q.run("list", func() error {
		return q.build(&entities, true).Scan(ctx)
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

// First returns the first matching row or a GatewayError wrapping ErrNotFound.
func (q *Query[T]) First(ctx context.Context) (*T, error) {
	entities, err := q.Limit(1).List(ctx)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, newError(ActionQuery, q.entity, nil, "first", ErrNotFound)
	}
	return entities[0], nil
}

func (q *Query[T]) Count(ctx context.Context) (int, error) {
	var total int
	err := q.run("count", func() (err error) {
		total, err = q.build((*T)(nil), false).Count(ctx)
		return err
	})
	return total, err
}

func (q *Query[T]) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := q.run("exists", func() (err error) {
		exists, err = q.build((*T)(nil), false).Exists(ctx)
		return err
	})
	return exists, err
}

// Page counts the matching rows and, when there are any, loads the
// requested page.
func (q *Query[T]) Page(ctx context.Context, req *types.PageRequest) (*types.Pagination[T], error) {
	if req == nil {
		req = types.NewPageRequest(1, 0)
	}
	pagination := types.NewDefaultPagination[T](req.GetPage(), req.GetPageSize())
	total, err := q.Count(ctx)
	if err != nil || total == 0 {
		if err != nil {
			return nil, err
		}
		return pagination, nil
	}

	paged := q.Offset(req.GetOffset()).Limit(req.GetPageSize())
	if orders := req.GetOrders(); len(orders) > 0 {
		paged = paged.Order(orders...)
	}
	items, err := paged.List(ctx)
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = items
	return pagination, nil
}
