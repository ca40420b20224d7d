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
	"errors"
	"fmt"
	"time"

	"github.com/tomoncle/hummer/database"
	"github.com/tomoncle/hummer/types"
	"github.com/tomoncle/hummer/utils"
	"github.com/uptrace/bun"
)

// PrepareFunc adjusts an entity before it is written.
type PrepareFunc[T any] func(ctx context.Context, entity *T) (*T, error)

type options[T any] struct {
	prepareCreate PrepareFunc[T]
	prepareUpdate PrepareFunc[T]
	reload        bool
	meta          MetadataProvider
	logger        database.Logger
}

type Option[T any] func(*options[T])

func WithPrepareCreate[T any](fn PrepareFunc[T]) Option[T] {
	return func(o *options[T]) { o.prepareCreate = fn }
}

func WithPrepareUpdate[T any](fn PrepareFunc[T]) Option[T] {
	return func(o *options[T]) { o.prepareUpdate = fn }
}

// WithReload controls whether saved rows are re-read after commit. On by
// default.
func WithReload[T any](reload bool) Option[T] {
	return func(o *options[T]) { o.reload = reload }
}

func WithMetadata[T any](meta MetadataProvider) Option[T] {
	return func(o *options[T]) { o.meta = meta }
}

func WithLogger[T any](logger database.Logger) Option[T] {
	return func(o *options[T]) { o.logger = logger }
}

func identity[T any](_ context.Context, entity *T) (*T, error) { return entity, nil }

// Gateway is a Repository over one entity type. It holds configuration only
// and may be shared; whether calls can overlap depends on db (a *bun.DB can,
// a bun.Tx cannot).
type Gateway[T any, P EntityPtr[T]] struct {
	db     bun.IDB
	policy DeletePolicy
	entity string
	opts   options[T]
}

// NewGateway builds a Gateway for T over db, usually with T inferred from
// the call site:
//
//	posts, err := repository.NewGateway[Post](db, repository.SoftDelete)
func NewGateway[T any, P EntityPtr[T]](db bun.IDB, policy DeletePolicy, opts ...Option[T]) (*Gateway[T, P], error) {
	entity := TypeOf[T]().Name()
	if db == nil {
		return nil, newError(ActionQuery, entity, nil, "new gateway", errors.New("database is nil"))
	}
	if !policy.IsValid() {
		return nil, newError(ActionQuery, entity, nil, "new gateway", fmt.Errorf("%w: %d", ErrInvalidPolicy, policy))
	}
	if _, ok := any(P(new(T))).(SoftDeletable); policy == SoftDelete && !ok {
		return nil, newError(ActionQuery, entity, nil, "new gateway",
			fmt.Errorf("%w: %s does not implement SoftDeletable", ErrInvalidPolicy, entity))
	}

	o := options[T]{
		prepareCreate: identity[T],
		prepareUpdate: identity[T],
		reload:        true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.meta == nil {
		o.meta = NewBunMetadata(db)
	}
	if o.logger == nil {
		o.logger = database.GetLogger()
	}
	return &Gateway[T, P]{db: db, policy: policy, entity: entity, opts: o}, nil
}

// WithTx returns a copy of the gateway running inside tx. Each write opens
// a savepoint in tx instead of its own transaction.
func (g *Gateway[T, P]) WithTx(tx bun.Tx) *Gateway[T, P] {
	cp := *g
	cp.db = tx
	return &cp
}

func (g *Gateway[T, P]) Policy() DeletePolicy { return g.policy }

func (g *Gateway[T, P]) NewSelect() *bun.SelectQuery {
	return g.db.NewSelect().Model((*T)(nil))
}

// GetAll returns an unrealized query over the rows matching filter, with
// the given relation paths eager-loaded. A nil filter matches every row.
// Single-valued relations are joined into the same statement, so filter
// columns should be qualified with ?TableAlias when includes are given.
func (g *Gateway[T, P]) GetAll(filter *types.QueryFilter, includes ...IncludePath[T]) (*Query[T], error) {
	paths := make([]string, 0, len(includes))
	for _, inc := range includes {
		if err := g.validatePath(inc); err != nil {
			return nil, newError(ActionQuery, g.entity, nil, "include "+inc.String(), err)
		}
		paths = append(paths, inc.String())
	}

	q := newQuery[T](g.db, g.entity).include(paths...).filter(filter)
	if err := q.probe(); err != nil {
		return nil, newError(ActionQuery, g.entity, nil, "get all", err)
	}
	return q, nil
}

func (g *Gateway[T, P]) validatePath(p IncludePath[T]) error {
	if err := p.Err(); err != nil {
		return err
	}
	if len(p.segments) == 0 {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	t := TypeOf[T]()
	for _, seg := range p.segments {
		rels, err := g.opts.meta.Relations(t)
		if err != nil {
			return err
		}
		next, found := t, false
		for _, rel := range rels {
			if rel.Name == seg {
				next, found = rel.Target, true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s has no relation %q", ErrInvalidPath, t, seg)
		}
		t = next
	}
	return nil
}

// Get loads one row by primary key.
func (g *Gateway[T, P]) Get(ctx context.Context, id int64, includes ...IncludePath[T]) (*T, error) {
	q, err := g.GetAll(types.NewQueryFilter("?TablePKs = ?", id), includes...)
	if err != nil {
		return nil, err
	}
	entity, err := q.First(ctx)
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) && len(gwErr.IDs) == 0 {
			gwErr.IDs = []int64{id}
		}
		return nil, err
	}
	return entity, nil
}

func (g *Gateway[T, P]) Create(ctx context.Context, entity *T) (*T, error) {
	if entity == nil {
		return nil, newError(ActionCreate, g.entity, nil, "create", ErrNilEntity)
	}
	prepared, err := g.prepare(ctx, ActionCreate, g.opts.prepareCreate, entity)
	if err != nil {
		return nil, err
	}
	err = g.apply(ctx, ActionCreate, []*T{prepared}, func(ctx context.Context, tx bun.Tx) (int64, error) {
		return rowsAffected(tx.NewInsert().Model(prepared).Exec(ctx))
	})
	if err != nil {
		return nil, err
	}
	return prepared, nil
}

// CreateAll inserts the batch in one statement; all rows commit or none.
func (g *Gateway[T, P]) CreateAll(ctx context.Context, entities []*T) ([]*T, error) {
	prepared, err := g.prepareBatch(ctx, ActionCreate, g.opts.prepareCreate, entities)
	if err != nil {
		return nil, err
	}
	err = g.apply(ctx, ActionCreate, prepared, func(ctx context.Context, tx bun.Tx) (int64, error) {
		return rowsAffected(tx.NewInsert().Model(&prepared).Exec(ctx))
	})
	if err != nil {
		return nil, err
	}
	return prepared, nil
}

// Update writes every column of an existing row. It fails when no row or
// more than one row has the entity's identifier.
func (g *Gateway[T, P]) Update(ctx context.Context, entity *T) (*T, error) {
	if entity == nil {
		return nil, newError(ActionUpdate, g.entity, nil, "update", ErrNilEntity)
	}
	if err := g.ensureExisting(ctx, g.db, ActionUpdate, entity); err != nil {
		return nil, err
	}
	return g.update(ctx, entity)
}

func (g *Gateway[T, P]) update(ctx context.Context, entity *T) (*T, error) {
	prepared, err := g.prepare(ctx, ActionUpdate, g.opts.prepareUpdate, entity)
	if err != nil {
		return nil, err
	}
	err = g.apply(ctx, ActionUpdate, []*T{prepared}, func(ctx context.Context, tx bun.Tx) (int64, error) {
		return rowsAffected(tx.NewUpdate().Model(prepared).WherePK().Exec(ctx))
	})
	if err != nil {
		return nil, err
	}
	return prepared, nil
}

// UpdateAll updates the batch in one transaction; every entity must match
// exactly one row.
func (g *Gateway[T, P]) UpdateAll(ctx context.Context, entities []*T) ([]*T, error) {
	prepared, err := g.prepareBatch(ctx, ActionUpdate, g.opts.prepareUpdate, entities)
	if err != nil {
		return nil, err
	}
	err = g.apply(ctx, ActionUpdate, prepared, func(ctx context.Context, tx bun.Tx) (int64, error) {
		var total int64
		for _, e := range prepared {
			if err := g.ensureExisting(ctx, tx, ActionUpdate, e); err != nil {
				return 0, err
			}
			n, err := rowsAffected(tx.NewUpdate().Model(e).WherePK().Exec(ctx))
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	})
	if err != nil {
		return nil, err
	}
	return prepared, nil
}

// Delete removes the row or, under SoftDelete, marks it deleted and updates
// it. The in-memory marker is restored when the write fails.
func (g *Gateway[T, P]) Delete(ctx context.Context, entity *T) (*T, error) {
	if entity == nil {
		return nil, newError(ActionDelete, g.entity, nil, "delete", ErrNilEntity)
	}

	ids := []int64{P(entity).GetID()}
	switch g.policy {
	case HardDelete:
		err := g.apply(ctx, ActionDelete, []*T{entity}, func(ctx context.Context, tx bun.Tx) (int64, error) {
			if err := g.ensureExisting(ctx, tx, ActionDelete, entity); err != nil {
				return 0, err
			}
			return rowsAffected(tx.NewDelete().Model(entity).WherePK().Exec(ctx))
		})
		if err != nil {
			return nil, err
		}
		return entity, nil
	case SoftDelete:
		marker := any(P(entity)).(SoftDeletable)
		was := marker.IsDeleted()
		marker.SetDeleted(true)
		err := g.apply(ctx, ActionDelete, []*T{entity}, func(ctx context.Context, tx bun.Tx) (int64, error) {
			if err := g.ensureExisting(ctx, tx, ActionDelete, entity); err != nil {
				return 0, err
			}
			return rowsAffected(tx.NewUpdate().Model(entity).WherePK().Exec(ctx))
		})
		if err != nil {
			marker.SetDeleted(was)
			return nil, err
		}
		return entity, nil
	default:
		return nil, newError(ActionDelete, g.entity, ids, "delete", ErrInvalidPolicy)
	}
}

// Upsert creates entities without an identifier or whose identifier has no
// row, and updates the single row that matches otherwise.
func (g *Gateway[T, P]) Upsert(ctx context.Context, entity *T) (*T, error) {
	if entity == nil {
		return nil, newError(ActionUpdate, g.entity, nil, "upsert", ErrNilEntity)
	}
	id := P(entity).GetID()
	if id == 0 {
		return g.Create(ctx, entity)
	}
	found, err := g.lookup(ctx, g.db, id)
	if err != nil {
		return nil, newError(ActionUpdate, g.entity, []int64{id}, "upsert lookup", err)
	}
	switch found {
	case NotFound:
		return g.Create(ctx, entity)
	case FoundOne:
		return g.update(ctx, entity)
	default:
		return nil, newError(ActionUpdate, g.entity, []int64{id}, "upsert", ErrMultipleRows)
	}
}

// Exists reports whether any row matches filter; a nil filter asks whether
// the table has rows at all.
func (g *Gateway[T, P]) Exists(ctx context.Context, filter *types.QueryFilter) (bool, error) {
	return newQuery[T](g.db, g.entity).filter(filter).Exists(ctx)
}

// Navigations lists the relation paths of T up to maxLevel segments deep.
func (g *Gateway[T, P]) Navigations(maxLevel int) ([]IncludePath[T], error) {
	return Navigations[T](g.opts.meta, maxLevel)
}

func (g *Gateway[T, P]) lookup(ctx context.Context, db bun.IDB, id int64) (LookupResult, error) {
	n, err := db.NewSelect().Model((*T)(nil)).Where("?TablePKs = ?", id).Limit(2).Count(ctx)
	if err != nil {
		return NotFound, err
	}
	switch {
	case n == 0:
		return NotFound, nil
	case n == 1:
		return FoundOne, nil
	default:
		return FoundMany, nil
	}
}

func (g *Gateway[T, P]) ensureExisting(ctx context.Context, db bun.IDB, action Action, entity *T) error {
	id := P(entity).GetID()
	found, err := g.lookup(ctx, db, id)
	if err != nil {
		return newError(action, g.entity, []int64{id}, "lookup", err)
	}
	switch found {
	case FoundOne:
		return nil
	case NotFound:
		return newError(action, g.entity, []int64{id}, "", ErrNotFound)
	default:
		return newError(action, g.entity, []int64{id}, "", ErrMultipleRows)
	}
}

func (g *Gateway[T, P]) prepare(ctx context.Context, action Action, fn PrepareFunc[T], entity *T) (*T, error) {
	if fn == nil {
		return entity, nil
	}
	prepared, err := fn(ctx, entity)
	if err != nil {
		return nil, newError(action, g.entity, []int64{P(entity).GetID()}, "prepare", err)
	}
	if prepared == nil {
		return nil, newError(action, g.entity, []int64{P(entity).GetID()}, "prepare", ErrNilEntity)
	}
	return prepared, nil
}

func (g *Gateway[T, P]) prepareBatch(ctx context.Context, action Action, fn PrepareFunc[T], entities []*T) ([]*T, error) {
	if len(entities) == 0 {
		return nil, newError(action, g.entity, nil, "batch", ErrEmptyBatch)
	}
	prepared := make([]*T, 0, len(entities))
	for i, e := range entities {
		if e == nil {
			return nil, newError(action, g.entity, nil, fmt.Sprintf("batch item %d", i), ErrNilEntity)
		}
		p, err := g.prepare(ctx, action, fn, e)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, p)
	}
	return prepared, nil
}

// apply runs mutate in a transaction and commits it. When rows changed and
// reload is on, each entity is re-read so store-generated values are
// visible; hard-deleted rows are not re-read.
func (g *Gateway[T, P]) apply(ctx context.Context, action Action, entities []*T,
	mutate func(ctx context.Context, tx bun.Tx) (int64, error)) (err error) {
	start := time.Now()
	ids := g.ids(entities)
	var affected int64

	defer func() {
		if r := recover(); r != nil {
			err = newError(action, g.entity, ids, "", fmt.Errorf("%v", r))
		}
		if err != nil {
			g.opts.logger.Warn(fmt.Sprintf("%s failed", action), "entity", g.entity, "ids", ids, "error", err, "elapsed", utils.Since(start))
			return
		}
		g.opts.logger.Debug(action.String(), "entity", g.entity, "ids", ids, "affected", affected, "elapsed", utils.Since(start))
	}()

	err = g.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		n, err := mutate(ctx, tx)
		affected = n
		return err
	})
	if err != nil {
		return newError(action, g.entity, ids, "", err)
	}
	// inserts learn their keys during mutate
	ids = g.ids(entities)

	if affected > 0 && g.opts.reload && !(action == ActionDelete && g.policy == HardDelete) {
		for _, e := range entities {
			if err := g.db.NewSelect().Model(e).WherePK().Scan(ctx); err != nil {
				return newError(action, g.entity, ids, "reload", err)
			}
		}
	}
	return nil
}

func (g *Gateway[T, P]) ids(entities []*T) []int64 {
	ids := make([]int64, 0, len(entities))
	for _, e := range entities {
		if id := P(e).GetID(); id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func rowsAffected(res interface{ RowsAffected() (int64, error) }, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
