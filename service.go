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

package hummer

import (
	"context"
	"errors"
	"sync"

	"github.com/tomoncle/hummer/database"
	"github.com/tomoncle/hummer/repository"
	"github.com/tomoncle/hummer/types"
	"github.com/uptrace/bun"
)

var ErrDatabaseNotInitialized = errors.New("database not initialized")

type Service[T any] interface {
	// Get returns a single entity by its identifier.
	Get(ctx context.Context, id int64) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	// Query returns entities matching a raw WHERE clause.
	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	// Page returns one page of the entities matching filter.
	Page(ctx context.Context, filter *types.QueryFilter, page *types.PageRequest) (*types.Pagination[T], error)

	// Save inserts one or more new entities in a single transaction.
	Save(ctx context.Context, model ...*T) error

	// SaveOrUpdate creates the entity or updates the row with its identifier.
	SaveOrUpdate(ctx context.Context, model *T) error

	// Update modifies an existing entity.
	Update(ctx context.Context, model *T) error

	// UpdateAll modifies existing entities in a single transaction.
	UpdateAll(ctx context.Context, model ...*T) error

	// Delete removes, or marks deleted, the entity with the identifier.
	Delete(ctx context.Context, id int64) error

	// Exists reports whether any entity matches filter.
	Exists(ctx context.Context, filter *types.QueryFilter) (bool, error)

	// Navigations lists relation paths of the entity up to maxLevel deep.
	Navigations(maxLevel int) ([]string, error)

	// WithTx returns a service bound to tx.
	WithTx(tx bun.Tx) Service[T]

	// SelectBuilder returns a Bun select query builder for the entity.
	SelectBuilder() *bun.SelectQuery
}

type baseServiceImpl[T any, P repository.EntityPtr[T]] struct {
	once sync.Once
	repo *repository.Gateway[T, P]
	err  error
}

// NewService returns a Service backed by a Gateway over the global database
// connection. The delete policy and reload setting come from
// database.GetConfig().RepositoryConfig; the gateway is built on first use.
func NewService[T any, P repository.EntityPtr[T]]() Service[T] {
	return &baseServiceImpl[T, P]{}
}

func (s *baseServiceImpl[T, P]) baseRepo() (*repository.Gateway[T, P], error) {
	s.once.Do(func() {
		db := database.GetDB()
		if db == nil {
			s.err = ErrDatabaseNotInitialized
			return
		}
		cfg := database.GetConfig().RepositoryConfig
		policy, err := repository.ParseDeletePolicy(cfg.DeletePolicy)
		if err != nil {
			s.err = err
			return
		}
		s.repo, s.err = repository.NewGateway[T, P](db, policy, repository.WithReload[T](cfg.ReloadAfterSave))
	})
	return s.repo, s.err
}

func (s *baseServiceImpl[T, P]) Get(ctx context.Context, id int64) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, id)
}

func (s *baseServiceImpl[T, P]) All(ctx context.Context) ([]*T, error) {
	return s.List(ctx, nil)
}

func (s *baseServiceImpl[T, P]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	q, err := repo.GetAll(filter)
	if err != nil {
		return nil, err
	}
	return q.List(ctx)
}

func (s *baseServiceImpl[T, P]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	return s.List(ctx, types.NewQueryFilter(query, args...))
}

func (s *baseServiceImpl[T, P]) Page(ctx context.Context, filter *types.QueryFilter, page *types.PageRequest) (*types.Pagination[T], error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	q, err := repo.GetAll(filter)
	if err != nil {
		return nil, err
	}
	return q.Page(ctx, page)
}

func (s *baseServiceImpl[T, P]) Save(ctx context.Context, model ...*T) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	if len(model) == 1 {
		_, err = repo.Create(ctx, model[0])
		return err
	}
	_, err = repo.CreateAll(ctx, model)
	return err
}

func (s *baseServiceImpl[T, P]) SaveOrUpdate(ctx context.Context, model *T) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	_, err = repo.Upsert(ctx, model)
	return err
}

func (s *baseServiceImpl[T, P]) Update(ctx context.Context, model *T) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	_, err = repo.Update(ctx, model)
	return err
}

func (s *baseServiceImpl[T, P]) UpdateAll(ctx context.Context, model ...*T) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	_, err = repo.UpdateAll(ctx, model)
	return err
}

func (s *baseServiceImpl[T, P]) Delete(ctx context.Context, id int64) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	entity, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = repo.Delete(ctx, entity)
	return err
}

func (s *baseServiceImpl[T, P]) Exists(ctx context.Context, filter *types.QueryFilter) (bool, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return false, err
	}
	return repo.Exists(ctx, filter)
}

func (s *baseServiceImpl[T, P]) Navigations(maxLevel int) ([]string, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	paths, err := repo.Navigations(maxLevel)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, p.String())
	}
	return out, nil
}

func (s *baseServiceImpl[T, P]) WithTx(tx bun.Tx) Service[T] {
	txs := &baseServiceImpl[T, P]{}
	repo, err := s.baseRepo()
	txs.once.Do(func() {
		if err != nil {
			txs.err = err
			return
		}
		txs.repo = repo.WithTx(tx)
	})
	return txs
}

func (s *baseServiceImpl[T, P]) SelectBuilder() *bun.SelectQuery {
	repo, err := s.baseRepo()
	if err != nil {
		return nil
	}
	return repo.NewSelect()
}
