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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/hummer/database"
	"github.com/tomoncle/hummer/repository"
	"github.com/tomoncle/hummer/types"
	"github.com/uptrace/bun"
)

type task struct {
	bun.BaseModel `bun:"table:tasks,alias:task"`

	ID      int64  `bun:"id,pk,autoincrement"`
	Name    string `bun:"name,notnull"`
	Deleted bool   `bun:"deleted,notnull"`
}

func (t *task) GetID() int64 { return t.ID }
func (t *task) IsDeleted() bool { return t.Deleted }
func (t *task) SetDeleted(d bool) { t.Deleted = d }

func init() {
	database.RegisterModels((*task)(nil))
}

func initServiceDB(t *testing.T, policy string) {
	t.Helper()

	cfg := database.DefaultConfig()
	cfg.ConnectionConfig.Type = "sqlite"
	cfg.ConnectionConfig.DBName = "file:" + t.Name() + "?mode=memory&cache=shared"
	cfg.ConnectionConfig.HealthCheckInterval = 0
	cfg.DataMigrateConfig.EnableMigrateOnStartup = true
	cfg.RepositoryConfig.DeletePolicy = policy

	_, err := database.InitDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.CloseDB() })
}

func TestServiceBeforeInit(t *testing.T) {
	svc := NewService[task]()
	_, err := svc.All(context.Background())
	assert.ErrorIs(t, err, ErrDatabaseNotInitialized)
	assert.Nil(t, svc.SelectBuilder())
}

func TestServiceRequiresDeletePolicy(t *testing.T) {
	assert.Empty(t, database.DefaultConfig().RepositoryConfig.DeletePolicy)

	initServiceDB(t, "")
	_, err := NewService[task]().All(context.Background())
	assert.ErrorIs(t, err, repository.ErrInvalidPolicy)
}

func TestServiceCrud(t *testing.T) {
	initServiceDB(t, "soft")
	ctx := context.Background()
	svc := NewService[task]()

	require.NoError(t, svc.Save(ctx, &task{Name: "one"}))
	batch := []*task{{Name: "two"}, {Name: "three"}}
	require.NoError(t, svc.Save(ctx, batch...))
	assert.NotZero(t, batch[1].ID)

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	named, err := svc.Query(ctx, "?TableAlias.name = ?", "two")
	require.NoError(t, err)
	require.Len(t, named, 1)

	named[0].Name = "deux"
	require.NoError(t, svc.Update(ctx, named[0]))
	got, err := svc.Get(ctx, named[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "deux", got.Name)

	upserted := &task{Name: "four"}
	require.NoError(t, svc.SaveOrUpdate(ctx, upserted))
	assert.NotZero(t, upserted.ID)

	page, err := svc.Page(ctx, nil, types.NewPageRequest(1, 3, "id ASC"))
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Len(t, page.Items, 3)

	// soft policy from the configuration
	require.NoError(t, svc.Delete(ctx, got.ID))
	got, err = svc.Get(ctx, got.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted)

	live, err := svc.List(ctx, types.NewQueryFilter("?TableAlias.deleted = ?", false))
	require.NoError(t, err)
	assert.Len(t, live, 3)

	err = svc.Update(ctx, &task{ID: 9999, Name: "missing"})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	paths, err := svc.Navigations(1)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestServiceWithTx(t *testing.T) {
	initServiceDB(t, "hard")
	ctx := context.Background()
	svc := NewService[task]()

	boom := errors.New("boom")
	err := database.GetDB().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := svc.WithTx(tx).Save(ctx, &task{Name: "rolled back"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	exists, err := svc.Exists(ctx, nil)
	require.NoError(t, err)
	assert.False(t, exists)
}
