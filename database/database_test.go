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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type systemConfig struct {
	bun.BaseModel `bun:"table:system_config,alias:sc"`

	ID          int64     `bun:"id,pk,autoincrement"`
	ConfigKey   string    `bun:"config_key,notnull,unique"`
	ConfigValue string    `bun:"config_value"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func TestLoadConfigWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.yaml")
	content := `
connection:
  type: postgres
  host: db.internal
  port: 5432
  dbname: app
  slow_query_time: 500ms
migrate:
  enable_migrate_on_startup: true
repository:
  delete_policy: soft
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("DB_HOST", "override.internal")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.ConnectionConfig.Type)
	assert.Equal(t, "override.internal", cfg.ConnectionConfig.Host)
	assert.Equal(t, 5432, cfg.ConnectionConfig.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.ConnectionConfig.SlowQueryTime)
	assert.Equal(t, 100, cfg.ConnectionConfig.MaxOpenConns, "defaults survive the file")
	assert.True(t, cfg.DataMigrateConfig.EnableMigrateOnStartup)
	assert.Equal(t, "soft", cfg.RepositoryConfig.DeletePolicy)
	assert.True(t, cfg.RepositoryConfig.ReloadAfterSave)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?cache=shared", SQLiteDSN(""))
	assert.Equal(t, "file::memory:?cache=shared", SQLiteDSN(SQLiteMemory))
	assert.Equal(t, "app.db", SQLiteDSN("app"))
	assert.Equal(t, "data/app.sqlite", SQLiteDSN("data/app.sqlite"))
	assert.Equal(t, "file:x?mode=memory", SQLiteDSN("file:x?mode=memory"))
}

func TestIsSqlError(t *testing.T) {
	cases := []struct {
		err  error
		kind SQLError
	}{
		{sql.ErrNoRows, NoRowsErr},
		{fmt.Errorf("scan: %w", sql.ErrNoRows), NoRowsErr},
		{&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, DuplicateKeyErr},
		{&mysql.MySQLError{Number: 1452}, ForeignKeyViolationErr},
		{errors.New("constraint failed: UNIQUE constraint failed: posts.title (2067)"), DuplicateKeyErr},
		{errors.New("ERROR: null value violates not-null constraint (SQLSTATE 23502)"), NotNullViolationErr},
		{errors.New("SQL logic error: no such table: missing (1)"), NoTableErr},
	}
	for _, c := range cases {
		is, kind := IsSqlError(c.err)
		assert.True(t, is, c.err.Error())
		assert.Equal(t, c.kind, kind, c.err.Error())
	}

	is, kind := IsSqlError(errors.New("boom"))
	assert.False(t, is)
	assert.Equal(t, UnknownErr, kind)
	assert.Equal(t, UnknownErr, ClassifyError(nil))
	assert.Equal(t, "duplicate_key", DuplicateKeyErr.String())
}

type (
	regA struct{}
	regB struct{}
	regC struct{}
)

func TestModelRegistryOrdersByPriority(t *testing.T) {
	r := newModelRegistry()
	b, a, c := &regB{}, &regA{}, &regC{}
	r.Register(NewModelAdapter(b, 2))
	r.Register(NewModelAdapter(a, 1))
	r.Register(NewModelAdapter(c, 2))

	var got []interface{}
	for _, m := range r.Models() {
		got = append(got, m.Instance())
	}
	assert.Equal(t, []interface{}{a, b, c}, got)
}

func TestModelRegistryReplacesSameType(t *testing.T) {
	r := newModelRegistry()
	r.Register(NewModelAdapter((*regA)(nil), 5))
	r.Register(NewModelAdapter((*regB)(nil), 1))
	r.Register(NewModelAdapter((*regA)(nil), 0))

	models := r.Models()
	require.Len(t, models, 2)
	assert.Equal(t, 0, models[0].Priority())
	assert.IsType(t, (*regA)(nil), models[0].Instance())
}

func TestSQLiteManagerLifecycle(t *testing.T) {
	RegisterModels((*systemConfig)(nil))

	cfg := DefaultConfig()
	cfg.ConnectionConfig.Type = "sqlite"
	cfg.ConnectionConfig.DBName = "file:database_manager_test?mode=memory&cache=shared"
	cfg.ConnectionConfig.HealthCheckInterval = 0
	cfg.DataMigrateConfig.EnableMigrateOnStartup = true

	db, err := InitDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDB() })
	assert.Same(t, db, GetDB())
	assert.Same(t, cfg, GetConfig())

	ctx := context.Background()
	row := &systemConfig{ConfigKey: "site.name", ConfigValue: "hummer"}
	_, err = db.NewInsert().Model(row).Exec(ctx)
	require.NoError(t, err)
	assert.NotZero(t, row.ID)

	// running again is a no-op for applied versions
	require.NoError(t, RunMigrations())
	applied, err := NewMigrationManager(db, nil).GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "001", applied[0].Version)

	status := GetHealthStatus(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.Equal(t, 1, GetDatabaseStats().MaxOpenConns)

	require.NoError(t, CloseDB())
	assert.Nil(t, GetDB())
	assert.False(t, GetHealthStatus(ctx).Healthy)
}

func TestCreateFromConfigRejectsUnknownType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectionConfig.Type = "oracle"
	_, err := NewManagerFromConfig(cfg)
	assert.ErrorContains(t, err, "unsupported database type")
}

func TestMigrationManagerRunsExtraStepsInVersionOrder(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = "file:migration_order_test?mode=memory&cache=shared"
	cfg.HealthCheckInterval = 0

	manager := NewDatabaseManager(cfg)
	ctx := context.Background()
	require.NoError(t, manager.Connect(ctx))
	t.Cleanup(func() { _ = manager.Disconnect() })

	var order []string
	mm := NewMigrationManager(manager.GetDB(), nil)
	mm.Add(MigrationItem{Version: "003", Name: "third", Up: func(ctx context.Context, db bun.IDB) error {
		order = append(order, "003")
		return nil
	}})
	mm.Add(MigrationItem{Version: "002", Name: "second", Up: func(ctx context.Context, db bun.IDB) error {
		order = append(order, "002")
		_, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS audit (id INTEGER PRIMARY KEY)")
		return err
	}})

	require.NoError(t, mm.RunMigrations(ctx))
	require.NoError(t, mm.RunMigrations(ctx))
	assert.Equal(t, []string{"002", "003"}, order, "applied steps do not run again")

	applied, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 3)
	assert.Equal(t, "001", applied[0].Version)
	assert.Equal(t, "003", applied[2].Version)
}
