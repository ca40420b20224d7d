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
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"
)

var (
	globalMu      sync.RWMutex
	globalManager AbstractDatabaseManager
	globalConfig  *Config
)

func current() AbstractDatabaseManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalManager
}

// GetDB returns the global Bun database instance, nil before InitDB.
func GetDB() *bun.DB {
	if m := current(); m != nil {
		return m.GetDB()
	}
	return nil
}

// GetConfig returns the configuration passed to InitDB, or DefaultConfig.
func GetConfig() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalConfig != nil {
		return globalConfig
	}
	return DefaultConfig()
}

func GetDatabaseManager() AbstractDatabaseManager {
	return current()
}

// NewManagerFromConfig applies environment overrides to cfg and returns an
// unconnected manager for it.
func NewManagerFromConfig(cfg *Config) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if _, ok := drivers[cfg.ConnectionConfig.Type]; !ok {
		return nil, fmt.Errorf("unsupported database type: %s, supported types: %v", cfg.ConnectionConfig.Type, SupportedTypes())
	}
	manager := NewDatabaseManagerWithMigrate(&cfg.ConnectionConfig, cfg.DataMigrateConfig)
	manager.SetLogger(GetLogger())
	return manager, nil
}

// InitDB initializes the global database using the provided configuration.
func InitDB(cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	return InitDatabaseWithOptions(cfg, cfg.DataMigrateConfig.EnableMigrateOnStartup)
}

// InitDatabaseWithOptions connects the global database, optionally creating
// the tables of registered models. A previously initialized database is
// closed once the new one is ready.
func InitDatabaseWithOptions(cfg *Config, runMigrations bool) (*bun.DB, error) {
	manager, err := NewManagerFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}
	ctx := context.Background()
	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if runMigrations {
		if err := manager.RunMigrations(ctx); err != nil {
			_ = manager.Disconnect()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	globalMu.Lock()
	previous := globalManager
	globalManager, globalConfig = manager, cfg
	globalMu.Unlock()
	if previous != nil {
		_ = previous.Disconnect()
	}

	GetLogger().Info("Database initialization completed!", "type", cfg.ConnectionConfig.Type)
	return manager.GetDB(), nil
}

// SetLogger replaces the global logger and the logger of the global manager.
func SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	globalLoggerMu.Lock()
	globalLogger = logger
	globalLoggerMu.Unlock()
	if m := current(); m != nil {
		m.SetLogger(logger)
	}
}

// CloseDB closes the global database connection.
func CloseDB() error {
	globalMu.Lock()
	manager := globalManager
	globalManager, globalConfig = nil, nil
	globalMu.Unlock()
	if manager != nil {
		return manager.Disconnect()
	}
	return nil
}

func GetHealthStatus(ctx context.Context) *HealthStatus {
	if m := current(); m != nil {
		return m.HealthCheck(ctx)
	}
	return &HealthStatus{LastError: "Database not initialized", LastCheckTime: time.Now()}
}

func GetDatabaseStats() *DBStats {
	if m := current(); m != nil {
		return m.GetStats()
	}
	return &DBStats{}
}

// RunMigrations creates the tables of registered models on the global
// database.
func RunMigrations() error {
	manager := current()
	if manager == nil {
		return fmt.Errorf("database not initialized")
	}
	return manager.RunMigrations(context.Background())
}
