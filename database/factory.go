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

	"github.com/tomoncle/repokit/utils"
	"github.com/uptrace/bun"
)

// Pool turns a ConnectionConfig into an open Manager and hands out one
// ConnectionFactory per logical scope.
type Pool struct {
	manager Manager
	logger  Logger
}

// NewPool applies the DB_* environment overrides to cfg and checks that its
// type names a supported database. Nothing is opened until Open.
func NewPool(cfg *ConnectionConfig, logger Logger) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: database configuration is nil", ErrInvalidArgument)
	}
	if logger == nil {
		logger = GetLogger()
	}
	applyEnv(cfg)
	if _, err := lookupEngine(cfg.Type); err != nil {
		return nil, err
	}
	return &Pool{manager: NewManager(cfg, logger), logger: logger}, nil
}

// applyEnv overwrites cfg fields whose DB_* variable is set and parses.
func applyEnv(cfg *ConnectionConfig) {
	cfg.Type = utils.EnvDefaultString("DB_TYPE", cfg.Type)
	cfg.ConnectionString = utils.EnvDefaultString("DB_CONNECTION_STRING", cfg.ConnectionString)
	cfg.EnableProfiling = utils.EnvDefaultBool("DB_PROFILING_ENABLED", cfg.EnableProfiling)
	cfg.Host = utils.EnvDefaultString("DB_HOST", cfg.Host)
	cfg.Port = utils.EnvDefaultInt("DB_PORT", cfg.Port)
	cfg.Username = utils.EnvDefaultString("DB_USERNAME", cfg.Username)
	cfg.Password = utils.EnvDefaultString("DB_PASSWORD", cfg.Password)
	cfg.DBName = utils.EnvDefaultString("DB_NAME", cfg.DBName)
	cfg.SSLMode = utils.EnvDefaultString("DB_SSLMODE", cfg.SSLMode)
	cfg.MaxIdleConns = utils.EnvDefaultInt("DB_MAX_IDLE_CONNS", cfg.MaxIdleConns)
	cfg.MaxOpenConns = utils.EnvDefaultInt("DB_MAX_OPEN_CONNS", cfg.MaxOpenConns)
	cfg.ConnMaxLifetime = utils.EnvDefaultDuration("DB_CONN_MAX_LIFETIME", cfg.ConnMaxLifetime)
	cfg.EnableQueryLog = utils.EnvDefaultBool("DB_ENABLE_QUERY_LOG", cfg.EnableQueryLog)
}

func (p *Pool) Open(ctx context.Context) error {
	if err := p.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

func (p *Pool) Manager() Manager { return p.manager }

// DB returns the open pool, or nil before Open.
func (p *Pool) DB() *bun.DB { return p.manager.DB() }

// NewConnectionFactory returns a fresh scope over the pool. Nothing is
// borrowed until the scope first asks for a connection.
func (p *Pool) NewConnectionFactory() (*ConnectionFactory, error) {
	db := p.manager.DB()
	if db == nil {
		return nil, ErrNotConnected
	}
	return NewConnectionFactory(db, p.manager.Config().EnableProfiling, p.logger), nil
}

func (p *Pool) Close() error {
	return p.manager.Disconnect()
}
