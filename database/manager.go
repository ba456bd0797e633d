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
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"maps"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

const healthCheckTimeout = 5 * time.Second

// engine opens one family of databases: the database/sql driver name, the
// Bun dialect and the DSN built from discrete config fields.
type engine struct {
	name    string
	dialect func() schema.Dialect
	dsn     func(cfg *ConnectionConfig) string
}

var (
	mysqlEngine = engine{
		name:    "mysql",
		dialect: func() schema.Dialect { return mysqldialect.New() },
		dsn:     mysqlDSN,
	}
	postgresEngine = engine{
		name:    "postgres",
		dialect: func() schema.Dialect { return pgdialect.New() },
		dsn:     postgresDSN,
	}
	sqliteEngine = engine{
		name:    sqliteshim.ShimName,
		dialect: func() schema.Dialect { return sqlitedialect.New() },
		dsn:     sqliteDSN,
	}

	// engines is keyed by ConnectionConfig.Type.
	engines = map[string]engine{
		"mysql":      mysqlEngine,
		"postgres":   postgresEngine,
		"postgresql": postgresEngine,
		"sqlite":     sqliteEngine,
		"sqlite3":    sqliteEngine,
	}
)

func lookupEngine(typ string) (engine, error) {
	d, ok := engines[strings.ToLower(strings.TrimSpace(typ))]
	if !ok {
		return engine{}, fmt.Errorf("%w: unsupported database type %q, supported types: %s",
			ErrUnsupported, typ, strings.Join(slices.Sorted(maps.Keys(engines)), ", "))
	}
	return d, nil
}

func hostPort(cfg *ConnectionConfig) string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

func mysqlDSN(cfg *ConnectionConfig) string {
	c := mysql.NewConfig()
	c.User = cfg.Username
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = hostPort(cfg)
	c.DBName = cfg.DBName
	c.ParseTime = true
	c.Loc = time.Local
	c.Timeout = cfg.ConnectTimeout
	c.ReadTimeout = cfg.ReadTimeout
	c.WriteTimeout = cfg.WriteTimeout
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

func postgresDSN(cfg *ConnectionConfig) string {
	query := url.Values{}
	query.Set("sslmode", cmp.Or(cfg.SSLMode, "disable"))
	query.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout.Seconds())))
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     hostPort(cfg),
		Path:     "/" + cfg.DBName,
		RawQuery: query.Encode(),
	}
	return u.String()
}

// sqliteDSN treats DBName as a file name, adding ".db" unless it is the
// in-memory database or already has the suffix.
func sqliteDSN(cfg *ConnectionConfig) string {
	if cfg.DBName == ":memory:" || strings.HasSuffix(cfg.DBName, ".db") {
		return cfg.DBName
	}
	return cfg.DBName + ".db"
}

type poolManager struct {
	mu     sync.RWMutex
	cfg    ConnectionConfig
	logger Logger
	db     *bun.DB
}

// NewManager returns a Manager for a copy of cfg. A nil cfg means
// DefaultConnectionConfig and a nil logger means GetLogger.
func NewManager(cfg *ConnectionConfig, logger Logger) Manager {
	if cfg == nil {
		cfg = DefaultConnectionConfig()
	}
	if logger == nil {
		logger = GetLogger()
	}
	m := &poolManager{cfg: *cfg, logger: logger}
	if m.cfg.ConnectTimeout <= 0 {
		m.cfg.ConnectTimeout = 30 * time.Second
	}
	return m
}

// Connect opens and pings the pool. It is a no-op while a pool is open.
func (m *poolManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		return nil
	}

	db, err := m.open()
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("database connection test failed: %w", err)
	}

	m.db = db
	m.logger.Info("database connected", "type", m.cfg.Type, "profiling", m.cfg.EnableProfiling)
	return nil
}

func (m *poolManager) open() (*bun.DB, error) {
	d, err := lookupEngine(m.cfg.Type)
	if err != nil {
		return nil, err
	}
	dsn := m.cfg.ConnectionString
	if dsn == "" {
		dsn = d.dsn(&m.cfg)
	}
	sqlDB, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(m.cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(m.cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(m.cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(m.cfg.ConnMaxIdleTime)

	db := bun.NewDB(sqlDB, d.dialect())
	if m.cfg.EnableProfiling {
		db.AddQueryHook(NewProfilingHook(m.logger))
	}
	if m.cfg.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true), bundebug.FromEnv("BUNDEBUG")))
	}
	if m.cfg.SlowQueryTime > 0 {
		db.AddQueryHook(&slowQueryHook{slowTime: m.cfg.SlowQueryTime, logger: m.logger})
	}
	return db, nil
}

func (m *poolManager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db = nil
	if err != nil {
		m.logger.Error("failed to close database pool", "error", err)
		return err
	}
	m.logger.Info("database pool closed")
	return nil
}

func (m *poolManager) DB() *bun.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

func (m *poolManager) Config() ConnectionConfig {
	return m.cfg
}

func (m *poolManager) HealthCheck(ctx context.Context) *HealthStatus {
	status := &HealthStatus{CheckedAt: time.Now()}
	db := m.DB()
	if db == nil {
		status.Error = ErrNotConnected.Error()
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	err := db.PingContext(pingCtx)
	status.Latency = time.Since(status.CheckedAt)
	status.Pool = db.Stats()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Healthy = true
	return status
}
