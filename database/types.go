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
	"fmt"
	"os"
	"time"

	"github.com/uptrace/bun"
	"gopkg.in/yaml.v3"
)

// Manager owns the process-wide connection pool. Scopes borrow dedicated
// connections from it through a ConnectionFactory.
type Manager interface {
	Connect(ctx context.Context) error
	Disconnect() error
	DB() *bun.DB
	Config() ConnectionConfig
	HealthCheck(ctx context.Context) *HealthStatus
}

// HealthStatus is the outcome of pinging the pool.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Pool      sql.DBStats   `json:"pool"`
}

// ConnectionConfig describes how to reach the database. ConnectionString wins
// over the discrete host/port/user fields when both are set.
type ConnectionConfig struct {
	Type             string        `yaml:"type" json:"type"` // postgres, mysql, sqlite
	ConnectionString string        `yaml:"connection_string" json:"connection_string"`
	EnableProfiling  bool          `yaml:"enable_profiling" json:"enable_profiling"`
	Host             string        `yaml:"host" json:"host"`
	Port             int           `yaml:"port" json:"port"`
	Username         string        `yaml:"username" json:"username"`
	Password         string        `yaml:"password" json:"password"`
	DBName           string        `yaml:"dbname" json:"dbname"`
	SSLMode          string        `yaml:"sslmode" json:"sslmode"`
	MaxIdleConns     int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns     int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout" json:"write_timeout"`
	EnableQueryLog   bool          `yaml:"enable_query_log" json:"enable_query_log"`
	SlowQueryTime    time.Duration `yaml:"slow_query_time" json:"slow_query_time"`
}

// Config is the root of the YAML configuration file.
type Config struct {
	ConnectionConfig ConnectionConfig `yaml:"database" json:"database"`
}

// DefaultConnectionConfig returns a connection config with sensible defaults.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 30,
		ConnectTimeout:  time.Second * 10,
		ReadTimeout:     time.Second * 30,
		WriteTimeout:    time.Second * 30,
		EnableQueryLog:  false,
		SlowQueryTime:   time.Second * 2,
	}
}

// LoadConfig reads a YAML file. Keys absent from the file keep the values of
// DefaultConnectionConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{ConnectionConfig: *DefaultConnectionConfig()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}
