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
	globalMu   sync.RWMutex
	globalPool *Pool
)

func global() *Pool {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalPool
}

// InitDB opens the process-wide pool and registers every model added through
// RegisterModel with Bun. A pool installed by an earlier call is closed.
func InitDB(ctx context.Context, cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: database configuration is nil", ErrInvalidArgument)
	}
	pool, err := NewPool(&cfg.ConnectionConfig, nil)
	if err != nil {
		return nil, err
	}
	if err = pool.Open(ctx); err != nil {
		return nil, err
	}
	db := pool.DB()
	db.RegisterModel(RegisteredModelInstances()...)

	globalMu.Lock()
	prev := globalPool
	globalPool = pool
	globalMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return db, nil
}

// GetDB returns the global pool, or nil before InitDB.
func GetDB() *bun.DB {
	if p := global(); p != nil {
		return p.DB()
	}
	return nil
}

// NewConnectionFactoryFromGlobal returns a scope over the global pool.
func NewConnectionFactoryFromGlobal() (*ConnectionFactory, error) {
	p := global()
	if p == nil {
		return nil, ErrNotConnected
	}
	return p.NewConnectionFactory()
}

func CloseDB() error {
	globalMu.Lock()
	p := globalPool
	globalPool = nil
	globalMu.Unlock()
	if p == nil {
		return nil
	}
	return p.Close()
}

func GetHealthStatus(ctx context.Context) *HealthStatus {
	if p := global(); p != nil {
		return p.Manager().HealthCheck(ctx)
	}
	return &HealthStatus{Error: ErrNotConnected.Error(), CheckedAt: time.Now()}
}
