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
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

type profileCtxKey struct{}

// ProfileStats is a snapshot of the statements a scope has issued.
type ProfileStats struct {
	Queries   int           `json:"queries"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
	LastQuery string        `json:"last_query,omitempty"`
}

// Profile accumulates statement statistics for one scope. It is attached to
// the context by ConnectionFactory.Context and filled by ProfilingHook.
type Profile struct {
	mu    sync.Mutex
	stats ProfileStats
}

func (p *Profile) record(event *bun.QueryEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Queries++
	p.stats.Elapsed += time.Since(event.StartTime)
	p.stats.LastQuery = event.Query
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		p.stats.Failed++
	}
}

func (p *Profile) Snapshot() ProfileStats {
	if p == nil {
		return ProfileStats{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func withProfile(ctx context.Context, p *Profile) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, profileCtxKey{}, p)
}

func profileFromContext(ctx context.Context) *Profile {
	p, _ := ctx.Value(profileCtxKey{}).(*Profile)
	return p
}

// ProfilingHook attributes every statement to the Profile carried by its
// context. Statements issued without a profiled context are ignored.
type ProfilingHook struct {
	logger Logger
}

var _ bun.QueryHook = (*ProfilingHook)(nil)

func NewProfilingHook(logger Logger) *ProfilingHook {
	return &ProfilingHook{logger: logger}
}

func (h *ProfilingHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *ProfilingHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	p := profileFromContext(ctx)
	if p == nil {
		return
	}
	p.record(event)
	if h.logger == nil {
		return
	}
	if event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) {
		h.logger.Debug(color.New(color.FgRed).Sprint("profiled query failed"),
			"operation", event.Operation(),
			"duration", time.Since(event.StartTime).Round(time.Microsecond),
			"error", event.Err,
		)
		return
	}
	h.logger.Debug("profiled query",
		"operation", event.Operation(),
		"duration", time.Since(event.StartTime).Round(time.Microsecond),
	)
}

type slowQueryHook struct {
	slowTime time.Duration
	logger   Logger
}

func (h *slowQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *slowQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	if event.Err != nil {
		return
	}

	duration := time.Since(event.StartTime)
	if duration > h.slowTime && h.logger != nil {
		h.logger.Warn(color.New(color.FgYellow, color.Bold).Sprint("Database slow query detected"),
			"duration", duration,
			"slow_threshold", h.slowTime,
			"query", event.Query,
		)
	}
}
