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

// Package repokit ties the per-scope connection factory, the generic
// repository and the unit of work together.
package repokit

import (
	"context"

	"github.com/tomoncle/repokit/database"
	"github.com/tomoncle/repokit/repository"
	"github.com/tomoncle/repokit/unitofwork"
	"github.com/uptrace/bun"
)

// Scope owns one connection and one transaction for a logical unit of work
// such as a request. Close it on every exit path.
type Scope struct {
	Factory    *database.ConnectionFactory
	UnitOfWork *unitofwork.UnitOfWork
}

// NewScope opens a scope over the global pool set up by database.InitDB.
func NewScope() (*Scope, error) {
	factory, err := database.NewConnectionFactoryFromGlobal()
	if err != nil {
		return nil, err
	}
	return NewScopeWithFactory(factory), nil
}

// NewScopeWithFactory wraps an existing connection scope.
func NewScopeWithFactory(factory *database.ConnectionFactory) *Scope {
	return &Scope{Factory: factory, UnitOfWork: unitofwork.New(factory)}
}

// Close commits anything still pending and releases the scope's handles.
// It is safe to call more than once.
func (s *Scope) Close() error {
	return s.Factory.Close()
}

// Repo returns a repository for T bound to the scope's transaction.
func Repo[T any, PT repository.EntityPtr[T]](s *Scope) repository.Repository[T] {
	return repository.NewRepository[T, PT](s.Factory)
}

// Do opens a scope on the global pool, runs fn inside its unit of work and
// closes the scope whatever the outcome.
func Do(ctx context.Context, fn func(ctx context.Context, s *Scope) error) (err error) {
	s, err := NewScope()
	if err != nil {
		return err
	}
	return DoWith(ctx, s, fn)
}

// DoWith is Do on an existing scope.
func DoWith(ctx context.Context, s *Scope, fn func(ctx context.Context, s *Scope) error) (err error) {
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return s.UnitOfWork.Run(ctx, func(ctx context.Context, _ bun.Conn, _ bun.Tx) error {
		return fn(ctx, s)
	})
}
