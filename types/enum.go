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

package types

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// ScopeState is the lifecycle position of a connection scope:
// Idle -> Open -> Committed | RolledBack, and Disposed once released.
type ScopeState int

const (
	ScopeIdle ScopeState = iota
	ScopeOpen
	ScopeCommitted
	ScopeRolledBack
	ScopeDisposed
)

var _ BaseEnum = ScopeIdle

var scopeStateNames = [...]string{"idle", "open", "committed", "rolled_back", "disposed"}

var scopeStateDescs = [...]string{
	"no connection acquired yet",
	"connection and transaction open",
	"transaction committed, connection closed",
	"transaction rolled back, connection closed",
	"handles released",
}

func (s ScopeState) IsValid() bool { return s >= ScopeIdle && s <= ScopeDisposed }

func (s ScopeState) Number() int {
	if !s.IsValid() {
		return IllegalValue
	}
	return int(s)
}

func (s ScopeState) Name() string {
	if !s.IsValid() {
		return IllegalName
	}
	return scopeStateNames[s]
}

func (s ScopeState) String() string { return s.Name() }

func (s ScopeState) Desc() string {
	if !s.IsValid() {
		return IllegalDesc
	}
	return scopeStateDescs[s]
}

// IsClosed reports whether the scope has reached a terminal state.
func (s ScopeState) IsClosed() bool {
	return s == ScopeCommitted || s == ScopeRolledBack || s == ScopeDisposed
}
