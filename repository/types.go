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

package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/tomoncle/hummer/types"
	"github.com/uptrace/bun"
)

// Entity is implemented by the pointer of every model a Gateway manages.
// GetID returns the 64-bit primary key; 0 means not yet persisted.
type Entity interface {
	GetID() int64
}

// SoftDeletable is an Entity carrying a deleted marker. Gateways built with
// SoftDelete require it.
type SoftDeletable interface {
	Entity
	IsDeleted() bool
	SetDeleted(deleted bool)
}

// EntityPtr constrains P to be *T implementing Entity.
type EntityPtr[T any] interface {
	*T
	Entity
}

// CrudRepository defines the generic CRUD verbs over one entity type.
type CrudRepository[T any] interface {
	GetAll(filter *types.QueryFilter, includes ...IncludePath[T]) (*Query[T], error)

	Get(ctx context.Context, id int64, includes ...IncludePath[T]) (*T, error)

	Create(ctx context.Context, entity *T) (*T, error)

	CreateAll(ctx context.Context, entities []*T) ([]*T, error)

	Update(ctx context.Context, entity *T) (*T, error)

	UpdateAll(ctx context.Context, entities []*T) ([]*T, error)

	Delete(ctx context.Context, entity *T) (*T, error)

	Upsert(ctx context.Context, entity *T) (*T, error)

	Exists(ctx context.Context, filter *types.QueryFilter) (bool, error)
}

// NavigationRepository enumerates the relation paths reachable from T.
type NavigationRepository[T any] interface {
	Navigations(maxLevel int) ([]IncludePath[T], error)
}

// Repository combines CRUD and navigation and exposes the Bun select
// builder for advanced use cases.
type Repository[T any] interface {
	CrudRepository[T]
	NavigationRepository[T]
	Policy() DeletePolicy
	NewSelect() *bun.SelectQuery
}

// DeletePolicy selects what Delete does with a row.
type DeletePolicy int

const (
	// DeletePolicyUnset is rejected by NewGateway; a policy must be chosen.
	DeletePolicyUnset DeletePolicy = iota
	// HardDelete removes the row.
	HardDelete
	// SoftDelete sets the deleted marker and updates the row.
	SoftDelete
)

var _ types.BaseEnum = DeletePolicy(0)

// ParseDeletePolicy accepts "hard" or "soft", case-insensitively.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hard":
		return HardDelete, nil
	case "soft":
		return SoftDelete, nil
	default:
		return DeletePolicyUnset, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
	}
}

func (p DeletePolicy) IsValid() bool { return p == HardDelete || p == SoftDelete }

func (p DeletePolicy) Number() int {
	if !p.IsValid() {
		return types.IllegalValue
	}
	return int(p)
}

func (p DeletePolicy) Name() string {
	switch p {
	case HardDelete:
		return "hard"
	case SoftDelete:
		return "soft"
	default:
		return types.IllegalName
	}
}

func (p DeletePolicy) String() string { return p.Name() }

func (p DeletePolicy) Desc() string {
	switch p {
	case HardDelete:
		return "remove the row"
	case SoftDelete:
		return "mark the row deleted"
	default:
		return types.IllegalDesc
	}
}

// Action tags the operation a GatewayError was raised by.
type Action int

const (
	ActionQuery Action = iota + 1
	ActionCreate
	ActionUpdate
	ActionDelete
)

var _ types.BaseEnum = Action(0)

func (a Action) IsValid() bool { return a >= ActionQuery && a <= ActionDelete }

func (a Action) Number() int {
	if !a.IsValid() {
		return types.IllegalValue
	}
	return int(a)
}

func (a Action) Name() string {
	switch a {
	case ActionQuery:
		return "Query"
	case ActionCreate:
		return "Create"
	case ActionUpdate:
		return "Update"
	case ActionDelete:
		return "Delete"
	default:
		return types.IllegalName
	}
}

func (a Action) String() string { return a.Name() }

func (a Action) Desc() string {
	if !a.IsValid() {
		return types.IllegalDesc
	}
	return strings.ToLower(a.Name())
}

// LookupResult is the multiplicity of a single-row lookup by identifier.
type LookupResult int

const (
	NotFound LookupResult = iota
	FoundOne
	FoundMany
)

func (r LookupResult) String() string {
	switch r {
	case FoundOne:
		return "found-one"
	case FoundMany:
		return "found-many"
	default:
		return "not-found"
	}
}
