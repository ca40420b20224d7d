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
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Relation describes one navigable relation of an entity type.
type Relation struct {
	// Name is the Go field name, as accepted by bun's Relation.
	Name   string
	Target reflect.Type
	// Many is set for has-many and many-to-many relations.
	Many bool
}

// MetadataProvider returns the relations declared on an entity type.
// Unknown types yield an error wrapping ErrUnknownType.
type MetadataProvider interface {
	Relations(t reflect.Type) ([]Relation, error)
}

type bunMetadata struct {
	db bun.IDB
}

// NewBunMetadata reads relations from the table metadata bun derives from
// struct tags.
func NewBunMetadata(db bun.IDB) MetadataProvider {
	return &bunMetadata{db: db}
}

func (m *bunMetadata) Relations(t reflect.Type) (rels []Relation, err error) {
	t = indirectElem(t)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v", ErrUnknownType, t)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrUnknownType, t, r)
		}
	}()

	table := m.db.Dialect().Tables().Get(t)
	if table == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	for _, rel := range table.Relations {
		rels = append(rels, Relation{
			Name:   rel.Field.GoName,
			Target: indirectElem(rel.Field.StructField.Type),
			Many:   rel.Type == schema.HasManyRelation || rel.Type == schema.ManyToManyRelation,
		})
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].Name < rels[j].Name })
	return rels, nil
}

// Schema is relation metadata declared explicitly at startup.
type Schema struct {
	mu   sync.RWMutex
	rels map[reflect.Type][]Relation
}

func NewSchema() *Schema {
	return &Schema{rels: make(map[reflect.Type][]Relation)}
}

// Register declares the relations of t, replacing earlier declarations.
// A type registered with no relations is known and has none.
func (s *Schema) Register(t reflect.Type, rels ...Relation) *Schema {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rels[indirectElem(t)] = append([]Relation(nil), rels...)
	return s
}

func (s *Schema) Relations(t reflect.Type) ([]Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rels, ok := s.rels[indirectElem(t)]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownType, t)
	}
	return append([]Relation(nil), rels...), nil
}

// Rel declares a single-valued relation to R.
func Rel[R any](name string) Relation {
	return Relation{Name: name, Target: TypeOf[R]()}
}

// RelMany declares a collection relation to R.
func RelMany[R any](name string) Relation {
	return Relation{Name: name, Target: TypeOf[R](), Many: true}
}

func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// indirectElem strips pointers and unwraps slice or array element types.
func indirectElem(t reflect.Type) reflect.Type {
	for t != nil {
		switch t.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Array:
			t = t.Elem()
		default:
			return t
		}
	}
	return nil
}
