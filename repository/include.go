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
	"strings"
)

// IncludePath is an ordered list of relation names rooted at T, rendered as
// "A.B.C". A path built from a bad selector carries the error and fails when
// it is applied.
type IncludePath[T any] struct {
	segments []string
	err      error
}

// Path parses a dotted relation path such as "Author.Profile".
func Path[T any](dotted string) IncludePath[T] {
	segments := strings.Split(dotted, ".")
	for _, s := range segments {
		if strings.TrimSpace(s) == "" {
			return IncludePath[T]{err: fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, dotted)}
		}
	}
	return IncludePath[T]{segments: segments}
}

func (p IncludePath[T]) String() string { return strings.Join(p.segments, ".") }

func (p IncludePath[T]) Segments() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)
	return out
}

func (p IncludePath[T]) Err() error { return p.err }

// IncludeChain accumulates an include path from T; R is the type reached
// by the last segment.
type IncludeChain[T, R any] struct {
	segments []string
	err      error
}

// Include starts a path at a single-valued relation of T:
//
//	repository.Include(func(p *Post) **Author { return &p.Author })
//
// Each path segment is the selected Go field name, which is the name Bun
// uses for the relation.
func Include[T, R any](sel func(*T) **R) *IncludeChain[T, R] {
	name, err := resolveField(sel)
	return &IncludeChain[T, R]{segments: []string{name}, err: err}
}

// IncludeMany starts a path at a collection relation of T. The segment is
// the field name, so Comments []*Comment renders "Comments", not "Comment".
func IncludeMany[T, R any](sel func(*T) *[]*R) *IncludeChain[T, R] {
	name, err := resolveField(sel)
	return &IncludeChain[T, R]{segments: []string{name}, err: err}
}

// ThenInclude extends c by a single-valued relation of the current type.
func ThenInclude[T, P, R any](c *IncludeChain[T, P], sel func(*P) **R) *IncludeChain[T, R] {
	name, err := resolveField(sel)
	return extend[T, P, R](c, name, err)
}

// ThenIncludeMany extends c by a collection relation of the current type.
func ThenIncludeMany[T, P, R any](c *IncludeChain[T, P], sel func(*P) *[]*R) *IncludeChain[T, R] {
	name, err := resolveField(sel)
	return extend[T, P, R](c, name, err)
}

func extend[T, P, R any](c *IncludeChain[T, P], name string, err error) *IncludeChain[T, R] {
	segments := make([]string, 0, len(c.segments)+1)
	segments = append(segments, c.segments...)
	segments = append(segments, name)
	if c.err != nil {
		err = c.err
	}
	return &IncludeChain[T, R]{segments: segments, err: err}
}

// Done finishes the chain.
func (c *IncludeChain[T, R]) Done() IncludePath[T] {
	return IncludePath[T]{segments: c.segments, err: c.err}
}

// resolveField returns the name of the field of S whose address sel returns
// when called on a zero S.
func resolveField[S, F any](sel func(*S) *F) (name string, err error) {
	st := reflect.TypeOf((*S)(nil)).Elem()
	if st.Kind() != reflect.Struct {
		return "", fmt.Errorf("%w: %s is not a struct", ErrInvalidPath, st)
	}
	if sel == nil {
		return "", fmt.Errorf("%w: nil selector on %s", ErrInvalidPath, st)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: selector on %s panicked: %v", ErrInvalidPath, st, r)
		}
	}()

	root := new(S)
	fp := sel(root)
	if fp == nil {
		return "", fmt.Errorf("%w: selector on %s returned nil", ErrInvalidPath, st)
	}
	base := reflect.ValueOf(root).Pointer()
	addr := reflect.ValueOf(fp).Pointer()
	if addr < base || addr >= base+st.Size() {
		return "", fmt.Errorf("%w: selector does not address a field of %s", ErrInvalidPath, st)
	}
	ft := reflect.TypeOf(fp).Elem()
	if name, ok := findField(st, addr-base, ft); ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: no %s field at offset %d of %s", ErrInvalidPath, ft, addr-base, st)
}

func findField(st reflect.Type, offset uintptr, ft reflect.Type) (string, bool) {
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if f.Offset == offset && f.Type == ft {
			return f.Name, true
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct &&
			offset >= f.Offset && offset < f.Offset+f.Type.Size() {
			if name, ok := findField(f.Type, offset-f.Offset, ft); ok {
				return name, true
			}
		}
	}
	return "", false
}
