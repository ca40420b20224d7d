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

// WalkNavigations returns every relation path reachable from root with at
// most maxLevel segments, depth first, each path emitted before its
// children. Cycles are cut only by the depth bound.
func WalkNavigations(meta MetadataProvider, root reflect.Type, maxLevel int) ([]string, error) {
	entity := fmt.Sprint(indirectElem(root))
	if meta == nil {
		return nil, newError(ActionQuery, entity, nil, "walk navigations", fmt.Errorf("%w: no metadata provider", ErrUnknownType))
	}
	if maxLevel < 1 {
		return nil, newError(ActionQuery, entity, nil, fmt.Sprintf("walk navigations: maxLevel %d < 1", maxLevel), ErrInvalidPath)
	}

	var paths []string
	var walk func(t reflect.Type, prefix []string) error
	walk = func(t reflect.Type, prefix []string) error {
		rels, err := meta.Relations(t)
		if err != nil {
			return err
		}
		for _, rel := range rels {
			path := append(prefix[:len(prefix):len(prefix)], rel.Name)
			paths = append(paths, strings.Join(path, "."))
			if len(path) < maxLevel {
				if err := walk(rel.Target, path); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(root, nil); err != nil {
		return nil, newError(ActionQuery, entity, nil, "walk navigations", err)
	}
	return paths, nil
}

// Navigations walks the relations of T and returns them as include paths.
func Navigations[T any](meta MetadataProvider, maxLevel int) ([]IncludePath[T], error) {
	paths, err := WalkNavigations(meta, TypeOf[T](), maxLevel)
	if err != nil {
		return nil, err
	}
	out := make([]IncludePath[T], 0, len(paths))
	for _, p := range paths {
		out = append(out, Path[T](p))
	}
	return out, nil
}
