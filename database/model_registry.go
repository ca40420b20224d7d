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
	"reflect"
	"sort"
	"sync"
)

var defaultRegistry = newModelRegistry()

// SQLModel is an entity whose table RunMigrations creates. Instance returns
// a bun model pointer; tables are created in ascending Priority so that
// referenced tables can come first.
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

type ModelRegistry interface {
	Register(model SQLModel)
	Models() []SQLModel
}

// modelRegistry keeps one model per Go type; registering a type again
// replaces the earlier entry.
type modelRegistry struct {
	mu     sync.RWMutex
	byType map[reflect.Type]int
	models []SQLModel
}

func newModelRegistry() ModelRegistry {
	return &modelRegistry{byType: make(map[reflect.Type]int)}
}

func (r *modelRegistry) Register(model SQLModel) {
	if model == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	typ := reflect.TypeOf(model.Instance())
	if i, ok := r.byType[typ]; ok && typ != nil {
		r.models[i] = model
		return
	}
	r.byType[typ] = len(r.models)
	r.models = append(r.models, model)
}

func (r *modelRegistry) Models() []SQLModel {
	r.mu.RLock()
	out := append([]SQLModel(nil), r.models...)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority() < out[j].Priority() })
	return out
}

type modelAdapter struct {
	instance interface{}
	priority int
}

func (a modelAdapter) Instance() interface{} { return a.instance }
func (a modelAdapter) Priority() int { return a.priority }

// NewModelAdapter pairs a bun model pointer with a creation priority.
func NewModelAdapter(instance interface{}, priority int) SQLModel {
	return modelAdapter{instance: instance, priority: priority}
}

// GetRegisteredModels returns the registered models by ascending priority.
func GetRegisteredModels() []SQLModel {
	return defaultRegistry.Models()
}

func RegisteredModel(model SQLModel) {
	defaultRegistry.Register(model)
}

// RegisterModels registers bun model pointers, prioritised in argument
// order after the models already registered.
func RegisterModels(instances ...interface{}) {
	base := len(defaultRegistry.Models())
	for i, instance := range instances {
		RegisteredModel(NewModelAdapter(instance, base+i))
	}
}

// RegisteredModelInstances returns the model pointers of all registered
// models in priority order.
func RegisteredModelInstances() []interface{} {
	models := GetRegisteredModels()
	out := make([]interface{}, 0, len(models))
	for _, m := range models {
		out = append(out, m.Instance())
	}
	return out
}
