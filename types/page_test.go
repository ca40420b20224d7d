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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageRequestDefaults(t *testing.T) {
	req := NewPageRequest(0, 0)
	assert.Equal(t, 1, req.GetPage())
	assert.Equal(t, 10, req.GetPageSize())
	assert.Equal(t, 0, req.GetOffset())

	req = NewPageRequest(3, 25, "id DESC")
	assert.Equal(t, 50, req.GetOffset())
	assert.Equal(t, []string{"id DESC"}, req.GetOrders())
}

func TestPaginationTotalPages(t *testing.T) {
	p := NewDefaultPagination[struct{}](1, 10)
	assert.Equal(t, 0, p.TotalPages())

	p.Total = 21
	assert.Equal(t, 3, p.TotalPages())
}

func TestQueryFilterIsEmpty(t *testing.T) {
	var f *QueryFilter
	assert.True(t, f.IsEmpty())
	assert.True(t, NewQueryFilter("").IsEmpty())
	assert.False(t, NewQueryFilter("id = ?", 1).IsEmpty())
}
