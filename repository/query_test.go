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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/hummer/types"
	"github.com/uptrace/bun"
)

func seedPosts(t *testing.T, g *Gateway[Post, *Post], n int) []*Post {
	t.Helper()
	batch := make([]*Post, 0, n)
	for i := 1; i <= n; i++ {
		batch = append(batch, &Post{Title: fmt.Sprintf("post-%d", i)})
	}
	created, err := g.CreateAll(context.Background(), batch)
	require.NoError(t, err)
	return created
}

func TestQueryComposesWithoutMutating(t *testing.T) {
	ctx := context.Background()
	posts := newPosts(t, newTestDB(t), HardDelete)
	seedPosts(t, posts, 5)

	base, err := posts.GetAll(nil)
	require.NoError(t, err)
	filtered := base.Where("?TableAlias.title IN (?)", bun.In([]string{"post-1", "post-2"}))

	all, err := base.Count(ctx)
	require.NoError(t, err)
	some, err := filtered.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, all)
	assert.Equal(t, 2, some)

	rows, err := base.Order("id DESC").Limit(2).Offset(1).List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "post-4", rows[0].Title)
	assert.Equal(t, "post-3", rows[1].Title)

	first, err := base.Apply(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.title = ?", "post-5")
	}).First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "post-5", first.Title)
}

func TestQueryFirstOnEmpty(t *testing.T) {
	posts := newPosts(t, newTestDB(t), HardDelete)
	q, err := posts.GetAll(nil)
	require.NoError(t, err)

	_, err = q.First(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)

	rows, err := q.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestQueryPage(t *testing.T) {
	ctx := context.Background()
	posts := newPosts(t, newTestDB(t), HardDelete)
	seedPosts(t, posts, 5)

	q, err := posts.GetAll(nil)
	require.NoError(t, err)
	page, err := q.Page(ctx, types.NewPageRequest(2, 2, "id ASC"))
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages())
	require.Len(t, page.Items, 2)
	assert.Equal(t, "post-3", page.Items[0].Title)
	assert.Equal(t, "post-4", page.Items[1].Title)

	empty, err := q.Where("?TableAlias.title = ?", "none").Page(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, 10, empty.PageSize)
	assert.Empty(t, empty.Items)
}

func TestQueryErrorsAreGatewayErrors(t *testing.T) {
	posts := newPosts(t, newTestDB(t), HardDelete)
	q, err := posts.GetAll(types.NewQueryFilter("no_such_column = ?", 1))
	require.NoError(t, err, "building is lazy")

	_, err = q.List(context.Background())
	require.Error(t, err)
	assert.True(t, IsGatewayError(err))

	_, err = q.Count(context.Background())
	assert.True(t, IsGatewayError(err))
}
