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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncludeThenIncludeRendersDottedPath(t *testing.T) {
	chain := Include(func(p *Post) **Author { return &p.Author })
	path := ThenInclude(chain, func(a *Author) **Profile { return &a.Profile }).Done()

	require.NoError(t, path.Err())
	assert.Equal(t, "Author.Profile", path.String())
	assert.Equal(t, []string{"Author", "Profile"}, path.Segments())
}

func TestIncludeManyChains(t *testing.T) {
	path := ThenIncludeMany(
		Include(func(p *Post) **Author { return &p.Author }),
		func(a *Author) *[]*Post { return &a.Posts },
	).Done()
	assert.Equal(t, "Author.Posts", path.String())

	comments := IncludeMany(func(p *Post) *[]*Comment { return &p.Comments }).Done()
	assert.Equal(t, "Comments", comments.String())
}

func TestIncludeChainDoesNotShareSegments(t *testing.T) {
	base := Include(func(p *Post) **Author { return &p.Author })
	a := ThenInclude(base, func(a *Author) **Profile { return &a.Profile }).Done()
	b := ThenIncludeMany(base, func(a *Author) *[]*Post { return &a.Posts }).Done()

	assert.Equal(t, "Author.Profile", a.String())
	assert.Equal(t, "Author.Posts", b.String())
	assert.Equal(t, "Author", base.Done().String())
}

func TestIncludeBadSelectors(t *testing.T) {
	outside := Include(func(p *Post) **Author {
		var a *Author
		return &a
	}).Done()
	assert.ErrorIs(t, outside.Err(), ErrInvalidPath)

	nested := Include(func(p *Post) **Profile { return &p.Author.Profile }).Done()
	assert.ErrorIs(t, nested.Err(), ErrInvalidPath, "nil dereference is reported, not raised")

	nilSel := Include[Post, Author](nil).Done()
	assert.ErrorIs(t, nilSel.Err(), ErrInvalidPath)

	// an error early in the chain survives later segments
	chained := ThenInclude(Include(func(p *Post) **Author { return nil }), func(a *Author) **Profile { return &a.Profile }).Done()
	assert.ErrorIs(t, chained.Err(), ErrInvalidPath)
}

type embeddedRelations struct {
	Post
	Extra *Comment
}

func TestIncludeResolvesEmbeddedFields(t *testing.T) {
	path := Include(func(e *embeddedRelations) **Author { return &e.Author }).Done()
	require.NoError(t, path.Err())
	assert.Equal(t, "Author", path.String())

	extra := Include(func(e *embeddedRelations) **Comment { return &e.Extra }).Done()
	assert.Equal(t, "Extra", extra.String())
}

func TestPathParsing(t *testing.T) {
	p := Path[Post]("Author.Posts.Comments")
	require.NoError(t, p.Err())
	assert.Equal(t, []string{"Author", "Posts", "Comments"}, p.Segments())

	assert.ErrorIs(t, Path[Post]("").Err(), ErrInvalidPath)
	assert.ErrorIs(t, Path[Post]("Author..Posts").Err(), ErrInvalidPath)
}
