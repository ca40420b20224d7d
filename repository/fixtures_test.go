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
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tomoncle/hummer/database"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type Author struct {
	bun.BaseModel `bun:"table:authors,alias:author"`

	ID      int64    `bun:"id,pk,autoincrement"`
	Name    string   `bun:"name,notnull,unique"`
	Profile *Profile `bun:"rel:has-one,join:id=author_id"`
	Posts   []*Post  `bun:"rel:has-many,join:id=author_id"`
}

func (a *Author) GetID() int64 { return a.ID }

type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:profile"`

	ID       int64  `bun:"id,pk,autoincrement"`
	AuthorID int64  `bun:"author_id,notnull"`
	Bio      string `bun:"bio"`
}

func (p *Profile) GetID() int64 { return p.ID }

type Post struct {
	bun.BaseModel `bun:"table:posts,alias:post"`

	ID        int64      `bun:"id,pk,autoincrement"`
	Title     string     `bun:"title,notnull"`
	AuthorID  int64      `bun:"author_id"`
	Deleted   bool       `bun:"deleted,notnull"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	Author    *Author    `bun:"rel:belongs-to,join:author_id=id"`
	Comments  []*Comment `bun:"rel:has-many,join:id=post_id"`
}

func (p *Post) GetID() int64 { return p.ID }
func (p *Post) IsDeleted() bool { return p.Deleted }
func (p *Post) SetDeleted(d bool) { p.Deleted = d }

type Comment struct {
	bun.BaseModel `bun:"table:comments,alias:comment"`

	ID     int64  `bun:"id,pk,autoincrement"`
	PostID int64  `bun:"post_id,notnull"`
	Body   string `bun:"body"`
}

func (c *Comment) GetID() int64 { return c.ID }

var _ Repository[Post] = (*Gateway[Post, *Post])(nil)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{(*Author)(nil), (*Profile)(nil), (*Post)(nil), (*Comment)(nil)} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

type logLine struct {
	level  string
	msg    string
	fields []interface{}
}

// recordingLogger keeps every line written through the database.Logger facade.
type recordingLogger struct {
	mu    sync.Mutex
	lines []logLine
}

var _ database.Logger = (*recordingLogger)(nil)

func (l *recordingLogger) add(level, msg string, fields []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level, msg, fields})
}

func (l *recordingLogger) SetLevel(database.LogLevel) {}
func (l *recordingLogger) Debug(msg string, kv ...interface{}) { l.add("debug", msg, kv) }
func (l *recordingLogger) Info(msg string, kv ...interface{}) { l.add("info", msg, kv) }
func (l *recordingLogger) Warn(msg string, kv ...interface{}) { l.add("warn", msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...interface{}) { l.add("error", msg, kv) }

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if line.level == level {
			n++
		}
	}
	return n
}

// field returns the value logged under key on the last line at level.
func (l *recordingLogger) field(level, key string) interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.lines) - 1; i >= 0; i-- {
		if l.lines[i].level != level {
			continue
		}
		kv := l.lines[i].fields
		for j := 0; j+1 < len(kv); j += 2 {
			if kv[j] == key {
				return kv[j+1]
			}
		}
		return nil
	}
	return nil
}
