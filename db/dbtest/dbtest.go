// Package dbtest opens throwaway databases and seeds fixtures for tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zzstop/hw05-final/cmd/models"
	"github.com/zzstop/hw05-final/db"
)

// Password is the plain password of every user made by CreateUser.
const Password = "correct-horse-battery"

// New returns a migrated in-memory database with foreign keys enforced.
func New(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:?_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func CreateUser(t *testing.T, gdb *gorm.DB, username string) models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)

	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
	}
	require.NoError(t, gdb.Create(&user).Error)
	return user
}

func CreateGroup(t *testing.T, gdb *gorm.DB, slug string) models.Group {
	t.Helper()

	group := models.Group{
		Title:       "Group " + slug,
		Slug:        slug,
		Description: "Description of " + slug,
	}
	require.NoError(t, gdb.Create(&group).Error)
	return group
}

func CreatePost(t *testing.T, gdb *gorm.DB, author models.User, group *models.Group, text string) models.Post {
	t.Helper()

	post := models.Post{
		Text:     text,
		AuthorID: author.ID,
	}
	if group != nil {
		post.GroupID = &group.ID
	}
	require.NoError(t, gdb.Create(&post).Error)
	return post
}

// CreatePosts makes n posts with strictly increasing publication dates.
func CreatePosts(t *testing.T, gdb *gorm.DB, author models.User, group *models.Group, n int) []models.Post {
	t.Helper()

	base := time.Now().Add(-time.Duration(n) * time.Minute)
	posts := make([]models.Post, 0, n)
	for i := 0; i < n; i++ {
		post := models.Post{
			Text:     fmt.Sprintf("post number %d", i),
			AuthorID: author.ID,
			PubDate:  base.Add(time.Duration(i) * time.Minute),
		}
		if group != nil {
			post.GroupID = &group.ID
		}
		require.NoError(t, gdb.Create(&post).Error)
		posts = append(posts, post)
	}
	return posts
}

func CreateComment(t *testing.T, gdb *gorm.DB, author models.User, post models.Post, text string) models.Comment {
	t.Helper()

	comment := models.Comment{
		PostID:   post.ID,
		AuthorID: author.ID,
		Text:     text,
	}
	require.NoError(t, gdb.Create(&comment).Error)
	return comment
}

func CreateFollow(t *testing.T, gdb *gorm.DB, user, author models.User) models.Follow {
	t.Helper()

	follow := models.Follow{UserID: user.ID, AuthorID: author.ID}
	require.NoError(t, gdb.Create(&follow).Error)
	return follow
}

func Count(t *testing.T, gdb *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()

	var n int64
	q := gdb.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}
