package models

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}, &Post{}, &Comment{}, &Reaction{}, &SavedPost{}))
	return db
}

// A bool column with a true default can never be stored false through
// GORM, which drops zero-valued fields carrying a default on insert.
// The allow flags and IsActive therefore have no column default; this
// pins that false actually reaches the database.
func TestBoolFlags_FalsePersists(t *testing.T) {
	db := newTestDB(t)

	post := &Post{
		Slug: "locked", Title: "Locked", Status: StatusPublished,
		AllowComments: false, AllowLikes: false, AuthorID: 1,
	}
	require.NoError(t, db.Create(post).Error)

	var gotPost Post
	require.NoError(t, db.First(&gotPost, post.ID).Error)
	assert.False(t, gotPost.AllowComments)
	assert.False(t, gotPost.AllowLikes)

	comment := &Comment{PostID: post.ID, AuthorID: 1, Content: "x", IsActive: false}
	require.NoError(t, db.Create(comment).Error)

	var gotComment Comment
	require.NoError(t, db.First(&gotComment, comment.ID).Error)
	assert.False(t, gotComment.IsActive)
}
