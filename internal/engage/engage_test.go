package engage

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kalemapp/kalem/internal/models"
)

// newTestDB opens a fresh in-memory SQLite database with the full
// schema migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Reaction{},
		&models.SavedPost{},
	))
	return db
}

func createUser(t *testing.T, db *gorm.DB, name, role string) *models.User {
	t.Helper()
	user := &models.User{DisplayName: name, Role: role}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createPost(t *testing.T, db *gorm.DB, slug, status string, allowComments, allowLikes bool, authorID uint) *models.Post {
	t.Helper()
	post := &models.Post{
		Slug:          slug,
		Title:         "Post " + slug,
		Status:        status,
		AllowComments: allowComments,
		AllowLikes:    allowLikes,
		AuthorID:      authorID,
	}
	if status == models.StatusPublished {
		now := time.Now()
		post.PublishedAt = &now
	}
	require.NoError(t, db.Create(post).Error)
	return post
}

func reactionRowCount(t *testing.T, db *gorm.DB, userID uint, target Target) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.Reaction{}).
		Where("user_id = ? AND target_kind = ? AND target_id = ?", userID, target.Kind, target.ID).
		Count(&count).Error)
	return count
}
