package engage

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kalemapp/kalem/internal/models"
)

// Tombstone replaces the content of a soft-deleted comment. The row
// itself and its replies are kept, so deep links and thread structure
// survive the delete.
const Tombstone = "[Bu yorum silinmiştir]"

const maxCommentLength = 500

// ThreadedComment is the one-level view the reader sees: a top-level
// comment with its direct replies. Deeper descendants exist in the
// store but are not rendered below this level.
type ThreadedComment struct {
	models.Comment
	Replies []models.Comment `json:"replies"`
}

// CommentService manages the comment thread of a post, including the
// soft-delete cascade.
type CommentService struct {
	db *gorm.DB
}

func NewCommentService(db *gorm.DB) *CommentService {
	return &CommentService{db: db}
}

// Create adds a comment to a post, optionally as a reply. The parent
// may sit at any depth; the store does not restrict nesting, display
// does.
func (s *CommentService) Create(ctx context.Context, actor *models.User, postID uint, content string, parentID *uint) (*models.Comment, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if actor.IsBanned(time.Now()) {
		return nil, forbiddenf("banned users cannot comment")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationf("comment content cannot be empty")
	}
	if len([]rune(content)) > maxCommentLength {
		return nil, validationf("comment content cannot exceed %d characters", maxCommentLength)
	}

	comment := models.Comment{
		PostID:   postID,
		AuthorID: actor.ID,
		ParentID: parentID,
		Content:  content,
		IsActive: true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, postID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf("post %d not found", postID)
			}
			return err
		}
		if post.Status != models.StatusPublished {
			return forbiddenf("post is not published")
		}
		if !post.AllowComments {
			return forbiddenf("comments are disabled on this post")
		}

		if parentID != nil {
			var parent models.Comment
			if err := tx.First(&parent, *parentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFoundf("parent comment %d not found", *parentID)
				}
				return err
			}
			if !parent.IsActive {
				return notFoundf("parent comment %d not found", *parentID)
			}
			if parent.PostID != postID {
				return validationf("parent comment belongs to a different post")
			}
		}

		return tx.Create(&comment).Error
	})
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// Update replaces a comment's content. Only the author or an admin may
// edit. IsEdited is set whenever an edit goes through and is never
// cleared, even if the new content equals the old.
func (s *CommentService) Update(ctx context.Context, actor *models.User, commentID uint, content string) (*models.Comment, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationf("comment content cannot be empty")
	}
	if len([]rune(content)) > maxCommentLength {
		return nil, validationf("comment content cannot exceed %d characters", maxCommentLength)
	}

	var comment models.Comment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&comment, commentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf("comment %d not found", commentID)
			}
			return err
		}
		if !comment.IsActive {
			return notFoundf("comment %d not found", commentID)
		}
		if comment.AuthorID != actor.ID && !actor.IsAdmin() {
			return forbiddenf("only the author or an admin can edit a comment")
		}

		comment.Content = content
		comment.IsEdited = true
		return tx.Save(&comment).Error
	})
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// Delete soft-deletes a comment in one transaction: the comment's own
// reactions are purged, its direct replies are tombstoned, and the
// comment itself is tombstoned. The cascade deliberately stops at one
// level: replies-to-replies stay active under their tombstoned parent,
// preserving whatever discussion continued below them. Deleted rows
// remain readable by id for deep links.
func (s *CommentService) Delete(ctx context.Context, actor *models.User, commentID uint) error {
	if actor == nil {
		return ErrUnauthenticated
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		if err := tx.First(&comment, commentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf("comment %d not found", commentID)
			}
			return err
		}
		if !comment.IsActive {
			return notFoundf("comment %d not found", commentID)
		}
		if comment.AuthorID != actor.ID && !actor.IsAdmin() {
			return forbiddenf("only the author or an admin can delete a comment")
		}

		// Reactions on a deleted comment lose their meaning along with
		// the content; purge them inside the same transaction so no
		// reader sees the tombstone next to stale counts.
		if err := tx.Where("target_kind = ? AND target_id = ?", models.TargetComment, commentID).
			Delete(&models.Reaction{}).Error; err != nil {
			return err
		}

		// Direct replies only. Grandchildren keep IsActive=true; see
		// the cascade-scope test for the asserted behavior.
		if err := tx.Model(&models.Comment{}).
			Where("parent_id = ?", commentID).
			Updates(map[string]any{"is_active": false, "content": Tombstone}).Error; err != nil {
			return err
		}

		return tx.Model(&comment).
			Updates(map[string]any{"is_active": false, "content": Tombstone}).Error
	})
}

// Get fetches a comment by id. Unlike listing, it also returns
// tombstoned rows so a deep link to a deleted comment still resolves.
func (s *CommentService) Get(ctx context.Context, commentID uint) (*models.Comment, error) {
	var comment models.Comment
	if err := s.db.WithContext(ctx).First(&comment, commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf("comment %d not found", commentID)
		}
		return nil, err
	}
	return &comment, nil
}

// ListByPost returns the active comment thread of a post: top-level
// comments oldest first, each with its active direct replies.
func (s *CommentService) ListByPost(ctx context.Context, postID uint) ([]ThreadedComment, error) {
	var topLevel []models.Comment
	err := s.db.WithContext(ctx).
		Where("post_id = ? AND parent_id IS NULL AND is_active = ?", postID, true).
		Order("created_at asc").
		Find(&topLevel).Error
	if err != nil {
		return nil, err
	}

	thread := make([]ThreadedComment, 0, len(topLevel))
	if len(topLevel) == 0 {
		return thread, nil
	}

	ids := make([]uint, len(topLevel))
	for i, c := range topLevel {
		ids[i] = c.ID
	}

	var replies []models.Comment
	err = s.db.WithContext(ctx).
		Where("parent_id IN ? AND is_active = ?", ids, true).
		Order("created_at asc").
		Find(&replies).Error
	if err != nil {
		return nil, err
	}

	byParent := make(map[uint][]models.Comment, len(ids))
	for _, r := range replies {
		byParent[*r.ParentID] = append(byParent[*r.ParentID], r)
	}
	for _, c := range topLevel {
		thread = append(thread, ThreadedComment{Comment: c, Replies: byParent[c.ID]})
	}
	return thread, nil
}

// CommentCount counts the active comments of a post, replies included.
func (s *CommentService) CommentCount(ctx context.Context, postID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Comment{}).
		Where("post_id = ? AND is_active = ?", postID, true).
		Count(&count).Error
	return count, err
}
