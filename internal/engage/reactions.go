package engage

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/kalemapp/kalem/internal/models"
)

// Target identifies the entity a reaction applies to: a post or a
// comment, as a tagged variant rather than two parallel foreign keys.
type Target struct {
	Kind string
	ID   uint
}

// ToggleResult is returned to the caller immediately after a toggle,
// with counts read from the same store in the same transaction
// (read-your-write).
type ToggleResult struct {
	Action       string  `json:"action"` // "added" or "removed"
	LikeCount    int64   `json:"likeCount"`
	DislikeCount int64   `json:"dislikeCount"`
	UserReaction *string `json:"userReaction"` // nil when no reaction remains
}

// SaveResult is returned by the bookmark toggle.
type SaveResult struct {
	Saved bool `json:"saved"`
}

// ReactionService owns the reaction rows. It holds no state of its
// own; the unique index on (user_id, target_kind, target_id) is the
// authority for the one-reaction-per-target invariant, not any
// application-level lock.
type ReactionService struct {
	db *gorm.DB
}

func NewReactionService(db *gorm.DB) *ReactionService {
	return &ReactionService{db: db}
}

// Toggle adds, removes or switches the actor's reaction on target.
// Same type as the existing row removes it; the opposite type replaces
// it (delete old, insert new, one transaction); no existing row
// inserts one. Calling twice with the same type is a true toggle, not
// a set.
func (s *ReactionService) Toggle(ctx context.Context, actor *models.User, target Target, reactionType string) (*ToggleResult, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}
	if actor.IsBanned(time.Now()) {
		return nil, forbiddenf("banned users cannot react")
	}
	if reactionType != models.ReactionLike && reactionType != models.ReactionDislike {
		return nil, validationf("reaction type must be 'like' or 'dislike'")
	}
	if target.Kind != models.TargetPost && target.Kind != models.TargetComment {
		return nil, validationf("target kind must be 'post' or 'comment'")
	}

	result, err := s.toggleOnce(ctx, actor.ID, target, reactionType)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// A concurrent toggle from the same user won the insert race.
		// The constraint did its job; rerun the algorithm once against
		// the new state.
		log.Printf("reaction toggle hit unique constraint for user %d, retrying once", actor.ID)
		result, err = s.toggleOnce(ctx, actor.ID, target, reactionType)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict
		}
	}
	return result, err
}

// checkTarget verifies the target exists and accepts reactions.
// Published posts must allow likes; comments have no such flag, but a
// tombstoned comment no longer takes reactions. It runs inside the
// toggle transaction so a concurrent delete cascade (itself one
// transaction) serializes wholly before or wholly after the mutation,
// never between check and insert.
func checkTarget(tx *gorm.DB, target Target) error {
	switch target.Kind {
	case models.TargetPost:
		var post models.Post
		if err := tx.First(&post, target.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf("post %d not found", target.ID)
			}
			return err
		}
		if post.Status != models.StatusPublished {
			return forbiddenf("post is not published")
		}
		if !post.AllowLikes {
			return forbiddenf("likes are disabled on this post")
		}
	case models.TargetComment:
		var comment models.Comment
		if err := tx.First(&comment, target.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundf("comment %d not found", target.ID)
			}
			return err
		}
		if !comment.IsActive {
			return notFoundf("comment %d not found", target.ID)
		}
	}
	return nil
}

func (s *ReactionService) toggleOnce(ctx context.Context, userID uint, target Target, reactionType string) (*ToggleResult, error) {
	var result ToggleResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkTarget(tx, target); err != nil {
			return err
		}

		var existing models.Reaction
		err := tx.Where("user_id = ? AND target_kind = ? AND target_id = ?", userID, target.Kind, target.ID).
			First(&existing).Error

		switch {
		case err == nil && existing.Type == reactionType:
			// Same type pressed again: remove.
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			result.Action = "removed"
			result.UserReaction = nil

		case err == nil:
			// Opposite type present: switch. Delete-then-insert keeps
			// the single-row invariant under the unique index; the row
			// is never updated in place.
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
			fresh := models.Reaction{UserID: userID, TargetKind: target.Kind, TargetID: target.ID, Type: reactionType}
			if err := tx.Create(&fresh).Error; err != nil {
				return err
			}
			result.Action = "added"
			result.UserReaction = &fresh.Type

		case errors.Is(err, gorm.ErrRecordNotFound):
			fresh := models.Reaction{UserID: userID, TargetKind: target.Kind, TargetID: target.ID, Type: reactionType}
			if err := tx.Create(&fresh).Error; err != nil {
				return err
			}
			result.Action = "added"
			result.UserReaction = &fresh.Type

		default:
			return err
		}

		likes, dislikes, err := countsTx(tx, target)
		if err != nil {
			return err
		}
		result.LikeCount = likes
		result.DislikeCount = dislikes
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Counts returns the live like/dislike counts for a target by counting
// rows. Nothing is stored separately, so the counts can never drift
// from the reaction rows.
func (s *ReactionService) Counts(ctx context.Context, target Target) (likes, dislikes int64, err error) {
	return countsTx(s.db.WithContext(ctx), target)
}

func countsTx(tx *gorm.DB, target Target) (likes, dislikes int64, err error) {
	if err = tx.Model(&models.Reaction{}).
		Where("target_kind = ? AND target_id = ? AND type = ?", target.Kind, target.ID, models.ReactionLike).
		Count(&likes).Error; err != nil {
		return 0, 0, err
	}
	if err = tx.Model(&models.Reaction{}).
		Where("target_kind = ? AND target_id = ? AND type = ?", target.Kind, target.ID, models.ReactionDislike).
		Count(&dislikes).Error; err != nil {
		return 0, 0, err
	}
	return likes, dislikes, nil
}

// UserReaction returns the actor's current reaction type on target, or
// nil when there is none.
func (s *ReactionService) UserReaction(ctx context.Context, userID uint, target Target) (*string, error) {
	var reaction models.Reaction
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND target_kind = ? AND target_id = ?", userID, target.Kind, target.ID).
		First(&reaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reaction.Type, nil
}

// ToggleSave flips the actor's bookmark on a post. Bookmarks share the
// toggle pattern with reactions but carry no type, so there is nothing
// to switch.
func (s *ReactionService) ToggleSave(ctx context.Context, actor *models.User, postID uint) (*SaveResult, error) {
	if actor == nil {
		return nil, ErrUnauthenticated
	}

	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundf("post %d not found", postID)
		}
		return nil, err
	}

	var result SaveResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.SavedPost
		err := tx.Where("user_id = ? AND post_id = ?", actor.ID, postID).First(&existing).Error
		switch {
		case err == nil:
			result.Saved = false
			return tx.Delete(&existing).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			result.Saved = true
			return tx.Create(&models.SavedPost{UserID: actor.ID, PostID: postID}).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
