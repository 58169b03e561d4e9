package models

import (
	"time"
)

// Role values for User.Role.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Post status values.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusReview    = "review"
	StatusScheduled = "scheduled"
)

// Reaction target kinds and types.
const (
	TargetPost    = "post"
	TargetComment = "comment"

	ReactionLike    = "like"
	ReactionDislike = "dislike"
)

// User is owned by the auth flow; the engagement engine only reads
// the id, role and ban status.
type User struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	DisplayName  string     `gorm:"not null" json:"displayName"`
	Role         string     `gorm:"not null;default:member" json:"role"`
	Banned       bool       `gorm:"not null;default:false" json:"-"`
	BanExpiresAt *time.Time `json:"-"`
	BanReason    string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

// IsBanned reports whether the user is currently banned. A ban with an
// expiry in the past no longer counts.
func (u *User) IsBanned(now time.Time) bool {
	if !u.Banned {
		return false
	}
	if u.BanExpiresAt != nil && u.BanExpiresAt.Before(now) {
		return false
	}
	return true
}

// Post carries only the fields the engine needs to authorize reactions
// and comments. Authoring and status transitions live elsewhere.
//
// The allow flags deliberately carry no column default: GORM omits
// zero-valued fields that have one on insert, which would make false
// unstorable. Callers always set both explicitly.
type Post struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	Slug          string     `gorm:"uniqueIndex;not null" json:"slug"`
	Title         string     `gorm:"not null" json:"title"`
	Status        string     `gorm:"not null;default:draft;index" json:"status"`
	AllowComments bool       `gorm:"not null" json:"allowComments"`
	AllowLikes    bool       `gorm:"not null" json:"allowLikes"`
	AuthorID      uint       `gorm:"not null;index" json:"authorId"`
	PublishedAt   *time.Time `gorm:"index" json:"publishedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Comment is a post comment, optionally replying to a parent comment.
// Deleted comments are never removed: IsActive flips to false and the
// content is replaced by a tombstone, so replies keep a valid parent.
type Comment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	PostID    uint      `gorm:"not null;index" json:"postId"`
	AuthorID  uint      `gorm:"not null;index" json:"authorId"`
	ParentID  *uint     `gorm:"index" json:"parentId,omitempty"`
	Content   string    `gorm:"type:varchar(500);not null" json:"content"`
	IsActive  bool      `gorm:"not null;index" json:"isActive"`
	IsEdited  bool      `gorm:"not null;default:false" json:"isEdited"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Reaction is a like or dislike on a post or a comment. The composite
// unique index over (user, target kind, target id) is the invariant:
// at most one reaction per user per target, whatever its type.
// Switching type is delete-then-insert inside one transaction, never
// an update in place.
type Reaction struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_user_target" json:"userId"`
	TargetKind string    `gorm:"not null;uniqueIndex:idx_user_target" json:"targetKind"`
	TargetID   uint      `gorm:"not null;uniqueIndex:idx_user_target" json:"targetId"`
	Type       string    `gorm:"not null" json:"type"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SavedPost is a bookmark join row. It shares the toggle pattern with
// reactions but has no type, so toggling only ever adds or removes.
type SavedPost struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_user_saved_post" json:"userId"`
	PostID    uint      `gorm:"not null;uniqueIndex:idx_user_saved_post" json:"postId"`
	CreatedAt time.Time `json:"createdAt"`
}
