package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/kalemapp/kalem/internal/engage"
	"github.com/kalemapp/kalem/internal/models"
	"github.com/kalemapp/kalem/internal/ws"
)

// --- Configuration Constants ---
const (
	rateLimitRPS   = 1.0 / 3.0 // 1 comment every 3 seconds per IP
	rateLimitBurst = 1
)

// --- Structs for request binding ---
type ToggleReactionInput struct {
	TargetKind string `json:"targetKind" binding:"required,oneof=post comment"`
	TargetID   uint   `json:"targetId" binding:"required"`
	Type       string `json:"type" binding:"required,oneof=like dislike"`
}
type CreateCommentInput struct {
	Content  string `json:"content" binding:"required,min=1,max=500"`
	ParentID *uint  `json:"parentId"`
}
type UpdateCommentInput struct {
	Content string `json:"content" binding:"required,min=1,max=500"`
}

// WsMessage defines the JSON structure pushed to websocket clients.
type WsMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// --- Rate Limiter ---
type IPRateLimiter struct {
	visitors map[string]*rate.Limiter
	mu       sync.RWMutex
	rps      rate.Limit
	burst    int
}

func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*rate.Limiter),
		mu:       sync.RWMutex{},
		rps:      r,
		burst:    b,
	}
}
func (rl *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter, exists := rl.visitors[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.rps, rl.burst)
		rl.visitors[ip] = limiter
	}
	return limiter
}
func RateLimitMiddleware(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.GetLimiter(ip).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Please wait."})
			return
		}
		c.Next()
	}
}

// --- Handlers ---
type Env struct {
	DB        *gorm.DB
	Hub       *ws.Hub
	Reactions *engage.ReactionService
	Comments  *engage.CommentService
	Feed      *engage.FeedService
}

// respondError maps engine errors to HTTP statuses. Unknown errors are
// logged and hidden behind a generic 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engage.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, engage.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, engage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engage.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engage.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("internal error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
	}
}

// resolvePost finds a post by numeric id or by slug.
func (e *Env) resolvePost(c *gin.Context) (*models.Post, bool) {
	ref := c.Param("slug")
	var post models.Post
	var err error
	if id, perr := strconv.ParseUint(ref, 10, 64); perr == nil {
		err = e.DB.First(&post, uint(id)).Error
	} else {
		err = e.DB.Where("slug = ?", ref).First(&post).Error
	}
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return nil, false
	}
	return &post, true
}

func (e *Env) GetPosts(c *gin.Context) {
	var posts []models.Post
	err := e.DB.Where("status = ?", models.StatusPublished).
		Order("published_at desc").
		Find(&posts).Error
	if err != nil {
		log.Printf("Error fetching posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch posts"})
		return
	}
	c.JSON(http.StatusOK, posts)
}

// GetPost returns one post with its live engagement counts. Counts are
// derived by counting rows at request time, never stored.
func (e *Env) GetPost(c *gin.Context) {
	post, ok := e.resolvePost(c)
	if !ok {
		return
	}

	target := engage.Target{Kind: models.TargetPost, ID: post.ID}
	likes, dislikes, err := e.Reactions.Counts(c.Request.Context(), target)
	if err != nil {
		respondError(c, err)
		return
	}
	commentCount, err := e.Comments.CommentCount(c.Request.Context(), post.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	response := gin.H{
		"post":         post,
		"likeCount":    likes,
		"dislikeCount": dislikes,
		"commentCount": commentCount,
	}
	if user := CurrentUser(c); user != nil {
		reaction, err := e.Reactions.UserReaction(c.Request.Context(), user.ID, target)
		if err != nil {
			respondError(c, err)
			return
		}
		response["userReaction"] = reaction
	}
	c.JSON(http.StatusOK, response)
}

func (e *Env) ToggleReaction(c *gin.Context) {
	var input ToggleReactionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	target := engage.Target{Kind: input.TargetKind, ID: input.TargetID}
	result, err := e.Reactions.Toggle(c.Request.Context(), CurrentUser(c), target, input.Type)
	if err != nil {
		respondError(c, err)
		return
	}

	e.broadcastMessage(WsMessage{Type: "reaction", Data: gin.H{
		"targetKind":   input.TargetKind,
		"targetId":     input.TargetID,
		"likeCount":    result.LikeCount,
		"dislikeCount": result.DislikeCount,
	}})

	c.JSON(http.StatusOK, result)
}

func (e *Env) SavePost(c *gin.Context) {
	post, ok := e.resolvePost(c)
	if !ok {
		return
	}
	result, err := e.Reactions.ToggleSave(c.Request.Context(), CurrentUser(c), post.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (e *Env) GetComments(c *gin.Context) {
	post, ok := e.resolvePost(c)
	if !ok {
		return
	}
	thread, err := e.Comments.ListByPost(c.Request.Context(), post.ID)
	if err != nil {
		log.Printf("Error fetching comments: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch comments"})
		return
	}
	c.JSON(http.StatusOK, thread)
}

// GetComment serves deep links: it resolves tombstoned comments too.
func (e *Env) GetComment(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid comment ID"})
		return
	}
	comment, err := e.Comments.Get(c.Request.Context(), uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

func (e *Env) CreateComment(c *gin.Context) {
	post, ok := e.resolvePost(c)
	if !ok {
		return
	}
	var input CreateCommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	comment, err := e.Comments.Create(c.Request.Context(), CurrentUser(c), post.ID, input.Content, input.ParentID)
	if err != nil {
		respondError(c, err)
		return
	}

	e.broadcastMessage(WsMessage{Type: "new_comment", Data: comment})
	c.JSON(http.StatusCreated, comment)
}

func (e *Env) UpdateComment(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid comment ID"})
		return
	}
	var input UpdateCommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: " + err.Error()})
		return
	}

	comment, err := e.Comments.Update(c.Request.Context(), CurrentUser(c), uint(id), input.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

func (e *Env) DeleteComment(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid comment ID"})
		return
	}

	if err := e.Comments.Delete(c.Request.Context(), CurrentUser(c), uint(id)); err != nil {
		respondError(c, err)
		return
	}

	e.broadcastMessage(WsMessage{Type: "comment_deleted", Data: gin.H{"id": id}})
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted"})
}

// GetActivityFeed serves the admin notification panel: a merged,
// globally time-ordered view of recent comments, reactions, sign-ups
// and published posts.
func (e *Env) GetActivityFeed(c *gin.Context) {
	kind := c.DefaultQuery("kind", engage.FeedAll)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	feedPage, err := e.Feed.GetFeed(c.Request.Context(), kind, page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, feedPage)
}

// broadcastMessage pushes a JSON payload to all websocket clients.
func (e *Env) broadcastMessage(msg WsMessage) {
	jsonMsg, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error marshalling WS message: %v", err)
		return
	}
	e.Hub.Broadcast <- jsonMsg
}
