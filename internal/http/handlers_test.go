package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kalemapp/kalem/internal/config"
	"github.com/kalemapp/kalem/internal/models"
	"github.com/kalemapp/kalem/internal/ws"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

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

	cfg := &config.Config{
		CORSOrigin:    "*",
		JWTSecret:     testSecret,
		FeedWindow:    7 * 24 * time.Hour,
		FeedSourceCap: 50,
	}

	hub := ws.NewHub()
	go hub.Run()

	router := gin.New()
	SetupRoutes(router, db, cfg, hub)
	return router, db
}

func bearerToken(t *testing.T, userID uint) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", userID),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(router *gin.Engine, method, path, body, auth string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedPublishedPost(t *testing.T, db *gorm.DB, slug string, authorID uint) *models.Post {
	t.Helper()
	now := time.Now()
	post := &models.Post{
		Slug: slug, Title: "Post " + slug, Status: models.StatusPublished,
		AllowComments: true, AllowLikes: true, AuthorID: authorID, PublishedAt: &now,
	}
	require.NoError(t, db.Create(post).Error)
	return post
}

func TestToggleReactionEndpoint(t *testing.T) {
	router, db := newTestServer(t)

	user := &models.User{DisplayName: "u1", Role: models.RoleMember}
	require.NoError(t, db.Create(user).Error)
	post := seedPublishedPost(t, db, "hello", user.ID)

	body := fmt.Sprintf(`{"targetKind":"post","targetId":%d,"type":"like"}`, post.ID)

	// Anonymous toggle is rejected.
	w := doRequest(router, "POST", "/api/reactions/toggle", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Authenticated toggle adds the reaction and returns live counts.
	w = doRequest(router, "POST", "/api/reactions/toggle", body, bearerToken(t, user.ID))
	require.Equal(t, http.StatusOK, w.Code)

	var result struct {
		Action       string  `json:"action"`
		LikeCount    int64   `json:"likeCount"`
		DislikeCount int64   `json:"dislikeCount"`
		UserReaction *string `json:"userReaction"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "added", result.Action)
	assert.EqualValues(t, 1, result.LikeCount)
	require.NotNil(t, result.UserReaction)
	assert.Equal(t, "like", *result.UserReaction)

	// Unknown target maps to 404.
	w = doRequest(router, "POST", "/api/reactions/toggle",
		`{"targetKind":"post","targetId":9999,"type":"like"}`, bearerToken(t, user.ID))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommentEndpoints(t *testing.T) {
	router, db := newTestServer(t)

	user := &models.User{DisplayName: "u1", Role: models.RoleMember}
	require.NoError(t, db.Create(user).Error)
	post := seedPublishedPost(t, db, "hello", user.ID)

	w := doRequest(router, "POST", fmt.Sprintf("/api/posts/%d/comments", post.ID),
		`{"content":"first!"}`, bearerToken(t, user.ID))
	require.Equal(t, http.StatusCreated, w.Code)

	var comment models.Comment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &comment))
	assert.Equal(t, "first!", comment.Content)

	// Slug routing resolves the same post.
	w = doRequest(router, "GET", "/api/posts/hello/comments", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	// Empty content is a 400 straight from binding. Updates are not
	// rate limited, so this does not trip the per-IP comment limiter.
	w = doRequest(router, "PUT", fmt.Sprintf("/api/comments/%d", comment.ID),
		`{"content":""}`, bearerToken(t, user.ID))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, "DELETE", fmt.Sprintf("/api/comments/%d", comment.ID), "", bearerToken(t, user.ID))
	assert.Equal(t, http.StatusOK, w.Code)

	// The tombstone stays reachable by id.
	w = doRequest(router, "GET", fmt.Sprintf("/api/comments/%d", comment.ID), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &comment))
	assert.False(t, comment.IsActive)
}

func TestAdminFeedEndpoint(t *testing.T) {
	router, db := newTestServer(t)

	member := &models.User{DisplayName: "member", Role: models.RoleMember}
	require.NoError(t, db.Create(member).Error)
	admin := &models.User{DisplayName: "admin", Role: models.RoleAdmin}
	require.NoError(t, db.Create(admin).Error)

	w := doRequest(router, "GET", "/api/admin/feed", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, "GET", "/api/admin/feed", "", bearerToken(t, member.ID))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(router, "GET", "/api/admin/feed", "", bearerToken(t, admin.ID))
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Events           []json.RawMessage `json:"events"`
		Page             int               `json:"page"`
		ApproximateTotal int64             `json:"approximateTotal"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Page)
	// Both fresh users appear as user_joined events.
	assert.Len(t, page.Events, 2)
}
