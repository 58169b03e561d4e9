package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/kalemapp/kalem/internal/config"
	"github.com/kalemapp/kalem/internal/engage"
	"github.com/kalemapp/kalem/internal/ws"
)

// SetupRoutes configures all application routes and middleware.
func SetupRoutes(router *gin.Engine, db *gorm.DB, cfg *config.Config, hub *ws.Hub) {

	// --- Dependencies ---
	env := &Env{
		DB:        db,
		Hub:       hub,
		Reactions: engage.NewReactionService(db),
		Comments:  engage.NewCommentService(db),
		Feed:      engage.NewFeedService(db, cfg.FeedWindow, cfg.FeedSourceCap),
	}

	// --- Middleware ---
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Identity is resolved once per request; handlers decide whether
	// anonymous access is allowed.
	router.Use(AuthMiddleware(db, cfg.JWTSecret))

	// --- Rate Limiter Setup ---
	limiter := NewIPRateLimiter(rate.Limit(rateLimitRPS), rateLimitBurst)
	go func() {
		for {
			time.Sleep(10 * time.Minute)
			limiter.mu.Lock()
			for ip, v := range limiter.visitors {
				if v.Allow() {
					// Token available again means the visitor went
					// quiet; drop the entry.
					delete(limiter.visitors, ip)
				}
			}
			limiter.mu.Unlock()
		}
	}()

	// --- API Routes ---

	api := router.Group("/api")
	{
		api.GET("/posts", env.GetPosts)
		api.GET("/posts/:slug", env.GetPost)
		api.GET("/posts/:slug/comments", env.GetComments)
		api.POST("/posts/:slug/comments", RateLimitMiddleware(limiter), env.CreateComment)
		api.POST("/posts/:slug/save", env.SavePost)

		api.POST("/reactions/toggle", env.ToggleReaction)

		api.GET("/comments/:id", env.GetComment)
		api.PUT("/comments/:id", env.UpdateComment)
		api.DELETE("/comments/:id", env.DeleteComment)

		admin := api.Group("/admin", RequireAdmin())
		admin.GET("/feed", env.GetActivityFeed)
	}

	// --- WebSocket Route ---

	router.GET("/ws", func(c *gin.Context) {
		ws.ServeWs(hub, c.Writer, c.Request)
	})
}
