package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"devnewz/internal/config"
	"devnewz/internal/handlers"
	"devnewz/internal/metrics"
	"devnewz/internal/middleware"
	"devnewz/internal/repository"
	"devnewz/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

const sessionName = "devnewz_session"

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Store       repository.Store
	Ledger      *services.VoteLedger
	Karma       *services.KarmaAccount
	Comments    *services.CommentTree
	Posts       *services.PostService
	Ranking     *services.RankingEngine
	VoteLimiter *middleware.VoteLimiter
	// Health reports backing store reachability; nil means always healthy.
	Health func(ctx context.Context) error
}

// New builds the engine with the global middleware chain and all routes.
func New(cfg *config.Config, deps Deps) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   !cfg.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(middleware.LoadUser([]byte(cfg.JWTSecret), deps.Store.Users()))

	RegisterRoutes(r, cfg, deps)
	return r
}

// corsConfig takes a comma separated origin list; "*" or empty allows all.
func corsConfig(raw string) cors.Config {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" && o != "*" {
			origins = append(origins, o)
		}
	}
	c := cors.DefaultConfig()
	c.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	c.MaxAge = 12 * time.Hour
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", middleware.RequestIDHeader)
	c.ExposeHeaders = []string{middleware.RequestIDHeader}
	return c
}

func RegisterRoutes(r *gin.Engine, cfg *config.Config, deps Deps) {
	newsHandler := handlers.NewNewsHandler(deps.Posts, deps.Ranking)
	commentHandler := handlers.NewCommentHandler(deps.Comments)
	voteHandler := handlers.NewVoteHandler(deps.Ledger)
	userHandler := handlers.NewUserHandler(deps.Store.Users(), deps.Karma)
	authHandler := handlers.NewAuthHandler(deps.Store.Users(), []byte(cfg.JWTSecret))
	syndicationHandler := handlers.NewSyndicationHandler(deps.Posts, cfg.SiteName, cfg.SiteURL)

	r.GET("/health", health(deps.Health))           // 健康检查
	r.GET("/metrics", gin.WrapH(metrics.Handler())) // Prometheus 指标
	r.GET("/rss", syndicationHandler.RSSFeed)       // RSS 订阅
	r.GET("/robots.txt", syndicationHandler.RobotsTxt)

	api := r.Group("/api")

	// 公共路由 (Public Routes)，登录与否只影响投票状态标注
	api.GET("/news", newsHandler.Feed)                    // 首页 - 页内排序
	api.GET("/news/top", newsHandler.Top)                 // 全局热门
	api.GET("/news/newest", newsHandler.Newest)           // 最新文章
	api.GET("/news/past", newsHandler.Past)               // 按日期浏览
	api.GET("/news/ask", newsHandler.Ask)                 // Ask 列表
	api.GET("/news/show", newsHandler.Show)               // Show 列表
	api.GET("/news/:id", newsHandler.Detail)              // 文章详情
	api.GET("/news/:id/comments", commentHandler.ForPost) // 评论树
	api.GET("/comments/newest", commentHandler.Newest)    // 最新评论

	auth := api.Group("/auth")
	{
		auth.POST("/logout", authHandler.Logout) // 退出登录
		if cfg.IsDevelopment() {
			auth.POST("/dev-login", authHandler.DevLogin) // 开发环境登录
		}
	}

	// 受保护路由 (Protected Routes)
	authorized := api.Group("")
	authorized.Use(middleware.AuthRequired())
	{
		authorized.POST("/news", newsHandler.Create)       // 发布文章
		authorized.PATCH("/news/:id", newsHandler.Update)  // 编辑文章
		authorized.DELETE("/news/:id", newsHandler.Delete) // 删除文章
		authorized.GET("/news/mysubmissions", newsHandler.MySubmissions)
		authorized.GET("/news/upvoted", newsHandler.Upvoted)
		authorized.GET("/news/downvoted", newsHandler.Downvoted)

		authorized.POST("/news/:id/comments", commentHandler.Create) // 发表评论
		authorized.PATCH("/comments", commentHandler.Update)         // 编辑评论 {commentId, content}
		authorized.DELETE("/comments", commentHandler.Delete)        // 删除评论 {commentId}
		authorized.PATCH("/comments/:id", commentHandler.Update)
		authorized.DELETE("/comments/:id", commentHandler.Delete)
		authorized.GET("/comments/threads", commentHandler.Threads)
		authorized.GET("/comments/upvoted", commentHandler.Upvoted)
		authorized.GET("/comments/downvoted", commentHandler.Downvoted)

		vote := authorized.Group("")
		if deps.VoteLimiter != nil {
			vote.Use(deps.VoteLimiter.Middleware())
		}
		vote.POST("/vote", voteHandler.Vote) // 点赞/踩

		authorized.GET("/auth/user/header-data", userHandler.HeaderData) // 顶栏用户信息
		authorized.GET("/auth/user/karma-log", userHandler.KarmaLog)     // 积分记录
	}
}

func health(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
