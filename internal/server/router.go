package server

import (
	"net/http"
	"time"

	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/auth"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/chat"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/config"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/metrics"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/mw"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/service"
	"github.com/Sofia-Mohammed/Evangadi-Forum/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, db *gorm.DB, hub *ws.Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	h := NewHandler(
		service.NewUserService(db, cfg),
		service.NewQuestionService(db),
		service.NewAnswerService(db),
		chat.NewStore(db),
	)

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.Middleware(cfg, db))
	authed.GET("/check-user", h.CheckUser)
	authed.POST("/questions", h.AskQuestion)
	authed.GET("/questions", h.ListQuestions)
	authed.GET("/questions/:questionId", h.GetQuestion)
	authed.POST("/answers", h.PostAnswer)
	authed.GET("/questions/:questionId/answers", h.ListAnswers)
	authed.POST("/answers/:id/rate", h.RateAnswer)
	authed.GET("/chat/history/:roomId", h.ChatHistory)

	r.GET("/ws", ws.Serve(hub, db, cfg))

	return r
}
