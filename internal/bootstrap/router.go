package bootstrap

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	httpHandler "parallel-quest/internal/handler/http"
	wsHandler "parallel-quest/internal/handler/websocket"
	"parallel-quest/internal/middleware"
)

type routerDeps struct {
	rooms      *httpHandler.RoomHandler
	progress   *httpHandler.ProgressHandler
	compute    *httpHandler.ComputeHandler
	roomEvents *wsHandler.RoomEventsHandler
	stream     *wsHandler.ComputeStreamHandler
}

func (a *App) buildRouter(d routerDeps) *gin.Engine {
	cfg := a.Config
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(a.Log))
	router.Use(CORSMiddleware(cfg.CORSAllowedOrigin))

	auth := middleware.Auth(cfg.JWTSecret)
	admin := middleware.RequireAdmin()

	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

	api := router.Group("/api")
	roomRoutes := api.Group("/rooms", auth)
	{
		roomRoutes.GET("", d.rooms.ListRooms)
		roomRoutes.POST("", admin, d.rooms.CreateRoom)
		roomRoutes.POST("/join", d.rooms.JoinRoom)
		roomRoutes.POST("/bulk-delete", admin, d.rooms.BulkDelete)
		roomRoutes.GET("/:id", d.rooms.GetRoom)
		roomRoutes.POST("/:id/leave", d.rooms.LeaveRoom)
		roomRoutes.GET("/:id/members", d.rooms.Members)
		roomRoutes.GET("/:id/progress", d.rooms.Progress)
		roomRoutes.DELETE("/:id", admin, d.rooms.DeleteRoom)
	}
	progressRoutes := api.Group("/progress", auth)
	{
		progressRoutes.POST("/complete", d.progress.CompleteModule)
		progressRoutes.GET("/my-progress", d.progress.MyProgress)
		progressRoutes.GET("/user/:id", d.progress.UserProgress)
		progressRoutes.PUT("/admin/toggle/:user_id/:module", admin, d.progress.ToggleModule)
	}

	// 渲染接口不需要登录，有 Redis 时按 IP 限流
	computeRoutes := api.Group("/compute")
	if a.RedisClient != nil {
		computeRoutes.Use(middleware.RateLimit(a.RedisClient, "compute", cfg.RateLimitMax, cfg.RateLimitWindow))
	}
	{
		computeRoutes.GET("/health", d.compute.Health)
		computeRoutes.GET("/sequential", d.compute.RunSequential)
		computeRoutes.POST("/sequential", d.compute.RunSequential)
		computeRoutes.GET("/concurrent", d.compute.RunConcurrent)
		computeRoutes.POST("/concurrent", d.compute.RunConcurrent)
		computeRoutes.POST("/jobs", d.compute.SubmitJob)
		computeRoutes.GET("/jobs/:id", d.compute.GetJob)
	}

	wsRoutes := router.Group("/ws")
	{
		wsRoutes.GET("/compute", d.stream.HandleConnection)
		wsRoutes.GET("/rooms/:roomId", auth, d.roomEvents.HandleConnection)
	}
	return router
}

// CORSMiddleware 允许单一前端来源跨域访问
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()

		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" && c.Query("token") == "" {
			path = path + "?" + c.Request.URL.RawQuery // 带 token 的查询串不写日志
		}

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Error(errorMessage)
			return
		}
		switch {
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
