package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BorisSavianov/doxa-backend/config"
	"github.com/BorisSavianov/doxa-backend/internal/api/handler"
	"github.com/BorisSavianov/doxa-backend/internal/api/middleware"
	"github.com/BorisSavianov/doxa-backend/pkg/jwt"
	"github.com/BorisSavianov/doxa-backend/pkg/redis"
)

const (
	defaultBodyLimit = 1 << 20 // 1MB
	icsUploadLimit   = 5 << 20 // 与 ICS URL 获取上限一致
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时黑名单与速率限制降级为不生效；db 为 nil 时健康检查不探测数据库
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, db *gorm.DB, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 避免把 nil *redis.Client 装进非 nil 接口
	var (
		blacklist middleware.Blacklist
		limiter   middleware.RateLimiter
	)
	if rdb != nil {
		blacklist, limiter = rdb, rdb
	}

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger, "/health"))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(defaultBodyLimit, map[string]int64{
		"/api/v1/unavailability/import": icsUploadLimit,
	}))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "down"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		auth.Use(middleware.RateLimit(limiter, 10, time.Minute))
		{
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.RefreshToken)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, blacklist))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.GetCurrentUser)

			// 用户模块
			users := authorized.Group("/users")
			{
				users.GET("", middleware.AdminOnly(), h.User.ListUsers)
				users.POST("", middleware.AdminOnly(), h.User.CreateUser)
				users.GET("/:id", h.User.GetUser) // admin 或本人（Handler 层鉴权）
				users.PUT("/:id", middleware.AdminOnly(), h.User.UpdateUser)
				users.DELETE("/:id", middleware.AdminOnly(), h.User.DeleteUser)
			}

			// 程序与评审委员会
			procedures := authorized.Group("/procedures")
			{
				procedures.GET("", h.Procedure.ListProcedures)
				procedures.GET("/my", h.Procedure.ListMyProcedures)
				procedures.GET("/:id", h.Procedure.GetProcedure)
				procedures.POST("", middleware.AdminOnly(), h.Procedure.CreateProcedure)
				procedures.PUT("/:id", middleware.AdminOnly(), h.Procedure.UpdateProcedure)
				procedures.POST("/:id/auto-select-jury", middleware.AdminOnly(), h.Procedure.AutoSelectJury)
				procedures.POST("/:id/respond", h.Procedure.Respond) // 仅成员（Service 层校验）
				procedures.POST("/:id/complete", middleware.AdminOnly(), h.Procedure.CompleteProcedure)
				procedures.POST("/:id/cancel", middleware.AdminOnly(), h.Procedure.CancelProcedure)
				procedures.GET("/:id/export", middleware.AdminOnly(), h.Export.ExportJuryRoster)
			}

			// 不可用时间
			unavailability := authorized.Group("/unavailability")
			{
				unavailability.GET("", h.Unavailability.ListMine)
				unavailability.POST("", h.Unavailability.Create)
				unavailability.POST("/import", middleware.RateLimit(limiter, 5, time.Minute), h.Unavailability.ImportICS)
				unavailability.PUT("/:id", h.Unavailability.Update)
				unavailability.DELETE("/:id", h.Unavailability.Delete)
			}

			// 通知
			notifications := authorized.Group("/notifications")
			{
				notifications.GET("", h.Notification.List)
				notifications.GET("/unread-count", h.Notification.UnreadCount)
				notifications.PUT("/read-all", h.Notification.MarkAllRead)
				notifications.PUT("/:id/read", h.Notification.MarkRead)
			}

			// 仪表盘
			dashboard := authorized.Group("/dashboard")
			{
				dashboard.GET("/stats", h.Dashboard.MyStats)
				dashboard.GET("/admin-stats", middleware.AdminOnly(), h.Dashboard.AdminStats)
				dashboard.GET("/upcoming", h.Dashboard.Upcoming)
				dashboard.GET("/activity", h.Dashboard.RecentActivity)
			}

			// 导出
			export := authorized.Group("/export")
			{
				export.GET("/procedures", middleware.AdminOnly(), h.Export.ExportProcedures)
			}
		}
	}

	return r
}
