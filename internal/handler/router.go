package handler

import (
	"momovault/internal/config"
	"momovault/internal/gateway"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, gw gateway.Gateway, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, gw, cfg)

	// API 路由组（全部接口都要求上游传入已认证的用户身份）
	api := r.Group("/api/v1")
	api.Use(AuthMiddleware())
	{
		// 保险柜相关
		vault := api.Group("/vault")
		{
			vault.POST("/deposit", h.Deposit)
			vault.GET("/info", h.GetVaultInfo)
			vault.GET("/withdrawable", h.ListWithdrawable)

			// 提现结算
			vault.POST("/withdraw", h.Withdraw)
			vault.GET("/withdraw/status", h.GetWithdrawStatus)
			vault.POST("/withdraw/reconcile", h.Reconcile)
		}

		// 流水相关
		api.GET("/transactions", h.ListTransactions)
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
