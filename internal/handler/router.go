package handler

import (
	"kitarcycle/internal/config"
	"kitarcycle/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, notifier service.Notifier) *gin.Engine {
	switch cfg.Server.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(cfg.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg, notifier)

	api := r.Group("/api/v1")
	{
		accounts := api.Group("/accounts")
		{
			accounts.POST("", h.Register)
			accounts.GET("/:id", h.GetAccount)
		}

		points := api.Group("/points")
		{
			points.GET("/leaderboard", h.Leaderboard)
			points.GET("/monthly/:accountId", h.MonthlyPoints)
			points.GET("/history/:accountId", h.PointsHistory)
			points.GET("/transactions/:accountId", h.PointTransactions)
			points.GET("/:accountId/current", h.CurrentPoints)
		}

		tiers := api.Group("/tier-levels")
		{
			tiers.GET("", h.ListTiers)
			tiers.POST("", h.CreateTier)
			tiers.POST("/assign/:accountId", h.AssignTier)
			tiers.GET("/:id", h.GetTier)
			tiers.PUT("/:id", h.UpdateTier)
			tiers.DELETE("/:id", h.DeleteTier)
		}

		pickups := api.Group("/pickups")
		{
			pickups.POST("", h.CreatePickup)
			pickups.GET("/account/:accountId", h.ListPickups)
			pickups.GET("/:id", h.GetPickup)
			pickups.POST("/:id/start", h.StartPickup)
			pickups.POST("/:id/weight", h.CompletePickup)
			pickups.GET("/:id/calculate-points", h.CalculatePoints)
			pickups.POST("/:id/reject", h.RejectPickup)
			pickups.POST("/:id/cancel", h.CancelPickup)
		}

		rewards := api.Group("/rewards")
		{
			rewards.GET("/cart-items", h.ListCart)
			rewards.POST("/cart-items", h.AddCartItem)
			rewards.PUT("/cart-items/:id", h.UpdateCartItem)
			rewards.DELETE("/cart-items/:id", h.RemoveCartItem)
			rewards.POST("/checkout", h.Checkout)
			rewards.GET("/redemptions", h.ListRedemptions)
			rewards.GET("/redemptions/:id", h.GetRedemption)

			rewards.GET("", h.ListRewards)
			rewards.POST("", h.CreateReward)
			rewards.GET("/:id", h.GetReward)
			rewards.PUT("/:id", h.UpdateReward)
			rewards.DELETE("/:id", h.DeleteReward)
			rewards.POST("/:id/restock", h.RestockReward)
		}

		notifications := api.Group("/notifications")
		{
			notifications.GET("", h.ListNotifications)
			notifications.GET("/unread-count", h.UnreadCount)
			notifications.POST("/read-all", h.MarkAllNotificationsRead)
			notifications.POST("/fcm-token", h.RegisterFcmToken)
			notifications.DELETE("/fcm-token", h.RemoveFcmToken)
			notifications.POST("/:id/read", h.MarkNotificationRead)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(503, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
