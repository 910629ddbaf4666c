package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/uma-arai/sbcntr-restaurant/internal/handler"
	"github.com/uma-arai/sbcntr-restaurant/internal/middleware"
	"github.com/uma-arai/sbcntr-restaurant/internal/monitoring"
	"go.uber.org/zap"
)

// Options はルーターの設定です
type Options struct {
	RateLimitPerMin int
	Logger          *zap.Logger
}

// New はAPIのルーティングを設定したエンジンを返します
func New(h *handler.Handler, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Recovery(opts.Logger),
		middleware.Logger(opts.Logger),
		middleware.Metrics(),
	)
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:   []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(monitoring.Handler()))

	api := r.Group("")
	api.Use(middleware.RateLimit(opts.RateLimitPerMin, opts.Logger))
	registerReservationRoutes(api, h)
	registerTableRoutes(api, h)
	registerUserRoutes(api, h)
	registerPromocodeRoutes(api, h)

	return r
}

func registerReservationRoutes(rg *gin.RouterGroup, h *handler.Handler) {
	g := rg.Group("/reservations")
	{
		g.POST("", h.CreateReservation)
		g.GET("", h.ListReservations)
		g.GET("/completed", h.ListCompletedReservations)
		g.GET("/:id", h.GetReservation)
		g.POST("/:id/confirm", h.ConfirmReservation)
		g.POST("/:id/cancel", h.CancelReservation)
		g.POST("/:id/complete", h.CompleteReservation)
	}
}

func registerTableRoutes(rg *gin.RouterGroup, h *handler.Handler) {
	g := rg.Group("/tables")
	{
		g.POST("", h.CreateTable)
		g.GET("", h.ListTables)
		g.GET("/:id", h.GetTable)
		g.GET("/:id/availability", h.Availability)
		g.DELETE("/:number", h.DeleteTable)
	}
}

func registerUserRoutes(rg *gin.RouterGroup, h *handler.Handler) {
	g := rg.Group("/users")
	{
		g.POST("", h.CreateUser)
		g.GET("", h.ListUsers)
		g.POST("/topup", h.TopUp)
		g.GET("/:email", h.GetUser)
		g.PUT("/:email", h.UpdateUser)
		g.DELETE("/:email", h.DeleteUser)
		g.GET("/:email/notifications", h.ListNotifications)
	}
	rg.POST("/notifications/:id/read", h.MarkNotificationRead)
}

func registerPromocodeRoutes(rg *gin.RouterGroup, h *handler.Handler) {
	g := rg.Group("/promocodes")
	{
		g.POST("", h.CreatePromocode)
		g.GET("", h.ListPromocodes)
		g.POST("/apply", h.ApplyPromocode)
		g.GET("/:code", h.GetPromocode)
		g.PUT("/:code", h.UpdatePromocode)
		g.DELETE("/:code", h.DeletePromocode)
	}
}
