package handlers

import (
	"github.com/bhhunter/rental-backend/internal/middleware"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/bhhunter/rental-backend/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Router bundles every handler mounted by the API server
type Router struct {
	Health        *HealthHandler
	Bookings      *BookingHandler
	Payments      *PaymentHandler
	Notifications *NotificationHandler
	Verification  *VerificationHandler
}

// Register mounts /health and the /api/v1 tree on the engine
func (r Router) Register(engine *gin.Engine, jwtService *jwt.Service, logger *logrus.Logger) {
	engine.GET("/health", r.Health.Health)

	v1 := engine.Group("/api/v1")

	// Public: the provider authenticates with its signature header
	v1.POST("/payments/webhook/paymongo", r.Payments.PaymongoWebhook)

	auth := middleware.AuthMiddleware(jwtService, logger)
	tenant := middleware.RequireRole(models.RoleTenant)
	owner := middleware.RequireRole(models.RoleOwner)
	admin := middleware.RequireRole(models.RoleAdmin)
	parties := middleware.RequireRole(models.RoleTenant, models.RoleOwner)

	bookings := v1.Group("/bookings")
	bookings.Use(auth)
	{
		bookings.GET("", r.Bookings.ListBookings)
		bookings.POST("/:id", tenant, r.Bookings.CreateBooking)
		bookings.GET("/:id", r.Bookings.GetBooking)
		bookings.PATCH("/:id", tenant, r.Bookings.PatchBooking)
		bookings.DELETE("/:id", admin, r.Bookings.DeleteBooking)
		bookings.PATCH("/:id/owner/approve", owner, r.Bookings.ApproveBooking)
		bookings.PATCH("/:id/owner/reject", owner, r.Bookings.RejectBooking)
		bookings.POST("/:id/cancel", parties, r.Bookings.CancelBooking)

		bookings.GET("/:id/payment", parties, r.Payments.GetBookingPayment)
		bookings.POST("/:id/payment/retry", tenant, r.Payments.RetryPayment)
		bookings.POST("/:id/payment/checkout", tenant, r.Payments.CreateCheckoutLink)
	}

	payments := v1.Group("/payments")
	payments.Use(auth)
	{
		payments.GET("/:id/receipt", r.Payments.GetReceipt)
		payments.POST("/:id/refund", admin, r.Payments.RefundPayment)
		payments.POST("/:id/payout", admin, r.Payments.CreatePayout)
	}

	notifications := v1.Group("/notifications")
	notifications.Use(auth)
	{
		notifications.GET("", r.Notifications.ListNotifications)
		notifications.GET("/stream", r.Notifications.Stream)
		notifications.PATCH("/read-all", r.Notifications.MarkAllAsRead)
		notifications.PATCH("/:id/read", r.Notifications.MarkAsRead)
	}

	verification := v1.Group("/verification")
	verification.Use(auth, parties)
	{
		verification.GET("/status", r.Verification.GetStatus)
	}

	adminGroup := v1.Group("/admin")
	adminGroup.Use(auth, admin)
	{
		adminGroup.POST("/payments/reconcile", r.Payments.ReconcilePayments)
		adminGroup.PATCH("/verification-documents/:id", r.Verification.ReviewDocument)
		adminGroup.DELETE("/verification-documents/:id", r.Verification.RemoveDocument)
	}
}
