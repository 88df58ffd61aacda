package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/joy095/dispatch/controllers/booking_controller"
	middleware "github.com/joy095/dispatch/middlewares"
	"github.com/joy095/dispatch/middlewares/auth"
	"github.com/joy095/dispatch/utils"
)

// RegisterBookingRoutes registers all booking-related routes
func RegisterBookingRoutes(router *gin.Engine, bookingController *booking_controller.BookingController, secret []byte) {
	protected := router.Group("/bookings")
	protected.Use(auth.AuthMiddleware(secret))
	{
		protected.POST("",
			middleware.CombinedRateLimiter("create-booking", "5-1m", "30-1h"),
			bookingController.CreateBooking)

		protected.POST("/emergency",
			middleware.CombinedRateLimiter("emergency-booking", "3-1m", "10-1h"),
			bookingController.CreateEmergencyBooking)

		protected.GET("/active",
			middleware.NewRateLimiter("60-1m", "active-booking"),
			bookingController.GetActiveBooking)

		protected.GET("/history",
			middleware.NewRateLimiter("20-1m", "booking-history"),
			bookingController.GetHistory)

		protected.GET("/:id",
			middleware.NewRateLimiter("30-1m", "get-booking"),
			bookingController.GetBooking)

		protected.GET("/:id/tracking",
			middleware.NewRateLimiter("120-1m", "booking-tracking"),
			bookingController.GetTracking)

		protected.POST("/:id/accept",
			auth.RequireRole(utils.RoleProfessional),
			middleware.NewRateLimiter("20-1m", "accept-booking"),
			bookingController.AcceptBooking)

		protected.POST("/:id/complete",
			middleware.CombinedRateLimiter("complete-booking", "5-1m", "20-10m"),
			bookingController.CompleteBooking)

		protected.POST("/:id/reschedule",
			middleware.CombinedRateLimiter("reschedule-booking", "3-1m", "10-10m"),
			bookingController.RescheduleBooking)

		protected.POST("/:id/cancel",
			middleware.CombinedRateLimiter("cancel-booking", "3-1m", "10-10m"),
			bookingController.CancelBooking)

		protected.POST("/:id/messages",
			middleware.NewRateLimiter("30-1m", "booking-messages"),
			bookingController.SendMessage)

		protected.PATCH("/:id/phase",
			auth.RequireRole(utils.RoleProfessional),
			middleware.NewRateLimiter("20-1m", "booking-phase"),
			bookingController.UpdatePhase)

		protected.POST("/:id/reject",
			auth.RequireRole(utils.RoleOperator),
			bookingController.RejectBooking)
	}
}
