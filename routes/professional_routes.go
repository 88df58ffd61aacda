package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/joy095/dispatch/controllers/professional_controller"
	middleware "github.com/joy095/dispatch/middlewares"
	"github.com/joy095/dispatch/middlewares/auth"
	"github.com/joy095/dispatch/utils"
)

func RegisterProfessionalRoutes(router *gin.Engine, professionalController *professional_controller.ProfessionalController, secret []byte) {
	protected := router.Group("/professionals")
	protected.Use(auth.AuthMiddleware(secret))
	{
		protected.GET("/nearby",
			middleware.NewRateLimiter("30-1m", "nearby-professionals"),
			professionalController.GetNearby)

		// Pings arrive every few seconds while a job is running.
		protected.PUT("/location",
			auth.RequireRole(utils.RoleProfessional),
			middleware.NewRateLimiter("120-1m", "professional-location"),
			professionalController.UpdateLocation)

		protected.POST("/disconnect",
			auth.RequireRole(utils.RoleProfessional),
			professionalController.Disconnect)

		protected.POST("",
			auth.RequireRole(utils.RoleOperator),
			professionalController.Register)

		protected.GET("/:id",
			auth.RequireRole(utils.RoleOperator),
			professionalController.GetProfessional)
	}
}
