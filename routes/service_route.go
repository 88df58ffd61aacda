package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/joy095/dispatch/controllers/services_controller"
	"github.com/joy095/dispatch/middlewares/auth"
	"github.com/joy095/dispatch/utils"
)

func RegisterServicesRoutes(router *gin.Engine, serviceController *services_controller.ServiceController, secret []byte) {
	router.GET("/services/:id", serviceController.GetServiceByID) // Get a single service by its own ID

	// Protected routes
	protected := router.Group("/services")
	protected.Use(auth.AuthMiddleware(secret), auth.RequireRole(utils.RoleOperator))
	{
		protected.POST("", serviceController.CreateService)
	}
}
