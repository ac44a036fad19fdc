package router

import (
	"github.com/steeplelabs/steeple/app/controllers"
	"github.com/steeplelabs/steeple/internal/pkg/constants"
	"github.com/steeplelabs/steeple/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	adminGroup := app.Group(constants.AdminAPIGroup, middleware.RequireAdmin())

	adminGroup.Get("/clients", controllers.HandleAdminClients)
	adminGroup.Get("/clients/:email/sites", controllers.HandleAdminClientSites)
	adminGroup.Get("/trials", controllers.HandleAdminTrials)
	adminGroup.Post("/trials/grant-publish", controllers.HandleAdminGrantPublishAccess)
	adminGroup.Get("/payment-events", controllers.HandleAdminPaymentEvents)
}
