package router

import (
	"github.com/steeplelabs/steeple/app/controllers"
	"github.com/steeplelabs/steeple/internal/pkg/constants"
	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// API routes live in ApiRouter (internal/pkg/router/api_router.go)

	// Session-backed funnel flow
	app.Get("/", controllers.HandleFunnelStartPage)
	app.Get(constants.FunnelStartRoute, controllers.HandleFunnelStartPage)
	app.Post(constants.FunnelStartRoute, controllers.HandleFunnelStart)
	app.Post(constants.FunnelPreviewRoute, controllers.HandleFunnelPreview)
	app.Get(constants.FunnelStatusRoute, controllers.HandleFunnelStatus)
	app.Get(constants.FunnelEditorRoute, controllers.HandleFunnelEditor)
}
