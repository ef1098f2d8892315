package app

import (
	"github.com/osvaldoandrade/comfyq/internal/controllers"
	"github.com/osvaldoandrade/comfyq/internal/middleware"
	"github.com/osvaldoandrade/comfyq/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// reservedRoutes cannot be shadowed by a legacy /<tool> route.
var reservedRoutes = map[string]bool{"/health": true, "/metrics": true, "/v1": true}

func SetupMappings(app *Application) {
	app.Engine.GET("/health", controllers.NewHealthController(app.Ledger).Handle)
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := app.Engine.Group("/v1", middleware.AuthMiddleware(app.Validator))
	invoke := v1.Group("", middleware.RequireScope(auth.ScopeInvoke))
	{
		invoke.GET("/tools", controllers.NewListToolsController(app.Tools).Handle)
		invoke.GET("/tools/:name", controllers.NewGetToolController(app.Tools).Handle)
		invoke.POST("/tools/:name", controllers.NewInvokeToolController(app.Invocations).Handle)
		invoke.POST("/tools/:name/stream", controllers.NewStreamToolController(app.Invocations).Handle)
		invoke.POST("/tools/:name/invocations", controllers.NewStartInvocationController(app.Invocations).Handle)
		invoke.GET("/invocations", controllers.NewListInvocationsController(app.Invocations).Handle)
		invoke.GET("/invocations/:id", controllers.NewGetInvocationController(app.Invocations).Handle)
		invoke.GET("/models", controllers.NewListModelsController(app.Models).Handle)

		admin := v1.Group("", middleware.RequireScope(auth.ScopeAdmin))
		admin.POST("/models/refresh", controllers.NewRefreshModelsController(app.Models).Handle)
	}

	// Per-tool routes answer 200 with the discriminated body for older clients.
	legacy := app.Engine.Group("", middleware.AuthMiddleware(app.Validator), middleware.RequireScope(auth.ScopeInvoke))
	seen := map[string]bool{}
	for _, tool := range app.Tools.Tools() {
		syncPath, streamPath := "/"+tool.Name, "/"+tool.Name+"_stream"
		if reservedRoutes[syncPath] || seen[syncPath] || seen[streamPath] {
			app.Logger.Warn("legacy route skipped", "tool", tool.Name)
			continue
		}
		seen[syncPath], seen[streamPath] = true, true
		legacy.POST(syncPath, controllers.NewLegacyInvokeController(app.Invocations, tool.Name).Handle)
		legacy.POST(streamPath, controllers.NewLegacyStreamController(app.Invocations, tool.Name).Handle)
	}
}
