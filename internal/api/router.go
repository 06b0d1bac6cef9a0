package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/stockmeta/internal/api/handler"
	"github.com/timmy/stockmeta/internal/api/middleware"
	"github.com/timmy/stockmeta/internal/config"
	"github.com/timmy/stockmeta/internal/service"
	"github.com/timmy/stockmeta/internal/storage"
)

// RouterDeps groups what the HTTP layer needs.
type RouterDeps struct {
	Workspace *service.Workspace
	Settings  *service.SettingsService
	Storage   storage.ObjectStorage
	Server    *config.ServerConfig
	// Backend is the model provider name reported by /health.
	Backend string
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps) *gin.Engine {
	switch deps.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(deps.Server.CORS))

	healthHandler := handler.NewHealthHandler(deps.Backend)
	assetHandler := handler.NewAssetHandler(deps.Workspace, deps.Storage, deps.Server.MaxUploadMB)
	draftHandler := handler.NewDraftHandler(deps.Workspace)
	exportHandler := handler.NewExportHandler(deps.Workspace)
	settingsHandler := handler.NewSettingsHandler(deps.Settings)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthHandler.Health)

		// Assets
		v1.POST("/assets", assetHandler.Upload)
		v1.GET("/assets", assetHandler.List)
		v1.DELETE("/assets", assetHandler.Clear)
		v1.GET("/assets/:id", assetHandler.Get)
		v1.DELETE("/assets/:id", assetHandler.Remove)
		v1.GET("/assets/:id/preview", assetHandler.Preview)
		v1.POST("/assets/:id/generate", assetHandler.Generate)
		v1.POST("/assets/:id/trends", assetHandler.Trends)
		v1.POST("/generate-all", assetHandler.GenerateAll)
		v1.GET("/blobs/*key", assetHandler.Blob)

		// Mode
		v1.GET("/mode", assetHandler.GetMode)
		v1.PUT("/mode", assetHandler.SetMode)

		// Editing
		v1.GET("/assets/:id/draft", draftHandler.Get)
		v1.PATCH("/assets/:id/draft", draftHandler.Edit)
		v1.POST("/assets/:id/blur", draftHandler.Blur)
		v1.PUT("/assets/:id/metadata", draftHandler.Replace)
		v1.POST("/assets/:id/keywords", draftHandler.AddKeyword)
		v1.POST("/assets/:id/dedupe", draftHandler.Dedupe)
		v1.POST("/bulk-edit", draftHandler.BulkEdit)

		// Export and prompts
		v1.GET("/export", exportHandler.Download)
		v1.POST("/export/upload", exportHandler.Upload)
		v1.POST("/prompts", exportHandler.Prompt)

		// Settings
		v1.GET("/settings/theme", settingsHandler.GetTheme)
		v1.PUT("/settings/theme", settingsHandler.SetTheme)
		v1.PUT("/settings/api-key", settingsHandler.SetAPIKey)
		v1.DELETE("/settings/api-key", settingsHandler.ClearAPIKey)
		v1.GET("/session", settingsHandler.Session)
	}

	return r
}
