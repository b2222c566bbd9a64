package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/terravista/terraplan/internal/logging"
	"github.com/terravista/terraplan/internal/server/uploads"
)

// SetupRoutes registers the upload API on engine. All upload and file
// endpoints sit behind the shared-secret gate except the browser download
// redirect, which cannot carry a custom header and relies on the short TTL
// of the signed URL it redirects to.
func SetupRoutes(engine *gin.Engine, u *uploads.Service, apiKey string, logger logging.Logger) {
	handler := NewHandler(u, logger)

	engine.GET("/healthz", handler.Health)
	engine.GET("/files/download", handler.DownloadFile)

	authed := engine.Group("/", RequireAPIKey(apiKey))

	authed.POST("/uploads/create", handler.CreateUpload)
	authed.POST("/uploads/sign-part", handler.SignPart)
	authed.POST("/uploads/complete", handler.CompleteUpload)
	authed.POST("/uploads/abort", handler.AbortUpload)
	authed.POST("/uploads/sign-put", handler.SignPut)

	authed.GET("/files", handler.ListFiles)
	authed.POST("/files/url", handler.FileURL)
	authed.POST("/files/rename", handler.RenameFile)
	authed.DELETE("/files", handler.DeleteFile)
	authed.POST("/files/share", handler.ShareFile)
	authed.GET("/files/records", handler.ListRecords)
}
