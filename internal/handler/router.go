package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flockhq/flock/internal/middleware"
)

type RouterDeps struct {
	Documents      *DocumentHandler
	Jobs           *JobHandler
	Search         *SearchHandler
	Folders        *FolderHandler
	Chat           *ChatHandler
	Employees      *EmployeeHandler
	System         *SystemHandler
	SessionSecret  []byte
	MaxUploadBytes int64
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", deps.System.Health)

	authGroup := api.Group("")
	authGroup.Use(middleware.SessionAuth(deps.SessionSecret))

	// the whole batch may carry up to 10 files
	authGroup.POST("/documents/upload", middleware.RateLimit(time.Second), UploadLimit(deps.MaxUploadBytes*10), deps.Documents.Upload)
	authGroup.GET("/documents", deps.Documents.List)
	authGroup.GET("/documents/:id", deps.Documents.Get)
	authGroup.GET("/documents/:id/download", deps.Documents.Download)
	authGroup.DELETE("/documents/:id", deps.Documents.Delete)
	authGroup.GET("/documents/:id/classification", deps.Documents.Classification)
	authGroup.POST("/documents/:id/reclassify", deps.Documents.Reclassify)
	authGroup.POST("/documents/search", deps.Search.Documents)

	authGroup.GET("/jobs/:job_id/status", deps.Jobs.Status)

	authGroup.POST("/employees/search", deps.Search.Employees)
	authGroup.POST("/embeddings/generate", deps.Employees.GenerateEmbedding)

	authGroup.GET("/folders/by-team", deps.Folders.View("team", "team"))
	authGroup.GET("/folders/by-project", deps.Folders.View("project", "project"))
	authGroup.GET("/folders/by-type", deps.Folders.View("type", "type"))
	authGroup.GET("/folders/by-date", deps.Folders.View("date", "date"))
	authGroup.GET("/folders/by-person", deps.Folders.View("person", "person"))

	authGroup.GET("/chat/conversations", deps.Chat.ListConversations)
	authGroup.POST("/chat/conversations", deps.Chat.CreateConversation)
	authGroup.GET("/chat/:conversation_id/messages", deps.Chat.Messages)
	authGroup.POST("/chat/:conversation_id/messages", middleware.RateLimit(time.Second), deps.Chat.SendMessage)
	authGroup.POST("/chat/:conversation_id/archive", deps.Chat.Archive(true))
	authGroup.POST("/chat/:conversation_id/unarchive", deps.Chat.Archive(false))

	authGroup.GET("/system/status", deps.System.Status)
}
