package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/api/chat"
	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/api/middleware"
	"github.com/Wachitugo/ConvivenciaLaboral-sub001/internal/service"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string
	MaxFiles     int
	MaxFileSize  int64
}

// SetupRouter sets up the Gin router
func SetupRouter(chatService *service.ChatService, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Chat API (requires API key when configured)
	chatHandler := chat.NewHandler(chatService, chat.Limits{
		MaxFiles:    cfg.MaxFiles,
		MaxFileSize: cfg.MaxFileSize,
	})
	chatGroup := r.Group("/api/chat")
	chatGroup.Use(middleware.Auth(cfg.APIKey))
	chatHandler.RegisterRoutes(chatGroup)

	return r
}
