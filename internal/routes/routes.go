package routes

import (
	"alumnichat/server/internal/handlers"
	"alumnichat/server/internal/middleware"
	"alumnichat/server/internal/utils"
	ws "alumnichat/server/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Auth        *handlers.AuthHandler
	Chats       *handlers.ChatHandler
	Connections *handlers.ConnectionHandler
	Uploads     *handlers.UploadHandler
	Presence    *handlers.PresenceHandler
	Gateway     *ws.Gateway
	Tokens      *utils.JWTManager
	Limits      middleware.RateLimits
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, h Handlers) {
	auth := middleware.AuthMiddleware(h.Tokens)

	// Prometheus scrape endpoint
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1 group
	api := app.Group("/api/v1")

	// Health check (public)
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "Alumni chat API is running",
		})
	})

	// Auth routes (public)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", h.Limits.Strict(), h.Auth.Register)
	authGroup.Post("/login", h.Limits.Strict(), h.Auth.Login)
	authGroup.Post("/logout", auth, h.Auth.Logout)
	authGroup.Get("/me", auth, h.Auth.GetMe)

	// Connection routes (protected)
	connections := api.Group("/connections", auth)
	connections.Get("/", h.Limits.Relaxed(), h.Connections.GetConnections)
	connections.Post("/request", h.Limits.Moderate(), h.Connections.SendRequest)
	connections.Put("/:id/accept", h.Limits.Moderate(), h.Connections.Accept)
	connections.Put("/:id/reject", h.Limits.Moderate(), h.Connections.Reject)

	// Chat routes (protected)
	chats := api.Group("/chats", auth)
	chats.Get("/stats", h.Limits.Relaxed(), h.Chats.GetStats)
	chats.Get("/", h.Limits.Relaxed(), h.Chats.GetChats)
	chats.Get("/:id", h.Limits.Relaxed(), h.Chats.GetChat)
	chats.Post("/direct", h.Limits.Moderate(), h.Chats.CreateDirectChat)
	chats.Post("/group", h.Limits.Moderate(), h.Chats.CreateGroupChat)
	chats.Post("/:id/messages", h.Limits.Moderate(), h.Chats.SendMessage)
	chats.Patch("/:id/messages/:messageId", h.Limits.Moderate(), h.Chats.EditMessage)
	chats.Delete("/:id/messages/:messageId", h.Limits.Moderate(), h.Chats.DeleteMessage)
	chats.Put("/:id/read", h.Limits.Moderate(), h.Chats.MarkAsRead)
	chats.Delete("/:id", h.Limits.Moderate(), h.Chats.DeleteChat)

	// Presence (protected)
	api.Get("/users/:id/presence", auth, h.Limits.Relaxed(), h.Presence.GetPresence)

	// Upload routes (protected)
	uploads := api.Group("/upload", auth)
	uploads.Post("/file", h.Limits.Upload(), h.Uploads.UploadFile)

	// Serve uploaded files (public)
	app.Get("/uploads/:type/:filename", h.Uploads.GetFile)

	// WebSocket stats (protected, for debugging)
	api.Get("/ws/stats", auth, h.Presence.GetWebSocketStats)

	// WebSocket route; authenticated at upgrade or by the first frame
	api.Get("/ws", h.Gateway.Upgrade, h.Gateway.Handler())
}
