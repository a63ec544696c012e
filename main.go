package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/legendisdaname/whatsapp-platform-backend/config"
	"github.com/legendisdaname/whatsapp-platform-backend/database"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/authstore"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/client"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/handler"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/helper"
	customMiddleware "github.com/legendisdaname/whatsapp-platform-backend/internal/middleware"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/model"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/service"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/worker"
	"github.com/legendisdaname/whatsapp-platform-backend/internal/ws"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

func main() {

	// Load .env (ignore the error if the file is missing, e.g. in production)
	_ = godotenv.Load()

	appDbURL := os.Getenv("APP_DATABASE_URL")
	if appDbURL == "" {
		log.Fatal("APP_DATABASE_URL is not set")
	}
	database.InitAppDB(appDbURL)

	// feature flags (WEBHOOK & WEBSOCKET)
	wsEnv := strings.ToLower(os.Getenv("ENABLE_WEBSOCKET_INCOMING_MSG"))
	webhookEnv := strings.ToLower(os.Getenv("ENABLE_WEBHOOK"))

	config.EnableWebsocketIncomingMessage = (wsEnv == "true")
	config.EnableWebhook = (webhookEnv == "true")
	config.BroadcastWorkerEnabled = strings.ToLower(os.Getenv("BROADCAST_WORKER_ENABLED")) == "true"

	// AI configuration
	config.AIEnabled = os.Getenv("AI_ENABLED") == "true"
	config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	config.GeminiDefaultModel = os.Getenv("GEMINI_DEFAULT_MODEL")
	if config.GeminiDefaultModel == "" {
		config.GeminiDefaultModel = "gemini-1.5-flash"
	}

	cooldownStr := os.Getenv("AI_AUTO_REPLY_COOLDOWN_SECONDS")
	config.AIAutoReplyCooldown = 60 * time.Second
	if cooldownStr != "" {
		if cooldown, err := strconv.Atoi(cooldownStr); err == nil && cooldown > 0 {
			config.AIAutoReplyCooldown = time.Duration(cooldown) * time.Second
		}
	}

	if temp := os.Getenv("AI_DEFAULT_TEMPERATURE"); temp != "" {
		if t, err := strconv.ParseFloat(temp, 64); err == nil && t >= 0 && t <= 1 {
			config.AIDefaultTemperature = t
		}
	}
	if config.AIDefaultTemperature == 0 {
		config.AIDefaultTemperature = 0.7
	}
	config.AIDefaultMaxTokens = helper.GetEnvAsInt("AI_DEFAULT_MAX_TOKENS", 150)

	log.Printf("feature flags -> websocket_incoming_msg: %v, webhook: %v, broadcast_worker: %v, ai_enabled: %v",
		config.EnableWebsocketIncomingMessage, config.EnableWebhook, config.BroadcastWorkerEnabled, config.AIEnabled)

	jwtSecret := os.Getenv("JWT_SECRET")
	service.InitAuthConfig(jwtSecret)

	if len(os.Args) > 1 && os.Args[1] == "--createschema" {
		helper.InitCustomSchema()
	}

	// Core session machinery
	lifecycle := config.LoadLifecycle()
	authRoot := os.Getenv("AUTH_STORE_ROOT")
	if authRoot == "" {
		authRoot = "./auth-store"
	}

	auth := authstore.New(authRoot)
	sessionStore := model.NewSessionStore(database.AppDB)
	messageStore := model.NewMessageStore(database.AppDB)

	manager := service.NewManager(lifecycle, sessionStore, messageStore, auth, client.NewWameow)

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()
	manager.Realtime = hub

	// Inbound fan-out: webhook delivery + AI auto-reply
	dispatcher := service.NewInboundDispatcher(manager)
	manager.OnInbound = dispatcher.Dispatch

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Restore previously paired sessions, then keep them healthy
	log.Println("Restoring existing sessions...")
	healthMonitor := service.NewHealthMonitor(manager)
	go service.NewRestorer(manager).Run(ctx)
	go healthMonitor.Run(ctx)

	if config.BroadcastWorkerEnabled {
		go worker.NewBroadcastWorker(manager, hub).Run(ctx)
	}

	// Setup Echo
	e := echo.New()
	e.Use(middleware.Recover())

	originsEnv := os.Getenv("CORS_ALLOW_ORIGINS")
	if originsEnv == "" {
		log.Println("CORS_ALLOW_ORIGINS is not set")
	}
	allowOrigins := strings.Split(originsEnv, ",")
	for i, o := range allowOrigins {
		allowOrigins[i] = strings.TrimSpace(o)
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins,
		AllowMethods: []string{
			echo.GET,
			echo.POST,
			echo.PUT,
			echo.PATCH,
			echo.DELETE,
			echo.OPTIONS,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderXRequestedWith,
			echo.HeaderAuthorization,
		},
		AllowCredentials: true,
	}))
	e.OPTIONS("/*", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	// Rate limiter configuration from env
	rateLimit := helper.GetEnvAsInt("RATE_LIMIT_PER_SECOND", 10)
	rateBurst := helper.GetEnvAsInt("RATE_LIMIT_BURST", 10)
	rateWindow := helper.GetEnvAsInt("RATE_LIMIT_WINDOW_MINUTES", 3)

	e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(rateLimit),
				Burst:     rateBurst,
				ExpiresIn: time.Duration(rateWindow) * time.Minute,
			},
		),
	}))

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		message := "Internal Server Error"

		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			message = fmt.Sprintf("%v", he.Message)
		}
		response := map[string]interface{}{
			"status":  "error",
			"message": message,
		}
		switch code {
		case http.StatusUnauthorized:
			response["message"] = "Authentication required. Please login first."
		case http.StatusMethodNotAllowed:
			response["message"] = "Method not allowed for this endpoint"
		case http.StatusNotFound:
			if message == "Not Found" {
				response["message"] = "Endpoint not found"
			}
		}

		_ = c.JSON(code, response)
	}

	// Handlers
	sessionHandler := handler.NewSessionHandler(manager, sessionStore)
	messageHandler := handler.NewMessageHandler(manager, messageStore)
	contactHandler := handler.NewContactHandler(manager)
	wsHandler := handler.NewWebsocketHandler(hub)
	adminHandler := handler.NewAdminHandler(manager, healthMonitor)

	// =====================================================
	// PUBLIC ROUTES (No authentication required)
	// =====================================================
	e.POST("/register", handler.Register)
	e.POST("/login", handler.Login)
	e.POST("/refresh", handler.RefreshToken)

	e.GET("/ws", wsHandler.Serve)
	e.GET("/", func(c echo.Context) error { // Health check
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "success",
			"message": "WhatsApp platform backend is running",
			"version": "1.0.0",
		})
	})

	// =====================================================
	// AUTHENTICATED ROUTES
	// =====================================================
	api := e.Group("/api", customMiddleware.JWT())

	api.GET("/me", handler.Me)
	api.POST("/logout", handler.Logout)

	// Session lifecycle
	sessionAccess := customMiddleware.SessionAccess(sessionStore)
	api.POST("/sessions", sessionHandler.Create)
	api.GET("/sessions", sessionHandler.List)
	api.GET("/sessions/:id", sessionHandler.Get, sessionAccess)
	api.GET("/sessions/:id/qr", sessionHandler.GetQR, sessionAccess)
	api.GET("/sessions/:id/status", sessionHandler.GetStatus, sessionAccess)
	api.POST("/sessions/:id/connect", sessionHandler.Connect, sessionAccess)
	api.DELETE("/sessions/:id", sessionHandler.Delete, sessionAccess)
	api.PUT("/sessions/:id/webhook", sessionHandler.UpdateWebhook, sessionAccess)
	api.PUT("/sessions/:id/autoreply", sessionHandler.UpdateAutoReply, sessionAccess)

	// Messaging
	api.POST("/sessions/:id/messages", messageHandler.Send, sessionAccess)
	api.GET("/sessions/:id/messages", messageHandler.List, sessionAccess)
	api.GET("/sessions/:id/messages/export", messageHandler.Export, sessionAccess)

	// Groups
	api.GET("/sessions/:id/groups", contactHandler.ListGroups, sessionAccess)
	api.GET("/sessions/:id/groups/members", contactHandler.ListGroupMembers, sessionAccess)

	// Per-session realtime stream (token is checked inside the handler)
	e.GET("/sessions/:id/listen", wsHandler.ServeSession)

	// Broadcasts
	api.POST("/broadcasts", handler.CreateBroadcast)
	api.GET("/broadcasts", handler.ListBroadcasts)
	api.GET("/broadcasts/:id", handler.GetBroadcast)
	api.POST("/broadcasts/:id/toggle", handler.ToggleBroadcast)
	api.DELETE("/broadcasts/:id", handler.DeleteBroadcast)
	api.GET("/broadcasts/:id/results", handler.ListBroadcastResults)

	// Admin
	api.GET("/admin/audit-logs", adminHandler.AuditLogs, customMiddleware.RequireAdmin)
	api.POST("/admin/health-sweep", adminHandler.HealthSweep, customMiddleware.RequireAdmin)
	api.GET("/admin/stats", adminHandler.Stats, customMiddleware.RequireAdmin)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Println("Starting server on port", port)
	if err := e.Start(":" + port); err != nil {
		log.Fatal(err)
	}
}
