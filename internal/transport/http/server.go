package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"portfoliohub/internal/ai"
	appsvc "portfoliohub/internal/app"
	"portfoliohub/internal/bootstrap"
	"portfoliohub/internal/cache"
	"portfoliohub/internal/platform/rabbitmq"
	"portfoliohub/internal/repository"
	"portfoliohub/internal/transport/http/handler"
	"portfoliohub/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.DB)
	profileRepo := repository.NewProfileRepository(app.DB)
	projectRepo := repository.NewProjectRepository(app.DB)
	sessionRepo := repository.NewSessionRepository(app.DB)
	fileRepo := repository.NewFileRepository(app.DB)
	transcriptRepo := repository.NewAssistantMessageRepository(app.DB)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	portfolioService := appsvc.NewPortfolioService(userRepo, profileRepo, projectRepo)
	sessionService := appsvc.NewSessionService(sessionRepo, app.Config.Cleanup.SessionDefaultHours)
	ingestService := appsvc.NewIngestService(fileRepo, app.ObjectStore, app.Embedder, app.VectorIndex)

	historyCache := cache.NewHistoryCache(app.Redis, time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second)
	transcriptPublisher := rabbitmq.NewTranscriptPublisher(app.MQConn, app.Config.RabbitMQ.TranscriptQueue)
	assistantService := appsvc.NewAssistantService(
		userRepo,
		fileRepo,
		transcriptRepo,
		app.Embedder,
		app.VectorIndex,
		app.AIClient,
		ai.ChatConfig{
			BaseURL: app.Config.LLM.BaseURL,
			APIKey:  app.Config.LLM.APIKey,
			Model:   app.Config.LLM.Model,
		},
		transcriptPublisher,
		historyCache,
		app.Config.Assistant.TopK,
	)

	authHandler := handler.NewAuthHandler(authService)
	portfolioHandler := handler.NewPortfolioHandler(portfolioService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	assistantHandler := handler.NewAssistantHandler(ingestService, assistantService, sessionService)
	cleanupHandler := handler.NewCleanupHandler(app.CleanupService, app.Config.Cleanup.Secret)

	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	portfolioGroup := v1.Group("/portfolio")
	portfolioGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	portfolioGroup.GET("/profile", portfolioHandler.GetProfile)
	portfolioGroup.PUT("/profile", portfolioHandler.SaveProfile)
	portfolioGroup.GET("/projects", portfolioHandler.ListProjects)
	portfolioGroup.POST("/projects", portfolioHandler.CreateProject)
	portfolioGroup.PUT("/projects/:id", portfolioHandler.UpdateProject)
	portfolioGroup.DELETE("/projects/:id", portfolioHandler.DeleteProject)

	v1.GET("/p/:username", portfolioHandler.PublicPage)
	v1.POST("/sessions", sessionHandler.Create)

	assistantGroup := v1.Group("/assistant")
	assistantGroup.Use(middleware.AuthJWTOptional(app.Config.Auth.JWTSecret))
	assistantGroup.POST("/files", assistantHandler.UploadFile)
	assistantGroup.GET("/files/:id", assistantHandler.DownloadFile)
	assistantGroup.DELETE("/files/:id", assistantHandler.DeleteFile)
	assistantGroup.POST("/ask", assistantHandler.Ask)
	assistantGroup.GET("/history", assistantHandler.History)

	v1.POST("/internal/cleanup", cleanupHandler.Run)

	return router
}
