package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "sentigo/internal/app"
	"sentigo/internal/bootstrap"
	"sentigo/internal/cache"
	"sentigo/internal/platform/rabbitmq"
	"sentigo/internal/repository"
	"sentigo/internal/transport/http/handler"
	"sentigo/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	sessionRepo := repository.NewSessionRepository(app.MySQL)
	resultRepo := repository.NewResultRepository(app.MySQL)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)

	statsCache := cache.NewStatsCache(app.Redis, time.Duration(app.Config.Redis.StatsTTLSeconds)*time.Second)
	publisher := rabbitmq.NewArtifactPublisher(app.MQConn, app.Config.RabbitMQ.ArtifactPersistQueue)
	analysisService := appsvc.NewAnalysisService(
		sessionRepo,
		resultRepo,
		app.Inference,
		statsCache,
		app.Artifacts,
		publisher,
		appsvc.UploadLimits{
			MaxBytes:      int64(app.Config.Upload.MaxFileSizeMB) << 20,
			MaxTextLength: app.Config.Upload.MaxTextLength,
			MaxRows:       app.Config.Upload.MaxRows,
		},
	)

	authHandler := handler.NewAuthHandler(authService)
	analysisHandler := handler.NewAnalysisHandler(analysisService)
	sessionHandler := handler.NewSessionHandler(analysisService)
	artifactHandler := handler.NewArtifactHandler(app.Artifacts)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	analysisGroup := v1.Group("/analysis")
	analysisGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	analysisGroup.POST("/upload", analysisHandler.Upload)
	analysisGroup.POST("/text", analysisHandler.AnalyzeText)
	analysisGroup.GET("/sessions", sessionHandler.List)
	analysisGroup.POST("/sessions/:id/run", analysisHandler.RunSession)
	analysisGroup.POST("/sessions/:id/validate", analysisHandler.Validate)
	analysisGroup.GET("/sessions/:id/export/csv", analysisHandler.ExportCSV)
	analysisGroup.GET("/sessions/:id/export/json", analysisHandler.ExportJSON)
	analysisGroup.GET("/sessions/:id/stats", sessionHandler.Stats)
	analysisGroup.GET("/sessions/:id/results", sessionHandler.Results)
	analysisGroup.DELETE("/sessions/:id", sessionHandler.Delete)
	analysisGroup.PUT("/results/:id", analysisHandler.PatchResult)

	artifactGroup := v1.Group("/artifacts")
	artifactGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	artifactGroup.GET("/predictions", artifactHandler.ListPredictions)
	artifactGroup.GET("/predictions/:id", artifactHandler.GetPrediction)
	artifactGroup.GET("/validations", artifactHandler.ListValidations)
	artifactGroup.GET("/validations/:id", artifactHandler.GetValidation)

	return router
}
