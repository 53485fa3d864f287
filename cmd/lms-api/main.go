package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/corplearn/lms-api/api/swagger"
	"github.com/corplearn/lms-api/internal/handler"
	"github.com/corplearn/lms-api/internal/middleware"
	"github.com/corplearn/lms-api/internal/models"
	"github.com/corplearn/lms-api/internal/repository"
	"github.com/corplearn/lms-api/internal/service"
	"github.com/corplearn/lms-api/pkg/cache"
	"github.com/corplearn/lms-api/pkg/config"
	"github.com/corplearn/lms-api/pkg/database"
	"github.com/corplearn/lms-api/pkg/jobs"
	"github.com/corplearn/lms-api/pkg/logger"
	corsmiddleware "github.com/corplearn/lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/corplearn/lms-api/pkg/middleware/requestid"
	"github.com/corplearn/lms-api/pkg/storage"
)

// @title CorpLearn LMS API
// @version 1.0.0
// @description Internal learning platform with eligibility-gated courses
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	interestRepo := repository.NewInterestRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	forumRepo := repository.NewForumRepository(db)
	reportRepo := repository.NewReportRepository(db)

	cacheRepo := repository.NewCacheRepository(nil, logr)
	if cfg.Catalog.CacheEnabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		} else {
			defer client.Close()
			cacheRepo = repository.NewCacheRepository(client, logr)
		}
	}

	// Services.
	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "lms-api",
	})
	userSvc := service.NewUserService(userRepo, logr)
	membershipSvc := service.NewMembershipService(interestRepo, userRepo, logr)

	eligibilitySvc := service.NewEligibilityService(userRepo, courseRepo, interestRepo, logr)
	eligibilitySvc.AttachMetrics(metricsSvc)

	courseSvc := service.NewCourseService(courseRepo, userRepo, interestRepo, eligibilitySvc, cacheRepo, service.CourseCacheConfig{
		Enabled: cfg.Catalog.CacheEnabled,
		TTL:     cfg.Catalog.CacheTTL,
	}, validate, logr)
	courseSvc.AttachMetrics(metricsSvc)

	progressSvc := service.NewProgressService(progressRepo, courseRepo, userRepo, eligibilitySvc, logr)
	progressSvc.AttachMetrics(metricsSvc)

	forumSvc := service.NewForumService(forumRepo, eligibilitySvc, userRepo, validate, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reportSvc *service.ReportService
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		reportStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		builder := service.NewExportService(progressRepo, courseRepo, interestRepo, logr)

		reportSvc = service.NewReportService(reportRepo, userRepo, builder, reportStorage, signer, logr)
		reportSvc.AttachMetrics(metricsSvc)

		reportQueue = jobs.NewQueue("reports", reportSvc.Process, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportSvc.AttachQueue(reportQueue)
		reportQueue.Start(ctx)
		defer reportQueue.Stop()

		// Artifacts outlive their download tokens by one TTL before the
		// sweeper reclaims them.
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if deleted, err := reportStorage.Sweep(2 * cfg.Reports.SignedURLTTL); err != nil {
						logr.Sugar().Warnw("report artifact sweep failed", "error", err)
					} else if deleted > 0 {
						logr.Sugar().Infow("swept report artifacts", "deleted", deleted)
					}
				}
			}
		}()
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	membershipHandler := handler.NewMembershipHandler(membershipSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	progressHandler := handler.NewProgressHandler(progressSvc)
	forumHandler := handler.NewForumHandler(forumSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	authed := api.Group("", middleware.JWT(authSvc))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/change-password", authHandler.ChangePassword)
	authed.GET("/auth/me", authHandler.Me)

	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	users := authed.Group("/users")
	users.GET("", adminOnly, userHandler.List)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
	users.POST("/:id/approve", adminOnly, userHandler.Approve)
	users.GET("/:id/interests", middleware.RBAC(string(models.RoleAdmin), "SELF"), membershipHandler.ListForUser)
	users.POST("/:id/interests/:interestId", adminOnly, membershipHandler.Grant)
	users.DELETE("/:id/interests/:interestId", adminOnly, membershipHandler.Revoke)

	authed.GET("/interests", membershipHandler.ListInterests)
	authed.POST("/interests", adminOnly, middleware.Activity(userRepo, "INTEREST_CREATED", "interests"), membershipHandler.CreateInterest)

	courses := authed.Group("/courses")
	courses.GET("", courseHandler.List)
	courses.GET("/outstanding", courseHandler.ListOutstanding)
	courses.GET("/:id", courseHandler.Get)
	courses.GET("/:id/eligibility", courseHandler.Eligibility)
	courses.GET("/:id/progress", progressHandler.CourseSummary)
	courses.POST("", adminOnly, courseHandler.Create)
	courses.DELETE("/:id", adminOnly, courseHandler.Delete)
	courses.POST("/:id/lessons", adminOnly, courseHandler.AddLesson)
	courses.POST("/:id/interests/:interestId", adminOnly, middleware.Activity(userRepo, "COURSE_INTEREST_LINKED", "courses"), courseHandler.LinkInterest)
	courses.POST("/:id/mandatory/:interestId", adminOnly, middleware.Activity(userRepo, "COURSE_MARKED_MANDATORY", "courses"), courseHandler.MarkMandatory)

	lessons := authed.Group("/lessons")
	lessons.POST("/:id/start", progressHandler.Start)
	lessons.POST("/:id/complete", progressHandler.Complete)
	lessons.GET("/:id/progress", progressHandler.GetLesson)

	if cfg.Forum.Enabled {
		courses.POST("/:id/topics", forumHandler.CreateTopic)
		courses.GET("/:id/topics", forumHandler.ListTopics)
		authed.GET("/topics/:id", forumHandler.GetTopic)
		authed.POST("/topics/:id/replies", forumHandler.CreateReply)
	}

	if cfg.Reports.Enabled {
		reportHandler := handler.NewReportHandler(reportSvc)
		authed.POST("/reports", adminOnly, reportHandler.Request)
		authed.GET("/reports", adminOnly, reportHandler.List)
		authed.GET("/reports/:id", adminOnly, reportHandler.Get)
		// Download is authenticated by the signed token itself.
		api.GET("/reports/download/:token", reportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
