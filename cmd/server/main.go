package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/motta-superate/grades-api/api/swagger"
	"github.com/motta-superate/grades-api/internal/handler"
	"github.com/motta-superate/grades-api/internal/middleware"
	"github.com/motta-superate/grades-api/internal/models"
	"github.com/motta-superate/grades-api/internal/repository"
	"github.com/motta-superate/grades-api/internal/service"
	"github.com/motta-superate/grades-api/pkg/cache"
	"github.com/motta-superate/grades-api/pkg/config"
	"github.com/motta-superate/grades-api/pkg/database"
	"github.com/motta-superate/grades-api/pkg/logger"
	corsmiddleware "github.com/motta-superate/grades-api/pkg/middleware/cors"
	reqidmiddleware "github.com/motta-superate/grades-api/pkg/middleware/requestid"
	"github.com/motta-superate/grades-api/pkg/oplock"
	"github.com/motta-superate/grades-api/pkg/storage"
)

// @title Motta Superate Grades API
// @version 1.0.0
// @description Grade management for the Motta Superate school: promotions, subjects, enrollment and grade entry.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// dbSessionRefresher re-establishes the database session by pinging the
// pool, used by the roster reload retry policy.
type dbSessionRefresher struct {
	db *sqlx.DB
}

func (r *dbSessionRefresher) RefreshSession(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

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

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The roster cache degrades to direct reads without Redis.
		logr.Sugar().Warnw("redis unavailable, roster caching disabled", "error", err)
		redisClient = nil
	}

	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	promotionRepo := repository.NewPromotionRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	guard := oplock.New()
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, cfg.JWT, logr)
	identitySvc := service.NewIdentityService(userRepo, logr)
	enrollmentSvc := service.NewEnrollmentService(studentRepo, promotionRepo, subjectRepo, assignmentRepo, identitySvc, guard, cfg.Enrollment, logr)
	rosterSvc := service.NewRosterService(studentRepo, promotionRepo, subjectRepo, teacherRepo, cacheRepo, &dbSessionRefresher{db: db}, cfg.Roster, logr)
	promotionSvc := service.NewPromotionService(promotionRepo, studentRepo, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, teacherRepo, promotionRepo, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, identitySvc, cfg.Enrollment, logr)
	studentSvc := service.NewStudentService(studentRepo, assignmentRepo, logr)
	gradeSvc := service.NewGradeService(gradeRepo, subjectRepo, logr)
	userSvc := service.NewUserService(userRepo, identitySvc, logr)
	exportSvc := service.NewExportService(studentRepo, assignmentRepo, gradeRepo, store, signer, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	promotionHandler := handler.NewPromotionHandler(promotionSvc, rosterSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc, rosterSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc, rosterSvc)
	studentHandler := handler.NewStudentHandler(studentSvc, enrollmentSvc, rosterSvc, metricsSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	userHandler := handler.NewUserHandler(userSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
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
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	registerRoutes(api, authSvc, userRepo, authHandler, promotionHandler, subjectHandler, teacherHandler, studentHandler, gradeHandler, userHandler, exportHandler)

	registerStaticFallback(r, cfg)

	// Expired export artifacts are swept in the background.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			exportSvc.Cleanup(cfg.Exports.SignedURLTTL)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func registerRoutes(
	api *gin.RouterGroup,
	authSvc *service.AuthService,
	userRepo *repository.UserRepository,
	authHandler *handler.AuthHandler,
	promotionHandler *handler.PromotionHandler,
	subjectHandler *handler.SubjectHandler,
	teacherHandler *handler.TeacherHandler,
	studentHandler *handler.StudentHandler,
	gradeHandler *handler.GradeHandler,
	userHandler *handler.UserHandler,
	exportHandler *handler.ExportHandler,
) {
	jwt := middleware.JWT(authSvc)
	admin := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	staffOrSelf := middleware.RBAC(string(models.RoleAdmin), string(models.RoleTeacher), middleware.RoleSelf)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", jwt, authHandler.Logout)
		auth.PUT("/password", jwt, authHandler.ChangePassword)
		auth.GET("/me", jwt, authHandler.Me)
	}

	promotions := api.Group("/promotions", jwt)
	{
		promotions.GET("", promotionHandler.List)
		promotions.GET("/:id", promotionHandler.Get)
		promotions.POST("", admin, promotionHandler.Create)
		promotions.PUT("/:id", admin, promotionHandler.Update)
		promotions.DELETE("/:id", admin, promotionHandler.Delete)
		promotions.POST("/:id/credentials-export", admin, exportHandler.CredentialSheet)
	}

	subjects := api.Group("/subjects", jwt)
	{
		subjects.GET("", subjectHandler.List)
		subjects.GET("/:id", subjectHandler.Get)
		subjects.GET("/:id/categories", gradeHandler.Categories)
		subjects.POST("", admin, subjectHandler.Create)
		subjects.PUT("/:id", admin, subjectHandler.Update)
		subjects.DELETE("/:id", admin, subjectHandler.Delete)
		subjects.PUT("/:id/promotions/:promotionId", admin, subjectHandler.AddPromotion)
		subjects.DELETE("/:id/promotions/:promotionId", admin, subjectHandler.RemovePromotion)
	}

	teachers := api.Group("/teachers", jwt)
	{
		teachers.GET("", staff, teacherHandler.List)
		teachers.GET("/:id", staffOrSelf, teacherHandler.Get)
		teachers.POST("", admin, teacherHandler.Create)
		teachers.PUT("/:id", admin, teacherHandler.Update)
		teachers.DELETE("/:id", admin, teacherHandler.Deactivate)
	}

	students := api.Group("/students", jwt)
	{
		students.GET("", staff, studentHandler.List)
		students.GET("/roster", staff, studentHandler.Roster)
		students.GET("/:id", staffOrSelf, studentHandler.Get)
		students.GET("/:id/assignments", staffOrSelf, studentHandler.Assignments)
		students.GET("/:id/subjects/:subjectId/stats", staffOrSelf, gradeHandler.SubjectStats)
		students.POST("", admin, studentHandler.Create)
		students.POST("/bulk", admin, middleware.Audit(userRepo, models.AuditActionEnrollment, "students"), studentHandler.CreateBulk)
		students.PUT("/:id", admin, studentHandler.Update)
		students.DELETE("/:id", admin, studentHandler.Deactivate)
		students.POST("/:id/grade-report", staffOrSelf, exportHandler.GradeReport)
	}

	grades := api.Group("/grades", jwt)
	{
		grades.GET("", gradeHandler.List)
		grades.POST("", staff, gradeHandler.Record)
		grades.PUT("/:id", staff, gradeHandler.Update)
		grades.DELETE("/:id", staff, gradeHandler.Delete)
	}

	api.POST("/grade-categories", jwt, staff, gradeHandler.CreateCategory)

	users := api.Group("/users", jwt, admin)
	{
		users.GET("", userHandler.List)
		users.DELETE("/:id", userHandler.Delete)
		users.POST("/delete-batch", userHandler.DeleteBatch)
	}

	// Downloads are authenticated by the signed token itself.
	api.GET("/exports/download", exportHandler.Download)
}

// registerStaticFallback serves the bundled frontend for any path outside
// the API prefix. Missing files return 404; the root serves index.html.
func registerStaticFallback(r *gin.Engine, cfg *config.Config) {
	publicDir := cfg.Static.PublicDir

	r.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, cfg.APIPrefix) {
			c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "route not found"}})
			return
		}

		target := filepath.Join(publicDir, filepath.Clean("/"+path))
		if path == "/" || path == "" {
			target = filepath.Join(publicDir, "index.html")
		}
		info, err := os.Stat(target)
		if err != nil || info.IsDir() {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(target)
	})
}
