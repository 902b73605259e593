package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"palette_backend/internal/config"
	"palette_backend/internal/controller"
	"palette_backend/internal/repository"
	"palette_backend/internal/service"
	"palette_backend/pkg/configwatcher"
	"palette_backend/pkg/database"
	"palette_backend/pkg/logger"
	"palette_backend/pkg/monitoring"
	"palette_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	rubric     *repository.RubricRepository
	syncQueue  *repository.SyncQueueRepository
	course     *repository.CourseRepository
	assessment *repository.AssessmentRepository
	analytics  *repository.AnalyticsRepository
}

type services struct {
	rubric  *service.RubricService
	grading *service.GradingService
	sync    *service.SyncService
	monitor *service.ConnectivityMonitor
}

type controllers struct {
	rubric  *controller.RubricController
	grading *controller.GradingController
	sync    *controller.SyncController
	health  *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		rubric:     repository.NewRubricRepository(db),
		syncQueue:  repository.NewSyncQueueRepository(db),
		course:     repository.NewCourseRepository(db),
		assessment: repository.NewAssessmentRepository(db),
		analytics:  repository.NewAnalyticsRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB) *services {
	s := &services{}

	client := service.NewCanvasClient(cfg.Canvas, cfg.Canvas.Token)
	s.monitor = service.NewConnectivityMonitor(client, cfg.Canvas.ProbeInterval)

	s.rubric = service.NewRubricService(repos.rubric, repos.course, db)
	s.grading = service.NewGradingService(
		repos.assessment,
		repos.course,
		repos.rubric,
		repos.analytics,
		repos.syncQueue,
		db,
	)
	s.sync = service.NewSyncService(
		repos.syncQueue,
		s.rubric,
		repos.course,
		repos.assessment,
		client,
		s.monitor,
		db,
		cfg.Sync,
	)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		rubric:  controller.NewRubricController(s.rubric),
		grading: controller.NewGradingController(s.grading),
		sync:    controller.NewSyncController(s.sync, s.monitor),
		health:  controller.NewHealthController(db, s.monitor),
	}
}

func (a *App) startBackgroundTasks(s *services, cfg *config.Config) {
	// Stale in_progress rows from a crashed run must return to pending
	// before the first drain.
	if err := s.sync.ReconcileStaleItems(); err != nil {
		logger.Log.Error("failed to reconcile stale sync items", zap.Error(err))
	}

	s.monitor.Start()
	s.sync.StartAutoSync()
	s.grading.StartAutoSave(cfg.Sync.AutoSaveInterval)
}

func (a *App) stopBackgroundTasks() {
	if a.services == nil {
		return
	}
	a.services.grading.StopAutoSave()
	a.services.sync.StopAutoSync()
	a.services.monitor.Stop()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}
	if cfg.MigrateOnly {
		return app
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, db)
	app.services = services
	controllers := app.initControllers(services, db)

	monitoring.Init()

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("palette-backend", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers)

	app.startBackgroundTasks(services, cfg)

	go configwatcher.WatchConfig("configs/config.yaml", func(newCfg *config.Config) {
		logger.Log.Info("Config reloaded")
		app.Config = newCfg
		for _, callback := range app.configCallbacks {
			callback(newCfg)
		}
	})

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Timers first, so no sync or auto-save pass starts against a
	// closing database.
	a.stopBackgroundTasks()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}

	log.Println("Server exiting")
}
