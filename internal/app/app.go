package app

import (
	"certify_backend/internal/config"
	"certify_backend/internal/controller"
	"certify_backend/internal/repository"
	"certify_backend/internal/service"
	"certify_backend/pkg/configwatcher"
	"certify_backend/pkg/database"
	"certify_backend/pkg/logger"
	"certify_backend/pkg/monitoring"
	"certify_backend/pkg/security"
	"certify_backend/pkg/tracing"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	ConfigPath      string
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracerProvider  *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user        *repository.UserRepository
	progress    *repository.ProgressRepository
	content     *repository.ContentRepository
	certificate *repository.CertificateRepository
}

type services struct {
	catalog       *service.CatalogService
	content       *service.ContentService
	storage       *service.StorageService
	certification *service.CertificationService
	export        *service.ExportService
}

type controllers struct {
	certification *controller.CertificationController
	admin         *controller.AdminController
	health        *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:        repository.NewUserRepository(db),
		progress:    repository.NewProgressRepository(db),
		content:     repository.NewContentRepository(db),
		certificate: repository.NewCertificateRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) (*services, error) {
	s := &services{}

	catalog, err := service.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	s.catalog = catalog

	s.storage = service.NewStorageService(cfg)
	s.content = service.NewContentService(repos.content, rdb, cfg.Certification.ContentCacheTTL)
	s.export = service.NewExportService(repos.certificate)

	chain := service.NewModelChain(service.NewAIService(cfg.AI), cfg.AI.Models)
	questions, err := service.NewQuestionService(chain, cfg.AI.MaxTokens, cfg.AI.Temperature)
	if err != nil {
		return nil, err
	}

	tokens, err := service.NewAnswersTokenCodec(cfg.Certification.TokenSecret, cfg.Certification.TokenTTL)
	if err != nil {
		return nil, err
	}

	s.certification = service.NewCertificationService(
		s.catalog,
		repos.progress,
		s.content,
		repos.certificate,
		repos.user,
		questions,
		tokens,
		cfg.Certification,
	)
	s.certification.Storage = s.storage
	s.certification.Notifier = service.NewNotificationService(cfg.SendGrid)

	return s, nil
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		certification: controller.NewCertificationController(s.certification),
		admin:         controller.NewAdminController(s.catalog, s.content, s.export),
		health:        controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// onConfigReload 热更新考试策略与课程目录，其余配置需重启生效
func (a *App) onConfigReload(newCfg *config.Config) {
	a.services.certification.UpdatePolicy(newCfg.Certification)
	if err := a.services.catalog.Reload(newCfg.Catalog.Path); err != nil {
		logger.Log.Error("Failed to reload catalog", zap.Error(err))
	}
	logger.Log.Info("Certification policy updated",
		zap.Int("passingScore", newCfg.Certification.PassingScore),
		zap.Int("maxAttempts", newCfg.Certification.MaxAttempts),
		zap.Int("totalQuestions", newCfg.Certification.TotalQuestions),
	)
}

func NewApp(cfg *config.Config, configPath string) *App {
	if err := logger.InitLogger(cfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Log.Info("Logger initialized successfully")

	gin.SetMode(cfg.Server.Mode)

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(context.Background(), &cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	app := &App{
		Config:     cfg,
		ConfigPath: configPath,
		DB:         db,
		Redis:      rdb,
	}

	repos := app.initRepositories(db)
	services, err := app.initServices(repos, cfg, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracerProvider = tp
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.RegisterConfigCallback(app.onConfigReload)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	ctx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()

	go func() {
		configFile := filepath.Join(a.ConfigPath, "config.yaml")
		err := configwatcher.WatchConfig(ctx, configFile, func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		})
		if err != nil {
			logger.Log.Error("Config watcher stopped", zap.Error(err))
		}
	}()

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")
	stopWatch()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	if a.Redis != nil {
		a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}
