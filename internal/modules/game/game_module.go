package game

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Fishbowl37/RPG-Server/internal/domain/battle"
	custommiddleware "github.com/Fishbowl37/RPG-Server/internal/middleware"
	"github.com/Fishbowl37/RPG-Server/internal/modules/game/handler"
	"github.com/Fishbowl37/RPG-Server/internal/modules/game/service"
	"github.com/Fishbowl37/RPG-Server/internal/modules/game/tasks"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/config"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/i18n"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/log"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/metrics"
	natshealth "github.com/Fishbowl37/RPG-Server/internal/pkg/nats"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/notify"
	redisClient "github.com/Fishbowl37/RPG-Server/internal/pkg/redis"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/response"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/sessioncache"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/trace"
	"github.com/Fishbowl37/RPG-Server/internal/pkg/validator"
	"github.com/Fishbowl37/RPG-Server/internal/repository/impl"
	"github.com/Fishbowl37/RPG-Server/internal/repository/interfaces"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/liangdas/mqant/conf"
	"github.com/liangdas/mqant/module"
	basemodule "github.com/liangdas/mqant/module/base"
	"github.com/liangdas/mqant/server"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

type GameModule struct {
	basemodule.BaseModule
	cfg              *config.GameConfig
	logger           log.Logger
	db               *sql.DB
	characterRepo    interfaces.CharacterRepository
	redis            *redisClient.Client
	sessionStore     interfaces.BattleSessionStore
	memoryStore      *sessioncache.Store
	httpServer       *echo.Echo
	serviceContainer *service.ServiceContainer
	stageHandler     *handler.StageHandler
	battleRPCHandler *handler.BattleRPCHandler
	natsHealth       *natshealth.HealthChecker
	stopHealth       context.CancelFunc
	poolStatsTask    *tasks.PoolStatsTask
	sessionPurgeTask *tasks.SessionPurgeTask
	respWriter       response.Writer
}

// GetType returns module type
func (m *GameModule) GetType() string {
	return "game"
}

// Version returns module version
func (m *GameModule) Version() string {
	return "1.0.0"
}

// OnAppConfigurationLoaded 当App初始化时调用
func (m *GameModule) OnAppConfigurationLoaded(app module.App) {
	m.BaseModule.OnAppConfigurationLoaded(app)
}

// OnInit module initialization
func (m *GameModule) OnInit(app module.App, settings *conf.ModuleSettings) {
	metrics.SetServiceName("game")
	// TTL = 30s, 心跳间隔 = 15s (TTL 必须大于心跳间隔)
	m.BaseModule.OnInit(m, app, settings,
		server.RegisterInterval(15*time.Second),
		server.RegisterTTL(30*time.Second),
	)

	// 1. 加载配置
	cfg, err := config.LoadGameConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load game config: %v", err))
	}
	m.cfg = cfg
	log.Init(log.ParseLevel(cfg.LogLevel), cfg.Environment)
	m.logger = log.GetLogger().With("module", "game")
	m.logger.Info("游戏服务配置已加载", "config", cfg.LogFields())

	// 2. 并行初始化角色存储与会话存储
	if err := m.initStorage(); err != nil {
		panic(fmt.Sprintf("Failed to initialize storage: %v", err))
	}

	// 3. 开发环境预置角色
	m.seedDevCharacter()

	// 4. Initialize response writer
	m.respWriter = response.NewResponseHandler(log.GetLogger(), cfg.Environment)
	fmt.Println("[Game Module] Response writer initialized")

	// 5. Initialize HTTP server
	m.initHTTPServer()

	// 6. Initialize Services and Handlers
	m.initServicesAndHandlers()

	// 7. Setup routes
	m.setupRoutes()

	// 8. Setup RPC methods
	m.setupRPCMethods()

	// 9. Start background tasks
	m.startBackgroundTasks()

	// 10. Start HTTP server in background
	go m.startHTTPServer()

	m.GetServer().Options()
}

// initStorage 初始化数据库与会话存储
func (m *GameModule) initStorage() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.initDatabase(gctx) })
	g.Go(func() error { return m.initSessionStore(gctx) })
	if err := g.Wait(); err != nil {
		m.closeStorage()
		return err
	}
	return nil
}

// initDatabase initializes the character store
func (m *GameModule) initDatabase(ctx context.Context) error {
	switch m.cfg.CharacterStore {
	case "sqlite":
		db, err := impl.OpenSQLite(ctx, m.cfg.SQLitePath)
		if err != nil {
			return err
		}
		m.db = db
		m.characterRepo = impl.NewSQLiteCharacterRepository(db)
		fmt.Printf("[Game Module] SQLite character store initialized (%s)\n", m.cfg.SQLitePath)
		return nil

	default:
		db, err := sql.Open("postgres", m.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to ping database: %w", err)
		}

		db.SetMaxOpenConns(m.cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(m.cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := impl.EnsurePostgresSchema(ctx, db); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to ensure schema: %w", err)
		}

		m.db = db
		m.characterRepo = impl.NewCharacterRepository(db)
		fmt.Println("[Game Module] Database initialized successfully")
		return nil
	}
}

// initSessionStore initializes the battle session store
func (m *GameModule) initSessionStore(ctx context.Context) error {
	if m.cfg.Session.Backend == "memory" {
		m.memoryStore = sessioncache.New(metrics.DefaultBattleMetrics, m.logger)
		m.sessionStore = m.memoryStore
		fmt.Println("[Game Module] In-memory session store initialized (single instance only)")
		return nil
	}

	client, err := redisClient.NewClient(ctx, redisClient.Config{
		Addr:     m.cfg.Redis.Addr(),
		Password: m.cfg.Redis.Password,
		DB:       m.cfg.Redis.DB,
		PoolSize: m.cfg.Redis.PoolSize,
	}, metrics.GetServiceName())
	if err != nil {
		return err
	}

	m.redis = client
	m.sessionStore = impl.NewBattleSessionStore(client)
	fmt.Printf("[Game Module] Redis connected successfully (Addr: %s, DB: %d)\n", m.cfg.Redis.Addr(), m.cfg.Redis.DB)
	return nil
}

// seedDevCharacter 非生产环境下预置联调角色，已存在时跳过
func (m *GameModule) seedDevCharacter() {
	if m.cfg.DevSeedCharacterID == "" || m.cfg.Environment == "production" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := m.characterRepo.CharacterExists(ctx, m.cfg.DevSeedCharacterID)
	if err != nil {
		m.logger.Error("查询开发角色失败", err, "character_id", m.cfg.DevSeedCharacterID)
		return
	}
	if exists {
		return
	}

	err = m.characterRepo.CreateCharacter(ctx, &battle.CharacterRecord{
		ID:     m.cfg.DevSeedCharacterID,
		UserID: m.cfg.DevSeedUserID,
		Name:   "dev-" + m.cfg.DevSeedCharacterID,
		Level:  1,
	})
	switch {
	case err == nil:
		fmt.Printf("[Game Module] Dev character seeded (%s)\n", m.cfg.DevSeedCharacterID)
	case errors.Is(err, interfaces.ErrCharacterExists):
	default:
		m.logger.Error("预置开发角色失败", err, "character_id", m.cfg.DevSeedCharacterID)
	}
}

// initHTTPServer initializes HTTP server
func (m *GameModule) initHTTPServer() {
	m.httpServer = echo.New()
	m.httpServer.HideBanner = true
	m.httpServer.HidePort = true
	m.httpServer.Validator = validator.New()

	logger := log.GetLogger()

	// ========== 中间件配置（顺序很重要！） ==========

	// 1. TraceID 中间件 - 最先执行，生成或提取 TraceID
	m.httpServer.Use(trace.Middleware())

	// 2. Metrics 中间件
	m.httpServer.Use(metrics.Middleware())

	// 3. i18n 中间件 - 语言检测和设置
	m.httpServer.Use(i18n.Middleware())

	// 4. Logging 中间件（依赖 TraceID）
	loggingConfig := custommiddleware.DefaultLoggingConfig()
	if m.cfg.Environment == "development" {
		loggingConfig.DetailedLog = true
		loggingConfig.LogRequestBody = true
	}
	m.httpServer.Use(custommiddleware.LoggingMiddlewareWithConfig(logger, loggingConfig))

	// 5. Recovery 中间件 - 捕获 panic
	m.httpServer.Use(custommiddleware.RecoveryMiddleware(m.respWriter, logger))

	// 6. Error 中间件 - 统一错误处理
	m.httpServer.Use(custommiddleware.ErrorMiddleware(m.respWriter, logger))

	// 7. CORS 与安全响应头
	m.httpServer.Use(custommiddleware.CORSMiddleware(m.cfg.CORSAllowOrigins))
	m.httpServer.Use(custommiddleware.SecurityHeadersMiddleware())

	// 8. 请求体大小限制
	m.httpServer.Use(middleware.BodyLimit("256K"))

	fmt.Println("[Game Module] HTTP middlewares configured:")
	fmt.Println("  ✓ TraceID (自动生成追踪ID)")
	fmt.Println("  ✓ Metrics (Prometheus 指标收集)")
	fmt.Println("  ✓ i18n (国际化支持)")
	fmt.Printf("  ✓ Logging (日志记录 - %s)\n", m.cfg.Environment)
	fmt.Println("  ✓ Recovery (Panic 恢复)")
	fmt.Println("  ✓ Error (统一错误处理)")
	fmt.Println("  ✓ CORS / Security headers")
	fmt.Println("  ✓ BodyLimit (256K)")
}

// initServicesAndHandlers initializes services and HTTP handlers
func (m *GameModule) initServicesAndHandlers() {
	m.serviceContainer = service.NewServiceContainer(m.cfg, service.Dependencies{
		CharacterRepo: m.characterRepo,
		SessionStore:  m.sessionStore,
		Publisher:     notify.NewPublisher(),
		Metrics:       metrics.DefaultBattleMetrics,
		Logger:        log.GetLogger(),
	})

	m.stageHandler = handler.NewStageHandler(m.serviceContainer, m.respWriter)
	m.battleRPCHandler = handler.NewBattleRPCHandler(m.serviceContainer)

	fmt.Println("[Game Module] Handlers initialized successfully")
}

// setupRoutes sets up HTTP routes
func (m *GameModule) setupRoutes() {
	logger := log.GetLogger()

	game := m.httpServer.Group("/api/v1/game")
	game.Use(custommiddleware.AuthMiddleware(m.respWriter, logger))
	game.Use(custommiddleware.RateLimitMiddleware(m.cfg.RateLimitPerSecond))

	m.stageHandler.RegisterRoutes(game,
		custommiddleware.CompletionRateLimit(m.cfg.CompletionLimitPerMin, m.respWriter),
	)

	m.httpServer.GET("/health", m.health)
	m.httpServer.GET("/metrics", metrics.EchoHandler())

	fmt.Println("[Game Module] Routes configured successfully")
	fmt.Println("[Game Module] Game API routes: /api/v1/game/characters/:character_id/*")
	fmt.Printf("[Game Module] Prometheus metrics available at http://localhost:%s/metrics\n", m.cfg.HTTPPort)
}

// health 汇总依赖状态，数据库或会话存储不可用时返回 503
func (m *GameModule) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]any{
		"status": "ok",
		"module": "game",
	}

	dbStatus := "up"
	if err := m.db.PingContext(ctx); err != nil {
		dbStatus = "down"
		status = http.StatusServiceUnavailable
	}
	body["database"] = dbStatus

	sessionStatus := "memory"
	if m.redis != nil {
		sessionStatus = "up"
		if err := m.redis.Healthy(ctx); err != nil {
			sessionStatus = "down"
			status = http.StatusServiceUnavailable
		}
	}
	body["session_store"] = sessionStatus

	if m.natsHealth != nil {
		body["nats"] = m.natsHealth.Status()
	}

	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	return m.respWriter.WriteJSON(ctx, c.Response(), body, status)
}

// startBackgroundTasks starts cron tasks and the NATS health checker
func (m *GameModule) startBackgroundTasks() {
	logger := log.GetLogger()

	dbName := m.cfg.CharacterStore
	maxOpen := m.cfg.DBMaxOpenConns
	if dbName == "sqlite" {
		maxOpen = 1
	}
	m.poolStatsTask = tasks.NewPoolStatsTask(m.db, dbName, maxOpen, m.redis, m.cfg.PoolStatsCronSpec, logger)
	if err := m.poolStatsTask.Start(); err != nil {
		panic(fmt.Sprintf("Failed to start pool stats task: %v", err))
	}

	if m.memoryStore != nil {
		m.sessionPurgeTask = tasks.NewSessionPurgeTask(m.memoryStore, m.cfg.SessionPurgeCronSpec, logger)
		if err := m.sessionPurgeTask.Start(); err != nil {
			panic(fmt.Sprintf("Failed to start session purge task: %v", err))
		}
	}

	if conn := notify.Conn(); conn != nil {
		m.natsHealth = natshealth.NewHealthChecker(conn, 10*time.Second)
	} else {
		m.natsHealth = natshealth.NewHealthChecker(nil, 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.stopHealth = cancel
	go m.natsHealth.Start(ctx)

	fmt.Println("[Game Module] Background tasks started successfully:")
	fmt.Printf("  ✓ Pool Stats Task (%s)\n", m.cfg.PoolStatsCronSpec)
	if m.sessionPurgeTask != nil {
		fmt.Printf("  ✓ Session Purge Task (%s)\n", m.cfg.SessionPurgeCronSpec)
	}
	fmt.Printf("  ✓ NATS Health Checker (%s)\n", m.natsHealth.Status())
}

// startHTTPServer starts HTTP server
func (m *GameModule) startHTTPServer() {
	fmt.Printf("[Game Module] Starting HTTP server on port %s\n", m.cfg.HTTPPort)

	if err := m.httpServer.Start(":" + m.cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Printf("[Game Module] HTTP server error: %v\n", err)
	}
}

// setupRPCMethods 注册 RPC 方法
func (m *GameModule) setupRPCMethods() {
	m.GetServer().RegisterGO("GetChapterProgress", m.battleRPCHandler.GetChapterProgress)

	fmt.Println("[Game Module] RPC methods registered:")
	fmt.Println("  ✓ GetChapterProgress - 获取角色章节进度")
}

// Run module run
func (m *GameModule) Run(closeSig chan bool) {
	fmt.Println("[Game Module] Started successfully")
	<-closeSig
}

// OnDestroy module destroy
func (m *GameModule) OnDestroy() {
	if m.poolStatsTask != nil {
		m.poolStatsTask.Stop()
	}
	if m.sessionPurgeTask != nil {
		m.sessionPurgeTask.Stop()
	}
	if m.stopHealth != nil {
		m.stopHealth()
	}
	fmt.Println("[Game Module] Background tasks stopped")

	if m.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := m.httpServer.Shutdown(ctx); err != nil {
			fmt.Printf("[Game Module] Failed to close HTTP server: %v\n", err)
		} else {
			fmt.Println("[Game Module] HTTP server closed")
		}
		cancel()
	}

	m.closeStorage()

	m.BaseModule.OnDestroy()
	fmt.Println("[Game Module] Destroyed")
}

func (m *GameModule) closeStorage() {
	if m.db != nil {
		if err := m.db.Close(); err != nil {
			fmt.Printf("[Game Module] Failed to close database: %v\n", err)
		} else {
			fmt.Println("[Game Module] Database connection closed")
		}
		m.db = nil
	}
	if m.redis != nil {
		if err := m.redis.Close(); err != nil {
			fmt.Printf("[Game Module] Failed to close Redis: %v\n", err)
		} else {
			fmt.Println("[Game Module] Redis connection closed")
		}
		m.redis = nil
	}
}

// Module creates Game module instance
func Module() module.Module {
	return new(GameModule)
}
