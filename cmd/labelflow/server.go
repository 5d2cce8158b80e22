package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/labelflow"
	"github.com/BaSui01/labelflow/api/handlers"
	"github.com/BaSui01/labelflow/config"
	"github.com/BaSui01/labelflow/internal/metrics"
	"github.com/BaSui01/labelflow/internal/server"
	"github.com/BaSui01/labelflow/internal/telemetry"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// dbStatsInterval 连接池指标采样间隔
const dbStatsInterval = 15 * time.Second

// Server 是 LabelFlow 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel

	runtime *labelflow.Runtime
	otel    *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler *handlers.HealthHandler
	api           *handlers.API

	// 指标收集器
	metricsCollector *metrics.Collector

	// 配置重载
	reloader *config.Reloader

	// 后台 goroutine 生命周期管理
	bgCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel, otel *telemetry.Providers) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		level:      level,
		otel:       otel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("labelflow", s.logger)

	// 2. 初始化引擎与 Handlers
	if err := s.initHandlers(bgCtx); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 3. 初始化配置重载
	if err := s.initReloader(bgCtx); err != nil {
		return fmt.Errorf("failed to init config reloader: %w", err)
	}

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(bgCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 6. 连接池指标采样
	s.wg.Add(1)
	go s.recordDBStats(bgCtx)

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initHandlers 装配运行时与全部 handlers
func (s *Server) initHandlers(ctx context.Context) error {
	// 工作流引擎依赖数据库，连接失败直接返回
	rt, err := labelflow.New(ctx, s.cfg,
		labelflow.WithLogger(s.logger),
		labelflow.WithMetrics(s.metricsCollector),
	)
	if err != nil {
		return err
	}
	s.runtime = rt

	s.api = handlers.NewAPI(rt.Engine, rt.Service, s.logger)

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck(rt.DB))
	if rt.Cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck(rt.Cache))
	}

	s.logger.Info("Handlers initialized")
	return nil
}

// initReloader 监听配置文件，热更新日志级别
func (s *Server) initReloader(ctx context.Context) error {
	if s.configPath == "" {
		return nil
	}

	s.reloader = config.NewReloader(s.configPath, s.cfg, config.WithReloadLogger(s.logger))
	s.reloader.OnReload(func(oldCfg, newCfg *config.Config) {
		if oldCfg.Log.Level != newCfg.Log.Level {
			s.level.SetLevel(parseLevel(newCfg.Log.Level))
			s.logger.Info("Log level changed",
				zap.String("from", oldCfg.Log.Level),
				zap.String("to", newCfg.Log.Level),
			)
		}
	})

	return s.reloader.Start(ctx)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// routes 构建业务与健康检查路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// API 路由
	s.api.Register(mux)
	return mux
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer(ctx context.Context) error {
	handler := Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)

	s.httpManager = server.NewManager(handler, server.FromServerConfig(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)

	var err error
	if s.cfg.Server.TLSCertFile != "" && s.cfg.Server.TLSKeyFile != "" {
		err = s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
	} else {
		err = s.httpManager.Start()
	}
	if err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.FromServerConfig(s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// recordDBStats 周期性上报连接池状态
func (s *Server) recordDBStats(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.runtime.DB.Stats()
			s.metricsCollector.RecordDBConnections(s.cfg.Database.Driver, stats.OpenConnections, stats.Idle)
		}
	}
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 0. 停止 rate limiter 清理与指标采样
	if s.bgCancel != nil {
		s.bgCancel()
	}

	// 1. 停止配置重载
	if s.reloader != nil {
		s.reloader.Stop()
	}

	// 2. 关闭 HTTP 服务器（不再接收新的执行请求）
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 等待进行中的执行完成，释放数据库与 Redis 连接
	if s.runtime != nil {
		if err := s.runtime.Close(ctx); err != nil {
			s.logger.Error("Workflow runtime shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 5. 等待所有 goroutine 完成
	s.wg.Wait()

	// 6. 刷新遥测数据
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
