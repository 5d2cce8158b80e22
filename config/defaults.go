// =============================================================================
// 📦 LabelFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// 单个输入失败策略
const (
	// PartialFailureSkip 跳过失败的输入，节点仍为 completed
	PartialFailureSkip = "skip"
	// PartialFailureFail 任一输入失败即判定节点失败并回滚
	PartialFailureFail = "fail"
)

// 执行锁后端
const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Engine:    DefaultEngineConfig(),
		Storage:   DefaultStorageConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "labelflow",
		Password:        "",
		Name:            "labelflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "labelflow",
	}
}

// DefaultEngineConfig 返回默认引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxParallelBranches:  4,
		NodeTimeout:          0,
		SkipCompletedOnRetry: false,
		PartialFailurePolicy: PartialFailureSkip,
		Workers:              4,
		QueueSize:            64,
		LockBackend:          LockBackendMemory,
		LockTTL:              30 * time.Minute,
		StatusCacheTTL:       time.Minute,
	}
}

// DefaultStorageConfig 返回默认存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		ImageExtensions: []string{".jpg", ".jpeg", ".png", ".bmp", ".gif"},
		DefaultResize:   []int{416, 416},
		DirPerm:         0o755,
		FilePerm:        0o644,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "labelflow",
		SampleRate:   0.1,
	}
}
