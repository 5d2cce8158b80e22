// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 默认配置测试 ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 服务器默认值
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)

	// 引擎默认值
	assert.Equal(t, 4, cfg.Engine.MaxParallelBranches)
	assert.False(t, cfg.Engine.SkipCompletedOnRetry)
	assert.Equal(t, PartialFailureSkip, cfg.Engine.PartialFailurePolicy)
	assert.Equal(t, LockBackendMemory, cfg.Engine.LockBackend)
	assert.Zero(t, cfg.Engine.NodeTimeout)

	// 存储默认值
	assert.Equal(t, []int{416, 416}, cfg.Storage.DefaultResize)
	assert.Contains(t, cfg.Storage.ImageExtensions, ".png")

	// 数据库默认值
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.True(t, cfg.Database.AutoMigrate)

	// 日志默认值
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	require.NoError(t, cfg.Validate())
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "labelflow", cfg.Telemetry.ServiceName)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s

database:
  driver: postgres
  host: db.internal
  name: labels

engine:
  max_parallel_branches: 8
  node_timeout: 2m
  skip_completed_on_retry: true
  partial_failure_policy: fail

storage:
  default_resize: [640, 480]

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 8, cfg.Engine.MaxParallelBranches)
	assert.Equal(t, 2*time.Minute, cfg.Engine.NodeTimeout)
	assert.True(t, cfg.Engine.SkipCompletedOnRetry)
	assert.Equal(t, PartialFailureFail, cfg.Engine.PartialFailurePolicy)
	assert.Equal(t, []int{640, 480}, cfg.Storage.DefaultResize)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 未出现在 YAML 中的字段保留默认值
	assert.Equal(t, 4, cfg.Engine.Workers)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("LABELFLOW_SERVER_HTTP_PORT", "7777")
	t.Setenv("LABELFLOW_ENGINE_SKIP_COMPLETED_ON_RETRY", "true")
	t.Setenv("LABELFLOW_ENGINE_NODE_TIMEOUT", "45s")
	t.Setenv("LABELFLOW_ENGINE_LOCK_BACKEND", "redis")
	t.Setenv("LABELFLOW_REDIS_ADDR", "env-redis:6379")
	t.Setenv("LABELFLOW_STORAGE_IMAGE_EXTENSIONS", ".png, .tif")
	t.Setenv("LABELFLOW_STORAGE_DIR_PERM", "0700")
	t.Setenv("LABELFLOW_LOG_LEVEL", "warn")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.True(t, cfg.Engine.SkipCompletedOnRetry)
	assert.Equal(t, 45*time.Second, cfg.Engine.NodeTimeout)
	assert.Equal(t, LockBackendRedis, cfg.Engine.LockBackend)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{".png", ".tif"}, cfg.Storage.ImageExtensions)
	assert.Equal(t, uint32(0o700), cfg.Storage.DirPerm)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
engine:
  workers: 2
  partial_failure_policy: fail
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	t.Setenv("LABELFLOW_SERVER_HTTP_PORT", "9999")
	t.Setenv("LABELFLOW_ENGINE_WORKERS", "6")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	// 环境变量覆盖 YAML
	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, 6, cfg.Engine.Workers)
	// 未被覆盖的 YAML 值保留
	assert.Equal(t, PartialFailureFail, cfg.Engine.PartialFailurePolicy)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("LABELFLOW_ENGINE_NODE_TIMEOUT", "soon")

	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("LABELFLOW_SERVER_HTTP_PORT", "80")

	_, err := NewLoader().
		WithValidator(func(cfg *Config) error {
			if cfg.Server.HTTPPort < 1024 {
				return assert.AnError
			}
			return nil
		}).
		Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/non/existent/path/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "invalid port", modify: func(c *Config) { c.Server.HTTPPort = 70000 }, wantErr: "invalid HTTP port"},
		{name: "unknown driver", modify: func(c *Config) { c.Database.Driver = "oracle" }, wantErr: "unsupported database driver"},
		{name: "zero branches", modify: func(c *Config) { c.Engine.MaxParallelBranches = 0 }, wantErr: "max_parallel_branches"},
		{name: "negative timeout", modify: func(c *Config) { c.Engine.NodeTimeout = -time.Second }, wantErr: "node_timeout"},
		{name: "unknown policy", modify: func(c *Config) { c.Engine.PartialFailurePolicy = "degrade" }, wantErr: "partial_failure_policy"},
		{name: "unknown lock backend", modify: func(c *Config) { c.Engine.LockBackend = "etcd" }, wantErr: "lock_backend"},
		{name: "bad resize", modify: func(c *Config) { c.Storage.DefaultResize = []int{416} }, wantErr: "default_resize"},
		{name: "non-positive resize", modify: func(c *Config) { c.Storage.DefaultResize = []int{0, 10} }, wantErr: "default_resize values"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      DatabaseConfig
		expected string
	}{
		{
			name:     "postgres",
			cfg:      DatabaseConfig{Driver: "postgres", Host: "localhost", Port: 5432, User: "u", Password: "p", Name: "db", SSLMode: "disable"},
			expected: "host=localhost port=5432 user=u password=p dbname=db sslmode=disable",
		},
		{
			name:     "mysql",
			cfg:      DatabaseConfig{Driver: "mysql", Host: "localhost", Port: 3306, User: "u", Password: "p", Name: "db"},
			expected: "u:p@tcp(localhost:3306)/db?parseTime=true",
		},
		{
			name:     "sqlite",
			cfg:      DatabaseConfig{Driver: "sqlite", Name: "/tmp/labels.db"},
			expected: "file:/tmp/labels.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		},
		{
			name:     "unknown",
			cfg:      DatabaseConfig{Driver: "oracle"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.DSN())
		})
	}
}
