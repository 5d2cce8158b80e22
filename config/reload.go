// 配置文件热更新。
//
// 轮询配置文件修改时间，变更后经 Loader 重新加载并校验，再通知回调。
// 只有日志级别可在运行时生效，其余字段的变更会被记录为需要重启。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadCallback 在新配置生效后调用
type ReloadCallback func(oldConfig, newConfig *Config)

// ReloaderOption 配置 Reloader
type ReloaderOption func(*Reloader)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithReloadLogger 设置日志记录器
func WithReloadLogger(logger *zap.Logger) ReloaderOption {
	return func(r *Reloader) {
		r.logger = logger
	}
}

// Reloader 监听单个配置文件并热更新
type Reloader struct {
	path     string
	interval time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	current   *Config
	lastMod   time.Time
	callbacks []ReloadCallback
	running   bool
	stop      chan struct{}
	done      chan struct{}
}

// NewReloader 创建 Reloader，cfg 为当前生效的配置
func NewReloader(path string, cfg *Config, opts ...ReloaderOption) *Reloader {
	r := &Reloader{
		path:     path,
		interval: time.Second,
		logger:   zap.NewNop(),
		current:  cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	if info, err := os.Stat(path); err == nil {
		r.lastMod = info.ModTime()
	}
	return r
}

// OnReload 注册重载回调
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Current 返回当前生效的配置
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Start 启动轮询
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return errors.New("reloader already running")
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.poll(ctx, r.stop, r.done)

	r.logger.Info("config reloader started",
		zap.String("path", r.path),
		zap.Duration("interval", r.interval))
	return nil
}

// Stop 停止轮询并等待退出
func (r *Reloader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()
	<-done
}

func (r *Reloader) poll(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			info, err := os.Stat(r.path)
			if err != nil {
				continue
			}
			r.mu.RLock()
			changed := info.ModTime().After(r.lastMod)
			r.mu.RUnlock()
			if !changed {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Error("config reload failed, keeping previous config",
					zap.String("path", r.path), zap.Error(err))
			}
		}
	}
}

// Reload 立即从文件重新加载。加载或校验失败时保留旧配置。
func (r *Reloader) Reload() error {
	info, statErr := os.Stat(r.path)

	next, err := NewLoader().WithConfigPath(r.path).Load()
	if err != nil {
		r.markSeen(info, statErr)
		return err
	}
	if err := next.Validate(); err != nil {
		r.markSeen(info, statErr)
		return fmt.Errorf("invalid config: %w", err)
	}

	r.mu.Lock()
	old := r.current
	r.current = next
	if statErr == nil {
		r.lastMod = info.ModTime()
	}
	callbacks := append([]ReloadCallback(nil), r.callbacks...)
	r.mu.Unlock()

	for _, section := range RestartRequired(old, next) {
		r.logger.Warn("config section changed, restart required to apply",
			zap.String("section", section))
	}
	r.logger.Info("config reloaded", zap.String("path", r.path))

	for _, cb := range callbacks {
		cb(old, next)
	}
	return nil
}

func (r *Reloader) markSeen(info os.FileInfo, statErr error) {
	if statErr != nil {
		return
	}
	r.mu.Lock()
	r.lastMod = info.ModTime()
	r.mu.Unlock()
}

// RestartRequired 返回新旧配置中只有重启后才生效的变更段
func RestartRequired(oldConfig, newConfig *Config) []string {
	if oldConfig == nil || newConfig == nil {
		return nil
	}
	var out []string
	ov, nv := reflect.ValueOf(*oldConfig), reflect.ValueOf(*newConfig)
	t := ov.Type()
	for i := 0; i < t.NumField(); i++ {
		name := t.Field(i).Name
		a, b := ov.Field(i).Interface(), nv.Field(i).Interface()
		if name == "Log" {
			oldLog, newLog := a.(LogConfig), b.(LogConfig)
			oldLog.Level, newLog.Level = "", ""
			a, b = oldLog, newLog
		}
		if !reflect.DeepEqual(a, b) {
			out = append(out, name)
		}
	}
	return out
}
