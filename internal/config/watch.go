package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/static-hub/static-hub/internal/settings"
)

// Watcher 是 settings.Holder 的唯一写入方：配置文件变化时重新解析、校验，
// 成功后替换快照并通知订阅者，失败时保留旧配置。
type Watcher struct {
	v      *viper.Viper
	holder *settings.Holder
	logger *logrus.Logger

	mu        sync.Mutex
	current   *Config
	listeners []func(*Config)
}

// NewWatcher 以已加载的配置初始化 Watcher，并把其快照写入 holder。
func NewWatcher(path string, initial *Config, holder *settings.Holder, logger *logrus.Logger) *Watcher {
	w := &Watcher{
		v:       newViper(ResolvePath(path)),
		holder:  holder,
		logger:  logger,
		current: initial,
	}
	if initial != nil {
		holder.Store(initial.Settings())
	}
	return w
}

// OnReload 注册配置替换后的回调，例如重新生成边缘规则。
func (w *Watcher) OnReload(fn func(*Config)) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Current 返回当前生效的配置。
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start 开始监听配置文件。
func (w *Watcher) Start() {
	w.v.OnConfigChange(w.handleEvent)
	w.v.WatchConfig()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if _, err := w.Reload(); err != nil && w.logger != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"action": "config_reload",
			"file":   event.Name,
		}).Warn("config_reload_rejected")
	}
}

// Reload 重新读取配置文件并通知监听者。[Cache] 段经 settings.Holder 立即生效，
// [Policy] 段与边缘规则相关字段由 OnReload 监听者应用；RestartRequired 列出的
// [Global] 字段在进程启动时固定，修改后需要重启。
func (w *Watcher) Reload() (*Config, error) {
	if err := w.v.ReadInConfig(); err != nil {
		return nil, err
	}
	cfg, err := decode(w.v)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	prev := w.current
	w.current = cfg
	listeners := append([]func(*Config){}, w.listeners...)
	w.mu.Unlock()

	w.holder.Store(cfg.Settings())

	if w.logger != nil {
		fields := logrus.Fields{"action": "config_reload"}
		if changed := RestartRequired(prev, cfg); len(changed) > 0 {
			fields["restart_required"] = changed
		}
		w.logger.WithFields(fields).Info("config_reloaded")
	}

	for _, fn := range listeners {
		fn(cfg)
	}
	return cfg, nil
}

// RestartRequired 返回 prev 与 next 之间发生变化、且只在启动时读取的 [Global] 字段名。
func RestartRequired(prev, next *Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	var changed []string
	check := func(name string, differs bool) {
		if differs {
			changed = append(changed, name)
		}
	}
	a, b := prev.Global, next.Global
	check("ListenPort", a.ListenPort != b.ListenPort)
	check("StoragePath", a.StoragePath != b.StoragePath)
	check("Origin", a.Origin != b.Origin)
	check("HostOverride", a.HostOverride != b.HostOverride)
	check("UpstreamTimeout", a.UpstreamTimeout != b.UpstreamTimeout)
	check("AdminToken", a.AdminToken != b.AdminToken)
	check("LogLevel", a.LogLevel != b.LogLevel)
	check("LogFilePath", a.LogFilePath != b.LogFilePath)
	return changed
}
