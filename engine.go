package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/static-hub/static-hub/internal/cache"
	"github.com/static-hub/static-hub/internal/capture"
	"github.com/static-hub/static-hub/internal/config"
	"github.com/static-hub/static-hub/internal/edgerules"
	"github.com/static-hub/static-hub/internal/invalidation"
	"github.com/static-hub/static-hub/internal/minify"
	"github.com/static-hub/static-hub/internal/policy"
	"github.com/static-hub/static-hub/internal/scheduler"
	"github.com/static-hub/static-hub/internal/settings"
)

// eventQueueSize 是内容事件总线的缓冲容量。
const eventQueueSize = 64

// engine 持有一次进程生命周期内共享的缓存组件。
type engine struct {
	cfg         *config.Config
	logger      *logrus.Logger
	settings    *settings.Holder
	store       cache.Store
	exclusions  *policy.FileExclusionSet
	markers     *policy.MarkersHolder
	policy      *policy.Policy
	pipeline    *capture.Pipeline
	dispatcher  *invalidation.Dispatcher
	invalidator *invalidation.Invalidator
	sweeper     *scheduler.Sweeper
}

// newEngine 按“存储目录 → 缓存 → 策略 → 捕获 → 失效 → 清理”顺序装配组件。
func newEngine(cfg *config.Config, logger *logrus.Logger) (*engine, error) {
	for _, dir := range []string{cfg.CacheRoot(), cfg.PrivateRoot()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建存储目录失败: %w", err)
		}
	}
	if err := cache.EnsureSentinel(cfg.CacheRoot()); err != nil {
		return nil, fmt.Errorf("写入哨兵文件失败: %w", err)
	}

	store, err := cache.NewStore(cfg.CacheRoot())
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	holder := settings.NewHolder(cfg.Settings())
	exclusions := policy.NewFileExclusionSet(cfg.ExclusionPath(), logger)

	dispatcher := invalidation.NewDispatcher()
	invalidator := invalidation.New(store, logger)
	invalidator.Register(dispatcher)

	return &engine{
		cfg:         cfg,
		logger:      logger,
		settings:    holder,
		store:       store,
		exclusions:  exclusions,
		markers:     policy.NewMarkersHolder(cfg.Markers()),
		policy:      policy.New(exclusions),
		pipeline:    capture.New(store, minify.New(), logger),
		dispatcher:  dispatcher,
		invalidator: invalidator,
		sweeper:     scheduler.NewSweeper(cfg.CacheRoot(), holder, scheduler.DefaultInterval, logger),
	}, nil
}

// edgeRules 基于给定配置构建规则生成器；配置热更新后需要重新构建以感知路径变化。
func edgeRules(cfg *config.Config, logger *logrus.Logger) *edgerules.Generator {
	return edgerules.NewGenerator([]edgerules.Target{
		{Dialect: edgerules.DialectApache, Path: cfg.Global.ApacheRulesPath},
		{Dialect: edgerules.DialectNginx, Path: cfg.Global.NginxRulesPath},
	}, cfg.Global.EdgeCachePrefix, cfg.Global.Origin, logger)
}

// writeEdgeRules 写出当前配置对应的规则文件；逐个目标的失败已由生成器记录日志。
func writeEdgeRules(cfg *config.Config, s settings.Settings, logger *logrus.Logger) error {
	return edgeRules(cfg, logger).Write(s)
}

// running 返回 next 的副本，其中只在启动时读取的源站字段保持为当前进程使用的值，
// 使边缘规则与实际回源目标一致。
func (e *engine) running(next *config.Config) *config.Config {
	pinned := *next
	pinned.Global.Origin = e.cfg.Global.Origin
	pinned.Global.HostOverride = e.cfg.Global.HostOverride
	return &pinned
}

// applyReload 是配置监听者：替换请求标记规则并按新配置重写边缘规则。
func (e *engine) applyReload(next *config.Config) {
	e.markers.Store(next.Markers())
	_ = writeEdgeRules(e.running(next), next.Settings(), e.logger)
}

// summary 返回 /-/status 使用的配置摘要，附带排除规则产物的指纹。
func (e *engine) summary(current *config.Config) map[string]any {
	out := e.running(current).Summary()
	out["exclusions_fingerprint"] = e.exclusions.Fingerprint()
	return out
}
