package server

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/static-hub/static-hub/internal/cache"
	"github.com/static-hub/static-hub/internal/config"
)

// SiteRoute 是单个请求解析后的站点信息，供代理层直接复用。
type SiteRoute struct {
	// Host 是缓存 Key 使用的站点主机名（已去端口、小写）。
	Host string
	// Origin 是页面回源地址。
	Origin *url.URL
	// ListenPort 记录当前监听端口，方便日志/转发头输出。
	ListenPort int
}

// Site 保存启动阶段解析好的源站与 Host 覆盖配置。
type Site struct {
	origin       *url.URL
	hostOverride string
	listenPort   int
}

// NewSite 根据配置构建 Site。调用方应在启动阶段创建一次并复用。
func NewSite(cfg *config.Config) (*Site, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	origin, err := url.Parse(cfg.Global.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin: %s", cfg.Global.Origin)
	}
	return &Site{
		origin:       origin,
		hostOverride: cfg.Global.HostOverride,
		listenPort:   cfg.Global.ListenPort,
	}, nil
}

// Origin 返回源站地址副本。
func (s *Site) Origin() *url.URL {
	clone := *s.origin
	return &clone
}

// Lookup 根据 Host 或 Host:port 计算站点路由；Host 非法时返回 false。
func (s *Site) Lookup(hostHeader string) (*SiteRoute, bool) {
	host, err := cache.ResolveHost(s.hostOverride, hostHeader)
	if err != nil {
		return nil, false
	}
	return &SiteRoute{
		Host:       host,
		Origin:     s.Origin(),
		ListenPort: s.listenPort,
	}, true
}
